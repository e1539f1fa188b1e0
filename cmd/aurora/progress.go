package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aurora-lang/aurora/internal/render"
)

// renderStages are cosmetic only: render.Source runs as one call, so the
// background goroutine steps the bar through this list on a fixed timer and
// only then calls render.Source; the UI exits when the result comes back.
var renderStages = []string{
	"Parsing source",
	"Validating document",
	"Building tempo map",
	"Expanding score",
	"Rendering patch stems",
	"Mixing buses and master",
	"Writing MIDI and metadata",
}

type stageMsg int

type resultMsg struct {
	result render.Result
	err    error
}

type progressModel struct {
	progress progress.Model
	stage    int
	width    int
	done     bool
	err      error
	result   render.Result
}

func newProgressModel() progressModel {
	p := progress.New(progress.WithDefaultGradient())
	p.Width = 40
	return progressModel{progress: p}
}

func (m progressModel) Init() tea.Cmd {
	return nil
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = msg.Width - 10
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	case stageMsg:
		if int(msg) >= 0 {
			m.stage = int(msg)
		}
		cmd := m.progress.SetPercent(float64(m.stage+1) / float64(len(renderStages)))
		return m, cmd

	case resultMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	stageStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	stageName := "Starting"
	if m.stage < len(renderStages) {
		stageName = renderStages[m.stage]
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render("aurora render"),
		m.progress.View(),
		stageStyle.Render(stageName),
	) + "\n"
}

// runWithProgress drives the render in the background while a bubbletea
// progress bar reports which stage it is walking through, then prints the
// final report once the program exits.
func runWithProgress(source string, opts render.Options) error {
	p := tea.NewProgram(newProgressModel())

	go func() {
		for i := range renderStages {
			p.Send(stageMsg(i))
			time.Sleep(80 * time.Millisecond)
		}
		result, err := render.Source(source, opts)
		p.Send(resultMsg{result: result, err: err})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	fm, ok := finalModel.(progressModel)
	if !ok {
		return fmt.Errorf("unexpected model type returned from progress UI")
	}
	if fm.err != nil {
		return fm.err
	}

	printReport(os.Stdout, fm.result)
	return nil
}
