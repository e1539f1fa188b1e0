package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/termenv"

	"github.com/aurora-lang/aurora/internal/ioformats"
	"github.com/aurora-lang/aurora/internal/render"
)

// noteCountBar renders a fixed-width level meter in the same spirit as the
// teacher's mixer channel strip: a colorful-picked hex run through the
// terminal's color profile, one colored glyph per cell.
func noteCountBar(count, max, width int) string {
	if max == 0 || width == 0 {
		return ""
	}
	profile := termenv.ColorProfile()
	fillColor, _ := colorful.Hex("#5FD7A7")
	emptyColor, _ := colorful.Hex("#404040")

	filled := count * width / max
	if filled > width {
		filled = width
	}

	bar := ""
	for i := 0; i < width; i++ {
		color := emptyColor
		glyph := "▒"
		if i < filled {
			color = fillColor
			glyph = "█"
		}
		termColor := profile.Color(color.Hex())
		bar += termenv.String(glyph).Foreground(termColor).String()
	}
	return bar
}

func printReport(w io.Writer, result render.Result) {
	fmt.Fprintf(w, "aurora render complete  seed=%d  sr=%dHz  duration=%.2fs\n",
		result.Meta.Seed, result.Meta.SampleRate, result.Meta.DurationSeconds)

	maxNotes := 0
	for _, p := range result.Meta.Patches {
		if p.NoteCount > maxNotes {
			maxNotes = p.NoteCount
		}
	}

	patches := make([]ioformats.PatchMeta, len(result.Meta.Patches))
	copy(patches, result.Meta.Patches)
	sort.Slice(patches, func(i, j int) bool { return patches[i].Name < patches[j].Name })

	for _, p := range patches {
		fmt.Fprintf(w, "  %-14s %s  %4d notes  -> %s\n", p.Name, noteCountBar(p.NoteCount, maxNotes, 24), p.NoteCount, p.Stem)
	}

	buses := make([]ioformats.BusMeta, len(result.Meta.Buses))
	copy(buses, result.Meta.Buses)
	sort.Slice(buses, func(i, j int) bool { return buses[i].Name < buses[j].Name })
	for _, b := range buses {
		fmt.Fprintf(w, "  %-14s (bus)                    -> %s\n", b.Name, b.Stem)
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintln(w, "warnings:")
		for _, warning := range result.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}

	fmt.Fprintf(w, "master -> %s\n", result.Meta.Outputs["master"])
}
