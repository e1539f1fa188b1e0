package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/aurora-lang/aurora/internal/ioformats"
	"github.com/aurora-lang/aurora/internal/render"
)

func TestPrintReportIncludesPatchesAndMaster(t *testing.T) {
	result := render.Result{
		Meta: ioformats.RenderMeta{
			Seed:            7,
			SampleRate:      48000,
			DurationSeconds: 4.5,
			Patches: []ioformats.PatchMeta{
				{Name: "kick", Stem: "renders/stems/kick.wav", NoteCount: 16},
				{Name: "hat", Stem: "renders/stems/hat.wav", NoteCount: 32},
			},
			Buses: []ioformats.BusMeta{
				{Name: "reverb", Stem: "renders/stems/reverb.wav"},
			},
			Outputs: map[string]string{"master": "renders/mix/master.wav"},
		},
		Warnings: []string{"sample rate mismatch"},
	}

	var buf bytes.Buffer
	printReport(&buf, result)
	out := buf.String()

	if !strings.Contains(out, "seed=7") {
		t.Errorf("expected seed in output, got %q", out)
	}
	if !strings.Contains(out, "kick") || !strings.Contains(out, "hat") {
		t.Errorf("expected both patch names in output, got %q", out)
	}
	if !strings.Contains(out, "reverb") {
		t.Errorf("expected bus name in output, got %q", out)
	}
	if !strings.Contains(out, "renders/mix/master.wav") {
		t.Errorf("expected master path in output, got %q", out)
	}
	if !strings.Contains(out, "sample rate mismatch") {
		t.Errorf("expected warning text in output, got %q", out)
	}
}

func TestNoteCountBarZeroMaxIsEmpty(t *testing.T) {
	if bar := noteCountBar(0, 0, 24); bar != "" {
		t.Errorf("expected empty bar for zero max, got %q", bar)
	}
}

func TestNoteCountBarClampsFilledToWidth(t *testing.T) {
	bar := noteCountBar(100, 10, 8)
	if bar == "" {
		t.Fatal("expected non-empty bar")
	}
	if filled := strings.Count(bar, "█"); filled != 8 {
		t.Errorf("filled cells = %d, want 8 (clamped to width)", filled)
	}
}
