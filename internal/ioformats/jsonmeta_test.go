package ioformats

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteRenderMetaIncludesPatches(t *testing.T) {
	var buf bytes.Buffer
	meta := RenderMeta{
		Version:         "1",
		Seed:            42,
		SampleRate:      48000,
		DurationSeconds: 12.5,
		Patches:         []PatchMeta{{Name: "kick", Stem: "renders/stems/kick.wav", NoteCount: 16}},
		Outputs:         map[string]string{"master": "renders/mix/master.wav"},
	}
	if err := WriteRenderMeta(&buf, meta); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"kick"`) {
		t.Errorf("expected patch name in output, got %s", out)
	}
	if !strings.Contains(out, `"seed": 42`) {
		t.Errorf("expected seed field in output, got %s", out)
	}
}
