package ioformats

import (
	"io"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RenderMeta is the render.json document describing one render: enough to
// reproduce or audit it without re-parsing the source file.
type RenderMeta struct {
	Version         string            `json:"version"`
	Seed            uint64            `json:"seed"`
	SampleRate      int               `json:"sample_rate"`
	DurationSeconds float64           `json:"duration_seconds"`
	Patches         []PatchMeta       `json:"patches"`
	Buses           []BusMeta         `json:"buses"`
	Outputs         map[string]string `json:"outputs"`
	Warnings        []string          `json:"warnings,omitempty"`
}

// PatchMeta summarizes one rendered patch stem.
type PatchMeta struct {
	Name     string `json:"name"`
	Stem     string `json:"stem"`
	NoteCount int   `json:"note_count"`
}

// BusMeta summarizes one rendered bus stem.
type BusMeta struct {
	Name string `json:"name"`
	Stem string `json:"stem"`
}

// WriteRenderMeta writes meta as formatted render.json.
func WriteRenderMeta(w io.Writer, meta RenderMeta) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(meta)
}
