// Package assets validates the optional sample library a source file's
// assets{} block references, adapted from the teacher's WAV-inspection
// helper: instead of guessing a BPM from a loop's duration, it confirms
// every declared sample has a readable WAV header and flags sample-rate or channel-count
// mismatches against the render's own globals.sr before they become an
// audible surprise in the mix.
package assets

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/wav"

	"github.com/aurora-lang/aurora/internal/lang"
)

// SampleInfo describes one decoded sample asset.
type SampleInfo struct {
	Name       string
	Path       string
	Channels   int
	SampleRate int
}

// Validate resolves every assets.samples entry against assets.samples_dir,
// decodes its WAV header, and returns per-sample info plus any warnings
// (sample-rate mismatch, non-mono source for a mono-assuming graph). A
// missing file or one without a valid WAV header is a hard error. Only the
// header is read; the renderer does not load sample data.
func Validate(def lang.AssetsDefinition, targetSampleRate int) ([]SampleInfo, []string, error) {
	var infos []SampleInfo
	var warnings []string

	for name, relPath := range def.Samples {
		path := relPath
		if def.SamplesDir != "" {
			path = filepath.Join(def.SamplesDir, relPath)
		}
		info, err := inspect(name, path)
		if err != nil {
			return nil, nil, err
		}
		if info.SampleRate != targetSampleRate {
			warnings = append(warnings, fmt.Sprintf(
				"sample %q (%s) is %dHz but render sample rate is %dHz; it will be used as-is with no resampling",
				name, path, info.SampleRate, targetSampleRate))
		}
		if info.Channels != 1 {
			warnings = append(warnings, fmt.Sprintf(
				"sample %q (%s) has %d channels but render stems are mono",
				name, path, info.Channels))
		}
		infos = append(infos, info)
	}
	return infos, warnings, nil
}

func inspect(name, path string) (SampleInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return SampleInfo{}, fmt.Errorf("asset %q: %w", name, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return SampleInfo{}, fmt.Errorf("asset %q: %s is not a valid WAV file", name, path)
	}
	d.ReadInfo()

	return SampleInfo{
		Name:       name,
		Path:       path,
		Channels:   int(d.NumChans),
		SampleRate: int(d.SampleRate),
	}, nil
}
