// Package timebase converts between the score's three time domains — beats,
// seconds, and samples — through a piecewise-constant tempo map built from a
// source file's globals block.
package timebase

import (
	"fmt"
	"math"
	"sort"

	"github.com/aurora-lang/aurora/internal/lang"
)

// Point is one tempo change: the BPM in effect from at_seconds onward, until
// the next point (or the end of the timeline).
type Point struct {
	AtSeconds float64
	BPM       float64
}

// Map is a sorted sequence of tempo Points, always starting at t=0.
type Map struct {
	Points []Point
}

// SecondsFromUnit converts a literal value to seconds given the bpm in
// effect at the point it is being resolved. "beats" are scaled by that single
// bpm; ToSeconds/BeatsToSeconds walk the tempo map for beat values instead.
func SecondsFromUnit(value lang.UnitNumber, bpm float64) (float64, error) {
	switch value.Unit {
	case "", "s":
		return value.Value, nil
	case "ms":
		return value.Value / 1000.0, nil
	case "min":
		return value.Value * 60.0, nil
	case "h":
		return value.Value * 3600.0, nil
	case "beats":
		return value.Value * 60.0 / bpm, nil
	default:
		return 0, fmt.Errorf("unsupported time unit: %s", value.Unit)
	}
}

// Build constructs a Map from a globals block: an implicit point at t=0
// using the base tempo (defaulting to 60 BPM), followed by every
// globals.tempo_map point resolved to an absolute second offset (beat-unit
// offsets are resolved by walking the map built so far), sorted by
// (at_seconds, then bpm ascending on ties).
func Build(globals lang.GlobalsDefinition) (Map, error) {
	baseBPM := 60.0
	if globals.Tempo != nil {
		baseBPM = *globals.Tempo
	}
	m := Map{Points: []Point{{AtSeconds: 0, BPM: baseBPM}}}

	for _, p := range globals.TempoMap {
		var atSeconds float64
		if p.At.Unit == "beats" {
			atSeconds = resolveBeatOffset(m, p.At.Value)
		} else {
			var err error
			atSeconds, err = SecondsFromUnit(p.At, baseBPM)
			if err != nil {
				return Map{}, err
			}
		}
		m.Points = append(m.Points, Point{AtSeconds: atSeconds, BPM: p.BPM})
	}

	sort.SliceStable(m.Points, func(i, j int) bool {
		if m.Points[i].AtSeconds == m.Points[j].AtSeconds {
			return m.Points[i].BPM < m.Points[j].BPM
		}
		return m.Points[i].AtSeconds < m.Points[j].AtSeconds
	})
	return m, nil
}

func resolveBeatOffset(m Map, beats float64) float64 {
	remaining := beats
	for i, pt := range m.Points {
		segStart := pt.AtSeconds
		segEnd := math.Inf(1)
		if i+1 < len(m.Points) {
			segEnd = m.Points[i+1].AtSeconds
		}
		segLen := segEnd - segStart
		segBeats := math.Inf(1)
		if !math.IsInf(segLen, 1) {
			segBeats = segLen * pt.BPM / 60.0
		}
		if remaining <= segBeats {
			return segStart + remaining*60.0/pt.BPM
		}
		remaining -= segBeats
	}
	return 0
}

// BeatsToSeconds converts a beat offset from the timeline start to seconds
// by walking the tempo map's segments and integrating each at its own bpm.
func BeatsToSeconds(beats float64, m Map) float64 {
	if beats <= 0 {
		return 0
	}
	remaining := beats
	for i, pt := range m.Points {
		start := pt.AtSeconds
		end := math.Inf(1)
		if i+1 < len(m.Points) {
			end = m.Points[i+1].AtSeconds
		}
		segSeconds := end - start
		segBeats := math.Inf(1)
		if !math.IsInf(segSeconds, 1) {
			segBeats = segSeconds * pt.BPM / 60.0
		}
		if remaining <= segBeats {
			return start + remaining*60.0/pt.BPM
		}
		remaining -= segBeats
	}
	last := m.Points[len(m.Points)-1]
	return last.AtSeconds + remaining*60.0/last.BPM
}

// SecondsToBeats is the inverse of BeatsToSeconds.
func SecondsToBeats(seconds float64, m Map) float64 {
	if seconds <= 0 {
		return 0
	}
	beats := 0.0
	remaining := seconds
	for i, pt := range m.Points {
		start := pt.AtSeconds
		end := math.Inf(1)
		if i+1 < len(m.Points) {
			end = m.Points[i+1].AtSeconds
		}
		if remaining <= start {
			break
		}
		segEnd := math.Min(remaining, end)
		segSeconds := math.Max(0, segEnd-start)
		beats += segSeconds * pt.BPM / 60.0
		if remaining <= end {
			break
		}
	}
	return beats
}

// OffsetSecondsFrom resolves a relative offset (e.g. a section's dur, or an
// automation point's time) anchored at anchor_seconds. Beat-unit offsets are
// resolved through the tempo map so that "+4 beats" means four beats at
// whatever tempo is in effect at the anchor, not a fixed-seconds shift.
func OffsetSecondsFrom(anchorSeconds float64, offset lang.UnitNumber, m Map) (float64, error) {
	if offset.Unit == "beats" {
		anchorBeats := SecondsToBeats(anchorSeconds, m)
		endSeconds := BeatsToSeconds(anchorBeats+offset.Value, m)
		return endSeconds - anchorSeconds, nil
	}
	return SecondsFromUnit(offset, m.Points[0].BPM)
}

// ToSeconds resolves an absolute-from-timeline-start value to seconds.
func ToSeconds(value lang.UnitNumber, m Map) (float64, error) {
	if value.Unit == "beats" {
		return BeatsToSeconds(value.Value, m), nil
	}
	return SecondsFromUnit(value, m.Points[0].BPM)
}

// ToSamples resolves a value to a sample count at the given sample rate,
// rounding to the nearest integer.
func ToSamples(value lang.UnitNumber, m Map, sampleRate int) (uint64, error) {
	seconds, err := ToSeconds(value, m)
	if err != nil {
		return 0, err
	}
	return uint64(math.Round(seconds * float64(sampleRate))), nil
}

// RoundUpToBlock rounds samples up to the next multiple of blockSize. A
// blockSize of zero disables rounding.
func RoundUpToBlock(samples uint64, blockSize int) uint64 {
	if blockSize == 0 {
		return samples
	}
	block := uint64(blockSize)
	rem := samples % block
	if rem == 0 {
		return samples
	}
	return samples + (block - rem)
}
