// Package midiemit turns an expanded score.Schedule into per-patch MIDI
// note/CC event tracks at 480 pulses-per-quarter-note, ready for an SMF-1
// writer. Channel assignment follows patch declaration order in the source
// file, and same-tick events are ordered tempo/name meta, then note-off,
// then note-on, then CC, matching the convention General MIDI sequencers
// expect so that a note-off never appears to follow the note-on it clears
// room for.
package midiemit

import (
	"math"
	"sort"

	"github.com/aurora-lang/aurora/internal/lang"
	"github.com/aurora-lang/aurora/internal/score"
	"github.com/aurora-lang/aurora/internal/timebase"
)

// PPQ is the fixed ticks-per-quarter-note resolution used for every emitted
// file.
const PPQ = 480

// EventKind discriminates the four MIDI event shapes this package emits.
type EventKind int

const (
	EventMeta EventKind = iota
	EventNoteOff
	EventNoteOn
	EventCC
)

// Event is one scheduled MIDI event, already quantized to a tick.
type Event struct {
	Tick       uint32
	Kind       EventKind
	Channel    uint8
	Note       uint8
	Velocity   uint8
	Controller uint8
	Value      uint8
	Tempo      float64
}

// Track is one patch's (or the tempo map's) event list, sorted and
// tie-broken, ready for SMF serialization.
type Track struct {
	Name    string
	Channel uint8
	Events  []Event
}

// SecondsToTicks quantizes an absolute time in seconds to the nearest MIDI
// tick, resolving the tempo in effect via tmap.
func SecondsToTicks(seconds float64, tmap timebase.Map) uint32 {
	beats := timebase.SecondsToBeats(seconds, tmap)
	return uint32(math.Round(beats * float64(PPQ)))
}

// BuildTracks assigns a channel to every patch in declaration order (wrapping
// past 16 with modulo, since standard MIDI has 16 channels per port), emits
// its note-on/note-off pairs, and resamples each patch's grouped automation
// lanes into CC events at blockSize-sample intervals across the whole
// [0, totalSamples) render timeline (rather than once per source keyframe),
// since a CC stream driving a live cutoff/gain sweep needs regular samples
// to reproduce the curve, not just its corners.
func BuildTracks(file lang.AuroraFile, sched score.Schedule, tmap timebase.Map, automationByPatch map[string]map[string][]score.AutomationPoint, totalSamples, sampleRate, blockSize int) []Track {
	tracksByPatch := map[string]*Track{}
	var order []string
	for i, patch := range file.Patches {
		channel := uint8(i % 16)
		tracksByPatch[patch.Name] = &Track{Name: patch.Name, Channel: channel}
		order = append(order, patch.Name)
	}

	for _, note := range sched.Notes {
		track, ok := tracksByPatch[note.Patch]
		if !ok {
			continue
		}
		onTick := SecondsToTicks(note.AtSeconds, tmap)
		offTick := SecondsToTicks(note.AtSeconds+note.DurSeconds, tmap)
		midiNote := clampNote(note.MIDINote)
		track.Events = append(track.Events,
			Event{Tick: onTick, Kind: EventNoteOn, Channel: track.Channel, Note: midiNote, Velocity: clampVelocity(note.Vel)},
			Event{Tick: offTick, Kind: EventNoteOff, Channel: track.Channel, Note: midiNote},
		)
	}

	if blockSize <= 0 {
		blockSize = 1
	}
	if sampleRate <= 0 {
		sampleRate = 1
	}
	patchKeys := make([]string, 0, len(automationByPatch))
	for patchName := range automationByPatch {
		patchKeys = append(patchKeys, patchName)
	}
	sort.Strings(patchKeys)
	for _, patchName := range patchKeys {
		track, ok := tracksByPatch[patchName]
		if !ok {
			continue
		}
		lanes := automationByPatch[patchName]
		laneKeys := make([]string, 0, len(lanes))
		for key := range lanes {
			laneKeys = append(laneKeys, key)
		}
		sort.Strings(laneKeys)
		for _, key := range laneKeys {
			points := lanes[key]
			controller := controllerForKey(key)
			for sample := 0; sample < totalSamples; sample += blockSize {
				seconds := float64(sample) / float64(sampleRate)
				value, ok := score.EvaluateLane(points, seconds)
				if !ok {
					continue
				}
				tick := SecondsToTicks(seconds, tmap)
				track.Events = append(track.Events, Event{
					Tick:       tick,
					Kind:       EventCC,
					Channel:    track.Channel,
					Controller: controller,
					Value:      ccValueForKey(key, value),
				})
			}
		}
	}

	tracks := make([]Track, 0, len(order))
	for _, name := range order {
		t := tracksByPatch[name]
		sortEvents(t.Events)
		tracks = append(tracks, *t)
	}
	return tracks
}

// BuildTempoTrack emits one tempo meta event per tmap point, used as the
// file's conductor track.
func BuildTempoTrack(tmap timebase.Map) Track {
	track := Track{Name: "tempo"}
	for _, p := range tmap.Points {
		tick := SecondsToTicks(p.AtSeconds, tmap)
		track.Events = append(track.Events, Event{Tick: tick, Kind: EventMeta, Tempo: p.BPM})
	}
	sortEvents(track.Events)
	return track
}

func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Tick != events[j].Tick {
			return events[i].Tick < events[j].Tick
		}
		return eventOrder(events[i].Kind) < eventOrder(events[j].Kind)
	})
}

func eventOrder(k EventKind) int {
	switch k {
	case EventMeta:
		return 0
	case EventNoteOff:
		return 1
	case EventNoteOn:
		return 2
	case EventCC:
		return 3
	default:
		return 4
	}
}

func clampVelocity(v float64) uint8 {
	scaled := int(math.Round(v * 127))
	if scaled < 1 {
		scaled = 1
	}
	if scaled > 127 {
		scaled = 127
	}
	return uint8(scaled)
}

func clampNote(n int) uint8 {
	if n < 0 {
		n = 0
	}
	if n > 127 {
		n = 127
	}
	return uint8(n)
}

// controllerForKey dispatches a "<nodeId>.<field>" automation key to its
// MIDI CC number: a cutoff lane drives the filter-cutoff convention (CC74),
// a gain lane drives channel volume (CC7), and anything else falls back to
// CC1 (mod wheel) as a generic carrier.
func controllerForKey(key string) uint8 {
	switch {
	case hasSuffix(key, ".cutoff"):
		return 74
	case hasSuffix(key, ".gain"):
		return 7
	default:
		return 1
	}
}

// ccValueForKey converts a lane's raw parameter value into a 0-127 CC value
// using the curve appropriate to its field: cutoff uses a log-frequency
// curve over [20, 20000]Hz, gain uses a linear curve over [-60, 12]dB, and
// anything else is a flat clamp-and-scale of a [0,1] value.
func ccValueForKey(key string, value float64) uint8 {
	switch {
	case hasSuffix(key, ".cutoff"):
		clamped := clampRange(value, 20, 20000)
		norm := math.Log(clamped/20) / math.Log(20000.0/20.0)
		return uint8(math.Round(clamp01(norm) * 127))
	case hasSuffix(key, ".gain"):
		norm := (clampRange(value, -60, 12) + 60) / 72
		return uint8(math.Round(norm * 127))
	default:
		return uint8(math.Round(clamp01(value) * 127))
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
