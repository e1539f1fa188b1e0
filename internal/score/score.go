// Package score expands a parsed source file's sections into a flat,
// time-sorted schedule of concrete note and automation events, resolving
// everything the language leaves declarative: relative/beat-anchored
// timing, density/silence presets, stochastic step sequences (pattern
// strings and euclid() calls alike), pitch selection, and per-seq-event rate
// limiting.
package score

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/aurora-lang/aurora/internal/lang"
	"github.com/aurora-lang/aurora/internal/rng"
	"github.com/aurora-lang/aurora/internal/timebase"
)

// NoteEvent is a single resolved voice trigger: a patch name, absolute
// timing in seconds, velocity, resolved pitch (both MIDI number and exact
// frequency, since Hz-unit pitches carry a frequency that isn't simply
// re-derived from the rounded MIDI number), and any extra per-note
// parameters carried through from the source play event (seq hits carry
// none).
type NoteEvent struct {
	Patch      string
	AtSeconds  float64
	DurSeconds float64
	Vel        float64
	MIDINote   int
	Frequency  float64
	PitchIndex int
	Params     map[string]lang.ParamValue
}

// AutomationPoint is one resolved (time, value) sample of an automation
// curve targeting a dotted patch.NAME.node.field path.
type AutomationPoint struct {
	Target    string
	Curve     string
	AtSeconds float64
	Value     lang.ParamValue
}

// Schedule is the fully expanded, time-sorted timeline ready for rendering.
type Schedule struct {
	Notes      []NoteEvent
	Automation []AutomationPoint
}

// Expand walks every section's events, resolving their timing against tmap
// and any stochastic seq events against a PCG32 stream seeded from seed and
// the section/patch identity, so that two renders of the same file with the
// same seed produce byte-identical schedules.
func Expand(file lang.AuroraFile, tmap timebase.Map, seed uint64) (Schedule, error) {
	var sched Schedule
	for _, section := range file.Sections {
		sectionStart, err := timebase.ToSeconds(section.At, tmap)
		if err != nil {
			return Schedule{}, fmt.Errorf("section %q: %w", section.Name, err)
		}
		sectionDur, err := timebase.ToSeconds(section.Dur, tmap)
		if err != nil {
			return Schedule{}, fmt.Errorf("section %q: %w", section.Name, err)
		}
		constraints := resolveSectionConstraints(section)
		density := densityFromPreset(constraints.Density)
		silenceProb := silenceProbability(constraints.Silence)

		for _, event := range section.Events {
			switch event.Kind {
			case lang.SectionEventPlay:
				notes := expandPlay(event.Play, sectionStart, tmap)
				sched.Notes = append(sched.Notes, notes...)
			case lang.SectionEventAutomate:
				points, err := expandAutomate(event.Automate, sectionStart, tmap)
				if err != nil {
					return Schedule{}, fmt.Errorf("section %q automate: %w", section.Name, err)
				}
				sched.Automation = append(sched.Automation, points...)
			case lang.SectionEventSeq:
				notes := expandSeq(section, event.Seq, sectionStart, sectionDur, density, silenceProb, tmap, seed)
				sched.Notes = append(sched.Notes, notes...)
			case lang.SectionEventSet:
				// Parse-time-only construct; nothing to schedule.
			}
		}
	}

	sort.SliceStable(sched.Notes, func(i, j int) bool {
		if sched.Notes[i].AtSeconds != sched.Notes[j].AtSeconds {
			return sched.Notes[i].AtSeconds < sched.Notes[j].AtSeconds
		}
		return sched.Notes[i].Patch < sched.Notes[j].Patch
	})
	sort.SliceStable(sched.Automation, func(i, j int) bool { return sched.Automation[i].AtSeconds < sched.Automation[j].AtSeconds })
	return sched, nil
}

func expandPlay(play lang.PlayEvent, sectionStart float64, tmap timebase.Map) []NoteEvent {
	atOffset, err := timebase.OffsetSecondsFrom(sectionStart, play.At, tmap)
	if err != nil {
		return nil
	}
	at := sectionStart + atOffset
	dur, err := timebase.OffsetSecondsFrom(at, play.Dur, tmap)
	if err != nil {
		return nil
	}

	pitches := play.PitchValues
	if len(pitches) == 0 {
		pitches = []lang.ParamValue{lang.Identifier("C4")}
	}
	vel := clamp(play.Vel, 0, 1.5)
	notes := make([]NoteEvent, 0, len(pitches))
	for i, pv := range pitches {
		pitch := resolvePitchValue(pv)
		notes = append(notes, NoteEvent{
			Patch:      play.Patch,
			AtSeconds:  at,
			DurSeconds: dur,
			Vel:        vel,
			MIDINote:   pitch.MIDI,
			Frequency:  pitch.Frequency,
			PitchIndex: i,
			Params:     play.Params,
		})
	}
	return notes
}

func expandAutomate(automate lang.AutomateEvent, sectionStart float64, tmap timebase.Map) ([]AutomationPoint, error) {
	points := make([]AutomationPoint, 0, len(automate.Points))
	for _, p := range automate.Points {
		offset, err := timebase.OffsetSecondsFrom(sectionStart, p.At, tmap)
		if err != nil {
			return nil, err
		}
		points = append(points, AutomationPoint{
			Target:    automate.Target,
			Curve:     automate.Curve,
			AtSeconds: sectionStart + offset,
			Value:     p.Value,
		})
	}
	return points, nil
}

// ParseAutomationTarget splits a dotted automation target of the form
// "patch.<name>.<nodeId>.<field>" into the owning patch name and the
// "<nodeId>.<field>" key the synth/midiemit packages index automation
// lanes by. Any other shape (fewer than four dotted parts, or not rooted at
// "patch") is not a recognized target and is reported via ok=false so the
// caller can drop it silently, matching how the rest of the pipeline treats
// malformed automation targets as inert rather than fatal.
func ParseAutomationTarget(target string) (patchName, key string, ok bool) {
	parts := strings.Split(target, ".")
	if len(parts) < 4 || parts[0] != "patch" {
		return "", "", false
	}
	return parts[1], parts[2] + "." + parts[3], true
}

// GroupAutomationByPatch buckets resolved automation points by owning patch
// and node.field key, sorting each lane by time so EvaluateLane callers
// (the voice renderer's per-sample cutoff/gain lookups, the MIDI emitter's
// CC resampling) never need to re-sort or re-parse targets themselves.
func GroupAutomationByPatch(points []AutomationPoint) map[string]map[string][]AutomationPoint {
	out := map[string]map[string][]AutomationPoint{}
	for _, p := range points {
		patchName, key, ok := ParseAutomationTarget(p.Target)
		if !ok {
			continue
		}
		lanes, ok := out[patchName]
		if !ok {
			lanes = map[string][]AutomationPoint{}
			out[patchName] = lanes
		}
		lanes[key] = append(lanes[key], p)
	}
	for _, lanes := range out {
		for key, pts := range lanes {
			sorted := append([]AutomationPoint(nil), pts...)
			sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].AtSeconds < sorted[j].AtSeconds })
			lanes[key] = sorted
		}
	}
	return out
}

// sectionConstraints is the resolved (density preset name, silence preset
// name) pair a section's directives select, either directly or via a named
// pack shorthand.
type sectionConstraints struct {
	Density string
	Silence string
}

// resolveSectionConstraints reads a section's pack/density/silence
// directives. A pack name expands to a (density, silence) pair; an
// explicit density or silence directive overrides whatever the pack (or the
// "medium"/"" defaults) selected.
func resolveSectionConstraints(section lang.SectionDefinition) sectionConstraints {
	constraints := sectionConstraints{Density: "medium", Silence: ""}
	if section.Directives == nil {
		return constraints
	}
	if pack, ok := section.Directives["pack"]; ok {
		if name, ok := pack.AsText(); ok {
			switch name {
			case "resist_resolution":
				constraints.Density, constraints.Silence = "low", "medium"
			case "long_breath":
				constraints.Density, constraints.Silence = "very_low", "long"
			case "sparse_events":
				constraints.Density = "very_low"
			case "monolithic_decl":
				constraints.Density, constraints.Silence = "low", "long"
			}
		}
	}
	if v, ok := section.Directives["density"]; ok {
		if name, ok := v.AsText(); ok {
			constraints.Density = name
		}
	}
	if v, ok := section.Directives["silence"]; ok {
		if name, ok := v.AsText(); ok {
			constraints.Silence = name
		}
	}
	return constraints
}

// seqDensity is the multiplier set a density preset applies to a seq
// event's rate, trigger probability, and per-minute event cap.
type seqDensity struct {
	RateMultiplier     float64
	ProbMultiplier     float64
	MaxEventsPerMinute int
}

func densityFromPreset(preset string) seqDensity {
	switch preset {
	case "very_low":
		return seqDensity{RateMultiplier: 0.5, ProbMultiplier: 0.6, MaxEventsPerMinute: 8}
	case "low":
		return seqDensity{RateMultiplier: 0.75, ProbMultiplier: 0.8, MaxEventsPerMinute: 16}
	case "high":
		return seqDensity{RateMultiplier: 1.25, ProbMultiplier: 1.15, MaxEventsPerMinute: 64}
	default:
		return seqDensity{RateMultiplier: 1.0, ProbMultiplier: 1.0, MaxEventsPerMinute: 32}
	}
}

func silenceProbability(preset string) float64 {
	switch preset {
	case "long":
		return 0.60
	case "medium":
		return 0.35
	case "short":
		return 0.15
	default:
		return 0.0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// valueToText resolves a string-like value to its raw text, falling back to
// DebugString for anything that isn't a string or identifier (matching how
// the original treats a wrong-kind field: render something sensible rather
// than fail the expansion).
func valueToText(v lang.ParamValue) string {
	if text, ok := v.AsText(); ok {
		return text
	}
	return v.DebugString()
}

// valueToNumber extracts a bare numeric reading from v, treating a
// UnitNumber's raw value as the number regardless of its unit (the unit is
// only meaningful to the timebase-aware helpers below).
func valueToNumber(v lang.ParamValue, fallback float64) float64 {
	switch v.Kind {
	case lang.KindNumber:
		return v.NumberValue
	case lang.KindUnitNumber:
		return v.UnitNumberValue.Value
	default:
		return fallback
	}
}

// valueToUnit coerces v into a UnitNumber, treating a bare number as
// carrying defaultUnit and any other kind as zero.
func valueToUnit(v lang.ParamValue, defaultUnit string) lang.UnitNumber {
	switch v.Kind {
	case lang.KindUnitNumber:
		return v.UnitNumberValue
	case lang.KindNumber:
		return lang.UnitNumber{Value: v.NumberValue, Unit: defaultUnit}
	default:
		return lang.UnitNumber{Value: 0, Unit: defaultUnit}
	}
}

// paramAsSeconds resolves v to an absolute seconds-from-timeline-start
// value (not an offset), the convention seq fields like "at"/"dur" use.
func paramAsSeconds(v lang.ParamValue, tmap timebase.Map) float64 {
	seconds, err := timebase.ToSeconds(valueToUnit(v, "s"), tmap)
	if err != nil {
		return 0
	}
	return seconds
}

func fieldSecondsOr(fields map[string]lang.ParamValue, key string, fallback float64, tmap timebase.Map) float64 {
	v, ok := fields[key]
	if !ok {
		return fallback
	}
	return paramAsSeconds(v, tmap)
}

func fieldNumberOr(fields map[string]lang.ParamValue, key string, fallback float64) float64 {
	v, ok := fields[key]
	if !ok {
		return fallback
	}
	return valueToNumber(v, fallback)
}

func fieldTextOr(fields map[string]lang.ParamValue, key string, fallback string) string {
	v, ok := fields[key]
	if !ok {
		return fallback
	}
	return valueToText(v)
}

// seqPitchList resolves the pool of candidate pitches a seq event draws
// from: an explicit list, a single value wrapped as a one-element list, or
// the default middle-C when the field is absent entirely.
func seqPitchList(fields map[string]lang.ParamValue) []lang.ParamValue {
	v, ok := fields["pitch"]
	if !ok {
		return []lang.ParamValue{lang.Identifier("C4")}
	}
	if v.Kind == lang.KindList {
		return v.ListValues
	}
	return []lang.ParamValue{v}
}

// parseWeights reads a seq event's weights list, clamping negative entries
// to zero and padding (not just appending) short lists out to
// expectedCount with 1.0 so every pitch has a usable weight.
func parseWeights(fields map[string]lang.ParamValue, expectedCount int) []float64 {
	var weights []float64
	if v, ok := fields["weights"]; ok && v.Kind == lang.KindList {
		for _, w := range v.ListValues {
			n := valueToNumber(w, 0)
			if n < 0 {
				n = 0
			}
			weights = append(weights, n)
		}
	}
	for len(weights) < expectedCount {
		weights = append(weights, 1.0)
	}
	return weights
}

type burstConfig struct {
	Probability   float64
	Count         int
	SpreadSeconds float64
}

// parseBurst reads a seq event's optional burst{prob,count,spread} object.
// Any other shape (missing, or not an object) yields the zero-value config,
// which disables bursting entirely.
func parseBurst(fields map[string]lang.ParamValue, tmap timebase.Map) burstConfig {
	v, ok := fields["burst"]
	if !ok || v.Kind != lang.KindObject {
		return burstConfig{}
	}
	var cfg burstConfig
	if prob, ok := v.ObjectValues["prob"]; ok {
		cfg.Probability = clamp(valueToNumber(prob, 0), 0, 1)
	}
	if count, ok := v.ObjectValues["count"]; ok {
		cfg.Count = int(math.Round(valueToNumber(count, 0)))
	}
	if spread, ok := v.ObjectValues["spread"]; ok {
		cfg.SpreadSeconds = paramAsSeconds(spread, tmap)
	}
	return cfg
}

// pickPitchIndex selects which pitch of the pool to sound for this step
// under the given pick strategy: "cycle" rotates deterministically through
// the pool by step index, "weighted" draws proportionally to weights (a
// weight sum of zero falls back to index 0), and anything else (including
// the default "uniform") draws a flat random index via the PCG32 stream's
// raw integer output.
func pickPitchIndex(strategy string, stepIndex int, weights []float64, g *rng.PCG32) int {
	switch strategy {
	case "cycle":
		if len(weights) == 0 {
			return 0
		}
		return stepIndex % len(weights)
	case "weighted":
		if len(weights) == 0 {
			return 0
		}
		total := 0.0
		for _, w := range weights {
			if w > 0 {
				total += w
			}
		}
		if total <= 0 {
			return 0
		}
		needle := g.Uniform(0, total)
		running := 0.0
		for i, w := range weights {
			if w > 0 {
				running += w
			}
			if needle <= running {
				return i
			}
		}
		return len(weights) - 1
	default:
		if len(weights) == 0 {
			return 0
		}
		return int(g.NextUInt() % uint32(len(weights)))
	}
}

// seqStepActive reports whether step is a trigger under pattern: a nil
// pattern (or one of any other kind) is always active; a string/identifier
// is read as a char-per-step pattern where 'x', 'X', '*', and '1' are
// onsets; a euclid(pulses, steps, rotation) call lazily builds and caches
// its onset table on first use.
func seqStepActive(pattern *lang.ParamValue, step int, euclidCache *[]bool) bool {
	if pattern == nil {
		return true
	}
	switch pattern.Kind {
	case lang.KindString, lang.KindIdentifier:
		text := pattern.StringValue
		if text == "" {
			return true
		}
		ch := text[step%len(text)]
		return ch == 'x' || ch == 'X' || ch == '*' || ch == '1'
	case lang.KindCall:
		if pattern.StringValue != "euclid" {
			return true
		}
		if len(*euclidCache) == 0 {
			args := pattern.ListValues
			k := intArg(args, 0, 0)
			n := intArg(args, 1, 1)
			rot := intArg(args, 2, 0)
			*euclidCache = BuildEuclideanPattern(k, n, rot)
		}
		if len(*euclidCache) == 0 {
			return false
		}
		return (*euclidCache)[step%len(*euclidCache)]
	default:
		return true
	}
}

func intArg(args []lang.ParamValue, index, fallback int) int {
	if index >= len(args) {
		return fallback
	}
	n, ok := args[index].TryNumber()
	if !ok {
		return fallback
	}
	return int(math.Round(n))
}

// BuildEuclideanPattern distributes pulses onsets as evenly as possible
// across steps using the Bresenham-line construction for Euclidean rhythms
// (e.g. pulses=3,steps=8 produces the classic tresillo x..x..x.), then
// rotates the resulting table left by rotation steps.
func BuildEuclideanPattern(pulses, steps, rotation int) []bool {
	if steps <= 0 {
		return nil
	}
	if pulses < 0 {
		pulses = 0
	}
	if pulses > steps {
		pulses = steps
	}
	pattern := make([]bool, steps)
	for i := 0; i < steps; i++ {
		pattern[i] = (i*pulses)%steps < pulses
	}

	rot := rotation % steps
	if rot < 0 {
		rot += steps
	}
	if rot == 0 {
		return pattern
	}
	rotated := make([]bool, steps)
	for i := 0; i < steps; i++ {
		rotated[i] = pattern[(i+rot)%steps]
	}
	return rotated
}

const rateCapWindowSeconds = 60.0

// addSeqHit evicts rollingTimes entries older than the 60-second cap
// window, then appends the hit unless maxPerMinute is positive and already
// saturated, in which case the hit is silently dropped and rollingTimes is
// left unchanged (a dropped hit was never "seen" for future eviction).
func addSeqHit(notes *[]NoteEvent, rollingTimes *[]float64, atSeconds float64, durSeconds float64, patch string, vel float64, pitch resolvedPitch, pitchIndex int, maxPerMinute int) {
	times := *rollingTimes
	i := 0
	for i < len(times) && atSeconds-times[i] > rateCapWindowSeconds {
		i++
	}
	times = times[i:]
	if maxPerMinute > 0 && len(times) >= maxPerMinute {
		*rollingTimes = times
		return
	}
	times = append(times, atSeconds)
	*rollingTimes = times
	*notes = append(*notes, NoteEvent{
		Patch:      patch,
		AtSeconds:  atSeconds,
		DurSeconds: durSeconds,
		Vel:        vel,
		MIDINote:   pitch.MIDI,
		Frequency:  pitch.Frequency,
		PitchIndex: pitchIndex,
	})
}

func expandSeq(section lang.SectionDefinition, seq lang.SeqEvent, sectionStart, sectionDur float64, density seqDensity, silenceProb float64, tmap timebase.Map, seed uint64) []NoteEvent {
	fields := seq.Fields

	atSeconds := fieldSecondsOr(fields, "at", sectionStart, tmap)
	durSeconds := fieldSecondsOr(fields, "dur", sectionDur, tmap)
	rateSeconds := math.Max(0.001, fieldSecondsOr(fields, "rate", 1.0, tmap)*density.RateMultiplier)
	prob := clamp(fieldNumberOr(fields, "prob", 1.0)*density.ProbMultiplier, 0, 1)
	vel := clamp(fieldNumberOr(fields, "vel", 0.8), 0, 1)
	jitterSeconds := math.Max(0, fieldSecondsOr(fields, "jitter", 0.0, tmap))
	swing := clamp(fieldNumberOr(fields, "swing", 0.5), 0, 1)
	seqMax := int(math.Round(fieldNumberOr(fields, "max", float64(density.MaxEventsPerMinute))))
	maxPerMinute := density.MaxEventsPerMinute
	if seqMax < maxPerMinute {
		maxPerMinute = seqMax
	}
	eventLenSeconds := math.Max(0.030, math.Min(rateSeconds*0.9, 0.35))

	pitchValues := seqPitchList(fields)
	weights := parseWeights(fields, len(pitchValues))
	pick := fieldTextOr(fields, "pick", "uniform")
	burst := parseBurst(fields, tmap)

	var patternValue *lang.ParamValue
	if v, ok := fields["pattern"]; ok {
		patternValue = &v
	}
	var euclidCache []bool

	streamKey := rng.Hash64FromParts(seed, "seq", section.Name, seq.Patch)
	g := rng.NewPCG32(streamKey)

	var notes []NoteEvent
	var rollingTimes []float64

	stepCount := int(math.Floor(durSeconds / rateSeconds))
	if stepCount < 0 {
		stepCount = 0
	}

	for step := 0; step < stepCount; step++ {
		if !seqStepActive(patternValue, step, &euclidCache) {
			continue
		}
		if g.NextUnit() >= prob {
			continue
		}
		if silenceProb > 0 && g.NextUnit() < silenceProb {
			continue
		}

		timeSeconds := atSeconds + float64(step)*rateSeconds
		if step%2 == 1 {
			timeSeconds += (swing - 0.5) * rateSeconds
		}
		jitter := clamp(g.Uniform(-jitterSeconds, jitterSeconds), -0.49*rateSeconds, 0.49*rateSeconds)
		timeSeconds += jitter
		timeSeconds = clamp(timeSeconds, atSeconds, atSeconds+durSeconds)

		pickIndex := pickPitchIndex(pick, step, weights, g)
		pitch := resolvePitchValue(pitchValues[pickIndex%len(pitchValues)])

		addSeqHit(&notes, &rollingTimes, timeSeconds, eventLenSeconds, seq.Patch, vel, pitch, pickIndex%len(pitchValues), maxPerMinute)

		if burst.Count > 1 && g.NextUnit() < burst.Probability {
			spread := burst.SpreadSeconds
			if spread <= 0 {
				spread = rateSeconds * 0.8
			}
			for i := 1; i < burst.Count; i++ {
				burstTime := timeSeconds + spread*(float64(i)/float64(burst.Count))
				addSeqHit(&notes, &rollingTimes, burstTime, eventLenSeconds, seq.Patch, vel, pitch, pickIndex%len(pitchValues), maxPerMinute)
			}
		}
	}
	return notes
}

var noteBase = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// NoteNameToMidi parses a scientific-pitch-notation note name such as "C4",
// "F#3", or "Bb-1" into a MIDI note number (C4 == 60, matching the
// language's octave convention). Any letter this table doesn't recognize,
// or an unparsable octave, defaults to A4 (MIDI 69) / octave 4 respectively
// rather than failing, so a typo in a note name never aborts a render.
func NoteNameToMidi(name string) int {
	if name == "" {
		return 69
	}
	letter := byte(strings.ToUpper(name[:1])[0])
	base, ok := noteBase[letter]
	if !ok {
		return 69
	}
	rest := name[1:]
	accidental := 0
	for len(rest) > 0 && (rest[0] == '#' || rest[0] == 'b') {
		if rest[0] == '#' {
			accidental++
		} else {
			accidental--
		}
		rest = rest[1:]
	}
	octave := 4
	if rest != "" {
		if parsed, err := parseOctave(rest); err == nil {
			octave = parsed
		}
	}
	return (octave+1)*12 + base + accidental
}

func parseOctave(text string) (int, error) {
	neg := false
	if len(text) > 0 && text[0] == '-' {
		neg = true
		text = text[1:]
	}
	if text == "" {
		return 0, fmt.Errorf("no digits")
	}
	n := 0
	for i := 0; i < len(text); i++ {
		if text[i] < '0' || text[i] > '9' {
			return 0, fmt.Errorf("non-digit octave")
		}
		n = n*10 + int(text[i]-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}

// MidiToFrequency converts a MIDI note number to its equal-tempered
// frequency in Hz, using A4 (MIDI 69) = 440Hz.
func MidiToFrequency(midi int) float64 {
	return 440.0 * math.Pow(2, float64(midi-69)/12.0)
}

// resolvedPitch is the pair a pitch value resolves to: the oscillator
// frequency to actually use (which for Hz-unit literals is the exact value
// given, not one re-derived from a rounded MIDI number) and the MIDI note
// number (used for MIDI emission and as the frequency fallback).
type resolvedPitch struct {
	Frequency float64
	MIDI      int
}

// resolvePitchValue resolves any pitch-bearing ParamValue: a Hz-unit number
// converts via 69+12*log2(hz/440) for its MIDI number while keeping the
// exact Hz value as its frequency; any other unit number or bare number
// rounds directly to a MIDI note; a string/identifier resolves through
// NoteNameToMidi. Any other kind defaults to A4.
func resolvePitchValue(v lang.ParamValue) resolvedPitch {
	switch v.Kind {
	case lang.KindUnitNumber:
		if strings.EqualFold(v.UnitNumberValue.Unit, "hz") {
			hz := math.Max(1, v.UnitNumberValue.Value)
			return resolvedPitch{Frequency: hz, MIDI: int(math.Round(69 + 12*math.Log2(hz/440)))}
		}
		midi := int(math.Round(v.UnitNumberValue.Value))
		return resolvedPitch{Frequency: MidiToFrequency(midi), MIDI: midi}
	case lang.KindNumber:
		midi := int(math.Round(v.NumberValue))
		return resolvedPitch{Frequency: MidiToFrequency(midi), MIDI: midi}
	case lang.KindString, lang.KindIdentifier:
		midi := NoteNameToMidi(v.StringValue)
		return resolvedPitch{Frequency: MidiToFrequency(midi), MIDI: midi}
	default:
		return resolvedPitch{Frequency: 440, MIDI: 69}
	}
}

// EvaluateLane samples an automation curve at queryTime using the points
// already sorted by AtSeconds. Supported curves are linear (default), step
// (hold the prior point's value), exp (exponential ease), and smooth
// (cosine ease in/out).
func EvaluateLane(points []AutomationPoint, queryTime float64) (float64, bool) {
	if len(points) == 0 {
		return 0, false
	}
	if queryTime <= points[0].AtSeconds {
		v, _ := points[0].Value.TryNumber()
		return v, true
	}
	last := points[len(points)-1]
	if queryTime >= last.AtSeconds {
		v, _ := last.Value.TryNumber()
		return v, true
	}
	for i := 0; i < len(points)-1; i++ {
		a, b := points[i], points[i+1]
		if queryTime < a.AtSeconds || queryTime > b.AtSeconds {
			continue
		}
		av, _ := a.Value.TryNumber()
		bv, _ := b.Value.TryNumber()
		span := b.AtSeconds - a.AtSeconds
		if span <= 0 {
			return bv, true
		}
		t := (queryTime - a.AtSeconds) / span
		switch b.Curve {
		case "step":
			return av, true
		case "exp":
			t = t * t
		case "smooth":
			t = 0.5 - 0.5*math.Cos(t*math.Pi)
		}
		return av + (bv-av)*t, true
	}
	v, _ := last.Value.TryNumber()
	return v, true
}
