// Package synth renders a patch's graph against its scheduled notes into
// per-sample float64 stem buffers, and provides the master-mix DSP the
// renderer sums stems through afterward plus a standalone delay-bus primitive
// (the renderer's own bus processing lives in internal/render).
package synth

import (
	"math"
	"strconv"

	"github.com/aurora-lang/aurora/internal/lang"
	"github.com/aurora-lang/aurora/internal/rng"
	"github.com/aurora-lang/aurora/internal/score"
)

// oscillator is one voice in a patch's signal path: a waveform type, a
// fixed frequency (zero means "use the note's resolved pitch"), and a pulse
// width used only by the pulse waveform.
type oscillator struct {
	Type       string
	Freq       float64
	PulseWidth float64
}

type envelopeParams struct {
	Enabled bool
	Attack  float64
	Decay   float64
	Sustain float64
	Release float64
}

type filterParams struct {
	Enabled   bool
	Mode      string
	CutoffHz  float64
}

// patchProgram is the flattened, render-ready form of a patch's graph: every
// field the per-sample voice renderer needs, with node lookup already done.
type patchProgram struct {
	FilterNodeID string
	GainNodeID   string
	Oscillators  []oscillator
	NoiseWhite   bool
	SamplePlayer bool
	Env          envelopeParams
	Filter       filterParams
	GainDB       float64
}

func defaultPatchProgram() patchProgram {
	return patchProgram{
		Env:    envelopeParams{Enabled: false, Attack: 0.01, Decay: 0.1, Sustain: 0.8, Release: 0.2},
		Filter: filterParams{Enabled: false, Mode: "lp", CutoffHz: 1500.0},
		GainDB: -6.0,
	}
}

func nodeParamNumber(params map[string]lang.ParamValue, key string, fallback float64) float64 {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	n, ok := v.TryNumber()
	if !ok {
		return fallback
	}
	return n
}

func nodeParamText(params map[string]lang.ParamValue, key string, fallback string) string {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	text, ok := v.AsText()
	if !ok {
		return fallback
	}
	return text
}

func nodeParamHzOr(params map[string]lang.ParamValue, key string, fallback float64) float64 {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	if v.Kind == lang.KindUnitNumber && v.UnitNumberValue.Unit == "Hz" {
		return v.UnitNumberValue.Value
	}
	return nodeParamNumber(params, key, fallback)
}

// buildPatchProgram flattens a patch's node graph into a patchProgram: any
// node whose type starts with "osc_" contributes an oscillator; "noise_white"
// and "noise_pink" both enable the (undifferentiated) white-noise source;
// "sample_player"/"sample_slice" enable the placeholder sample source;
// "env_adsr" configures the envelope; "svf"/"biquad" configure the one-pole
// filter; "gain" records the gain node's id and level. A patch with no
// oscillator, noise, or sample source falls back to a single 110Hz sine so
// every voice produces sound.
func buildPatchProgram(patch lang.PatchDefinition) patchProgram {
	program := defaultPatchProgram()

	for _, node := range patch.Graph.Nodes {
		switch {
		case len(node.Type) >= 4 && node.Type[:4] == "osc_":
			freq := 0.0
			if v, ok := node.Params["freq"]; ok {
				if v.Kind == lang.KindUnitNumber && v.UnitNumberValue.Unit == "Hz" {
					freq = v.UnitNumberValue.Value
				} else {
					freq = nodeParamNumber(node.Params, "freq", 0)
				}
			}
			program.Oscillators = append(program.Oscillators, oscillator{
				Type:       node.Type,
				Freq:       freq,
				PulseWidth: nodeParamNumber(node.Params, "pw", 0.5),
			})
		case node.Type == "noise_white", node.Type == "noise_pink":
			program.NoiseWhite = true
		case node.Type == "sample_player", node.Type == "sample_slice":
			program.SamplePlayer = true
		case node.Type == "env_adsr":
			program.Env.Enabled = true
			program.Env.Attack = valueToUnitRaw(node.Params, "a", program.Env.Attack)
			program.Env.Decay = valueToUnitRaw(node.Params, "d", program.Env.Decay)
			program.Env.Sustain = nodeParamNumber(node.Params, "s", program.Env.Sustain)
			program.Env.Release = valueToUnitRaw(node.Params, "r", program.Env.Release)
		case node.Type == "svf", node.Type == "biquad":
			program.Filter.Enabled = true
			program.FilterNodeID = node.ID
			program.Filter.Mode = nodeParamText(node.Params, "mode", nodeParamText(node.Params, "type", program.Filter.Mode))
			if _, ok := node.Params["cutoff"]; ok {
				program.Filter.CutoffHz = nodeParamHzOr(node.Params, "cutoff", program.Filter.CutoffHz)
			} else {
				program.Filter.CutoffHz = nodeParamHzOr(node.Params, "freq", program.Filter.CutoffHz)
			}
		case node.Type == "gain":
			program.GainNodeID = node.ID
			if v, ok := node.Params["gain"]; ok {
				if v.Kind == lang.KindUnitNumber && v.UnitNumberValue.Unit == "dB" {
					program.GainDB = v.UnitNumberValue.Value
				} else {
					program.GainDB = nodeParamNumber(node.Params, "gain", program.GainDB)
				}
			}
		}
	}

	if len(program.Oscillators) == 0 && !program.NoiseWhite && !program.SamplePlayer {
		program.Oscillators = append(program.Oscillators, oscillator{Type: "osc_sine", Freq: 110.0, PulseWidth: 0.5})
	}
	return program
}

func valueToUnitRaw(params map[string]lang.ParamValue, key string, fallback float64) float64 {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	switch v.Kind {
	case lang.KindUnitNumber:
		return v.UnitNumberValue.Value
	case lang.KindNumber:
		return v.NumberValue
	default:
		return fallback
	}
}

// envelopeValue evaluates the attack/decay/sustain/release envelope at time
// t seconds into a note whose sounding length is noteDur seconds. A disabled
// envelope is always unity gain.
func envelopeValue(env envelopeParams, t, noteDur float64) float64 {
	if !env.Enabled {
		return 1.0
	}
	attack := math.Max(0.0001, env.Attack)
	decay := math.Max(0.0001, env.Decay)
	release := math.Max(0.0001, env.Release)

	if t < attack {
		return clamp01(t / attack)
	}
	if t < attack+decay {
		return 1.0 + (env.Sustain-1.0)*((t-attack)/decay)
	}
	if t < noteDur {
		return env.Sustain
	}
	if t < noteDur+release {
		return env.Sustain * (1.0 - clamp01((t-noteDur)/release))
	}
	return 0.0
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

// oscSample evaluates one oscillator's waveform at the given phase (cycles,
// not radians): osc_sine is a pure sine, osc_saw_blep/osc_tri_blep/
// osc_pulse_blep are naive (non-bandlimited) saw/triangle/pulse shapes, and
// any unrecognized type falls back to sine.
func oscSample(osc oscillator, phase float64) float64 {
	norm := phase - math.Floor(phase)
	switch osc.Type {
	case "osc_sine":
		return math.Sin(2 * math.Pi * norm)
	case "osc_saw_blep":
		return 2*norm - 1
	case "osc_tri_blep":
		return 4*math.Abs(norm-0.5) - 1
	case "osc_pulse_blep":
		if norm < osc.PulseWidth {
			return 1
		}
		return -1
	default:
		return math.Sin(2 * math.Pi * norm)
	}
}

// RenderPatchStem sums every voice triggered for patch into a single mono
// buffer of totalSamples length at sampleRate. automation holds the patch's
// grouped "<nodeId>.<field>" lanes (filter cutoff, gain) so per-sample
// values can override the patch's static program where a lane exists; seed
// (combined with the patch name, start sample, and pitch index) derives the
// noise source for each voice so two different seeds never share a noise
// stream and two simultaneous notes on different patches never collide.
func RenderPatchStem(patch lang.PatchDefinition, notes []score.NoteEvent, automation map[string][]score.AutomationPoint, totalSamples, sampleRate int, seed uint64) []float64 {
	buffer := make([]float64, totalSamples)
	program := buildPatchProgram(patch)
	for _, note := range notes {
		if note.Patch != patch.Name {
			continue
		}
		renderNoteIntoStem(buffer, program, note, automation, sampleRate, seed)
	}
	return buffer
}

const fadeSeconds = 0.005

// renderNoteIntoStem accumulates one note occurrence's voice into buffer in
// place. The render loop runs for exactly note.DurSeconds worth of samples
// (no extension for the envelope's release tail, matching the reference
// renderer's behavior — a note's release is only audible up to whatever
// sliver of it lands before the loop ends).
func renderNoteIntoStem(buffer []float64, program patchProgram, note score.NoteEvent, automation map[string][]score.AutomationPoint, sampleRate int, seed uint64) {
	startSample := int(math.Round(note.AtSeconds * float64(sampleRate)))
	if startSample >= len(buffer) {
		return
	}
	durSamples := int(math.Round(note.DurSeconds * float64(sampleRate)))
	if durSamples < 1 {
		durSamples = 1
	}
	noteDur := float64(durSamples) / float64(sampleRate)
	baseGain := dbToGainLinear(program.GainDB) * note.Vel

	phases := make([]float64, len(program.Oscillators))
	filterState := 0.0
	noiseSeed := rng.Hash64FromParts(seed, "voice", note.Patch, strconv.Itoa(startSample), strconv.Itoa(note.PitchIndex))
	noiseGen := rng.NewPCG32(noiseSeed)

	fadeSamples := int(math.Round(float64(sampleRate) * fadeSeconds))

	cutoffLane := automation[program.FilterNodeID+".cutoff"]
	gainLane := automation[program.GainNodeID+".gain"]

	for i := 0; i < durSamples; i++ {
		absSample := startSample + i
		if absSample >= len(buffer) {
			break
		}
		t := float64(i) / float64(sampleRate)
		env := envelopeValue(program.Env, t, noteDur)

		if fadeSamples > 0 && i < fadeSamples {
			env *= float64(i) / float64(fadeSamples)
		}
		if fadeSamples > 0 && durSamples > fadeSamples {
			remaining := durSamples - i
			if remaining < fadeSamples {
				env *= float64(remaining) / float64(fadeSamples)
			}
		}

		sample := 0.0
		for idx, osc := range program.Oscillators {
			freq := osc.Freq
			if freq <= 0 {
				freq = note.Frequency
			}
			phases[idx] += freq / float64(sampleRate)
			sample += oscSample(osc, phases[idx])
		}
		if program.NoiseWhite {
			sample += noiseGen.Uniform(-1, 1) * 0.25
		}
		if program.SamplePlayer {
			decay := math.Exp(-t * 20.0)
			sample += noiseGen.Uniform(-1, 1) * decay * 0.6
		}
		if len(program.Oscillators) > 0 {
			sample /= float64(len(program.Oscillators))
		}

		cutoff := program.Filter.CutoffHz
		if program.FilterNodeID != "" {
			if v, ok := score.EvaluateLane(cutoffLane, float64(absSample)/float64(sampleRate)); ok {
				cutoff = math.Max(20.0, v)
			}
		}
		if program.Filter.Enabled {
			alpha := clamp01(1 - math.Exp(-2*math.Pi*cutoff/float64(sampleRate)))
			filterState += alpha * (sample - filterState)
			if program.Filter.Mode == "hp" {
				sample = sample - filterState
			} else {
				sample = filterState
			}
		}

		gain := baseGain
		if program.GainNodeID != "" {
			if v, ok := score.EvaluateLane(gainLane, float64(absSample)/float64(sampleRate)); ok {
				gain = dbToGainLinear(v) * note.Vel
			}
		}

		buffer[absSample] += sample * env * gain
	}
}

func dbToGainLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// DbToGain converts a decibel value to a linear amplitude multiplier, used
// by the renderer for bus-send levels.
func DbToGain(db float64) float64 {
	return dbToGainLinear(db)
}

// ProcessDelayBus runs a feedback delay line over input, mixing wet and dry
// signal by mix (0 = fully dry, 1 = fully wet). Kept as a standalone
// primitive for simple delay taps distinct from the bus reverb's single
// circular-line model in internal/render.
func ProcessDelayBus(input []float64, sampleRate int, delaySeconds, feedback, mix float64) []float64 {
	delaySamples := int(delaySeconds * float64(sampleRate))
	if delaySamples < 1 {
		delaySamples = 1
	}
	out := make([]float64, len(input))
	line := make([]float64, delaySamples)
	pos := 0
	for i, s := range input {
		delayed := line[pos]
		line[pos] = s + delayed*feedback
		pos = (pos + 1) % delaySamples
		out[i] = s*(1-mix) + delayed*mix
	}
	return out
}

// SoftClip applies a tanh soft-clip, used as the master bus limiter.
func SoftClip(x float64) float64 {
	return math.Tanh(x)
}

// MixDown sums a set of equal-or-unequal-length stems and soft-clips the
// result, producing the final master buffer.
func MixDown(stems [][]float64) []float64 {
	maxLen := 0
	for _, s := range stems {
		if len(s) > maxLen {
			maxLen = len(s)
		}
	}
	out := make([]float64, maxLen)
	for _, s := range stems {
		for i, v := range s {
			out[i] += v
		}
	}
	for i := range out {
		out[i] = SoftClip(out[i])
	}
	return out
}
