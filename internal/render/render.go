// Package render orchestrates a full offline render: parse, validate, build
// the tempo map, expand the score, render every patch and bus, mix down,
// emit MIDI, and write every artifact outputs{} names.
package render

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/aurora-lang/aurora/internal/assets"
	"github.com/aurora-lang/aurora/internal/ioformats"
	"github.com/aurora-lang/aurora/internal/lang"
	"github.com/aurora-lang/aurora/internal/midiemit"
	"github.com/aurora-lang/aurora/internal/score"
	"github.com/aurora-lang/aurora/internal/synth"
	"github.com/aurora-lang/aurora/internal/timebase"
)

// Options configures one render pass.
type Options struct {
	Seed       uint64
	SampleRate int
	OutDir     string
	Parallel   bool
}

// Result is what a successful render produced, for callers (the CLI
// progress/report views, or tests) that want the numbers without
// re-reading render.json from disk.
type Result struct {
	Meta     ioformats.RenderMeta
	Warnings []string
}

// Source renders a parsed-from-text Aurora source document and writes every
// artifact under opts.OutDir (or the current directory if unset).
func Source(text string, opts Options) (Result, error) {
	file, err := lang.Parse(text)
	if err != nil {
		return Result{}, err
	}
	return File(file, opts)
}

// File renders an already-parsed source document.
func File(file lang.AuroraFile, opts Options) (Result, error) {
	validation := lang.Validate(file)
	if !validation.OK() {
		return Result{}, fmt.Errorf("validation failed: %v", validation.Errors)
	}

	sampleRate := file.Globals.SR
	if opts.SampleRate > 0 {
		sampleRate = opts.SampleRate
	}

	tmap, err := timebase.Build(file.Globals)
	if err != nil {
		return Result{}, err
	}

	sched, err := score.Expand(file, tmap, opts.Seed)
	if err != nil {
		return Result{}, err
	}

	warnings := append([]string{}, validation.Warnings...)
	if file.Assets.SamplesDir != "" || len(file.Assets.Samples) > 0 {
		_, assetWarnings, err := assets.Validate(file.Assets, sampleRate)
		if err != nil {
			return Result{}, err
		}
		warnings = append(warnings, assetWarnings...)
	}

	patchNames := make(map[string]bool, len(file.Patches))
	for _, patch := range file.Patches {
		patchNames[patch.Name] = true
	}
	keptNotes := sched.Notes[:0]
	for _, n := range sched.Notes {
		if !patchNames[n.Patch] {
			warnings = append(warnings, fmt.Sprintf("event references unknown patch %q", n.Patch))
			continue
		}
		keptNotes = append(keptNotes, n)
	}
	sched.Notes = keptNotes

	totalSeconds := scheduleEndSeconds(sched) + file.Globals.TailPolicy.FixedSeconds
	totalSamples := int(roundedSampleCount(totalSeconds, sampleRate, file.Globals.Block))

	noteCounts := make(map[string]int, len(file.Patches))
	for _, n := range sched.Notes {
		noteCounts[n.Patch]++
	}

	automationByPatch := score.GroupAutomationByPatch(sched.Automation)
	stems := renderPatchStems(file, sched, automationByPatch, totalSamples, sampleRate, opts.Seed, opts.Parallel)
	busStems := renderBusStems(file, stems, totalSamples, sampleRate)

	allStems := make([][]float64, 0, len(stems)+len(busStems))
	for _, patch := range file.Patches {
		allStems = append(allStems, stems[patch.Name])
	}
	for _, bus := range file.Buses {
		allStems = append(allStems, busStems[bus.Name])
	}
	master := synth.MixDown(allStems)

	outDir := opts.OutDir
	if outDir == "" {
		outDir = "."
	}
	if err := writeArtifacts(outDir, file, sched, tmap, automationByPatch, stems, busStems, master, sampleRate, totalSamples); err != nil {
		return Result{}, err
	}

	meta := buildMeta(file, opts.Seed, sampleRate, totalSeconds, noteCounts, warnings)
	metaPath := filepath.Join(outDir, file.Outputs.MetaDir, file.Outputs.RenderJSON)
	metaFile, err := os.Create(metaPath)
	if err != nil {
		return Result{}, err
	}
	defer metaFile.Close()
	if err := ioformats.WriteRenderMeta(metaFile, meta); err != nil {
		return Result{}, err
	}

	return Result{Meta: meta, Warnings: warnings}, nil
}

func renderPatchStems(file lang.AuroraFile, sched score.Schedule, automationByPatch map[string]map[string][]score.AutomationPoint, totalSamples, sampleRate int, seed uint64, parallel bool) map[string][]float64 {
	stems := make(map[string][]float64, len(file.Patches))
	if !parallel {
		for _, patch := range file.Patches {
			stems[patch.Name] = synth.RenderPatchStem(patch, sched.Notes, automationByPatch[patch.Name], totalSamples, sampleRate, seed)
		}
		return stems
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, patch := range file.Patches {
		wg.Add(1)
		go func(p lang.PatchDefinition) {
			defer wg.Done()
			stem := synth.RenderPatchStem(p, sched.Notes, automationByPatch[p.Name], totalSamples, sampleRate, seed)
			mu.Lock()
			stems[p.Name] = stem
			mu.Unlock()
		}(patch)
	}
	wg.Wait()
	return stems
}

func renderBusStems(file lang.AuroraFile, patchStems map[string][]float64, totalSamples, sampleRate int) map[string][]float64 {
	busInputs := make(map[string][]float64, len(file.Buses))
	for _, patch := range file.Patches {
		if patch.Send == nil {
			continue
		}
		gain := synth.DbToGain(patch.Send.AmountDB)
		stem := patchStems[patch.Name]
		input := busInputs[patch.Send.Bus]
		if input == nil {
			input = make([]float64, totalSamples)
		}
		for i := 0; i < totalSamples && i < len(stem); i++ {
			input[i] += stem[i] * gain
		}
		busInputs[patch.Send.Bus] = input
	}

	busStems := make(map[string][]float64, len(file.Buses))
	for _, bus := range file.Buses {
		input := busInputs[bus.Name]
		if input == nil {
			input = make([]float64, totalSamples)
		}
		busStems[bus.Name] = processBusGraph(bus.Graph, input, sampleRate)
	}
	return busStems
}

// busProgram is the flattened form of a bus's graph: whether it carries any
// reverb/delay processing at all, and the single circular-delay-line's
// parameters.
type busProgram struct {
	HasReverb       bool
	Mix             float64
	Decay           float64
	PredelaySeconds float64
}

func defaultBusProgram() busProgram {
	return busProgram{Mix: 0.3, Decay: 4.0, PredelaySeconds: 0.02}
}

// buildBusProgram reads a bus graph's nodes: a "reverb_algo" node sets
// mix/decay/predelay directly; a "delay" node maps onto the same circular
// line using its own field names (note: the feedback-to-decay field is
// literally "fb", not "feedback").
func buildBusProgram(graph lang.GraphDefinition) busProgram {
	program := defaultBusProgram()
	for _, node := range graph.Nodes {
		switch node.Type {
		case "reverb_algo":
			program.HasReverb = true
			program.Mix = clamp(nodeParamNumberOr(node.Params, "mix", program.Mix), 0, 1)
			if _, ok := node.Params["decay"]; ok {
				program.Decay = math.Max(0.1, unitValueOr(node.Params, "decay", program.Decay))
			}
			if _, ok := node.Params["predelay"]; ok {
				program.PredelaySeconds = math.Max(0.0, unitValueOr(node.Params, "predelay", program.PredelaySeconds))
			}
		case "delay":
			program.HasReverb = true
			if _, ok := node.Params["time"]; ok {
				program.PredelaySeconds = math.Max(0.001, unitValueOr(node.Params, "time", program.PredelaySeconds))
			}
			program.Mix = clamp(nodeParamNumberOr(node.Params, "mix", 0.35), 0, 1)
			program.Decay = math.Max(0.1, nodeParamNumberOr(node.Params, "fb", 0.5)*8.0)
		}
	}
	return program
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

func nodeParamNumberOr(params map[string]lang.ParamValue, key string, fallback float64) float64 {
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

func unitValueOr(params map[string]lang.ParamValue, key string, fallback float64) float64 {
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

// processBusGraph runs the bus's circular-delay-line reverb in place over a
// copy of input, leaving buses with neither a reverb_algo nor a delay node
// as an unprocessed passthrough.
func processBusGraph(graph lang.GraphDefinition, input []float64, sampleRate int) []float64 {
	program := buildBusProgram(graph)
	out := make([]float64, len(input))
	copy(out, input)
	if !program.HasReverb || len(out) == 0 {
		return out
	}

	delaySize := int(math.Round(program.PredelaySeconds * float64(sampleRate)))
	if delaySize < 1 {
		delaySize = 1
	}
	line := make([]float64, delaySize)
	feedback := clamp(1-math.Exp(-1/(program.Decay*float64(sampleRate)*0.25)), 0.05, 0.98)

	idx := 0
	for n, dry := range out {
		wet := line[idx]
		line[idx] = dry + wet*feedback
		idx = (idx + 1) % delaySize
		out[n] = dry*(1-program.Mix) + wet*program.Mix
	}
	return out
}

func writeArtifacts(outDir string, file lang.AuroraFile, sched score.Schedule, tmap timebase.Map, automationByPatch map[string]map[string][]score.AutomationPoint, stems, busStems map[string][]float64, master []float64, sampleRate, totalSamples int) error {
	outputs := file.Outputs

	if err := os.MkdirAll(filepath.Join(outDir, outputs.StemsDir), 0o755); err != nil {
		return err
	}
	for name, stem := range stems {
		if err := writeMonoWAV(filepath.Join(outDir, outputs.StemsDir, name+".wav"), stem, sampleRate); err != nil {
			return err
		}
	}
	for name, stem := range busStems {
		if err := writeMonoWAV(filepath.Join(outDir, outputs.StemsDir, name+".wav"), stem, sampleRate); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Join(outDir, outputs.MixDir), 0o755); err != nil {
		return err
	}
	if err := writeMonoWAV(filepath.Join(outDir, outputs.MixDir, outputs.Master), master, sampleRate); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(outDir, outputs.MidiDir), 0o755); err != nil {
		return err
	}
	tracks := midiemit.BuildTracks(file, sched, tmap, automationByPatch, totalSamples, sampleRate, file.Globals.Block)
	tempoTrack := midiemit.BuildTempoTrack(tmap)
	midiFile, err := os.Create(filepath.Join(outDir, outputs.MidiDir, "score.mid"))
	if err != nil {
		return err
	}
	defer midiFile.Close()
	if err := ioformats.WriteSMF(midiFile, tempoTrack, tracks); err != nil {
		return err
	}

	return os.MkdirAll(filepath.Join(outDir, outputs.MetaDir), 0o755)
}

func writeMonoWAV(path string, samples []float64, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ioformats.WriteWAV(f, [][]float64{samples}, sampleRate)
}

func scheduleEndSeconds(sched score.Schedule) float64 {
	end := 0.0
	for _, n := range sched.Notes {
		if e := n.AtSeconds + n.DurSeconds; e > end {
			end = e
		}
	}
	for _, p := range sched.Automation {
		if p.AtSeconds > end {
			end = p.AtSeconds
		}
	}
	return end
}

func roundedSampleCount(seconds float64, sampleRate, block int) uint64 {
	samples := uint64(math.Round(seconds * float64(sampleRate)))
	return timebase.RoundUpToBlock(samples, block)
}

func buildMeta(file lang.AuroraFile, seed uint64, sampleRate int, duration float64, noteCounts map[string]int, warnings []string) ioformats.RenderMeta {
	meta := ioformats.RenderMeta{
		Version:         file.Version,
		Seed:            seed,
		SampleRate:      sampleRate,
		DurationSeconds: duration,
		Outputs: map[string]string{
			"master": filepath.Join(file.Outputs.MixDir, file.Outputs.Master),
		},
		Warnings: warnings,
	}
	for _, patch := range file.Patches {
		meta.Patches = append(meta.Patches, ioformats.PatchMeta{
			Name:      patch.Name,
			Stem:      filepath.Join(file.Outputs.StemsDir, patch.Name+".wav"),
			NoteCount: noteCounts[patch.Name],
		})
	}
	for _, bus := range file.Buses {
		meta.Buses = append(meta.Buses, ioformats.BusMeta{
			Name: bus.Name,
			Stem: filepath.Join(file.Outputs.StemsDir, bus.Name+".wav"),
		})
	}
	return meta
}
