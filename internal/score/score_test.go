package score

import (
	"testing"

	"github.com/aurora-lang/aurora/internal/lang"
	"github.com/aurora-lang/aurora/internal/timebase"
)

func TestBuildEuclideanPatternTresillo(t *testing.T) {
	pattern := BuildEuclideanPattern(3, 8, 0)
	want := []bool{true, false, false, true, false, false, true, false}
	if len(pattern) != len(want) {
		t.Fatalf("length = %d, want %d", len(pattern), len(want))
	}
	for i := range want {
		if pattern[i] != want[i] {
			t.Errorf("step %d = %v, want %v (%v)", i, pattern[i], want[i], pattern)
		}
	}
}

func TestBuildEuclideanPatternZeroOnsets(t *testing.T) {
	pattern := BuildEuclideanPattern(0, 8, 0)
	for i, hit := range pattern {
		if hit {
			t.Errorf("step %d unexpectedly set with k=0", i)
		}
	}
}

func TestBuildEuclideanPatternRotates(t *testing.T) {
	base := BuildEuclideanPattern(3, 8, 0)
	rotated := BuildEuclideanPattern(3, 8, 1)
	for i := range base {
		if rotated[i] != base[(i+1)%len(base)] {
			t.Fatalf("rotated pattern %v is not base %v shifted left by 1", rotated, base)
		}
	}
}

func TestNoteNameToMidiMiddleC(t *testing.T) {
	if midi := NoteNameToMidi("C4"); midi != 60 {
		t.Errorf("C4 = %d, want 60", midi)
	}
}

func TestNoteNameToMidiSharpsAndFlats(t *testing.T) {
	sharp := NoteNameToMidi("C#4")
	flat := NoteNameToMidi("Db4")
	if sharp != 61 || flat != 61 {
		t.Errorf("C#4 = %d, Db4 = %d, want both 61", sharp, flat)
	}
}

func TestNoteNameToMidiDefaultsOnInvalidInput(t *testing.T) {
	if midi := NoteNameToMidi("H4"); midi != 69 {
		t.Errorf("invalid letter = %d, want default 69", midi)
	}
	if midi := NoteNameToMidi("C"); midi != 60 {
		t.Errorf("missing octave = %d, want default octave 4 (C4=60)", midi)
	}
	if midi := NoteNameToMidi(""); midi != 69 {
		t.Errorf("empty name = %d, want default 69", midi)
	}
}

func TestMidiToFrequencyA4(t *testing.T) {
	freq := MidiToFrequency(69)
	if freq < 439.9 || freq > 440.1 {
		t.Errorf("MidiToFrequency(69) = %v, want ~440", freq)
	}
}

func TestResolvePitchValueHzUnitUsesExactFrequency(t *testing.T) {
	pitch := resolvePitchValue(lang.Unit(220, "hz"))
	if pitch.Frequency != 220 {
		t.Errorf("Frequency = %v, want 220", pitch.Frequency)
	}
	if pitch.MIDI != 57 {
		t.Errorf("MIDI = %d, want 57", pitch.MIDI)
	}
}

func TestExpandPlayEventResolvesAbsoluteTiming(t *testing.T) {
	tempo := 120.0
	tmap, err := timebase.Build(lang.GlobalsDefinition{Tempo: &tempo})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	file := lang.AuroraFile{
		Sections: []lang.SectionDefinition{
			{
				Name: "a",
				At:   lang.UnitNumber{Value: 1, Unit: "s"},
				Dur:  lang.UnitNumber{Value: 2, Unit: "s"},
				Events: []lang.SectionEvent{
					{Kind: lang.SectionEventPlay, Play: lang.PlayEvent{
						Patch:       "kick",
						At:          lang.UnitNumber{Value: 0.5, Unit: "s"},
						Dur:         lang.UnitNumber{Value: 0.25, Unit: "s"},
						Vel:         0.9,
						PitchValues: []lang.ParamValue{lang.Number(60)},
					}},
				},
			},
		},
	}
	sched, err := Expand(file, tmap, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sched.Notes) != 1 {
		t.Fatalf("expected 1 note, got %d", len(sched.Notes))
	}
	n := sched.Notes[0]
	if n.AtSeconds != 1.5 || n.DurSeconds != 0.25 || n.MIDINote != 60 {
		t.Errorf("note = %+v, want at=1.5 dur=0.25 midi=60", n)
	}
}

func TestExpandPlayClampsVelocity(t *testing.T) {
	tmap, _ := timebase.Build(lang.GlobalsDefinition{})
	file := lang.AuroraFile{
		Sections: []lang.SectionDefinition{
			{
				Name: "a",
				Events: []lang.SectionEvent{
					{Kind: lang.SectionEventPlay, Play: lang.PlayEvent{Patch: "kick", Vel: 4.0}},
				},
			},
		},
	}
	sched, err := Expand(file, tmap, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sched.Notes[0].Vel != 1.5 {
		t.Errorf("Vel = %v, want clamped to 1.5", sched.Notes[0].Vel)
	}
}

func TestExpandSeqIsDeterministicAcrossRuns(t *testing.T) {
	tempo := 120.0
	tmap, _ := timebase.Build(lang.GlobalsDefinition{Tempo: &tempo})
	file := lang.AuroraFile{
		Sections: []lang.SectionDefinition{
			{
				Name: "a",
				Dur:  lang.UnitNumber{Value: 4, Unit: "s"},
				Events: []lang.SectionEvent{
					{Kind: lang.SectionEventSeq, Seq: lang.SeqEvent{
						Patch: "hat",
						Fields: map[string]lang.ParamValue{
							"pattern": lang.String("x.x.x.x."),
							"rate":    lang.Unit(0.5, "s"),
							"jitter":  lang.Unit(0.01, "s"),
						},
					}},
				},
			},
		},
	}
	a, err := Expand(file, tmap, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Expand(file, tmap, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.Notes) != len(b.Notes) {
		t.Fatalf("note counts differ: %d vs %d", len(a.Notes), len(b.Notes))
	}
	for i := range a.Notes {
		if a.Notes[i].AtSeconds != b.Notes[i].AtSeconds ||
			a.Notes[i].DurSeconds != b.Notes[i].DurSeconds ||
			a.Notes[i].MIDINote != b.Notes[i].MIDINote {
			t.Errorf("note %d differs between runs: %+v vs %+v", i, a.Notes[i], b.Notes[i])
		}
	}
	// dur=4s, rate=0.5s -> 8 steps; pattern "x.x.x.x." cycles over those
	// 8 steps exactly once, giving 4 onsets (at steps 0,2,4,6).
	if len(a.Notes) != 4 {
		t.Errorf("expected 4 onsets from pattern x.x.x.x. at rate 0.5s over a 4s section, got %d", len(a.Notes))
	}
}

func TestExpandSeqEuclidPattern(t *testing.T) {
	tmap, _ := timebase.Build(lang.GlobalsDefinition{})
	file := lang.AuroraFile{
		Sections: []lang.SectionDefinition{
			{
				Name: "a",
				Dur:  lang.UnitNumber{Value: 8, Unit: "s"},
				Events: []lang.SectionEvent{
					{Kind: lang.SectionEventSeq, Seq: lang.SeqEvent{
						Patch: "hat",
						Fields: map[string]lang.ParamValue{
							"pattern": lang.Call("euclid", []lang.ParamValue{lang.Number(3), lang.Number(8), lang.Number(0)}),
							"rate":    lang.Unit(1, "s"),
						},
					}},
				},
			},
		},
	}
	sched, err := Expand(file, tmap, 11)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sched.Notes) != 3 {
		t.Fatalf("expected 3 onsets from euclid(3,8,0), got %d", len(sched.Notes))
	}
}

func TestExpandSeqDifferentSeedsDiverge(t *testing.T) {
	tempo := 120.0
	tmap, _ := timebase.Build(lang.GlobalsDefinition{Tempo: &tempo})
	file := lang.AuroraFile{
		Sections: []lang.SectionDefinition{
			{
				Name: "a",
				Dur:  lang.UnitNumber{Value: 4, Unit: "s"},
				Events: []lang.SectionEvent{
					{Kind: lang.SectionEventSeq, Seq: lang.SeqEvent{
						Patch: "hat",
						Fields: map[string]lang.ParamValue{
							"pattern": lang.String("xxxxxxxx"),
							"rate":    lang.Unit(0.25, "s"),
							"jitter":  lang.Unit(0.05, "s"),
						},
					}},
				},
			},
		},
	}
	a, _ := Expand(file, tmap, 1)
	b, _ := Expand(file, tmap, 2)
	same := true
	for i := range a.Notes {
		if i >= len(b.Notes) || a.Notes[i].AtSeconds != b.Notes[i].AtSeconds {
			same = false
			break
		}
	}
	if same {
		t.Error("expected different seeds to produce different jittered timing")
	}
}

func TestExpandSeqRespectsMaxEventsPerMinute(t *testing.T) {
	tmap, _ := timebase.Build(lang.GlobalsDefinition{})
	file := lang.AuroraFile{
		Sections: []lang.SectionDefinition{
			{
				Name: "a",
				Dur:  lang.UnitNumber{Value: 60, Unit: "s"},
				Events: []lang.SectionEvent{
					{Kind: lang.SectionEventSeq, Seq: lang.SeqEvent{
						Patch: "hat",
						Fields: map[string]lang.ParamValue{
							"pattern": lang.String("x"),
							"rate":    lang.Unit(0.1, "s"),
							"max":     lang.Number(10),
						},
					}},
				},
			},
		},
	}
	sched, err := Expand(file, tmap, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sched.Notes) > 10 {
		t.Errorf("expected at most 10 events in a 60s window, got %d", len(sched.Notes))
	}
}

func TestResolveSectionConstraintsPackShorthand(t *testing.T) {
	section := lang.SectionDefinition{Directives: map[string]lang.ParamValue{"pack": lang.Identifier("long_breath")}}
	constraints := resolveSectionConstraints(section)
	if constraints.Density != "very_low" || constraints.Silence != "long" {
		t.Errorf("long_breath = %+v, want density=very_low silence=long", constraints)
	}
}

func TestResolveSectionConstraintsExplicitOverridesPack(t *testing.T) {
	section := lang.SectionDefinition{Directives: map[string]lang.ParamValue{
		"pack":    lang.Identifier("resist_resolution"),
		"silence": lang.Identifier("short"),
	}}
	constraints := resolveSectionConstraints(section)
	if constraints.Density != "low" || constraints.Silence != "short" {
		t.Errorf("override = %+v, want density=low silence=short", constraints)
	}
}

func TestEvaluateLaneLinearInterpolation(t *testing.T) {
	points := []AutomationPoint{
		{AtSeconds: 0, Value: lang.Number(0), Curve: "linear"},
		{AtSeconds: 2, Value: lang.Number(10), Curve: "linear"},
	}
	got, ok := EvaluateLane(points, 1)
	if !ok {
		t.Fatal("expected a value")
	}
	if got < 4.9 || got > 5.1 {
		t.Errorf("EvaluateLane midpoint = %v, want ~5", got)
	}
}

func TestEvaluateLaneStepHoldsPriorValue(t *testing.T) {
	points := []AutomationPoint{
		{AtSeconds: 0, Value: lang.Number(1), Curve: "step"},
		{AtSeconds: 2, Value: lang.Number(9), Curve: "step"},
	}
	got, ok := EvaluateLane(points, 1.9)
	if !ok {
		t.Fatal("expected a value")
	}
	if got != 1 {
		t.Errorf("EvaluateLane step = %v, want 1", got)
	}
}

func TestParseAutomationTargetSplitsPatchNodeField(t *testing.T) {
	patchName, key, ok := ParseAutomationTarget("patch.kick.filter1.cutoff")
	if !ok || patchName != "kick" || key != "filter1.cutoff" {
		t.Errorf("ParseAutomationTarget = (%q, %q, %v), want (kick, filter1.cutoff, true)", patchName, key, ok)
	}
}

func TestParseAutomationTargetRejectsShortTarget(t *testing.T) {
	if _, _, ok := ParseAutomationTarget("kick.osc.freq"); ok {
		t.Error("expected a non-patch-rooted target to be rejected")
	}
}

func TestGroupAutomationByPatchSortsLaneByTime(t *testing.T) {
	points := []AutomationPoint{
		{Target: "patch.kick.filter1.cutoff", AtSeconds: 2, Value: lang.Number(2)},
		{Target: "patch.kick.filter1.cutoff", AtSeconds: 1, Value: lang.Number(1)},
	}
	grouped := GroupAutomationByPatch(points)
	lane := grouped["kick"]["filter1.cutoff"]
	if len(lane) != 2 || lane[0].AtSeconds != 1 || lane[1].AtSeconds != 2 {
		t.Errorf("lane = %+v, want sorted by AtSeconds", lane)
	}
}
