package lang

import "testing"

const minimalSource = `
aurora { version: "1" }
globals { sr: 48000 block: 256 tempo: 120 }
patch kick {
	out: stem("kick")
	graph: {
		nodes: [{ id: "osc", type: "sine_osc" }]
		io: { out: "osc" }
	}
}
score {
	section intro at 0s dur 2s {
		play kick { at: 0s dur: 0.5s vel: 0.9 pitch: [60] }
	}
}
`

func TestParseMinimalFile(t *testing.T) {
	file, err := Parse(minimalSource)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if file.Version != "1" {
		t.Errorf("version = %q, want 1", file.Version)
	}
	if len(file.Patches) != 1 || file.Patches[0].Name != "kick" {
		t.Fatalf("expected one patch named kick, got %+v", file.Patches)
	}
	if len(file.Sections) != 1 || file.Sections[0].Name != "intro" {
		t.Fatalf("expected one section named intro, got %+v", file.Sections)
	}
	events := file.Sections[0].Events
	if len(events) != 1 || events[0].Kind != SectionEventPlay {
		t.Fatalf("expected one play event, got %+v", events)
	}
	if events[0].Play.Patch != "kick" || events[0].Play.Vel != 0.9 {
		t.Errorf("play event = %+v", events[0].Play)
	}
}

func TestParseMissingHeaderFails(t *testing.T) {
	_, err := Parse(`patch kick { out: stem("kick") graph: { nodes: [{id:"o" type:"sine_osc"}] io:{out:"o"} } } score { section a at 0s dur 1s {} }`)
	if err == nil {
		t.Fatal("expected error for missing aurora header")
	}
}

func TestParseBusChannels(t *testing.T) {
	src := `
aurora { version: "1" }
bus reverb {
	channels: 2
	out: stem("reverb")
	graph: { nodes: [{ id: "d", type: "delay" }] io: { out: "d" } }
}
patch kick {
	out: stem("kick")
	send: { bus: "reverb" amount: -6dB }
	graph: { nodes: [{ id: "o", type: "sine_osc" }] io: { out: "o" } }
}
score { section a at 0s dur 1s { play kick { at: 0s dur: 0.1s } } }
`
	file, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(file.Buses) != 1 || file.Buses[0].Channels != 2 {
		t.Fatalf("expected bus reverb with channels=2, got %+v", file.Buses)
	}
	if file.Patches[0].Send == nil || file.Patches[0].Send.Bus != "reverb" || file.Patches[0].Send.AmountDB != -6 {
		t.Fatalf("expected send to reverb at -6dB, got %+v", file.Patches[0].Send)
	}
}

func TestParseSetEventIsParsedButCarriesNoTiming(t *testing.T) {
	src := `
aurora { version: "1" }
patch kick { out: stem("kick") graph: { nodes: [{id:"o" type:"sine_osc"}] io:{out:"o"} } }
score {
	section a at 0s dur 1s {
		set kick.gain = 0.5
		play kick { at: 0s dur: 0.1s }
	}
}
`
	file, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events := file.Sections[0].Events
	if len(events) != 2 {
		t.Fatalf("expected 2 events (set + play), got %d", len(events))
	}
	if events[0].Kind != SectionEventSet || events[0].Set.Target != "kick.gain" {
		t.Fatalf("expected first event to be set kick.gain, got %+v", events[0])
	}
}

func TestParsePatternPlayExpandsAcrossSections(t *testing.T) {
	src := `
aurora { version: "1" }
patch kick { out: stem("kick") graph: { nodes: [{id:"o" type:"sine_osc"}] io:{out:"o"} } }
section riser at 0s dur 1s {
	play kick { at: 0s dur: 0.1s }
}
score {
	play riser x 3
}
`
	file, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(file.Sections) != 3 {
		t.Fatalf("expected 3 expanded sections, got %d", len(file.Sections))
	}
	wantStarts := []float64{0, 1, 2}
	for i, want := range wantStarts {
		if file.Sections[i].At.Value != want {
			t.Errorf("section %d starts at %v, want %v", i, file.Sections[i].At.Value, want)
		}
	}
}

func TestParseRepeatInsideScoreShiftsEvents(t *testing.T) {
	src := `
aurora { version: "1" }
patch kick { out: stem("kick") graph: { nodes: [{id:"o" type:"sine_osc"}] io:{out:"o"} } }
score {
	section a at 0s dur 1s {
		repeat 2 {
			play kick { at: 0s dur: 0.1s }
		}
	}
}
`
	file, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events := file.Sections[0].Events
	if len(events) != 2 {
		t.Fatalf("expected 2 repeated events, got %d", len(events))
	}
}

func TestAddUnitsMismatchedUnitsError(t *testing.T) {
	_, err := addUnits(UnitNumber{Value: 1, Unit: "s"}, UnitNumber{Value: 1, Unit: "beats"}, "test", 1, 1)
	if err == nil {
		t.Fatal("expected error for mismatched units")
	}
}

func TestAddUnitsEmptyUnitInheritsOther(t *testing.T) {
	sum, err := addUnits(UnitNumber{Value: 1}, UnitNumber{Value: 2, Unit: "beats"}, "test", 1, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Value != 3 || sum.Unit != "beats" {
		t.Errorf("sum = %+v, want {3 beats}", sum)
	}
}

func TestParseGlobalsTempoMap(t *testing.T) {
	src := `
aurora { version: "1" }
globals {
	tempo: 120
	tempo_map: [{ at: 4beats bpm: 90 }]
}
patch kick { out: stem("kick") graph: { nodes: [{id:"o" type:"sine_osc"}] io:{out:"o"} } }
score { section a at 0s dur 1s { play kick { at: 0s dur: 0.1s } } }
`
	file, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(file.Globals.TempoMap) != 1 || file.Globals.TempoMap[0].BPM != 90 {
		t.Fatalf("expected one tempo_map point at 90bpm, got %+v", file.Globals.TempoMap)
	}
}
