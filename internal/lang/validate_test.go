package lang

import "testing"

func validFile() AuroraFile {
	file := AuroraFile{
		Version: "1",
		Globals: DefaultGlobalsDefinition(),
		Patches: []PatchDefinition{
			{
				Name:    "kick",
				OutStem: "kick",
				Graph: GraphDefinition{
					Nodes: []GraphNode{{ID: "o", Type: "osc_sine"}},
					Out:   "o",
				},
			},
		},
		Sections: []SectionDefinition{
			{
				Name: "a",
				Events: []SectionEvent{
					{Kind: SectionEventPlay, Play: PlayEvent{Patch: "kick"}},
				},
			},
		},
	}
	tempo := 120.0
	file.Globals.Tempo = &tempo
	return file
}

func TestValidateAcceptsWellFormedFile(t *testing.T) {
	result := Validate(validFile())
	if !result.OK() {
		t.Fatalf("expected no errors, got %v", result.Errors)
	}
}

func TestValidateRejectsBadVersion(t *testing.T) {
	file := validFile()
	file.Version = "2"
	result := Validate(file)
	if result.OK() {
		t.Fatal("expected version error")
	}
}

func TestValidateRequiresAtLeastOnePatchAndSection(t *testing.T) {
	file := validFile()
	file.Patches = nil
	file.Sections = nil
	result := Validate(file)
	if len(result.Errors) < 2 {
		t.Fatalf("expected at least 2 errors, got %v", result.Errors)
	}
}

func TestValidateRejectsNonStandardBlockSize(t *testing.T) {
	file := validFile()
	file.Globals.Block = 128
	result := Validate(file)
	if result.OK() {
		t.Fatal("expected block size error")
	}
}

func TestValidateRejectsDuplicatePatchNames(t *testing.T) {
	file := validFile()
	file.Patches = append(file.Patches, file.Patches[0])
	result := Validate(file)
	if result.OK() {
		t.Fatal("expected duplicate patch name error")
	}
}

func TestValidateRejectsUnknownSendBus(t *testing.T) {
	file := validFile()
	file.Patches[0].Send = &SendDefinition{Bus: "missing"}
	result := Validate(file)
	if result.OK() {
		t.Fatal("expected unknown bus error")
	}
}

func TestValidateAcceptsKnownSendBus(t *testing.T) {
	file := validFile()
	file.Buses = []BusDefinition{{
		Name:    "verb",
		OutStem: "verb",
		Graph: GraphDefinition{
			Nodes: []GraphNode{{ID: "d", Type: "delay"}},
			Out:   "d",
		},
	}}
	file.Patches[0].Send = &SendDefinition{Bus: "verb"}
	result := Validate(file)
	if !result.OK() {
		t.Fatalf("expected no errors, got %v", result.Errors)
	}
}

func TestValidateWarnsOnReusedStem(t *testing.T) {
	file := validFile()
	file.Buses = []BusDefinition{{
		Name:    "verb",
		OutStem: "kick",
		Graph: GraphDefinition{
			Nodes: []GraphNode{{ID: "d", Type: "delay"}},
			Out:   "d",
		},
	}}
	result := Validate(file)
	if len(result.Warnings) == 0 {
		t.Fatal("expected a stem-reuse warning")
	}
}

func TestValidateWarnsOnMissingTempo(t *testing.T) {
	file := validFile()
	file.Globals.Tempo = nil
	result := Validate(file)
	found := false
	for _, w := range result.Warnings {
		if w == "no tempo specified, defaulting to 60 BPM" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected missing-tempo warning, got %v", result.Warnings)
	}
}

func TestValidateWarnsOnUnknownPatchInSection(t *testing.T) {
	file := validFile()
	file.Sections[0].Events[0].Play.Patch = "snare"
	result := Validate(file)
	if !result.OK() {
		t.Fatalf("unknown patch reference should warn, not error: %v", result.Errors)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected an unknown-patch-reference warning")
	}
}

func TestValidateBinauralWithoutOscillatorWarns(t *testing.T) {
	file := validFile()
	file.Patches[0].Binaural = BinauralDefinition{Enabled: true, Mix: 1.0}
	file.Patches[0].Graph.Nodes = []GraphNode{{ID: "n", Type: "noise"}}
	result := Validate(file)
	if len(result.Warnings) == 0 {
		t.Fatal("expected binaural-without-oscillator warning")
	}
}
