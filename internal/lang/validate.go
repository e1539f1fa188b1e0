package lang

import "fmt"

// ValidationResult carries the hard errors and soft warnings produced by
// Validate. A file with any Errors is not safe to render; Warnings describe
// likely-unintended configurations that do not block a render.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// OK reports whether the file has no validation errors.
func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

func (r *ValidationResult) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) addWarning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks semantic constraints the grammar itself cannot enforce:
// version compatibility, required top-level content, name uniqueness, graph
// completeness, and bus-send resolution.
func Validate(file AuroraFile) ValidationResult {
	var result ValidationResult

	if file.Version != "1" && file.Version != "1.0" {
		result.addError("unsupported aurora version %q, expected \"1\"", file.Version)
	}

	if len(file.Patches) == 0 {
		result.addError("file must declare at least one patch")
	}
	if len(file.Sections) == 0 {
		result.addError("file must declare at least one section in score{}")
	}

	if file.Globals.Block != 256 {
		result.addError("globals.block must be 256, got %d", file.Globals.Block)
	}
	if file.Globals.Tempo == nil && len(file.Globals.TempoMap) == 0 {
		result.addWarning("no tempo specified, defaulting to 60 BPM")
	}

	busNames := map[string]bool{}
	for _, bus := range file.Buses {
		if busNames[bus.Name] {
			result.addError("duplicate bus name: %s", bus.Name)
		}
		busNames[bus.Name] = true
	}

	patchNames := map[string]bool{}
	stemOwners := map[string]string{}
	for _, patch := range file.Patches {
		if patchNames[patch.Name] {
			result.addError("duplicate patch name: %s", patch.Name)
		}
		patchNames[patch.Name] = true

		if patch.OutStem == "" {
			result.addError("patch %q must declare a non-empty out stem", patch.Name)
		} else if owner, exists := stemOwners[patch.OutStem]; exists {
			result.addWarning("patch %q reuses the output stem %q already used by %q", patch.Name, patch.OutStem, owner)
		} else {
			stemOwners[patch.OutStem] = patch.Name
		}

		if len(patch.Graph.Nodes) == 0 {
			result.addError("patch %q graph must declare at least one node", patch.Name)
		}
		if patch.Graph.Out == "" {
			result.addError("patch %q graph must declare io.out", patch.Name)
		}

		if patch.Binaural.Enabled {
			if patch.Binaural.Mix < 0 || patch.Binaural.Mix > 1 {
				result.addWarning("patch %q binaural.mix %v is outside [0,1]", patch.Name, patch.Binaural.Mix)
			}
			if !graphHasOscillator(patch.Graph) {
				result.addWarning("patch %q enables binaural but its graph has no oscillator node", patch.Name)
			}
		}

		if patch.Send != nil {
			if patch.Send.Bus == "" {
				result.addError("patch %q send must name a bus", patch.Name)
			} else if !busNames[patch.Send.Bus] {
				result.addError("patch %q sends to unknown bus %q", patch.Name, patch.Send.Bus)
			}
		}
	}

	for _, bus := range file.Buses {
		if bus.OutStem == "" {
			result.addError("bus %q must declare a non-empty out stem", bus.Name)
		} else if owner, exists := stemOwners[bus.OutStem]; exists {
			result.addWarning("bus %q reuses the output stem %q already used by %q", bus.Name, bus.OutStem, owner)
		} else {
			stemOwners[bus.OutStem] = bus.Name
		}
		if len(bus.Graph.Nodes) == 0 {
			result.addError("bus %q graph must declare at least one node", bus.Name)
		}
		if bus.Graph.Out == "" {
			result.addError("bus %q graph must declare io.out", bus.Name)
		}
	}

	for _, section := range file.Sections {
		for _, event := range section.Events {
			switch event.Kind {
			case SectionEventPlay:
				if !patchNames[event.Play.Patch] {
					result.addWarning("section %q plays unknown patch %q", section.Name, event.Play.Patch)
				}
			case SectionEventSeq:
				if !patchNames[event.Seq.Patch] {
					result.addWarning("section %q seq references unknown patch %q", section.Name, event.Seq.Patch)
				}
			}
		}
	}

	return result
}

func graphHasOscillator(graph GraphDefinition) bool {
	for _, node := range graph.Nodes {
		if len(node.Type) >= 4 && node.Type[:4] == "osc_" {
			return true
		}
	}
	return false
}
