package lang

// TempoPoint is a single entry of a globals.tempo_map list: a BPM value that
// takes effect at the given offset (seconds or beats from the timeline start).
type TempoPoint struct {
	At  UnitNumber
	BPM float64
}

// AssetsDefinition names the optional sample library referenced by patches
// whose graph uses a sample_player/sample_slice node.
type AssetsDefinition struct {
	SamplesDir string
	Samples    map[string]string
}

// OutputsDefinition controls where rendered artifacts are written.
type OutputsDefinition struct {
	StemsDir   string
	MidiDir    string
	MixDir     string
	MetaDir    string
	Master     string
	RenderJSON string
}

// DefaultOutputsDefinition returns the declared defaults, used when a source
// file omits the outputs block entirely or any of its fields.
func DefaultOutputsDefinition() OutputsDefinition {
	return OutputsDefinition{
		StemsDir:   "renders/stems",
		MidiDir:    "renders/midi",
		MixDir:     "renders/mix",
		MetaDir:    "renders/meta",
		Master:     "master.wav",
		RenderJSON: "render.json",
	}
}

// TailPolicyKind discriminates tail-handling strategies. Only a fixed tail is
// currently defined by the language.
type TailPolicyKind int

const (
	TailPolicyFixed TailPolicyKind = iota
)

// TailPolicy controls how much silence is appended after the last scheduled
// event so that releases/reverb tails are not truncated.
type TailPolicy struct {
	Kind         TailPolicyKind
	FixedSeconds float64
}

// GlobalsDefinition holds the render-wide settings: sample rate, block size,
// and the tempo map used to translate beats to seconds.
type GlobalsDefinition struct {
	SR         int
	Block      int
	Tempo      *float64
	TempoMap   []TempoPoint
	TailPolicy TailPolicy
}

// DefaultGlobalsDefinition returns the declared defaults.
func DefaultGlobalsDefinition() GlobalsDefinition {
	return GlobalsDefinition{SR: 48000, Block: 256}
}

// GraphNode is one DSP unit in a patch or bus signal graph.
type GraphNode struct {
	ID     string
	Type   string
	Params map[string]ParamValue
}

// GraphConnection wires one node's output to another node's input.
type GraphConnection struct {
	From string
	To   string
	Rate string
	Map  map[string]ParamValue
}

// GraphDefinition is the full node/connection graph for a patch or bus,
// terminating at the node named Out.
type GraphDefinition struct {
	Nodes       []GraphNode
	Connections []GraphConnection
	Out         string
}

// SendDefinition routes a patch's signal to a named bus at a given gain.
type SendDefinition struct {
	Bus      string
	AmountDB float64
}

// BinauralDefinition holds a patch's binaural settings (enabled, shift in Hz,
// mix). They are parsed and validated; the renderer, whose stems are mono, does
// not apply them.
type BinauralDefinition struct {
	Enabled bool
	ShiftHz float64
	Mix     float64
}

// PatchDefinition is a playable instrument: polyphony policy, optional
// binaural processing, an output stem, an optional bus send, and a graph.
type PatchDefinition struct {
	Name       string
	Poly       int
	VoiceSteal string
	Mono       bool
	Legato     bool
	Retrig     string
	Binaural   BinauralDefinition
	OutStem    string
	Send       *SendDefinition
	Graph      GraphDefinition
}

// DefaultPatchDefinition returns a patch with the language's declared
// defaults applied, ready for the parser to overwrite fields it encounters.
func DefaultPatchDefinition(name string) PatchDefinition {
	return PatchDefinition{
		Name:       name,
		Poly:       8,
		VoiceSteal: "oldest",
		Retrig:     "always",
		Binaural:   BinauralDefinition{Mix: 1.0},
	}
}

// BusDefinition is an auxiliary signal path (reverb, delay, ...) that patches
// can send to.
type BusDefinition struct {
	Name     string
	Channels int
	OutStem  string
	Graph    GraphDefinition
}

// DefaultBusDefinition returns a bus with the language's declared defaults.
func DefaultBusDefinition(name string) BusDefinition {
	return BusDefinition{Name: name, Channels: 1}
}

// PlayEvent schedules a single direct note: one patch voice with an explicit
// start, duration, velocity, and pitch list.
type PlayEvent struct {
	Patch       string
	At          UnitNumber
	Dur         UnitNumber
	Vel         float64
	PitchValues []ParamValue
	Params      map[string]ParamValue
}

// AutomatePoint is one (time, value) sample of an automation curve.
type AutomatePoint struct {
	At    UnitNumber
	Value ParamValue
}

// AutomateEvent drives a dotted patch.NAME.node.field target through a
// piecewise curve over the section's duration.
type AutomateEvent struct {
	Target string
	Curve  string
	Points []AutomatePoint
}

// SeqEvent is a stochastic step-sequencer event: a patch plus a raw field
// bag (pattern, rate, density, silence, pitches, swing, jitter, burst, ...)
// interpreted by the score expander.
type SeqEvent struct {
	Patch  string
	Fields map[string]ParamValue
}

// SetEvent assigns a literal value to a dotted target at parse time. It
// carries no timing information and the score expander does not schedule
// anything for it; it exists for patches/buses that want a compile-time
// default override recorded alongside the timeline.
type SetEvent struct {
	Target string
	Value  ParamValue
}

// SectionEventKind discriminates which field of SectionEvent is populated.
type SectionEventKind int

const (
	SectionEventPlay SectionEventKind = iota
	SectionEventAutomate
	SectionEventSeq
	SectionEventSet
)

// SectionEvent is a sum type over the four event forms a section body may
// contain, modeled as a Go struct-with-kind rather than an interface so
// callers can switch on Kind without a type assertion.
type SectionEvent struct {
	Kind     SectionEventKind
	Play     PlayEvent
	Automate AutomateEvent
	Seq      SeqEvent
	Set      SetEvent
}

// SectionDefinition is one scheduled block of the score: a named span with
// directives (density/silence presets) and a list of events.
type SectionDefinition struct {
	Name       string
	At         UnitNumber
	Dur        UnitNumber
	Directives map[string]ParamValue
	Events     []SectionEvent
}

// AuroraFile is the fully parsed source document.
type AuroraFile struct {
	Version  string
	Assets   AssetsDefinition
	Outputs  OutputsDefinition
	Globals  GlobalsDefinition
	Buses    []BusDefinition
	Patches  []PatchDefinition
	Sections []SectionDefinition
}
