// Package pipeline turns a declarative pipeline.yaml into a typed,
// validated plan and runs it: inputs are produced lazily from CSV, inline
// items, or an AI-generated seed; each item is mapped by an AI invocation
// under a parallelism cap; results are reduced deterministically or by a
// second AI call.
package pipeline

// Config is the immutable, validated in-memory form of one pipeline.yaml.
// It is created once at load time and never mutated afterward.
type Config struct {
	Name   string
	Input  InputSpec
	Map    MapSpec
	Reduce ReduceSpec
}

// Parameter is a name/value pair merged into every item as a default,
// always overridable by an item field of the same name.
type Parameter struct {
	Name  string
	Value string
}

// CSVSource describes the `input.from` shape.
type CSVSource struct {
	Type      string // always "csv"
	Path      string
	Delimiter string
}

// GenerateSource describes the `input.generate` shape: an AI-produced
// seed step whose items require external approval before the pipeline may
// execute them (spec §4.5, Open Question 1).
type GenerateSource struct {
	Prompt string
	Schema []string
}

// InputSpec holds exactly one of Items, From, or Generate.
type InputSpec struct {
	Items      []map[string]any
	From       *CSVSource
	Generate   *GenerateSource
	Parameters []Parameter
	Limit      int // 0 means unbounded
}

// Kind reports which of the three mutually-exclusive input shapes is set.
func (s InputSpec) Kind() string {
	switch {
	case s.Items != nil:
		return "items"
	case s.From != nil:
		return "from"
	case s.Generate != nil:
		return "generate"
	default:
		return ""
	}
}

// MapSpec is the per-item AI invocation. An empty Output enables text
// mode: the raw string response passes through unparsed.
type MapSpec struct {
	Prompt    string
	Output    []string
	Parallel  int
	Model     string
	TimeoutMs int
}

// TextMode reports whether this map configuration is in text mode.
func (m MapSpec) TextMode() bool { return len(m.Output) == 0 }

const (
	defaultParallel  = 5
	defaultTimeoutMs = 600_000
)

// WithDefaults returns a copy of m with Parallel/TimeoutMs defaulted.
func (m MapSpec) WithDefaults() MapSpec {
	if m.Parallel <= 0 {
		m.Parallel = defaultParallel
	}
	if m.TimeoutMs <= 0 {
		m.TimeoutMs = defaultTimeoutMs
	}
	return m
}

// Reduce type tags.
const (
	ReduceList  = "list"
	ReduceTable = "table"
	ReduceJSON  = "json"
	ReduceText  = "text"
	ReduceAI    = "ai"
)

// ReduceSpec is tagged by Type; Prompt/Output are only meaningful when
// Type == ReduceAI.
type ReduceSpec struct {
	Type   string
	Prompt string
	Output []string
}
