package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// rawConfig mirrors the bit-exact YAML grammar of spec §6.1.
type rawConfig struct {
	Name  string `yaml:"name"`
	Input struct {
		Items      []map[string]any `yaml:"items"`
		From       *rawCSVSource    `yaml:"from"`
		Generate   *rawGenerate     `yaml:"generate"`
		Parameters []rawParameter   `yaml:"parameters"`
		Limit      int              `yaml:"limit"`
	} `yaml:"input"`
	Map struct {
		Prompt    string   `yaml:"prompt"`
		Output    []string `yaml:"output"`
		Parallel  int      `yaml:"parallel"`
		Model     string   `yaml:"model"`
		TimeoutMs int      `yaml:"timeoutMs"`
	} `yaml:"map"`
	Reduce struct {
		Type   string   `yaml:"type"`
		Prompt string   `yaml:"prompt"`
		Output []string `yaml:"output"`
	} `yaml:"reduce"`
}

type rawCSVSource struct {
	Type      string `yaml:"type"`
	Path      string `yaml:"path"`
	Delimiter string `yaml:"delimiter"`
}

type rawGenerate struct {
	Prompt string   `yaml:"prompt"`
	Schema []string `yaml:"schema"`
}

type rawParameter struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// Load reads and parses a pipeline.yaml from disk, then validates it
// against pipelineDir (the directory a relative CSV path resolves
// against). It never returns a partially-valid Config.
func Load(path string) (Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, "", fmt.Errorf("pipeline: read %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	cfg, err := Parse(data, dir)
	return cfg, dir, err
}

// Parse unmarshals YAML bytes into a Config and validates it. pipelineDir
// is used only to resolve and read a CSV `from` source for header
// validation; it does not affect in-memory structure.
func Parse(data []byte, pipelineDir string) (Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, NewValidationError("<yaml>", err.Error())
	}

	cfg := Config{
		Name: raw.Name,
		Input: InputSpec{
			Items: raw.Input.Items,
			Limit: raw.Input.Limit,
		},
		Map: MapSpec{
			Prompt:    raw.Map.Prompt,
			Output:    raw.Map.Output,
			Parallel:  raw.Map.Parallel,
			Model:     raw.Map.Model,
			TimeoutMs: raw.Map.TimeoutMs,
		}.WithDefaults(),
		Reduce: ReduceSpec{
			Type:   raw.Reduce.Type,
			Prompt: raw.Reduce.Prompt,
			Output: raw.Reduce.Output,
		},
	}
	if raw.Input.From != nil {
		cfg.Input.From = &CSVSource{
			Type:      raw.Input.From.Type,
			Path:      raw.Input.From.Path,
			Delimiter: raw.Input.From.Delimiter,
		}
	}
	if raw.Input.Generate != nil {
		cfg.Input.Generate = &GenerateSource{
			Prompt: raw.Input.Generate.Prompt,
			Schema: raw.Input.Generate.Schema,
		}
	}
	for _, p := range raw.Input.Parameters {
		cfg.Input.Parameters = append(cfg.Input.Parameters, Parameter{Name: p.Name, Value: p.Value})
	}

	if err := Validate(cfg, pipelineDir); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every invariant in spec §4.9 before any AI call is made.
// pipelineDir may be empty when a CSV `from` source is not used.
func Validate(cfg Config, pipelineDir string) error {
	if cfg.Name == "" {
		return NewValidationError("name", "must be a non-empty string")
	}

	setCount := 0
	if cfg.Input.Items != nil {
		setCount++
	}
	if cfg.Input.From != nil {
		setCount++
	}
	if cfg.Input.Generate != nil {
		setCount++
	}
	if setCount != 1 {
		return NewValidationError("input", "exactly one of items, from, or generate must be set").
			WithSuggestion("set exactly one of input.items, input.from, or input.generate")
	}

	paramNames := map[string]bool{}
	for _, p := range cfg.Input.Parameters {
		if p.Name == "" {
			return NewValidationError("input.parameters", "parameter names must be non-empty identifiers")
		}
		if paramNames[p.Name] {
			return NewValidationError("input.parameters", fmt.Sprintf("duplicate parameter name %q", p.Name))
		}
		paramNames[p.Name] = true
	}

	if cfg.Map.Prompt == "" {
		return NewValidationError("map.prompt", "must be non-empty")
	}
	if cfg.Map.Parallel < 1 {
		return NewValidationError("map.parallel", "must be >= 1")
	}
	if cfg.Map.TimeoutMs <= 0 {
		return NewValidationError("map.timeoutMs", "must be > 0")
	}

	switch cfg.Reduce.Type {
	case ReduceList, ReduceTable, ReduceJSON, ReduceText, ReduceAI:
	default:
		return NewValidationError("reduce.type", fmt.Sprintf("must be one of list, table, json, text, ai (got %q)", cfg.Reduce.Type))
	}
	if cfg.Reduce.Type == ReduceText && !cfg.Map.TextMode() {
		return NewValidationError("reduce.type", "text reduce requires map.output to be empty").
			WithSuggestion("remove map.output or change reduce.type")
	}
	if cfg.Reduce.Type == ReduceAI && cfg.Reduce.Prompt == "" {
		return NewValidationError("reduce.prompt", "required when reduce.type is \"ai\"")
	}

	if cfg.Input.From != nil {
		if cfg.Input.From.Type != "csv" {
			return NewValidationError("input.from.type", fmt.Sprintf("unsupported source type %q", cfg.Input.From.Type))
		}
		if cfg.Input.From.Path == "" {
			return NewValidationError("input.from.path", "must be set")
		}
		if pipelineDir != "" {
			if err := validateCSVHeaders(cfg, pipelineDir); err != nil {
				return err
			}
		}
	}

	return nil
}

// validateCSVHeaders resolves the CSV path against pipelineDir and checks
// that every {{var}} in the map prompt not covered by parameters is a
// column header.
func validateCSVHeaders(cfg Config, pipelineDir string) error {
	path := ResolvePath(pipelineDir, cfg.Input.From.Path)
	f, err := os.Open(path)
	if err != nil {
		return NewValidationError("input.from.path", fmt.Sprintf("file not readable: %v", err))
	}
	defer f.Close()

	r := csv.NewReader(f)
	if cfg.Input.From.Delimiter != "" {
		r.Comma = []rune(cfg.Input.From.Delimiter)[0]
	}
	headers, err := r.Read()
	if err != nil {
		return NewValidationError("input.from.path", fmt.Sprintf("could not read header row: %v", err))
	}
	headerSet := map[string]bool{}
	for _, h := range headers {
		headerSet[h] = true
	}

	params := map[string]string{}
	for _, p := range cfg.Input.Parameters {
		params[p.Name] = p.Value
	}
	for _, v := range ExtractVariables(cfg.Map.Prompt) {
		if params[v] != "" {
			continue
		}
		if _, isParam := lookupParam(cfg.Input.Parameters, v); isParam {
			continue
		}
		if !headerSet[v] {
			return NewValidationError("input.from", fmt.Sprintf("map.prompt references {{%s}} which is neither a CSV column nor a parameter", v)).
				WithSuggestion(fmt.Sprintf("add a %q column to %s or declare it under input.parameters", v, cfg.Input.From.Path))
		}
	}
	return nil
}

func lookupParam(params []Parameter, name string) (Parameter, bool) {
	for _, p := range params {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// ResolvePath resolves a possibly-relative CSV path against the pipeline's
// package directory, not the process CWD (spec §4.9 Path resolution).
// "../" is permitted so a package can reference a sibling shared/
// directory.
func ResolvePath(pipelineDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(pipelineDir, path)
}
