package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaValidator optionally checks a mapper's output against a
// caller-supplied JSON Schema before it is accepted. This is opt-in at the
// Go API level via RunOptions.OutputSchema, which sets PromptMapper.Schema
// — the YAML grammar in spec §6.1 gains no new field for it (spec
// SPEC_FULL §4.16). Items produced by a `generate` input are not checked.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// NewSchemaValidator compiles a JSON Schema document (already decoded into
// a Go value, e.g. via json.Unmarshal) into a reusable validator.
func NewSchemaValidator(schemaDoc map[string]any) (*SchemaValidator, error) {
	c := jsonschema.NewCompiler()
	const resourceURL = "reduceai://map-output-schema.json"
	if err := c.AddResource(resourceURL, schemaDoc); err != nil {
		return nil, fmt.Errorf("pipeline: invalid output schema: %w", err)
	}
	schema, err := c.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("pipeline: could not compile output schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// Validate checks output against the compiled schema. output is
// round-tripped through JSON so Go-native numeric types (int vs float64)
// don't cause spurious mismatches.
func (v *SchemaValidator) Validate(output map[string]any) error {
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("pipeline: output not serialisable: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("pipeline: output failed schema validation: %w", err)
	}
	return nil
}
