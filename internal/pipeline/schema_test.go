package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaValidator_AcceptsMatchingOutput(t *testing.T) {
	v, err := NewSchemaValidator(map[string]any{
		"type":     "object",
		"required": []any{"severity"},
		"properties": map[string]any{
			"severity": map[string]any{"type": "string", "enum": []any{"low", "high"}},
		},
	})
	require.NoError(t, err)

	assert.NoError(t, v.Validate(map[string]any{"severity": "high"}))
}

func TestSchemaValidator_RejectsNonConformingOutput(t *testing.T) {
	v, err := NewSchemaValidator(map[string]any{
		"type":     "object",
		"required": []any{"severity"},
		"properties": map[string]any{
			"severity": map[string]any{"type": "string", "enum": []any{"low", "high"}},
		},
	})
	require.NoError(t, err)

	err = v.Validate(map[string]any{"severity": "critical"})
	assert.Error(t, err)
}

func TestSchemaValidator_RejectsUncompilableSchema(t *testing.T) {
	_, err := NewSchemaValidator(map[string]any{"$ref": "#/definitions/doesNotExist"})
	assert.Error(t, err)
}
