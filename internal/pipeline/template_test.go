package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractVariables_UniqueOrdered(t *testing.T) {
	vars := ExtractVariables("{{env}}: {{title}} again {{ env }} {{title}}")
	assert.Equal(t, []string{"env", "title"}, vars)
}

func TestSubstitute_ItemOverridesParameter(t *testing.T) {
	item := map[string]any{"title": "x", "env": "dev"}
	params := map[string]string{"env": "prod"}
	got := Substitute("{{env}}:{{title}}", item, params)
	assert.Equal(t, "dev:x", got)
	assert.NotContains(t, got, "prod")
}

func TestSubstitute_FallsBackToParameter(t *testing.T) {
	item := map[string]any{"title": "x"}
	params := map[string]string{"env": "prod"}
	got := Substitute("{{env}}:{{title}}", item, params)
	assert.Equal(t, "prod:x", got)
}

func TestUnresolvedVariables_ReportsMissing(t *testing.T) {
	missing := UnresolvedVariables("{{a}} {{b}}", map[string]any{"a": "1"}, nil)
	assert.Equal(t, []string{"b"}, missing)
}

func TestExtractJSON_DirectParse(t *testing.T) {
	got, err := ExtractJSON(`{"severity":"high"}`)
	require.NoError(t, err)
	assert.Equal(t, "high", got["severity"])
}

func TestExtractJSON_FencedBlock(t *testing.T) {
	text := "Here you go:\n```json\n{\"severity\": \"low\"}\n```\nThanks."
	got, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.Equal(t, "low", got["severity"])
}

func TestExtractJSON_FirstBalancedObject(t *testing.T) {
	text := `The answer is {"a": {"nested": "}"}, "b": 2} and that's final.`
	got, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.Equal(t, float64(2), got["b"])
}

func TestExtractJSON_NoneFoundIsError(t *testing.T) {
	_, err := ExtractJSON("no json here at all")
	assert.Error(t, err)
}

func TestCoerceOutputFields_DropsUnknownFillsMissing(t *testing.T) {
	raw := map[string]any{"severity": "high", "extra": "drop me"}
	got := CoerceOutputFields(raw, []string{"severity", "confidence"})
	assert.Equal(t, "high", got["severity"])
	assert.Nil(t, got["confidence"])
	_, hasExtra := got["extra"]
	assert.False(t, hasExtra)
}
