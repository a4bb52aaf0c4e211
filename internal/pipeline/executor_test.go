package pipeline

import (
	"context"
	"testing"

	"github.com/recinq/reduceai/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S1: inline items, JSON output map, list reduce.
func TestRun_S1_InlineItemsListReduce(t *testing.T) {
	cfg, err := Parse([]byte(`
name: s1
input:
  items:
    - title: A
    - title: B
map:
  prompt: "Analyze: {{title}}"
  output: [severity]
  parallel: 5
reduce:
  type: list
`), "")
	require.NoError(t, err)

	invoker := llm.NewMock(
		llm.WithResponse("Analyze: A\n\nRespond with a single JSON object containing exactly these fields: severity. Return only the JSON object, no other text.", `{"severity":"high"}`),
		llm.WithResponse("Analyze: B\n\nRespond with a single JSON object containing exactly these fields: severity. Return only the JSON object, no other text.", `{"severity":"low"}`),
	)

	outcome, err := Run(context.Background(), cfg, RunOptions{Invoker: invoker})
	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.Len(t, outcome.Results, 2)
	assert.Equal(t, "high", outcome.Results[0].Output["severity"])
	assert.Equal(t, "low", outcome.Results[1].Output["severity"])
}

// S3/S4: parameter merge with item override.
func TestRun_S3S4_ParameterMergeAndOverride(t *testing.T) {
	cfg, err := Parse([]byte(`
name: s3
input:
  items:
    - title: x
  parameters:
    - {name: env, value: prod}
map:
  prompt: "{{env}}:{{title}}"
  output: []
reduce:
  type: text
`), "")
	require.NoError(t, err)

	invoker := llm.NewMock(llm.WithResponse("prod:x", "captured"))
	outcome, err := Run(context.Background(), cfg, RunOptions{Invoker: invoker})
	require.NoError(t, err)
	assert.Contains(t, invoker.Calls(), "prod:x")
	assert.True(t, outcome.Results[0].Success)

	cfg2, err := Parse([]byte(`
name: s4
input:
  items:
    - {title: x, env: dev}
  parameters:
    - {name: env, value: prod}
map:
  prompt: "{{env}}:{{title}}"
  output: []
reduce:
  type: text
`), "")
	require.NoError(t, err)
	invoker2 := llm.NewMock(llm.WithResponse("dev:x", "captured"))
	_, err = Run(context.Background(), cfg2, RunOptions{Invoker: invoker2})
	require.NoError(t, err)
	assert.Contains(t, invoker2.Calls(), "dev:x")
	for _, c := range invoker2.Calls() {
		assert.NotContains(t, c, "prod")
	}
}

// S8: text-mode map, text reduce.
func TestRun_S8_TextModeTextReduce(t *testing.T) {
	cfg, err := Parse([]byte(`
name: s8
input:
  items:
    - a: "1"
map:
  prompt: "{{a}}"
  output: []
reduce:
  type: text
`), "")
	require.NoError(t, err)
	invoker := llm.NewMock(llm.WithResponse("1", "hello"))
	outcome, err := Run(context.Background(), cfg, RunOptions{Invoker: invoker})
	require.NoError(t, err)
	assert.Contains(t, outcome.Output.(string), "hello")
}

// S9: ai reduce whose reduce-time call fails falls back to list shape.
func TestRun_S9_AIReduceFallsBackToList(t *testing.T) {
	cfg, err := Parse([]byte(`
name: s9
input:
  items:
    - title: A
map:
  prompt: "{{title}}"
  output: []
reduce:
  type: ai
  prompt: "Summarize: {{RESULTS}}"
`), "")
	require.NoError(t, err)

	invoker := llm.NewMock(llm.WithResponse("A", "raw-a"))
	reduceInvoker := llm.NewMock(llm.WithFailure("reduce backend down"))

	outcome, err := Run(context.Background(), cfg, RunOptions{Invoker: invoker, AIReduceInvoker: reduceInvoker})
	require.NoError(t, err)
	require.True(t, outcome.Success)
	out, ok := outcome.Output.(string)
	require.True(t, ok)
	assert.Contains(t, out, "raw-a")
	assert.Equal(t, renderList(outcome.Results), out)
}

func TestRun_RefusesGenerateInputWithoutApproval(t *testing.T) {
	cfg, err := Parse([]byte(`
name: gen
input:
  generate: {prompt: "list 3 topics", schema: [topic]}
map:
  prompt: "{{topic}}"
  output: []
reduce:
  type: text
`), "")
	require.NoError(t, err)
	_, err = Run(context.Background(), cfg, RunOptions{Invoker: llm.NewMock()})
	assert.Error(t, err)
}

// spec §4.9/§7: a missing template variable fails the whole run before
// any item reaches the AI invoker, not just the one item that lacks it.
func TestRun_PreflightRejectsRunWhenAnyItemMissingVariable(t *testing.T) {
	cfg, err := Parse([]byte(`
name: preflight
input:
  items:
    - title: A
    - note: B
map:
  prompt: "{{title}}"
  output: []
reduce:
  type: list
`), "")
	require.NoError(t, err)

	invoker := llm.NewMock(llm.WithResponse("A", "would-have-run"))
	outcome, err := Run(context.Background(), cfg, RunOptions{Invoker: invoker})
	require.Error(t, err)
	assert.False(t, outcome.Success)
	assert.Empty(t, invoker.Calls(), "no AI call should happen once any item fails the pre-flight check")

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

// SPEC_FULL §4.16: a caller-supplied OutputSchema rejects a mapper result
// that doesn't conform, turning it into a failed Result rather than a
// silently-accepted success.
func TestRun_OutputSchemaRejectsNonConformingResult(t *testing.T) {
	cfg, err := Parse([]byte(`
name: schema-check
input:
  items:
    - title: A
map:
  prompt: "{{title}}"
  output: [severity]
reduce:
  type: list
`), "")
	require.NoError(t, err)

	invoker := llm.NewMock(llm.WithResponse(
		"A\n\nRespond with a single JSON object containing exactly these fields: severity. Return only the JSON object, no other text.",
		`{"severity":"critical"}`,
	))

	outcome, err := Run(context.Background(), cfg, RunOptions{
		Invoker: invoker,
		OutputSchema: map[string]any{
			"type":     "object",
			"required": []any{"severity"},
			"properties": map[string]any{
				"severity": map[string]any{"type": "string", "enum": []any{"low", "high"}},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, outcome.Results, 1)
	assert.False(t, outcome.Results[0].Success)
	assert.Contains(t, outcome.Results[0].Error, "schema")
}

func TestRunWithItems_RunsApprovedGenerateItems(t *testing.T) {
	cfg, err := Parse([]byte(`
name: gen
input:
  generate: {prompt: "list topics", schema: [topic]}
map:
  prompt: "{{topic}}"
  output: []
reduce:
  type: text
`), "")
	require.NoError(t, err)

	invoker := llm.NewMock(llm.WithResponse("go", "go-output"))
	outcome, err := RunWithItems(context.Background(), cfg, GenerateApproval{Items: []map[string]any{{"topic": "go"}}}, RunOptions{Invoker: invoker})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
}
