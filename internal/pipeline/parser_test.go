package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
name: analyze
input:
  items:
    - title: A
    - title: B
map:
  prompt: "Analyze: {{title}}"
  output: [severity]
reduce:
  type: list
`

func TestParse_ValidConfig(t *testing.T) {
	cfg, err := Parse([]byte(validYAML), "")
	require.NoError(t, err)
	assert.Equal(t, "analyze", cfg.Name)
	assert.Equal(t, 5, cfg.Map.Parallel, "parallel should default to 5")
	assert.Equal(t, 600_000, cfg.Map.TimeoutMs)
}

func TestParse_RejectsMultipleInputSources(t *testing.T) {
	yaml := `
name: bad
input:
  items: [{title: A}]
  from: {type: csv, path: x.csv}
map:
  prompt: "{{title}}"
  output: []
reduce:
  type: text
`
	_, err := Parse([]byte(yaml), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input")
}

func TestParse_TextReduceRequiresTextModeMap(t *testing.T) {
	yaml := `
name: bad
input:
  items: [{title: A}]
map:
  prompt: "{{title}}"
  output: [severity]
reduce:
  type: text
`
	_, err := Parse([]byte(yaml), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reduce.type")
}

func TestParse_AIReduceRequiresPrompt(t *testing.T) {
	yaml := `
name: bad
input:
  items: [{title: A}]
map:
  prompt: "{{title}}"
  output: []
reduce:
  type: ai
`
	_, err := Parse([]byte(yaml), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reduce.prompt")
}

func TestParse_CSVPathResolvedAgainstPipelineDir(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "items.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("id,title\n1,A\n2,B\n"), 0o644))

	yaml := `
name: csv-pipeline
input:
  from: {type: csv, path: items.csv}
map:
  prompt: "{{title}}"
  output: [severity]
reduce:
  type: list
`
	cfg, err := Parse([]byte(yaml), dir)
	require.NoError(t, err)
	assert.Equal(t, "items.csv", cfg.Input.From.Path)
}

func TestParse_CSVMissingColumnIsLoadTimeError(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "items.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("id\n1\n2\n"), 0o644))

	yaml := `
name: csv-pipeline
input:
  from: {type: csv, path: items.csv}
map:
  prompt: "{{title}}"
  output: [severity]
reduce:
  type: list
`
	_, err := Parse([]byte(yaml), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title")
}

func TestResolvePath_AllowsParentTraversal(t *testing.T) {
	got := ResolvePath("/pipelines/daily-digest", "../shared/items.csv")
	assert.Equal(t, "/pipelines/shared/items.csv", got)
}
