package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineSplitter_MergesParametersAndRespectsLimit(t *testing.T) {
	s := InlineSplitter{
		Items:      []map[string]any{{"title": "A"}, {"title": "B", "env": "dev"}},
		Parameters: []Parameter{{Name: "env", Value: "prod"}},
		Limit:      1,
	}
	items, err := s.Split(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "prod", items[0]["env"])
	assert.Equal(t, "A", items[0]["title"])
}

// S2: CSV id,title rows with limit 2.
func TestCSVSplitter_LimitSelectsFirstRows(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "items.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("id,title\n1,A\n2,B\n3,C\n"), 0o644))

	s := CSVSplitter{Path: csvPath, Limit: 2}
	items, err := s.Split(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "1", items[0]["id"])
	assert.Equal(t, "A", items[0]["title"])
	assert.Equal(t, "2", items[1]["id"])
	assert.Equal(t, "B", items[1]["title"])
}

func TestCSVSplitter_CustomDelimiter(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "items.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("id;title\n1;A\n"), 0o644))

	s := CSVSplitter{Path: csvPath, Delimiter: ";"}
	items, err := s.Split(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "A", items[0]["title"])
}

func TestCSVSplitter_MissingFileIsError(t *testing.T) {
	s := CSVSplitter{Path: "/no/such/file.csv"}
	_, err := s.Split(context.Background())
	assert.Error(t, err)
}

func TestApprovedItemsSplitter_YieldsApprovedItems(t *testing.T) {
	s := ApprovedItemsSplitter{
		Approval: GenerateApproval{Items: []map[string]any{{"topic": "go"}, {"topic": "rust"}}},
	}
	items, err := s.Split(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "go", items[0]["topic"])
	assert.Equal(t, "rust", items[1]["topic"])
}
