package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/recinq/reduceai/internal/mapreduce"
)

// applyLimitAndParameters merges parameters into every item (item fields
// override parameters) and truncates to limit when limit > 0.
func applyLimitAndParameters(items []map[string]any, parameters []Parameter, limit int) []mapreduce.Item {
	out := make([]mapreduce.Item, 0, len(items))
	for _, it := range items {
		out = append(out, mapreduce.Item(MergeItem(it, parameters)))
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// InlineSplitter yields the `input.items` list directly.
type InlineSplitter struct {
	Items      []map[string]any
	Parameters []Parameter
	Limit      int
}

// Split implements mapreduce.Splitter.
func (s InlineSplitter) Split(ctx context.Context) ([]mapreduce.Item, error) {
	return applyLimitAndParameters(s.Items, s.Parameters, s.Limit), nil
}

// CSVSplitter yields one item per data row, keyed by header.
type CSVSplitter struct {
	Path       string // already resolved against the pipeline directory
	Delimiter  string
	Parameters []Parameter
	Limit      int
}

// Split implements mapreduce.Splitter.
func (s CSVSplitter) Split(ctx context.Context) ([]mapreduce.Item, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: csv splitter: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	if s.Delimiter != "" {
		r.Comma = []rune(s.Delimiter)[0]
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("pipeline: csv splitter: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	headers := rows[0]
	items := make([]map[string]any, 0, len(rows)-1)
	for _, row := range rows[1:] {
		item := make(map[string]any, len(headers))
		for i, h := range headers {
			if i < len(row) {
				item[h] = row[i]
			}
		}
		items = append(items, item)
	}
	return applyLimitAndParameters(items, s.Parameters, s.Limit), nil
}

// GenerateApproval is the externally-approved item list threaded into
// RunWithItems for `generate` input (spec §4.5, Open Question 1). The
// core engine never runs a `generate` input on its own — it always
// requires this caller-supplied list.
type GenerateApproval struct {
	Items []map[string]any
}

// ApprovedItemsSplitter wraps an already-approved item list so it can
// flow through the same Job machinery as any other splitter.
type ApprovedItemsSplitter struct {
	Approval   GenerateApproval
	Parameters []Parameter
	Limit      int
}

// Split implements mapreduce.Splitter.
func (s ApprovedItemsSplitter) Split(ctx context.Context) ([]mapreduce.Item, error) {
	return applyLimitAndParameters(s.Approval.Items, s.Parameters, s.Limit), nil
}
