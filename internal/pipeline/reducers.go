package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/recinq/reduceai/internal/llm"
	"github.com/recinq/reduceai/internal/mapreduce"
)

// ListReducer renders one Markdown section per item, showing its inputs
// and declared outputs. Deterministic.
type ListReducer struct{}

// Reduce implements mapreduce.Reducer.
func (ListReducer) Reduce(ctx context.Context, results []mapreduce.Result) (any, error) {
	return renderList(results), nil
}

func renderList(results []mapreduce.Result) string {
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "## Item %d\n\n", i+1)
		writeSortedMap(&sb, "Input", r.Item)
		if r.Success {
			if len(r.Output) > 0 {
				writeSortedMap(&sb, "Output", r.Output)
			} else if r.RawResponse != "" {
				fmt.Fprintf(&sb, "**Output:** %s\n\n", r.RawResponse)
			}
		} else {
			fmt.Fprintf(&sb, "**Error:** %s\n\n", r.Error)
		}
	}
	return sb.String()
}

func writeSortedMap(sb *strings.Builder, label string, m map[string]any) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(sb, "**%s:**\n", label)
	for _, k := range keys {
		fmt.Fprintf(sb, "- %s: %v\n", k, m[k])
	}
	sb.WriteString("\n")
}

// TableReducer renders a Markdown table whose columns are the declared
// output fields, optionally preceded by input columns. Deterministic.
type TableReducer struct {
	OutputFields []string
	InputColumns []string
}

// Reduce implements mapreduce.Reducer.
func (t TableReducer) Reduce(ctx context.Context, results []mapreduce.Result) (any, error) {
	return renderTable(t.InputColumns, t.OutputFields, results), nil
}

func renderTable(inputCols, outputFields []string, results []mapreduce.Result) string {
	cols := append(append([]string{}, inputCols...), outputFields...)
	if len(cols) == 0 {
		cols = []string{"success", "error"}
	}
	var sb strings.Builder
	sb.WriteString("| " + strings.Join(cols, " | ") + " |\n")
	sb.WriteString("|" + strings.Repeat(" --- |", len(cols)) + "\n")
	for _, r := range results {
		cells := make([]string, 0, len(cols))
		for _, c := range inputCols {
			cells = append(cells, fmt.Sprint(r.Item[c]))
		}
		for _, c := range outputFields {
			if !r.Success {
				cells = append(cells, "")
				continue
			}
			cells = append(cells, fmt.Sprint(r.Output[c]))
		}
		if len(inputCols) == 0 && len(outputFields) == 0 {
			cells = []string{fmt.Sprint(r.Success), r.Error}
		}
		sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return sb.String()
}

// jsonResultEntry is the per-item shape emitted by JSONReducer, resolving
// Open Question 2: no `output` field is present when the run is text-mode.
type jsonResultEntry struct {
	Item        map[string]any `json:"item"`
	Success     bool           `json:"success"`
	Output      map[string]any `json:"output,omitempty"`
	RawResponse string         `json:"rawResponse,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// JSONOutput is the structured shape JSONReducer.Reduce returns.
type JSONOutput struct {
	Results []jsonResultEntry `json:"results"`
}

// JSONReducer returns `{ results: MapResult[] }`. Deterministic.
type JSONReducer struct{ TextMode bool }

// Reduce implements mapreduce.Reducer.
func (j JSONReducer) Reduce(ctx context.Context, results []mapreduce.Result) (any, error) {
	return jsonOutputFrom(results, j.TextMode), nil
}

func jsonOutputFrom(results []mapreduce.Result, textMode bool) JSONOutput {
	out := JSONOutput{Results: make([]jsonResultEntry, len(results))}
	for i, r := range results {
		entry := jsonResultEntry{
			Item:        map[string]any(r.Item),
			Success:     r.Success,
			RawResponse: r.RawResponse,
			Error:       r.Error,
		}
		if !textMode {
			entry.Output = r.Output
		}
		out.Results[i] = entry
	}
	return out
}

// TextReducer concatenates the RawResponse of every successful result with
// a separator. Only valid when the map is text-mode. Deterministic.
type TextReducer struct {
	Separator string
}

// Reduce implements mapreduce.Reducer.
func (t TextReducer) Reduce(ctx context.Context, results []mapreduce.Result) (any, error) {
	sep := t.Separator
	if sep == "" {
		sep = "\n\n---\n\n"
	}
	var parts []string
	for _, r := range results {
		if r.Success {
			parts = append(parts, r.RawResponse)
		}
	}
	return strings.Join(parts, sep), nil
}

// AIReducer performs a single AI call over the full result set,
// substituting {{RESULTS}} and {{COUNT}} into Prompt. If the AI call
// fails, it falls back to a list-style aggregation — reduce-time failures
// must never lose the map results (spec §4.7, invariant 8).
type AIReducer struct {
	Prompt  string
	Output  []string
	Invoker llm.Invoker
	Model   string
}

// Reduce implements mapreduce.Reducer.
func (a AIReducer) Reduce(ctx context.Context, results []mapreduce.Result) (any, error) {
	resultsJSON, err := json.MarshalIndent(jsonOutputFrom(results, false), "", "  ")
	if err != nil {
		return renderList(results), nil
	}

	params := map[string]string{
		"RESULTS": string(resultsJSON),
		"COUNT":   formatCount(len(results)),
	}
	prompt := Substitute(a.Prompt, map[string]any{}, params)
	if len(a.Output) > 0 {
		prompt += jsonResponseSuffix(a.Output)
	}

	res := a.Invoker.Invoke(ctx, prompt, llm.InvokeOptions{Model: a.Model, TimeoutMs: defaultTimeoutMs})
	if !res.Success {
		return renderList(results), nil
	}
	if len(a.Output) == 0 {
		return res.Response, nil
	}
	parsed, err := ExtractJSON(res.Response)
	if err != nil {
		return renderList(results), nil
	}
	return CoerceOutputFields(parsed, a.Output), nil
}
