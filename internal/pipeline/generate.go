package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/recinq/reduceai/internal/llm"
)

// GenerateItems runs the `generate` input's seed AI call and parses its
// response into a candidate item list. The engine never executes these
// items directly — spec §4.5 Open Question 1 requires external approval
// (see GenerateApproval) before they reach the map phase.
func GenerateItems(ctx context.Context, invoker llm.Invoker, source GenerateSource) ([]map[string]any, error) {
	if invoker == nil {
		return nil, fmt.Errorf("pipeline: GenerateItems requires an Invoker")
	}
	prompt := source.Prompt + jsonArraySuffix(source.Schema)
	result := invoker.Invoke(ctx, prompt, llm.InvokeOptions{})
	if !result.Success {
		return nil, fmt.Errorf("pipeline: generate input invocation failed: %s", result.Error)
	}

	items, err := extractJSONArray(result.Response)
	if err != nil {
		return nil, fmt.Errorf("pipeline: generate input response: %w", err)
	}
	coerced := make([]map[string]any, len(items))
	for i, raw := range items {
		coerced[i] = CoerceOutputFields(raw, source.Schema)
	}
	return coerced, nil
}

func jsonArraySuffix(fields []string) string {
	return fmt.Sprintf("\n\nRespond with a single JSON array of objects, each containing exactly these fields: %s. Return only the JSON array, no other text.", strings.Join(fields, ", "))
}

func extractJSONArray(text string) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(text)

	var direct []map[string]any
	if err := json.Unmarshal([]byte(trimmed), &direct); err == nil {
		return direct, nil
	}

	if fenced, ok := extractFencedJSON(trimmed); ok {
		var v []map[string]any
		if err := json.Unmarshal([]byte(fenced), &v); err == nil {
			return v, nil
		}
	}

	if balanced, ok := extractBalancedArray(trimmed); ok {
		var v []map[string]any
		if err := json.Unmarshal([]byte(balanced), &v); err == nil {
			return v, nil
		}
	}

	return nil, fmt.Errorf("no valid JSON array found in response")
}

// extractBalancedArray mirrors extractBalancedObject but for a `[...]` span.
func extractBalancedArray(text string) (string, bool) {
	start := strings.IndexByte(text, '[')
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '[':
			if !inString {
				depth++
			}
		case ']':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}
