package pipeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var varPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// ExtractVariables parses every unique {{ident}} occurrence out of prompt,
// in first-seen order.
func ExtractVariables(prompt string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range varPattern.FindAllStringSubmatch(prompt, -1) {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// mergedValue resolves a {{var}} against an item, falling back to the
// parameter defaults. Item fields always win on key collision (spec §3
// Parameters, invariant 4).
func mergedValue(name string, item map[string]any, parameters map[string]string) (string, bool) {
	if v, ok := item[name]; ok {
		return fmt.Sprint(v), true
	}
	if v, ok := parameters[name]; ok {
		return v, true
	}
	return "", false
}

// UnresolvedVariables reports which {{var}} references in prompt cannot be
// resolved against item+parameters. An empty result means the prompt is
// safe to substitute (spec invariant 5: template totality).
func UnresolvedVariables(prompt string, item map[string]any, parameters map[string]string) []string {
	var missing []string
	for _, name := range ExtractVariables(prompt) {
		if _, ok := mergedValue(name, item, parameters); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Substitute replaces every {{var}} in prompt using item, falling back to
// parameters. Callers must check UnresolvedVariables first — Substitute
// itself leaves any variable it cannot resolve untouched.
func Substitute(prompt string, item map[string]any, parameters map[string]string) string {
	return varPattern.ReplaceAllStringFunc(prompt, func(match string) string {
		sub := varPattern.FindStringSubmatch(match)
		name := sub[1]
		if v, ok := mergedValue(name, item, parameters); ok {
			return v
		}
		return match
	})
}

// flattenParameters turns `input.parameters` into the string map the
// template engine's fallback lookup expects.
func flattenParameters(parameters []Parameter) map[string]string {
	params := make(map[string]string, len(parameters))
	for _, p := range parameters {
		params[p.Name] = p.Value
	}
	return params
}

// MergeItem builds the item the template actually sees: parameters as
// defaults, item fields overlaid on top.
func MergeItem(item map[string]any, parameters []Parameter) map[string]any {
	merged := make(map[string]any, len(parameters)+len(item))
	for _, p := range parameters {
		merged[p.Name] = p.Value
	}
	for k, v := range item {
		merged[k] = v
	}
	return merged
}

// jsonResponseSuffix is appended to a map prompt whenever output fields are
// declared, instructing the model to reply with exactly those fields.
func jsonResponseSuffix(fields []string) string {
	return fmt.Sprintf("\n\nRespond with a single JSON object containing exactly these fields: %s. Return only the JSON object, no other text.", strings.Join(fields, ", "))
}

// ExtractJSON pulls a JSON object out of a model response using, in
// order: a direct parse, a fenced ```json block, then the first balanced
// {...} span (spec §4.4). It returns an error only if none of the three
// strategies finds valid JSON.
func ExtractJSON(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)

	var direct map[string]any
	if err := json.Unmarshal([]byte(trimmed), &direct); err == nil {
		return direct, nil
	}

	if fenced, ok := extractFencedJSON(trimmed); ok {
		var v map[string]any
		if err := json.Unmarshal([]byte(fenced), &v); err == nil {
			return v, nil
		}
	}

	if balanced, ok := extractBalancedObject(trimmed); ok {
		var v map[string]any
		if err := json.Unmarshal([]byte(balanced), &v); err == nil {
			return v, nil
		}
	}

	return nil, fmt.Errorf("no valid JSON object found in response")
}

var fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

func extractFencedJSON(text string) (string, bool) {
	m := fencedBlockPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// extractBalancedObject finds the first `{` and returns the text up to its
// matching `}`, correctly skipping braces inside quoted strings.
func extractBalancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
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
		case '{':
			if !inString {
				depth++
			}
		case '}':
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

// CoerceOutputFields keeps exactly the declared fields: unknown fields are
// dropped, declared fields absent from raw become nil (spec §4.4).
func CoerceOutputFields(raw map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f] = raw[f]
	}
	return out
}

// formatCount renders an int as a template-ready string for {{COUNT}}.
func formatCount(n int) string { return strconv.Itoa(n) }
