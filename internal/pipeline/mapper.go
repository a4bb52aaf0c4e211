package pipeline

import (
	"context"
	"fmt"

	"github.com/recinq/reduceai/internal/llm"
	"github.com/recinq/reduceai/internal/mapreduce"
	"github.com/recinq/reduceai/internal/security"
)

// PromptMapper is the default mapper described in spec §4.6: substitute
// the template, optionally append a JSON-response instruction, call the
// AI invoker, parse the response. It never panics; every failure becomes
// a failed mapreduce.Result.
type PromptMapper struct {
	Spec       MapSpec
	Parameters map[string]string
	Invoker    llm.Invoker
	Sanitizer  *security.InputSanitizer // optional; nil disables scanning
	Schema     *SchemaValidator         // optional; nil disables the check (SPEC_FULL §4.16)
}

// Map implements mapreduce.Mapper.
func (m PromptMapper) Map(ctx context.Context, item mapreduce.Item) mapreduce.Result {
	fieldMap := map[string]any(item)

	if m.Sanitizer != nil {
		for k, v := range fieldMap {
			s, ok := v.(string)
			if !ok {
				continue
			}
			cleaned, _, err := m.Sanitizer.Sanitize(k, s)
			if err != nil {
				return mapreduce.Result{Item: item, Success: false, Error: fmt.Sprintf("input rejected: %v", err)}
			}
			fieldMap[k] = cleaned
		}
	}

	// Run-level pre-flight (pipeline.run) already rejects the whole run if
	// any item is missing a variable; this is a defensive second check for
	// callers that invoke a PromptMapper directly.
	if missing := UnresolvedVariables(m.Spec.Prompt, fieldMap, m.Parameters); len(missing) > 0 {
		return mapreduce.Result{Item: item, Success: false, Error: fmt.Sprintf("unresolved template variables: %v", missing)}
	}

	prompt := Substitute(m.Spec.Prompt, fieldMap, m.Parameters)
	if !m.Spec.TextMode() {
		prompt += jsonResponseSuffix(m.Spec.Output)
	}

	res := m.Invoker.Invoke(ctx, prompt, llm.InvokeOptions{
		Model:     m.Spec.Model,
		TimeoutMs: m.Spec.TimeoutMs,
	})
	if !res.Success {
		return mapreduce.Result{Item: item, Success: false, Error: res.Error}
	}

	if m.Spec.TextMode() {
		return mapreduce.Result{Item: item, Success: true, RawResponse: res.Response}
	}

	raw, err := ExtractJSON(res.Response)
	if err != nil {
		return mapreduce.Result{Item: item, Success: false, Error: fmt.Sprintf("could not parse JSON response: %v", err), RawResponse: res.Response}
	}
	output := CoerceOutputFields(raw, m.Spec.Output)

	if m.Schema != nil {
		if err := m.Schema.Validate(output); err != nil {
			return mapreduce.Result{Item: item, Success: false, Error: err.Error(), RawResponse: res.Response}
		}
	}

	return mapreduce.Result{
		Item:        item,
		Success:     true,
		Output:      output,
		RawResponse: res.Response,
	}
}

// NewMapper returns a PromptMapper, flattening `input.parameters` to the
// string map the template engine expects. It does not validate spec; an
// empty prompt is rejected earlier by Validate.
func NewMapper(spec MapSpec, parameters []Parameter, invoker llm.Invoker, sanitizer *security.InputSanitizer) PromptMapper {
	return PromptMapper{Spec: spec, Parameters: flattenParameters(parameters), Invoker: invoker, Sanitizer: sanitizer}
}
