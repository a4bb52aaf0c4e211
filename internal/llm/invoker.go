// Package llm provides the AI Invoker contract, its session-pooled default
// implementation backed by the Anthropic API, and a stub implementation
// for tests. Every layer above this package depends only on the Invoker
// interface — never on the pool or the SDK client directly — which is how
// the pipeline and map-reduce packages stay host-agnostic.
package llm

import "context"

// InvokeOptions carries the optional knobs a caller may set on one AI
// call. Unrecognised/zero fields are ignored by implementations.
type InvokeOptions struct {
	Model            string
	TimeoutMs        int
	Tools            []string
	WorkingDirectory string
}

// InvokeResult is the outcome of one AI call. An Invoker never panics or
// returns a Go error for an ordinary call failure — failures are carried
// as data in this struct so callers always get a value back.
type InvokeResult struct {
	Success   bool
	Response  string
	Error     string
	SessionID string
}

// Invoker is the thin contract every higher layer depends on. The default
// implementation (Pool.Invoke) multiplexes calls onto warm sessions; test
// code substitutes a Mock.
type Invoker interface {
	Invoke(ctx context.Context, prompt string, opts InvokeOptions) InvokeResult
}

// InvokerFunc adapts a plain function to an Invoker.
type InvokerFunc func(ctx context.Context, prompt string, opts InvokeOptions) InvokeResult

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, prompt string, opts InvokeOptions) InvokeResult {
	return f(ctx, prompt, opts)
}
