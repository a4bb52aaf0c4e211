package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Mock is a test double for Invoker, built with the same functional-
// options shape the teacher codebase uses for its adapter stub.
type Mock struct {
	mu        sync.Mutex
	responses map[string]string
	sequence  []string
	calls     []string
	delay     time.Duration
	fail      bool
	failErr   string
}

// MockOption configures a Mock.
type MockOption func(*Mock)

// NewMock builds a Mock with the given options applied in order.
func NewMock(opts ...MockOption) *Mock {
	m := &Mock{responses: map[string]string{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithResponse makes the mock return response whenever the prompt exactly
// equals prompt.
func WithResponse(prompt, response string) MockOption {
	return func(m *Mock) { m.responses[prompt] = response }
}

// WithSequence makes the mock return each response in order across
// successive calls, regardless of prompt, falling back to the last entry
// once exhausted.
func WithSequence(responses ...string) MockOption {
	return func(m *Mock) { m.sequence = responses }
}

// WithSimulatedDelay makes every call block for d (or until ctx is
// cancelled) before responding, to exercise timeout/retry behaviour.
func WithSimulatedDelay(d time.Duration) MockOption {
	return func(m *Mock) { m.delay = d }
}

// WithFailure makes every call fail with the given error message.
func WithFailure(errMsg string) MockOption {
	return func(m *Mock) { m.fail = true; m.failErr = errMsg }
}

// Calls returns every prompt the mock has seen, in order.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Invoke implements Invoker.
func (m *Mock) Invoke(ctx context.Context, prompt string, opts InvokeOptions) InvokeResult {
	m.mu.Lock()
	m.calls = append(m.calls, prompt)
	delay := m.delay
	fail := m.fail
	failErr := m.failErr
	var resp string
	var ok bool
	if resp, ok = m.responses[prompt]; !ok && len(m.sequence) > 0 {
		idx := len(m.calls) - 1
		if idx >= len(m.sequence) {
			idx = len(m.sequence) - 1
		}
		resp = m.sequence[idx]
		ok = true
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return InvokeResult{Success: false, Error: ctx.Err().Error()}
		}
	}

	if fail {
		return InvokeResult{Success: false, Error: failErr}
	}
	if !ok {
		return InvokeResult{Success: false, Error: fmt.Sprintf("mock: no stubbed response for prompt %q", prompt)}
	}
	return InvokeResult{Success: true, Response: resp, SessionID: "mock-session"}
}
