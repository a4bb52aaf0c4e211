package llm

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is a reusable LLM conversational handle. A session in busy=true
// is held by exactly one caller between Acquire and Release/Destroy.
type Session struct {
	ID         string
	busy       bool
	lastUsedAt time.Time
	cancel     context.CancelFunc

	mu      sync.Mutex
	history []Turn
	send    func(ctx context.Context, history []Turn, prompt string, opts InvokeOptions) (string, error)
}

// Turn is one exchange kept as the session's running conversational state.
type Turn struct {
	Prompt   string
	Response string
}

func newSession(send func(ctx context.Context, history []Turn, prompt string, opts InvokeOptions) (string, error)) *Session {
	return &Session{
		ID:         uuid.NewString(),
		lastUsedAt: time.Now(),
		send:       send,
	}
}

// invoke runs prompt through this session's transport, appending to its
// history on success. It never panics; transport errors are returned so
// the pool can decide whether to destroy the session. The call's own
// context.CancelFunc is published to s.cancel for the duration of the
// send, so a concurrent abort() actually interrupts the in-flight call
// instead of cancelling a context nobody is listening on.
func (s *Session) invoke(ctx context.Context, prompt string, opts InvokeOptions) (string, error) {
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	history := append([]Turn(nil), s.history...)
	s.cancel = cancel
	s.mu.Unlock()

	resp, err := s.send(callCtx, history, prompt, opts)

	s.mu.Lock()
	s.cancel = nil
	s.mu.Unlock()

	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.history = append(s.history, Turn{Prompt: prompt, Response: resp})
	s.mu.Unlock()
	return resp, nil
}

// abort cancels this session's in-flight call, if any.
func (s *Session) abort() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
