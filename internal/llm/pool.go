package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrPoolUnavailable is returned once Cleanup has marked the pool
// unavailable; it must be reinitialised via NewPool before further use.
var ErrPoolUnavailable = errors.New("llm: session pool is unavailable")

// PoolConfig bounds a Pool's warm-session budget.
type PoolConfig struct {
	MaxSessions   int
	IdleTimeoutMs int
}

// DefaultPoolConfig matches spec §6.3's defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxSessions: 5, IdleTimeoutMs: 300_000}
}

// Factory creates the transport a new Session sends through. Supplied by
// the concrete backend (see client.go for the Anthropic-backed factory).
type Factory func() (send func(ctx context.Context, history []Turn, prompt string, opts InvokeOptions) (string, error), err error)

// Pool multiplexes calls onto a bounded set of warm Sessions. It satisfies
// Invoker, so it is the default concrete implementation of the AI Invoker
// contract described in spec §4.2.
type Pool struct {
	cfg     PoolConfig
	factory Factory

	mu       sync.Mutex
	sessions []*Session
	waiters  []chan *Session
	closed   bool

	reaperStop chan struct{}
	reaperDone chan struct{}
}

// NewPool constructs a Pool. The underlying client is lazily created: no
// Session exists until the first Acquire.
func NewPool(cfg PoolConfig, factory Factory) *Pool {
	if cfg.MaxSessions < 1 {
		cfg.MaxSessions = 1
	}
	if cfg.IdleTimeoutMs <= 0 {
		cfg.IdleTimeoutMs = 300_000
	}
	p := &Pool{
		cfg:        cfg,
		factory:    factory,
		reaperStop: make(chan struct{}),
		reaperDone: make(chan struct{}),
	}
	go p.reapIdleLoop()
	return p
}

// IsAvailable reports whether the pool can still serve calls. Higher
// layers use this to degrade gracefully when the backend is unreachable.
func (p *Pool) IsAvailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

// Acquire returns a free session, creating one (up to MaxSessions) if
// none is idle, or waiting FIFO if the pool is already at capacity.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolUnavailable
	}
	for _, s := range p.sessions {
		if !s.busy {
			s.busy = true
			s.lastUsedAt = time.Now()
			p.mu.Unlock()
			return s, nil
		}
	}
	if len(p.sessions) < p.cfg.MaxSessions {
		s, err := p.newSessionLocked()
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
		s.busy = true
		s.lastUsedAt = time.Now()
		p.sessions = append(p.sessions, s)
		p.mu.Unlock()
		return s, nil
	}
	ch := make(chan *Session, 1)
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	select {
	case s := <-ch:
		if s == nil {
			return nil, ErrPoolUnavailable
		}
		return s, nil
	case <-ctx.Done():
		p.mu.Lock()
		for i, w := range p.waiters {
			if w == ch {
				p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
				break
			}
		}
		p.mu.Unlock()
		return nil, ctx.Err()
	}
}

// newSessionLocked must be called with p.mu held.
func (p *Pool) newSessionLocked() (*Session, error) {
	send, err := p.factory()
	if err != nil {
		return nil, fmt.Errorf("llm: session init failed: %w", err)
	}
	return newSession(send), nil
}

// Release returns a session to the pool, handing it directly to the
// longest-waiting caller if one exists.
func (p *Pool) Release(s *Session) {
	p.mu.Lock()
	if len(p.waiters) > 0 {
		ch := p.waiters[0]
		p.waiters = p.waiters[1:]
		s.lastUsedAt = time.Now()
		p.mu.Unlock()
		ch <- s
		return
	}
	s.busy = false
	s.lastUsedAt = time.Now()
	p.mu.Unlock()
}

// Destroy tears a session down on fatal error; the next Acquire creates a
// fresh one. If a waiter is queued, a replacement session is created
// immediately for it so capacity is never silently lost.
func (p *Pool) Destroy(s *Session) {
	s.abort()
	p.mu.Lock()
	for i, ss := range p.sessions {
		if ss == s {
			p.sessions = append(p.sessions[:i], p.sessions[i+1:]...)
			break
		}
	}
	var waiter chan *Session
	if len(p.waiters) > 0 {
		waiter = p.waiters[0]
		p.waiters = p.waiters[1:]
	}
	p.mu.Unlock()

	if waiter == nil {
		return
	}
	ns, err := p.newSessionLocked2()
	if err != nil {
		waiter <- nil
		return
	}
	p.mu.Lock()
	ns.busy = true
	ns.lastUsedAt = time.Now()
	p.sessions = append(p.sessions, ns)
	p.mu.Unlock()
	waiter <- ns
}

func (p *Pool) newSessionLocked2() (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.newSessionLocked()
}

// AbortSession cancels an in-flight call on the named session and returns
// once it has been torn down.
func (p *Pool) AbortSession(id string) {
	p.mu.Lock()
	var target *Session
	for _, s := range p.sessions {
		if s.ID == id {
			target = s
			break
		}
	}
	p.mu.Unlock()
	if target != nil {
		p.Destroy(target)
	}
}

// Cleanup cancels every session and marks the pool unavailable until a new
// Pool is constructed. It never blocks indefinitely: waiters are woken
// with ErrPoolUnavailable immediately.
func (p *Pool) Cleanup() {
	p.mu.Lock()
	p.closed = true
	sessions := p.sessions
	p.sessions = nil
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, s := range sessions {
		s.abort()
	}
	for _, w := range waiters {
		w <- nil
	}
	close(p.reaperStop)
	<-p.reaperDone
}

func (p *Pool) reapIdleLoop() {
	defer close(p.reaperDone)
	interval := time.Duration(p.cfg.IdleTimeoutMs/2+1) * time.Millisecond
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.reaperStop:
			return
		case <-ticker.C:
			p.reapOnce()
		}
	}
}

func (p *Pool) reapOnce() {
	cutoff := time.Now().Add(-time.Duration(p.cfg.IdleTimeoutMs) * time.Millisecond)
	p.mu.Lock()
	kept := p.sessions[:0]
	var stale []*Session
	for _, s := range p.sessions {
		if !s.busy && s.lastUsedAt.Before(cutoff) {
			stale = append(stale, s)
			continue
		}
		kept = append(kept, s)
	}
	p.sessions = kept
	p.mu.Unlock()
	for _, s := range stale {
		s.abort()
	}
}

// Invoke implements Invoker by acquiring a session, issuing the prompt,
// and releasing (or destroying, on fatal error) the session back to the
// pool. A per-call timeout derived from opts.TimeoutMs bounds the whole
// acquire+send.
func (p *Pool) Invoke(ctx context.Context, prompt string, opts InvokeOptions) InvokeResult {
	if opts.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	s, err := p.Acquire(ctx)
	if err != nil {
		return InvokeResult{Success: false, Error: err.Error()}
	}

	resp, err := s.invoke(ctx, prompt, opts)
	if err != nil {
		p.Destroy(s)
		return InvokeResult{Success: false, Error: err.Error(), SessionID: s.ID}
	}
	p.Release(s)
	return InvokeResult{Success: true, Response: resp, SessionID: s.ID}
}
