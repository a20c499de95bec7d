package async

import (
	"context"
	"sync"
	"sync/atomic"
)

// Latest hands out monotonically increasing tokens. Only the most recently
// issued token is current; results carried by older tokens are stale.
type Latest struct {
	seq atomic.Uint64
}

type Token struct {
	n      uint64
	latest *Latest
}

func (l *Latest) Begin() Token {
	return Token{n: l.seq.Add(1), latest: l}
}

func (t Token) Current() bool {
	return t.latest != nil && t.latest.seq.Load() == t.n
}

// Scope is the lifetime of a consumer (a view, a session). Results produced by
// Run are applied only while the scope is open and only for the newest Run.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc
	latest Latest

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewScope(parent context.Context) *Scope {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Scope{ctx: ctx, cancel: cancel}
}

func (s *Scope) Context() context.Context { return s.ctx }

func (s *Scope) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Run executes fetch in the background and hands its result to apply unless the
// scope closed or a newer Run superseded it meanwhile. It returns a cancel
// handle for this run.
func Run[T any](s *Scope, fetch func(ctx context.Context) (T, error), apply func(T, error)) context.CancelFunc {
	tok := s.latest.Begin()
	ctx, cancel := context.WithCancel(s.ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return cancel
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer cancel()
		v, err := fetch(ctx)
		s.mu.Lock()
		stale := s.closed || !tok.Current() || ctx.Err() != nil
		s.mu.Unlock()
		if stale {
			return
		}
		apply(v, err)
	}()
	return cancel
}

// Go runs fn in the background for the scope's lifetime. Unlike Run there is
// no newest-wins rule, so independent jobs do not supersede each other. It
// reports false when the scope is already closed.
func Go(s *Scope, fn func(ctx context.Context)) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
	return true
}

// Close cancels in-flight runs and waits for them to finish. No apply runs
// after Close returns.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}
