// Package mutation implements optimistic writes: apply locally, confirm with
// the server, roll back on failure.
package mutation

import (
	"context"
	"sync"

	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
)

// Value holds a value with an optimistic overlay. Current is what readers
// see; Confirmed is the last value the server accepted.
type Value[T any] struct {
	mu        sync.Mutex
	confirmed T
	current   T
	version   uint64
	inFlight  int
}

func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{confirmed: initial, current: initial}
}

func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

func (v *Value[T]) Confirmed() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.confirmed
}

func (v *Value[T]) Pending() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.inFlight > 0
}

// Reset replaces both layers, e.g. after loading authoritative state. Writes
// still in flight no longer own the current value.
func (v *Value[T]) Reset(confirmed T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.confirmed = confirmed
	v.current = confirmed
	v.version++
}

// Apply sets current to next immediately, then runs remote. On success the
// remote result becomes confirmed (and current, unless a newer Apply has
// since taken over). On failure current rolls back to the last confirmed
// value, again only if no newer Apply owns it, and the error is returned
// typed.
func (v *Value[T]) Apply(ctx context.Context, next T, remote func(ctx context.Context) (T, error)) (T, error) {
	v.mu.Lock()
	v.version++
	mine := v.version
	v.current = next
	v.inFlight++
	v.mu.Unlock()

	res, err := remote(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.inFlight--
	if err != nil {
		if v.version == mine {
			v.current = v.confirmed
		}
		return v.current, apierr.Wrap(err)
	}
	v.confirmed = res
	if v.version == mine {
		v.current = res
	}
	return res, nil
}

// Store is a get/set pair over externally owned state, such as a cache entry.
type Store[T any] interface {
	Load() (T, bool)
	Store(T)
	Delete()
}

// Apply writes next to s, runs remote and on failure restores the snapshot
// taken before the write. On success the remote result is stored.
func Apply[T any](ctx context.Context, s Store[T], next T, remote func(ctx context.Context) (T, error)) (T, error) {
	prev, had := s.Load()
	s.Store(next)
	res, err := remote(ctx)
	if err != nil {
		if had {
			s.Store(prev)
		} else {
			s.Delete()
		}
		return prev, apierr.Wrap(err)
	}
	s.Store(res)
	return res, nil
}
