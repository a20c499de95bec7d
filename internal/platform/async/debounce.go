package async

import (
	"context"
	"sync"
	"time"
)

// Debouncer collapses bursts of Trigger calls into a single execution that runs
// `wait` after the last call, with the last call's arguments. A newer execution
// cancels the context handed to an older one that is still running.
type Debouncer[T any] struct {
	wait time.Duration
	fn   func(ctx context.Context, args T)

	mu        sync.Mutex
	timer     *time.Timer
	pending   T
	hasArgs   bool
	runCancel context.CancelFunc
	stopped   bool
	wg        sync.WaitGroup
}

func NewDebouncer[T any](wait time.Duration, fn func(ctx context.Context, args T)) *Debouncer[T] {
	if wait <= 0 {
		wait = 300 * time.Millisecond
	}
	return &Debouncer[T]{wait: wait, fn: fn}
}

func (d *Debouncer[T]) Trigger(args T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending = args
	d.hasArgs = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.wait, d.fire)
}

// Flush runs the pending call now, if any.
func (d *Debouncer[T]) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	d.fire()
}

// Cancel drops the pending call and cancels a running one.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	var zero T
	d.pending = zero
	d.hasArgs = false
	if d.runCancel != nil {
		d.runCancel()
		d.runCancel = nil
	}
}

// Stop cancels everything, rejects further triggers and waits for a running
// execution to return.
func (d *Debouncer[T]) Stop() {
	d.Cancel()
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Debouncer[T]) fire() {
	d.mu.Lock()
	if !d.hasArgs || d.stopped {
		d.mu.Unlock()
		return
	}
	args := d.pending
	var zero T
	d.pending = zero
	d.hasArgs = false
	d.timer = nil
	if d.runCancel != nil {
		d.runCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.runCancel = cancel
	d.wg.Add(1)
	d.mu.Unlock()

	defer d.wg.Done()
	defer cancel()
	d.fn(ctx, args)
}
