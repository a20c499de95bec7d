package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

var (
	ErrClosed            = errors.New("realtime channel closed")
	ErrNotConnected      = errors.New("realtime channel not connected")
	ErrOtherUserAttached = errors.New("realtime channel bound to another user")
)

type Status struct {
	State       State
	UserID      uuid.UUID
	Attempts    int
	LastError   error
	ConnectedAt time.Time
	QueueLength int
}

// Sender delivers one queued mutation to the user service.
type Sender interface {
	Send(ctx context.Context, m Mutation) error
}

type SenderFunc func(ctx context.Context, m Mutation) error

func (f SenderFunc) Send(ctx context.Context, m Mutation) error { return f(ctx, m) }

type Options struct {
	Transport Transport
	Sender    Sender
	Queue     QueueStore

	// MaxAttempts is the number of consecutive failed connects before the
	// channel gives up and goes to disconnected. 0 retries forever.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	DedupSize      int

	OnStateChange func(prev, next State)
	// OnDropped is called when a queued mutation is rejected permanently and
	// removed without being applied.
	OnDropped func(m Mutation, err error)
	// OnQueueChange is called after mutations are queued or leave the queue.
	OnQueueChange func()

	Now    func() time.Time
	Logger *logger.Logger
}

type handlerEntry struct {
	id int
	fn func(domain.Event)
}

type Channel struct {
	transport Transport
	sender    Sender
	queue     QueueStore

	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	onStateChange func(prev, next State)
	onDropped     func(Mutation, error)
	onQueueChange func()
	now           func() time.Time
	log           *logger.Logger

	seen *seenSet

	mu       sync.Mutex
	status   Status
	handlers []handlerEntry
	nextID   int
	cancel   context.CancelFunc
	gen      int
	closed   bool

	// flushMu serializes every delivery attempt, direct or queued, so writes
	// reach the sender in enqueue order.
	flushMu    sync.Mutex
	draining   bool
	drainAgain bool
	ctx        context.Context
	stop       context.CancelFunc
	wg         sync.WaitGroup
}

func NewChannel(opts Options) (*Channel, error) {
	if opts.Transport == nil {
		return nil, errors.New("transport required")
	}
	if opts.Sender == nil {
		return nil, errors.New("sender required")
	}
	q := opts.Queue
	if q == nil {
		q = NewMemoryQueue()
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	ib := opts.InitialBackoff
	if ib <= 0 {
		ib = 500 * time.Millisecond
	}
	mb := opts.MaxBackoff
	if mb <= 0 {
		mb = 30 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Channel{
		ctx:            ctx,
		stop:           stop,
		transport:      opts.Transport,
		sender:         opts.Sender,
		queue:          q,
		maxAttempts:    maxAttempts,
		initialBackoff: ib,
		maxBackoff:     mb,
		onStateChange:  opts.OnStateChange,
		onDropped:      opts.OnDropped,
		onQueueChange:  opts.OnQueueChange,
		now:            now,
		log:            log.With("component", "realtime"),
		seen:           newSeenSet(opts.DedupSize),
		status:         Status{State: StateDisconnected},
	}, nil
}

// Subscribe attaches onEvent to the user's stream, connecting on the first
// subscription. Events are delivered once per event id, in arrival order, on
// the channel's goroutine.
func (c *Channel) Subscribe(userID uuid.UUID, onEvent func(domain.Event)) (func(), error) {
	if userID == uuid.Nil {
		return nil, apierr.Validation("user_id", errors.New("user id required"))
	}
	if onEvent == nil {
		return nil, errors.New("onEvent required")
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if len(c.handlers) > 0 && c.status.UserID != userID {
		c.mu.Unlock()
		return nil, ErrOtherUserAttached
	}
	c.nextID++
	id := c.nextID
	c.handlers = append(c.handlers, handlerEntry{id: id, fn: onEvent})
	start := c.cancel == nil
	if start {
		if c.status.UserID != userID {
			c.seen.Reset()
		}
		c.status.UserID = userID
		c.status.LastError = nil
		c.status.Attempts = 0
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.gen++
		c.wg.Add(1)
		go c.run(ctx, userID, c.gen)
	}
	c.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { c.unsubscribe(id) }) }, nil
}

func (c *Channel) unsubscribe(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, h := range c.handlers {
		if h.id == id {
			c.handlers = append(c.handlers[:i], c.handlers[i+1:]...)
			break
		}
	}
	if len(c.handlers) == 0 && c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Channel) Status() Status {
	c.mu.Lock()
	st := c.status
	c.mu.Unlock()
	if n, err := c.queue.Len(context.Background()); err == nil {
		st.QueueLength = n
	}
	return st
}

// setState applies a transition from the run loop identified by gen. Loops
// that were superseded by a later Subscribe are ignored.
func (c *Channel) setState(gen int, next State, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	prev := c.status.State
	c.status.State = next
	if err != nil {
		c.status.LastError = err
	}
	if next == StateConnected {
		c.status.ConnectedAt = c.now()
		c.status.Attempts = 0
	}
	c.mu.Unlock()
	if prev == next {
		return
	}
	c.log.Debug("realtime state change", "from", prev, "to", next)
	if c.onStateChange != nil {
		c.onStateChange(prev, next)
	}
}

func (c *Channel) setAttempts(gen, n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.status.Attempts = n
	c.status.LastError = err
}

func (c *Channel) run(ctx context.Context, userID uuid.UUID, gen int) {
	defer c.wg.Done()
	defer c.setState(gen, StateDisconnected, nil)
	defer c.release(gen)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.initialBackoff
	eb.MaxInterval = c.maxBackoff

	failures := 0
	everConnected := false
	for {
		if everConnected || failures > 0 {
			c.setState(gen, StateReconnecting, nil)
		} else {
			c.setState(gen, StateConnecting, nil)
		}

		stream, err := c.transport.Connect(ctx, userID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if apierr.IsTerminal(err) {
				c.log.Warn("realtime connect rejected", "user_id", userID, "error", err)
				c.setAttempts(gen, failures+1, err)
				return
			}
			failures++
			c.setAttempts(gen, failures, err)
			if c.maxAttempts > 0 && failures >= c.maxAttempts {
				c.log.Warn("realtime retry budget exhausted", "user_id", userID, "attempts", failures, "error", err)
				return
			}
			wait := eb.NextBackOff()
			c.log.Debug("realtime connect failed", "attempt", failures, "retry_in", wait, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		failures = 0
		everConnected = true
		eb.Reset()
		c.setState(gen, StateConnected, nil)
		c.scheduleDrain()

		err = c.consume(ctx, userID, stream)
		_ = stream.Close()
		if ctx.Err() != nil {
			return
		}
		c.setAttempts(gen, 0, err)
		if apierr.IsTerminal(err) {
			return
		}
		c.log.Info("realtime stream dropped", "user_id", userID, "error", err)
	}
}

// release detaches a finished loop so a later Subscribe or Reconnect starts a
// fresh one.
func (c *Channel) release(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.gen && c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Reconnect restarts the connection loop after it gave up (retry budget
// exhausted or a terminal rejection). It is a no-op while a loop is running or
// when nothing is subscribed.
func (c *Channel) Reconnect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.cancel != nil || len(c.handlers) == 0 {
		return false
	}
	c.status.LastError = nil
	c.status.Attempts = 0
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.gen++
	c.wg.Add(1)
	go c.run(ctx, c.status.UserID, c.gen)
	return true
}

func (c *Channel) consume(ctx context.Context, userID uuid.UUID, stream Stream) error {
	for {
		env, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		if env.UserID != uuid.Nil && env.UserID != userID {
			continue
		}
		ev, err := domain.DecodeEvent(env)
		if err != nil {
			c.log.Warn("dropping undecodable event", "event_id", env.ID, "type", env.Type, "error", err)
			continue
		}
		if !c.seen.Add(ev.EventID()) {
			continue
		}
		c.deliver(ev)
	}
}

func (c *Channel) deliver(ev domain.Event) {
	c.mu.Lock()
	hs := make([]func(domain.Event), len(c.handlers))
	for i, h := range c.handlers {
		hs[i] = h.fn
	}
	c.mu.Unlock()
	for _, fn := range hs {
		fn(ev)
	}
}

// EnqueueOffline appends m to the offline queue. An empty ID is assigned.
func (c *Channel) EnqueueOffline(ctx context.Context, m Mutation) (Mutation, error) {
	m, err := c.enqueue(ctx, m)
	if err != nil {
		return m, err
	}
	c.queueChanged()
	return m, nil
}

func (c *Channel) enqueue(ctx context.Context, m Mutation) (Mutation, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.EnqueuedAt.IsZero() {
		m.EnqueuedAt = c.now().UTC()
	}
	if err := c.queue.Append(ctx, m); err != nil {
		return m, fmt.Errorf("enqueue mutation: %w", err)
	}
	return m, nil
}

// Send delivers m now when connected with an empty queue, otherwise queues it
// behind earlier writes. A transient send failure queues it as well, and the
// queue is retried with backoff while connected. queued reports whether m is
// waiting in the offline queue.
func (c *Channel) Send(ctx context.Context, m Mutation) (queued bool, err error) {
	c.flushMu.Lock()
	queued, err = c.sendLocked(ctx, m)
	c.flushMu.Unlock()
	if queued {
		c.queueChanged()
		if c.connected() {
			c.scheduleDrain()
		}
	}
	return queued, err
}

func (c *Channel) sendLocked(ctx context.Context, m Mutation) (bool, error) {
	n, err := c.queue.Len(ctx)
	if err != nil {
		return false, err
	}
	if !c.connected() || n > 0 {
		if _, err := c.enqueue(ctx, m); err != nil {
			return false, err
		}
		return true, nil
	}
	if err := c.sender.Send(ctx, m); err != nil {
		if !apierr.IsRetryable(err) {
			return false, err
		}
		c.log.Debug("direct send failed, queued", "mutation_id", m.ID, "kind", m.Kind, "error", err)
		if _, qerr := c.enqueue(ctx, m); qerr != nil {
			return false, qerr
		}
		return true, nil
	}
	return false, nil
}

func (c *Channel) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status.State == StateConnected
}

// scheduleDrain starts the background flusher unless one is running, in which
// case that one makes another pass before it exits.
func (c *Channel) scheduleDrain() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.draining {
		c.drainAgain = true
		return
	}
	c.draining = true
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			c.drain()
			c.mu.Lock()
			if !c.drainAgain || c.closed {
				c.draining = false
				c.drainAgain = false
				c.mu.Unlock()
				return
			}
			c.drainAgain = false
			c.mu.Unlock()
		}
	}()
}

// drain flushes until the queue is empty, retrying transient failures with
// backoff. It gives up on other failures, when the channel leaves connected,
// or when it closes.
func (c *Channel) drain() {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.initialBackoff
	eb.MaxInterval = c.maxBackoff
	_, err := backoff.Retry(c.ctx, func() (int, error) {
		n, err := c.FlushOfflineQueue(c.ctx)
		if err == nil {
			return n, nil
		}
		if errors.Is(err, ErrNotConnected) || c.ctx.Err() != nil || !apierr.IsRetryable(err) {
			return n, backoff.Permanent(err)
		}
		c.log.Debug("offline flush failed, retrying", "sent", n, "error", err)
		return n, err
	}, backoff.WithBackOff(eb), backoff.WithMaxElapsedTime(0))
	if err != nil && !errors.Is(err, ErrNotConnected) && c.ctx.Err() == nil {
		c.log.Warn("offline flush stopped", "error", err)
	}
}

// FlushOfflineQueue replays queued mutations oldest first. An entry is removed
// only after the sender acknowledges it. Any failure stops the flush and leaves
// that entry at the head, except validation and not-found rejections, which
// can never succeed: those entries are dropped and reported through OnDropped
// once the flush returns.
func (c *Channel) FlushOfflineQueue(ctx context.Context) (int, error) {
	c.flushMu.Lock()
	sent, dropped, err := c.flushLocked(ctx)
	c.flushMu.Unlock()

	for _, d := range dropped {
		if c.onDropped != nil {
			c.onDropped(d.m, d.err)
		}
	}
	if sent > 0 || len(dropped) > 0 {
		c.queueChanged()
	}
	return sent, err
}

type droppedMutation struct {
	m   Mutation
	err error
}

func (c *Channel) flushLocked(ctx context.Context) (sent int, dropped []droppedMutation, err error) {
	for {
		if !c.connected() {
			if sent == 0 && len(dropped) == 0 {
				return 0, nil, ErrNotConnected
			}
			return sent, dropped, nil
		}
		if err := ctx.Err(); err != nil {
			return sent, dropped, err
		}

		m, ok, err := c.queue.Peek(ctx)
		if err != nil {
			return sent, dropped, fmt.Errorf("peek queue: %w", err)
		}
		if !ok {
			return sent, dropped, nil
		}
		_ = c.queue.MarkAttempt(ctx, m.ID)
		if err := c.sender.Send(ctx, m); err != nil {
			kind := apierr.KindOf(err)
			if kind != apierr.KindValidation && kind != apierr.KindNotFound {
				return sent, dropped, err
			}
			c.log.Warn("dropping rejected mutation", "mutation_id", m.ID, "kind", m.Kind, "error", err)
			if rerr := c.queue.Remove(ctx, m.ID); rerr != nil {
				return sent, dropped, fmt.Errorf("remove rejected mutation: %w", rerr)
			}
			dropped = append(dropped, droppedMutation{m: m, err: err})
			continue
		}
		if err := c.queue.Remove(ctx, m.ID); err != nil {
			return sent, dropped, fmt.Errorf("remove sent mutation: %w", err)
		}
		sent++
	}
}

func (c *Channel) queueChanged() {
	if c.onQueueChange != nil {
		c.onQueueChange()
	}
}

func (c *Channel) PendingMutations(ctx context.Context) ([]Mutation, error) {
	return c.queue.List(ctx)
}

// Close stops the connection loop and waits for background work to finish.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.handlers = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
	c.stop()
	c.wg.Wait()
}
