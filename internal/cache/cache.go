package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

var ErrClosed = errors.New("cache closed")

// Entry is one cached value. Values are shared between readers and must be
// treated as immutable; copy before modifying.
type Entry struct {
	Key        string
	Value      any
	FetchedAt  time.Time
	StaleAfter time.Time
}

func (e Entry) StaleAt(now time.Time) bool { return !now.Before(e.StaleAfter) }

type Fetcher func(ctx context.Context) (any, error)

type Options struct {
	DefaultTTL     time.Duration
	RefreshTimeout time.Duration

	// OnChange is called after every successful write, outside the lock.
	OnChange func(key string, e Entry)
	// OnRefreshError is called when a background refresh fails. The stale value
	// stays in place.
	OnRefreshError func(key string, err error)

	Now    func() time.Time
	Logger *logger.Logger
}

type Cache struct {
	mu         sync.Mutex
	entries    map[string]Entry
	gens       map[string]uint64
	refreshing map[string]struct{}
	closed     bool

	group singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	defaultTTL     time.Duration
	refreshTimeout time.Duration
	onChange       func(string, Entry)
	onRefreshError func(string, error)
	now            func() time.Time
	log            *logger.Logger
}

func New(opts Options) *Cache {
	ttl := opts.DefaultTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	rt := opts.RefreshTimeout
	if rt <= 0 {
		rt = 15 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		entries:        map[string]Entry{},
		gens:           map[string]uint64{},
		refreshing:     map[string]struct{}{},
		ctx:            ctx,
		cancel:         cancel,
		defaultTTL:     ttl,
		refreshTimeout: rt,
		onChange:       opts.OnChange,
		onRefreshError: opts.OnRefreshError,
		now:            now,
		log:            log.With("component", "cache"),
	}
}

// Key builds a cache key scoped to one user.
func Key(userID uuid.UUID, parts ...string) string {
	return UserPrefix(userID) + strings.Join(parts, ":")
}

func UserPrefix(userID uuid.UUID) string {
	return "user:" + userID.String() + ":"
}

func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *Cache) Set(key string, value any, ttl time.Duration) Entry {
	c.mu.Lock()
	e := c.setLocked(key, value, ttl)
	c.mu.Unlock()
	c.notify(key, e)
	return e
}

func (c *Cache) setLocked(key string, value any, ttl time.Duration) Entry {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := c.now()
	e := Entry{Key: key, Value: value, FetchedAt: now, StaleAfter: now.Add(ttl)}
	c.entries[key] = e
	c.gens[key]++
	return e
}

// Update is an atomic read-modify-write of one key. fn receives the current
// entry (ok=false when absent) and returns the new value and whether to write
// it. An existing entry keeps its freshness window.
func (c *Cache) Update(key string, fn func(cur Entry, ok bool) (any, bool)) (Entry, bool) {
	c.mu.Lock()
	cur, ok := c.entries[key]
	next, write := fn(cur, ok)
	if !write {
		c.mu.Unlock()
		return cur, false
	}
	var e Entry
	if ok {
		e = Entry{Key: key, Value: next, FetchedAt: cur.FetchedAt, StaleAfter: cur.StaleAfter}
		c.entries[key] = e
		c.gens[key]++
	} else {
		e = c.setLocked(key, next, 0)
	}
	c.mu.Unlock()
	c.notify(key, e)
	return e, true
}

func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
	}
	c.gens[key]++
}

// InvalidatePrefix drops every key starting with prefix and returns how many
// entries were removed.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	for k := range c.gens {
		if strings.HasPrefix(k, prefix) {
			c.gens[k]++
		}
	}
	return n
}

// ExpirePrefix marks every entry under prefix stale without dropping it, so
// the next Fetch serves the old value and refreshes it. It returns how many
// entries were expired.
func (c *Cache) ExpirePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if strings.HasPrefix(k, prefix) {
			if now.Before(e.StaleAfter) {
				e.StaleAfter = now
				c.entries[k] = e
			}
			n++
		}
	}
	return n
}

// IsStale reports true for a missing key.
func (c *Cache) IsStale(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return true
	}
	return e.StaleAt(c.now())
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Fetch serves key stale-while-revalidate. A fresh entry is returned as is. A
// stale entry is returned immediately and one background refresh is scheduled
// for the key. A miss calls fetch synchronously; concurrent misses share one
// call.
func (c *Cache) Fetch(ctx context.Context, key string, ttl time.Duration, fetch Fetcher) (any, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	e, ok := c.entries[key]
	if ok {
		if e.StaleAt(c.now()) {
			c.scheduleRefreshLocked(key, ttl, fetch)
		}
		c.mu.Unlock()
		return e.Value, nil
	}
	gen := c.gens[key]
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.load(ctx, key, gen, ttl, fetch)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Cache) scheduleRefreshLocked(key string, ttl time.Duration, fetch Fetcher) {
	if _, busy := c.refreshing[key]; busy {
		return
	}
	c.refreshing[key] = struct{}{}
	gen := c.gens[key]
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.refreshing, key)
			c.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(c.ctx, c.refreshTimeout)
		defer cancel()
		_, err, _ := c.group.Do(key, func() (any, error) {
			return c.load(ctx, key, gen, ttl, fetch)
		})
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.log.Warn("background refresh failed", "key", key, "error", err)
			if c.onRefreshError != nil {
				c.onRefreshError(key, err)
			}
		}
	}()
}

// load runs fetch and stores the result unless the key was written or
// invalidated while the fetch was in flight.
func (c *Cache) load(ctx context.Context, key string, gen uint64, ttl time.Duration, fetch Fetcher) (any, error) {
	v, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.closed || c.gens[key] != gen {
		c.mu.Unlock()
		return v, nil
	}
	e := c.setLocked(key, v, ttl)
	c.mu.Unlock()
	c.notify(key, e)
	return v, nil
}

func (c *Cache) notify(key string, e Entry) {
	if c.onChange != nil {
		c.onChange(key, e)
	}
}

// Close cancels in-flight background refreshes and waits for them to exit.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

func GetAs[T any](c *Cache, key string) (T, bool) {
	var zero T
	e, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	v, ok := e.Value.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

func FetchAs[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.Fetch(ctx, key, ttl, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache key %s holds %T", key, v)
	}
	return t, nil
}
