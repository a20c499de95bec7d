package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, opts Options) (*Cache, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	opts.Now = clk.Now
	c := New(opts)
	t.Cleanup(c.Close)
	return c, clk
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestFetchStaleReturnsImmediatelyAndRefreshesOnce(t *testing.T) {
	c, clk := newTestCache(t, Options{})
	c.Set("k", "old", time.Minute)
	clk.Advance(2 * time.Minute)

	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "new", nil
	}

	for i := 0; i < 5; i++ {
		v, err := c.Fetch(context.Background(), "k", time.Minute, fetch)
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if v != "old" {
			t.Fatalf("Fetch #%d: want=old got=%v", i, v)
		}
	}
	close(release)
	waitFor(t, func() bool {
		e, _ := c.Get("k")
		return e.Value == "new"
	})
	if got := calls.Load(); got != 1 {
		t.Fatalf("refetch count: want=1 got=%d", got)
	}
	if c.IsStale("k") {
		t.Fatalf("IsStale after refresh: want=false got=true")
	}
}

func TestFetchFreshDoesNotRefetch(t *testing.T) {
	c, _ := newTestCache(t, Options{})
	c.Set("k", 1, time.Minute)
	v, err := c.Fetch(context.Background(), "k", time.Minute, func(ctx context.Context) (any, error) {
		t.Fatalf("fetcher called for fresh entry")
		return nil, nil
	})
	if err != nil || v != 1 {
		t.Fatalf("Fetch: want=1 got=%v err=%v", v, err)
	}
}

func TestColdMissCoalesces(t *testing.T) {
	c, _ := newTestCache(t, Options{})
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]any, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _ := c.Fetch(context.Background(), "cold", 0, fetch)
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("fetch calls: want=1 got=%d", got)
	}
	for i, v := range results {
		if v != 42 {
			t.Fatalf("result %d: want=42 got=%v", i, v)
		}
	}
}

func TestRefreshErrorKeepsStaleValue(t *testing.T) {
	errs := make(chan error, 1)
	c, clk := newTestCache(t, Options{OnRefreshError: func(key string, err error) { errs <- err }})
	c.Set("k", "stale", time.Second)
	clk.Advance(time.Minute)

	boom := errors.New("boom")
	v, err := c.Fetch(context.Background(), "k", time.Second, func(ctx context.Context) (any, error) {
		return nil, boom
	})
	if err != nil || v != "stale" {
		t.Fatalf("Fetch: want=stale got=%v err=%v", v, err)
	}
	select {
	case got := <-errs:
		if !errors.Is(got, boom) {
			t.Fatalf("OnRefreshError: want=%v got=%v", boom, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("OnRefreshError not called")
	}
	e, ok := c.Get("k")
	if !ok || e.Value != "stale" {
		t.Fatalf("entry after failed refresh: want=stale got=%v ok=%v", e.Value, ok)
	}
}

func TestInvalidateDuringRefreshDropsResult(t *testing.T) {
	c, clk := newTestCache(t, Options{})
	c.Set("k", "old", time.Second)
	clk.Advance(time.Minute)

	started := make(chan struct{})
	release := make(chan struct{})
	_, _ = c.Fetch(context.Background(), "k", time.Second, func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return "late", nil
	})
	<-started
	c.Invalidate("k")
	close(release)

	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("entry repopulated after invalidate")
	}
}

func TestUpdateIsReadModifyWrite(t *testing.T) {
	var changes atomic.Int32
	c, _ := newTestCache(t, Options{OnChange: func(string, Entry) { changes.Add(1) }})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Update("counter", func(cur Entry, ok bool) (any, bool) {
				if !ok {
					return 1, true
				}
				return cur.Value.(int) + 1, true
			})
		}()
	}
	wg.Wait()

	v, ok := GetAs[int](c, "counter")
	if !ok || v != 50 {
		t.Fatalf("counter: want=50 got=%d", v)
	}
	if got := changes.Load(); got != 50 {
		t.Fatalf("OnChange calls: want=50 got=%d", got)
	}

	if _, wrote := c.Update("counter", func(Entry, bool) (any, bool) { return nil, false }); wrote {
		t.Fatalf("Update without write reported a write")
	}
}

func TestInvalidatePrefixScopesToUser(t *testing.T) {
	c, _ := newTestCache(t, Options{})
	a, b := uuid.New(), uuid.New()
	c.Set(Key(a, "summary", "30d"), 1, 0)
	c.Set(Key(a, "preferences"), 2, 0)
	c.Set(Key(b, "summary", "30d"), 3, 0)

	if n := c.InvalidatePrefix(UserPrefix(a)); n != 2 {
		t.Fatalf("InvalidatePrefix: want=2 got=%d", n)
	}
	if _, ok := c.Get(Key(b, "summary", "30d")); !ok {
		t.Fatalf("other user's entry was dropped")
	}
}

func TestExpirePrefixKeepsValuesAndRefreshes(t *testing.T) {
	c, _ := newTestCache(t, Options{})
	a, b := uuid.New(), uuid.New()
	c.Set(Key(a, "peers"), "old", time.Hour)
	c.Set(Key(b, "peers"), "other", time.Hour)

	if n := c.ExpirePrefix(UserPrefix(a)); n != 1 {
		t.Fatalf("ExpirePrefix: want=1 got=%d", n)
	}
	if !c.IsStale(Key(a, "peers")) {
		t.Fatalf("expired entry still fresh")
	}
	if c.IsStale(Key(b, "peers")) {
		t.Fatalf("other user's entry expired")
	}

	var calls atomic.Int32
	v, err := c.Fetch(context.Background(), Key(a, "peers"), time.Hour, func(ctx context.Context) (any, error) {
		calls.Add(1)
		return "new", nil
	})
	if err != nil || v != "old" {
		t.Fatalf("Fetch after expire: want=old got=%v err=%v", v, err)
	}
	waitFor(t, func() bool {
		e, ok := c.Get(Key(a, "peers"))
		return ok && e.Value == "new"
	})
	if calls.Load() != 1 {
		t.Fatalf("refreshes: want=1 got=%d", calls.Load())
	}
}

func TestFetchAsTypeMismatch(t *testing.T) {
	c, _ := newTestCache(t, Options{})
	c.Set("k", "text", time.Minute)
	if _, err := FetchAs[int](context.Background(), c, "k", time.Minute, func(ctx context.Context) (int, error) {
		return 0, nil
	}); err == nil {
		t.Fatalf("FetchAs: want type error got nil")
	}
}

func TestCloseCancelsRefresh(t *testing.T) {
	c, clk := newTestCache(t, Options{})
	c.Set("k", "old", time.Second)
	clk.Advance(time.Minute)

	canceled := make(chan struct{})
	_, _ = c.Fetch(context.Background(), "k", time.Second, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		close(canceled)
		return nil, ctx.Err()
	})
	c.Close()
	select {
	case <-canceled:
	default:
		t.Fatalf("refresh context not canceled by Close")
	}
	if _, err := c.Fetch(context.Background(), "k", 0, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Fetch after Close: want=%v got=%v", ErrClosed, err)
	}
}
