package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

var ErrSuperseded = errors.New("feed reset while loading")

type PageRequest struct {
	Cursor string
	Limit  int
	Query  string
}

type PageFetcher func(ctx context.Context, req PageRequest) (domain.ActivityPage, error)

type Options struct {
	Fetch    PageFetcher
	PageSize int
	// LoadAhead is how many rows before the end of the loaded list the
	// viewport may reach before the next page is requested.
	LoadAhead int
	OnChange  func(items []domain.ActivityRecord)
	Logger    *logger.Logger
}

// Feed is the user's activity list: newest first, unique by id, loaded page by
// page as the viewport approaches its end.
type Feed struct {
	fetch     PageFetcher
	pageSize  int
	loadAhead int
	onChange  func([]domain.ActivityRecord)
	log       *logger.Logger

	sf singleflight.Group
	wg sync.WaitGroup

	mu      sync.Mutex
	gen     uint64
	query   string
	items   []domain.ActivityRecord
	ids     map[uuid.UUID]struct{}
	cursor  string
	started bool
	hasMore bool
	loading bool
	lastErr error
}

func New(opts Options) (*Feed, error) {
	if opts.Fetch == nil {
		return nil, errors.New("feed: fetch required")
	}
	f := &Feed{
		fetch:     opts.Fetch,
		pageSize:  opts.PageSize,
		loadAhead: opts.LoadAhead,
		onChange:  opts.OnChange,
		log:       opts.Logger,
		ids:       map[uuid.UUID]struct{}{},
		hasMore:   true,
	}
	if f.pageSize <= 0 {
		f.pageSize = 20
	}
	if f.loadAhead <= 0 {
		f.loadAhead = 5
	}
	if f.log == nil {
		f.log = logger.Nop()
	}
	f.log = f.log.With("component", "feed")
	return f, nil
}

func (f *Feed) Items() []domain.ActivityRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ActivityRecord(nil), f.items...)
}

func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

func (f *Feed) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasMore
}

func (f *Feed) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

func (f *Feed) Query() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.query
}

// Err is the error from the most recent failed load, cleared by the next
// successful one.
func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// LoadMore fetches the next page. Calls made while a load is in flight share
// its result instead of issuing another request.
func (f *Feed) LoadMore(ctx context.Context) (int, error) {
	f.mu.Lock()
	if f.started && !f.hasMore {
		f.mu.Unlock()
		return 0, nil
	}
	gen := f.gen
	f.mu.Unlock()

	v, err, _ := f.sf.Do(fmt.Sprintf("page:%d", gen), func() (interface{}, error) {
		return f.loadPage(ctx, gen)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (f *Feed) loadPage(ctx context.Context, gen uint64) (int, error) {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return 0, ErrSuperseded
	}
	req := PageRequest{Cursor: f.cursor, Limit: f.pageSize, Query: f.query}
	f.loading = true
	f.mu.Unlock()

	page, err := f.fetch(ctx, req)

	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return 0, ErrSuperseded
	}
	f.loading = false
	if err != nil {
		f.lastErr = err
		f.mu.Unlock()
		f.log.Warn("feed page load failed", "cursor", req.Cursor, "error", err)
		return 0, err
	}
	f.lastErr = nil
	f.started = true
	f.cursor = page.NextCursor
	f.hasMore = page.HasMore && page.NextCursor != ""
	added := f.insertLocked(page.Items)
	snapshot := f.snapshotLocked(added > 0)
	f.mu.Unlock()

	f.notify(snapshot)
	return added, nil
}

// Prepend adds a realtime activity. It reports false for an id already in
// the list.
func (f *Feed) Prepend(rec domain.ActivityRecord) bool {
	f.mu.Lock()
	added := f.insertLocked([]domain.ActivityRecord{rec}) > 0
	snapshot := f.snapshotLocked(added)
	f.mu.Unlock()
	f.notify(snapshot)
	return added
}

// Remove drops the activity with id, e.g. after its write was rejected.
func (f *Feed) Remove(id uuid.UUID) bool {
	f.mu.Lock()
	removed := false
	if _, ok := f.ids[id]; ok {
		delete(f.ids, id)
		for i := range f.items {
			if f.items[i].ID == id {
				f.items = append(f.items[:i], f.items[i+1:]...)
				removed = true
				break
			}
		}
	}
	snapshot := f.snapshotLocked(removed)
	f.mu.Unlock()
	f.notify(snapshot)
	return removed
}

// Reset clears the list for a new search query. Loads started before the reset
// are discarded when they return.
func (f *Feed) Reset(query string) {
	f.mu.Lock()
	f.gen++
	f.query = query
	f.items = nil
	f.ids = map[uuid.UUID]struct{}{}
	f.cursor = ""
	f.started = false
	f.hasMore = true
	f.loading = false
	f.lastErr = nil
	snapshot := f.snapshotLocked(true)
	f.mu.Unlock()
	f.notify(snapshot)
}

// OnViewport requests the next page in the background once the rendered
// window comes within LoadAhead rows of the end. It reports whether a load
// was started.
func (f *Feed) OnViewport(ctx context.Context, w Window) bool {
	f.mu.Lock()
	near := w.End >= len(f.items)-f.loadAhead
	trigger := near && f.hasMore && !f.loading && f.lastErr == nil
	f.mu.Unlock()
	if !trigger {
		return false
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		if _, err := f.LoadMore(ctx); err != nil && !errors.Is(err, ErrSuperseded) && ctx.Err() == nil {
			f.log.Debug("viewport load failed", "error", err)
		}
	}()
	return true
}

// Wait blocks until background loads started by OnViewport have returned.
func (f *Feed) Wait() {
	f.wg.Wait()
}

func (f *Feed) insertLocked(recs []domain.ActivityRecord) int {
	added := 0
	for _, r := range recs {
		if r.ID == uuid.Nil {
			continue
		}
		if _, dup := f.ids[r.ID]; dup {
			continue
		}
		f.ids[r.ID] = struct{}{}
		i := sort.Search(len(f.items), func(i int) bool { return r.NewerThan(f.items[i]) })
		f.items = append(f.items, domain.ActivityRecord{})
		copy(f.items[i+1:], f.items[i:])
		f.items[i] = r
		added++
	}
	return added
}

func (f *Feed) snapshotLocked(changed bool) []domain.ActivityRecord {
	if !changed || f.onChange == nil {
		return nil
	}
	return append([]domain.ActivityRecord{}, f.items...)
}

func (f *Feed) notify(items []domain.ActivityRecord) {
	if items != nil && f.onChange != nil {
		f.onChange(items)
	}
}
