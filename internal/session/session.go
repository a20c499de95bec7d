// Package session owns one signed-in learner's synced state: cached progress,
// preferences, consent, the activity feed and the realtime connection. Views
// read State snapshots and change it only through Session methods.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/neurobridge-sync/internal/cache"
	"github.com/yungbote/neurobridge-sync/internal/clients/realtime"
	"github.com/yungbote/neurobridge-sync/internal/clients/userservice"
	"github.com/yungbote/neurobridge-sync/internal/config"
	"github.com/yungbote/neurobridge-sync/internal/consent"
	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/feed"
	"github.com/yungbote/neurobridge-sync/internal/platform/async"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
	"github.com/yungbote/neurobridge-sync/internal/progress"
)

var ErrClosed = errors.New("session closed")

// UserService is the part of the user service client a session uses.
type UserService interface {
	GetProgressSummary(ctx context.Context, userID uuid.UUID, r domain.SummaryRange) (domain.ProgressSummary, error)
	ListActivities(ctx context.Context, userID uuid.UUID, q userservice.ActivityQuery) (domain.ActivityPage, error)
	RecordActivity(ctx context.Context, rec domain.ActivityRecord) (domain.ActivityRecord, error)
	GetPreferences(ctx context.Context, userID uuid.UUID) (domain.PreferencesData, error)
	UpdatePreferences(ctx context.Context, userID uuid.UUID, patch domain.PreferencesPatch) (domain.PreferencesData, error)
	GetConsent(ctx context.Context, userID uuid.UUID) (domain.ConsentState, error)
	RecordConsent(ctx context.Context, userID uuid.UUID, req domain.ConsentRequest) (domain.ConsentHistoryEntry, error)
	GetPeerStats(ctx context.Context, userID uuid.UUID) (domain.PeerStats, error)
	GetInsights(ctx context.Context, userID uuid.UUID) (domain.ServerInsights, error)
}

type Options struct {
	UserID    uuid.UUID
	Service   UserService
	Transport realtime.Transport
	// Queue defaults to an in-memory queue.
	Queue        realtime.QueueStore
	ConsentStore consent.LocalStore

	Features     config.Features
	SummaryRange domain.SummaryRange
	CacheTTL     time.Duration
	TrendEpsilon float64
	Strategy     progress.Strategy
	Recommender  progress.Recommender

	MaxReconnects  int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	SearchDebounce time.Duration
	SaveDebounce   time.Duration
	FeedPageSize   int

	Now    func() time.Time
	Logger *logger.Logger
}

type Session struct {
	userID   uuid.UUID
	svc      UserService
	features config.Features
	rng      domain.SummaryRange
	ttl      time.Duration
	now      func() time.Time
	log      *logger.Logger

	cache      *cache.Cache
	channel    *realtime.Channel
	consent    *consent.Manager
	feed       *feed.Feed
	aggregator *progress.Aggregator
	scope      *async.Scope

	search   *async.Debouncer[string]
	autosave *async.Debouncer[domain.PreferencesPatch]

	// evMu orders event application against the replay of events that
	// arrived while the summary was not cached.
	evMu  sync.Mutex
	early []domain.Event

	mu        sync.Mutex
	state     State
	listeners map[int]func(State)
	nextID    int
	unsub     func()
	started   bool
	closed    bool
	patch     domain.PreferencesPatch
}

func New(opts Options) (*Session, error) {
	if opts.UserID == uuid.Nil {
		return nil, errors.New("user id required")
	}
	if opts.Service == nil {
		return nil, errors.New("user service required")
	}
	if opts.Transport == nil {
		return nil, errors.New("realtime transport required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	rng := opts.SummaryRange
	if rng == "" {
		rng = domain.Range30d
	}
	s := &Session{
		userID:    opts.UserID,
		svc:       opts.Service,
		features:  opts.Features,
		rng:       rng,
		ttl:       opts.CacheTTL,
		now:       now,
		log:       log.With("component", "session", "user_id", opts.UserID),
		scope:     async.NewScope(context.Background()),
		listeners: map[int]func(State){},
		state: State{
			UserID:     opts.UserID,
			Phase:      PhaseIdle,
			Connection: realtime.StateDisconnected,
		},
	}

	s.cache = cache.New(cache.Options{
		DefaultTTL:     opts.CacheTTL,
		OnChange:       s.onCacheChange,
		OnRefreshError: s.onRefreshError,
		Now:            now,
		Logger:         log,
	})

	ch, err := realtime.NewChannel(realtime.Options{
		Transport:      opts.Transport,
		Sender:         realtime.NewServiceSender(opts.Service),
		Queue:          opts.Queue,
		MaxAttempts:    opts.MaxReconnects,
		InitialBackoff: opts.InitialBackoff,
		MaxBackoff:     opts.MaxBackoff,
		OnStateChange:  s.onConnectionChange,
		OnDropped:      s.onDropped,
		OnQueueChange:  s.refreshQueueLength,
		Now:            now,
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}
	s.channel = ch

	s.consent, err = consent.NewManager(consent.Options{
		UserID:   opts.UserID,
		Remote:   opts.Service,
		Local:    opts.ConsentStore,
		OnChange: func(st domain.ConsentState) { s.Dispatch(ConsentChanged{State: st}) },
		Now:      now,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}

	s.feed, err = feed.New(feed.Options{
		Fetch: func(ctx context.Context, req feed.PageRequest) (domain.ActivityPage, error) {
			return s.svc.ListActivities(ctx, s.userID, userservice.ActivityQuery{
				Cursor: req.Cursor,
				Limit:  req.Limit,
				Search: req.Query,
			})
		},
		PageSize: opts.FeedPageSize,
		OnChange: func(items []domain.ActivityRecord) {
			s.Dispatch(FeedChanged{Items: items, HasMore: s.feed.HasMore()})
		},
		Logger: log,
	})
	if err != nil {
		return nil, err
	}

	s.aggregator = progress.NewAggregator(progress.Options{
		Source:      s.snapshot,
		Strategy:    opts.Strategy,
		Recommender: opts.Recommender,
		Epsilon:     opts.TrendEpsilon,
		Now:         now,
		Logger:      log,
	})

	s.search = async.NewDebouncer(opts.SearchDebounce, s.runSearch)
	saveWait := opts.SaveDebounce
	if saveWait <= 0 {
		saveWait = time.Second
	}
	s.autosave = async.NewDebouncer(saveWait, s.runAutosave)
	return s, nil
}

func (s *Session) UserID() uuid.UUID { return s.userID }

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for every new state. The returned func removes it.
func (s *Session) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Dispatch reduces a into the session state and notifies listeners. Actions
// arriving after Close are ignored.
func (s *Session) Dispatch(a Action) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	next := Reduce(s.state, a)
	if next.Version == s.state.Version {
		s.mu.Unlock()
		return
	}
	s.state = next
	fns := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(next)
	}
}

// Start loads summary, preferences, consent and the first feed page in
// parallel, then attaches to the realtime stream. Optional dashboards load in
// the background and never fail Start.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.Dispatch(LoadStarted{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.Summary(gctx)
		return err
	})
	g.Go(func() error {
		_, err := s.Preferences(gctx)
		return err
	})
	g.Go(func() error {
		// A failed consent fetch keeps the locally persisted state.
		if _, err := s.consent.Load(gctx); err != nil {
			s.log.Warn("consent load failed", "error", err)
			s.Dispatch(OperationFailed{Op: "consent", Err: err})
		}
		return nil
	})
	g.Go(func() error {
		_, err := s.feed.LoadMore(gctx)
		return err
	})
	err := g.Wait()
	s.Dispatch(LoadFinished{Err: err})
	if err != nil {
		return err
	}

	s.loadOptional()

	unsub, err := s.channel.Subscribe(s.userID, s.applyEvent)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.unsub = unsub
	s.mu.Unlock()
	return nil
}

func (s *Session) loadOptional() {
	if s.features.PeerComparison {
		s.background("peers", func(ctx context.Context) error {
			_, err := s.PeerStats(ctx)
			return err
		})
	}
	if s.features.Predictions {
		s.background("insights", func(ctx context.Context) error {
			_, err := s.Insights(ctx)
			return err
		})
	}
}

// background runs fn for the session's lifetime and records its failure
// under op.
func (s *Session) background(op string, fn func(ctx context.Context) error) {
	async.Go(s.scope, func(ctx context.Context) {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			s.Dispatch(OperationFailed{Op: op, Err: err})
		}
	})
}

// Close tears the session down: realtime detach, pending debounced work
// dropped, background fetches canceled. No state change is published after
// Close returns.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()

	s.Dispatch(Closed{})

	s.mu.Lock()
	s.closed = true
	s.listeners = map[int]func(State){}
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	s.search.Stop()
	s.autosave.Stop()
	s.scope.Close()
	s.feed.Wait()
	s.channel.Close()
	s.cache.Close()
}

func (s *Session) Consent() *consent.Manager { return s.consent }

func (s *Session) Feed() *feed.Feed { return s.feed }

func (s *Session) Progress() *progress.Aggregator { return s.aggregator }

func (s *Session) Connection() realtime.Status { return s.channel.Status() }

// Reconnect restarts a realtime connection that gave up.
func (s *Session) Reconnect() bool { return s.channel.Reconnect() }

func (s *Session) PendingWrites(ctx context.Context) ([]realtime.Mutation, error) {
	return s.channel.PendingMutations(ctx)
}

func (s *Session) refreshQueueLength() {
	s.Dispatch(QueueChanged{Pending: s.channel.Status().QueueLength})
}

func (s *Session) onConnectionChange(prev, next realtime.State) {
	s.Dispatch(ConnectionChanged{State: next})
	if next != realtime.StateConnected {
		return
	}
	if prev == realtime.StateReconnecting {
		// Events may have been missed while the stream was down. Cached values
		// stay readable while they refresh.
		n := s.cache.ExpirePrefix(cache.UserPrefix(s.userID))
		s.log.Info("reconnected, cache expired", "entries", n)
		s.refreshAfterReconnect()
	}
	s.refreshQueueLength()
}

func (s *Session) refreshAfterReconnect() {
	s.background("summary", func(ctx context.Context) error {
		_, err := s.Summary(ctx)
		return err
	})
	s.background("preferences", func(ctx context.Context) error {
		// A queued patch is newer than anything the service holds.
		if s.preferencesQueued(ctx) {
			return nil
		}
		_, err := s.Preferences(ctx)
		return err
	})
	s.loadOptional()
}

func (s *Session) preferencesQueued(ctx context.Context) bool {
	pending, err := s.channel.PendingMutations(ctx)
	if err != nil {
		return true
	}
	for _, m := range pending {
		if m.Kind == realtime.MutationUpdatePreferences {
			return true
		}
	}
	return false
}

func (s *Session) onDropped(m realtime.Mutation, err error) {
	s.log.Warn("queued write rejected", "mutation_id", m.ID, "kind", m.Kind, "error", err)
	s.Dispatch(OperationFailed{Op: string(m.Kind), Err: err})
	if m.Kind == realtime.MutationUpdatePreferences {
		// Revert the queued patch to what the service holds.
		s.cache.Invalidate(s.preferencesKey())
		s.background("preferences", func(ctx context.Context) error {
			_, err := s.Preferences(ctx)
			return err
		})
	}
	s.refreshQueueLength()
}
