package consent

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/mutation"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

type Remote interface {
	GetConsent(ctx context.Context, userID uuid.UUID) (domain.ConsentState, error)
	RecordConsent(ctx context.Context, userID uuid.UUID, req domain.ConsentRequest) (domain.ConsentHistoryEntry, error)
}

// LocalStore persists the last confirmed consent state on device.
type LocalStore interface {
	Load(ctx context.Context, userID uuid.UUID) (domain.ConsentState, bool, error)
	Save(ctx context.Context, userID uuid.UUID, state domain.ConsentState) error
}

const DefaultLegalBasis = "consent"

type Options struct {
	UserID uuid.UUID
	Remote Remote
	Local  LocalStore

	// OnChange receives the visible state after every optimistic write,
	// confirmation, rollback and load.
	OnChange func(domain.ConsentState)

	Now    func() time.Time
	Logger *logger.Logger
}

// Manager is the per-user consent state machine. Each category moves between
// withdrawn and granted independently; a failed write rolls only that
// category back.
type Manager struct {
	userID   uuid.UUID
	remote   Remote
	local    LocalStore
	onChange func(domain.ConsentState)
	now      func() time.Time
	log      *logger.Logger

	values map[domain.ConsentType]*mutation.Value[bool]

	mu      sync.Mutex
	history []domain.ConsentHistoryEntry
}

func NewManager(opts Options) (*Manager, error) {
	if opts.UserID == uuid.Nil {
		return nil, errors.New("user id required")
	}
	if opts.Remote == nil {
		return nil, errors.New("remote required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	m := &Manager{
		userID:   opts.UserID,
		remote:   opts.Remote,
		local:    opts.Local,
		onChange: opts.OnChange,
		now:      now,
		log:      log.With("component", "consent", "user_id", opts.UserID),
		values:   make(map[domain.ConsentType]*mutation.Value[bool], len(domain.ConsentTypes)),
	}
	for _, t := range domain.ConsentTypes {
		m.values[t] = mutation.NewValue(false)
	}
	return m, nil
}

// Load restores the locally persisted state first, then replaces it with the
// server's. If the server call fails the local state stays in effect and the
// error is returned.
func (m *Manager) Load(ctx context.Context) (domain.ConsentState, error) {
	if m.local != nil {
		st, ok, err := m.local.Load(ctx, m.userID)
		if err != nil {
			m.log.Warn("local consent load failed", "error", err)
		} else if ok {
			m.reset(st)
		}
	}
	st, err := m.remote.GetConsent(ctx, m.userID)
	if err != nil {
		return m.State(), apierr.Wrap(err)
	}
	m.reset(st)
	m.persist(ctx)
	return m.State(), nil
}

func (m *Manager) reset(st domain.ConsentState) {
	for _, t := range domain.ConsentTypes {
		m.values[t].Reset(st.Preferences.Get(t))
	}
	incoming := append([]domain.ConsentHistoryEntry(nil), st.History...)
	known := make(map[uuid.UUID]struct{}, len(incoming))
	for i := range incoming {
		if incoming[i].Status == "" {
			incoming[i].Status = domain.ConsentConfirmed
		}
		known[incoming[i].ID] = struct{}{}
	}

	m.mu.Lock()
	// Keep local entries the server has not seen (pending or failed) so the
	// audit trail shows attempted changes.
	for _, e := range m.history {
		if _, ok := known[e.ID]; !ok && e.Status != domain.ConsentConfirmed {
			incoming = append(incoming, e)
		}
	}
	sort.SliceStable(incoming, func(i, j int) bool { return incoming[i].Timestamp.Before(incoming[j].Timestamp) })
	m.history = incoming
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) Grant(ctx context.Context, t domain.ConsentType, purpose string) (domain.ConsentHistoryEntry, error) {
	return m.Set(ctx, t, true, purpose)
}

func (m *Manager) Withdraw(ctx context.Context, t domain.ConsentType, purpose string) (domain.ConsentHistoryEntry, error) {
	return m.Set(ctx, t, false, purpose)
}

// Set moves category t to granted. The change is visible immediately with a
// pending history entry; the entry is sealed confirmed or failed when the
// server answers, and a failure restores the category's last confirmed value.
// Setting a category to the value it already shows is a no-op.
func (m *Manager) Set(ctx context.Context, t domain.ConsentType, granted bool, purpose string) (domain.ConsentHistoryEntry, error) {
	val, ok := m.values[t]
	if !ok {
		return domain.ConsentHistoryEntry{}, apierr.Validation("consent_type", errors.New("unknown consent type"))
	}
	req := domain.ConsentRequest{
		ConsentType: t,
		Granted:     granted,
		Purpose:     strings.TrimSpace(purpose),
		LegalBasis:  DefaultLegalBasis,
	}
	if fe := domain.ValidateStruct(req); fe != nil {
		return domain.ConsentHistoryEntry{}, apierr.Validation(fe.Field, fe)
	}
	if val.Get() == granted {
		return domain.ConsentHistoryEntry{}, nil
	}

	entry := domain.ConsentHistoryEntry{
		ID:          uuid.New(),
		UserID:      m.userID,
		ConsentType: t,
		Granted:     granted,
		Purpose:     req.Purpose,
		LegalBasis:  req.LegalBasis,
		Timestamp:   m.now().UTC(),
		Status:      domain.ConsentPending,
	}
	m.mu.Lock()
	m.history = append(m.history, entry)
	m.mu.Unlock()

	_, err := val.Apply(ctx, granted, func(ctx context.Context) (bool, error) {
		m.notify()
		if _, err := m.remote.RecordConsent(ctx, m.userID, req); err != nil {
			return false, err
		}
		return granted, nil
	})
	if err != nil {
		entry = m.seal(entry.ID, domain.ConsentFailed)
		m.log.Warn("consent change rolled back", "consent_type", t, "granted", granted, "error", err)
		m.notify()
		return entry, err
	}
	entry = m.seal(entry.ID, domain.ConsentConfirmed)
	m.persist(ctx)
	m.notify()
	return entry, nil
}

// seal moves a pending entry to its final status. Sealed entries never change.
func (m *Manager) seal(id uuid.UUID, status domain.ConsentStatus) domain.ConsentHistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.history {
		if m.history[i].ID != id {
			continue
		}
		if m.history[i].Status == domain.ConsentPending {
			m.history[i].Status = status
		}
		return m.history[i]
	}
	return domain.ConsentHistoryEntry{}
}

func (m *Manager) persist(ctx context.Context) {
	if m.local == nil {
		return
	}
	if err := m.local.Save(ctx, m.userID, m.ConfirmedState()); err != nil {
		m.log.Warn("local consent save failed", "error", err)
	}
}

func (m *Manager) notify() {
	if m.onChange != nil {
		m.onChange(m.State())
	}
}

// Preferences is the visible state including optimistic changes.
func (m *Manager) Preferences() domain.ConsentPreferences {
	var p domain.ConsentPreferences
	for _, t := range domain.ConsentTypes {
		p = p.With(t, m.values[t].Get())
	}
	return p
}

func (m *Manager) Confirmed() domain.ConsentPreferences {
	var p domain.ConsentPreferences
	for _, t := range domain.ConsentTypes {
		p = p.With(t, m.values[t].Confirmed())
	}
	return p
}

func (m *Manager) Pending(t domain.ConsentType) bool {
	v, ok := m.values[t]
	return ok && v.Pending()
}

func (m *Manager) History() []domain.ConsentHistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ConsentHistoryEntry(nil), m.history...)
}

func (m *Manager) State() domain.ConsentState {
	return domain.ConsentState{Preferences: m.Preferences(), History: m.History()}
}

// ConfirmedState is what gets persisted: confirmed values and confirmed
// history only.
func (m *Manager) ConfirmedState() domain.ConsentState {
	hist := m.History()
	out := hist[:0]
	for _, e := range hist {
		if e.Status == domain.ConsentConfirmed {
			out = append(out, e)
		}
	}
	return domain.ConsentState{Preferences: m.Confirmed(), History: out}
}
