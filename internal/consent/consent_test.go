package consent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
)

type fakeRemote struct {
	mu      sync.Mutex
	state   domain.ConsentState
	getErr  error
	postErr error
	block   chan struct{}
	posts   []domain.ConsentRequest
}

func (f *fakeRemote) GetConsent(ctx context.Context, userID uuid.UUID) (domain.ConsentState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.getErr
}

func (f *fakeRemote) RecordConsent(ctx context.Context, userID uuid.UUID, req domain.ConsentRequest) (domain.ConsentHistoryEntry, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, req)
	if f.postErr != nil {
		return domain.ConsentHistoryEntry{}, f.postErr
	}
	return domain.ConsentHistoryEntry{ID: uuid.New(), ConsentType: req.ConsentType, Granted: req.Granted, Status: domain.ConsentConfirmed}, nil
}

type memLocal struct {
	mu     sync.Mutex
	states map[uuid.UUID]domain.ConsentState
}

func (m *memLocal) Load(ctx context.Context, userID uuid.UUID) (domain.ConsentState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[userID]
	return st, ok, nil
}

func (m *memLocal) Save(ctx context.Context, userID uuid.UUID, st domain.ConsentState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states == nil {
		m.states = map[uuid.UUID]domain.ConsentState{}
	}
	m.states[userID] = st
	return nil
}

func newManager(t *testing.T, remote Remote, local LocalStore) *Manager {
	t.Helper()
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	m, err := NewManager(Options{
		UserID: uuid.New(),
		Remote: remote,
		Local:  local,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestFailedToggleRestoresPriorValue(t *testing.T) {
	for _, ct := range domain.ConsentTypes {
		for _, initial := range []bool{false, true} {
			remote := &fakeRemote{
				state:   domain.ConsentState{Preferences: domain.ConsentPreferences{}.With(ct, initial)},
				postErr: apierr.FromStatus(503, "unavailable", nil),
			}
			m := newManager(t, remote, nil)
			if _, err := m.Load(context.Background()); err != nil {
				t.Fatalf("Load: %v", err)
			}
			before := m.Preferences()

			entry, err := m.Set(context.Background(), ct, !initial, "dashboard toggle")
			if !apierr.IsRetryable(err) {
				t.Fatalf("%s: want transient error got=%v", ct, err)
			}
			if got := m.Preferences(); got != before {
				t.Fatalf("%s from %v: want=%+v got=%+v", ct, initial, before, got)
			}
			if entry.Status != domain.ConsentFailed {
				t.Fatalf("%s: entry status want=%s got=%s", ct, domain.ConsentFailed, entry.Status)
			}
			h := m.History()
			if len(h) != 1 || h[0].Granted != !initial || h[0].Status != domain.ConsentFailed {
				t.Fatalf("%s: history got=%+v", ct, h)
			}
		}
	}
}

func TestToggleIsOptimisticThenConfirmed(t *testing.T) {
	remote := &fakeRemote{block: make(chan struct{})}
	local := &memLocal{}
	m := newManager(t, remote, local)

	done := make(chan domain.ConsentHistoryEntry, 1)
	go func() {
		e, err := m.Grant(context.Background(), domain.ConsentAnalytics, "usage analytics")
		if err != nil {
			t.Errorf("Grant: %v", err)
		}
		done <- e
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !m.Pending(domain.ConsentAnalytics) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !m.Preferences().Analytics {
		t.Fatalf("optimistic: want analytics=true before server answers")
	}
	if m.Confirmed().Analytics {
		t.Fatalf("confirmed: want analytics=false before server answers")
	}
	if h := m.History(); len(h) != 1 || h[0].Status != domain.ConsentPending {
		t.Fatalf("pending history: got=%+v", h)
	}

	close(remote.block)
	e := <-done
	if e.Status != domain.ConsentConfirmed || e.LegalBasis != DefaultLegalBasis {
		t.Fatalf("entry: got=%+v", e)
	}
	if !m.Confirmed().Analytics {
		t.Fatalf("confirmed after success: want analytics=true")
	}
	saved, ok, _ := local.Load(context.Background(), m.userID)
	if !ok || !saved.Preferences.Analytics || len(saved.History) != 1 {
		t.Fatalf("persisted: got=%+v ok=%v", saved, ok)
	}
}

func TestFailureOnlyRollsBackItsCategory(t *testing.T) {
	remote := &fakeRemote{}
	m := newManager(t, remote, nil)
	if _, err := m.Grant(context.Background(), domain.ConsentMarketing, "newsletter"); err != nil {
		t.Fatalf("Grant marketing: %v", err)
	}
	remote.postErr = errors.New("network down")
	if _, err := m.Grant(context.Background(), domain.ConsentPersonalization, "tailored lessons"); err == nil {
		t.Fatalf("Grant personalization: want error")
	}
	p := m.Preferences()
	if !p.Marketing || p.Personalization {
		t.Fatalf("preferences: want marketing only got=%+v", p)
	}
}

func TestValidationRejectsWithoutNetwork(t *testing.T) {
	remote := &fakeRemote{}
	m := newManager(t, remote, nil)
	_, err := m.Grant(context.Background(), domain.ConsentAnalytics, "  ")
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Kind != apierr.KindValidation || ae.Field != "purpose" {
		t.Fatalf("validation: want purpose field error got=%v", err)
	}
	if _, err := m.Set(context.Background(), domain.ConsentType("sms"), true, "x"); apierr.KindOf(err) != apierr.KindValidation {
		t.Fatalf("unknown type: want validation got=%v", err)
	}
	if len(remote.posts) != 0 {
		t.Fatalf("remote called %d times", len(remote.posts))
	}
	if len(m.History()) != 0 {
		t.Fatalf("history: want empty")
	}
}

func TestLoadPrefersServerAndFallsBackToLocal(t *testing.T) {
	local := &memLocal{}
	remote := &fakeRemote{getErr: apierr.Transient(errors.New("offline"))}
	m := newManager(t, remote, local)
	_ = local.Save(context.Background(), m.userID, domain.ConsentState{Preferences: domain.ConsentPreferences{ThirdPartySharing: true}})

	st, err := m.Load(context.Background())
	if err == nil {
		t.Fatalf("Load: want error when server is unreachable")
	}
	if !st.Preferences.ThirdPartySharing {
		t.Fatalf("local fallback: got=%+v", st.Preferences)
	}

	remote.getErr = nil
	remote.state = domain.ConsentState{Preferences: domain.ConsentPreferences{Analytics: true}}
	st, err = m.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.Preferences.ThirdPartySharing || !st.Preferences.Analytics {
		t.Fatalf("server state: got=%+v", st.Preferences)
	}
}

func TestSetSameValueIsNoop(t *testing.T) {
	remote := &fakeRemote{}
	m := newManager(t, remote, nil)
	if _, err := m.Withdraw(context.Background(), domain.ConsentAnalytics, "cleanup"); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if len(remote.posts) != 0 || len(m.History()) != 0 {
		t.Fatalf("no-op produced traffic or history")
	}
}
