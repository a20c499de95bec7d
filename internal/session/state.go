package session

import (
	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/clients/realtime"
	"github.com/yungbote/neurobridge-sync/internal/domain"
)

type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseFailed  Phase = "failed"
	PhaseClosed  Phase = "closed"
)

// State is the read model consumers render from. It is replaced, never
// mutated, on every action.
type State struct {
	UserID      uuid.UUID
	Phase       Phase
	Connection  realtime.State
	Summary     *domain.ProgressSummary
	Preferences *domain.PreferencesData
	Consent     domain.ConsentState
	Feed        []domain.ActivityRecord
	FeedHasMore bool
	Query       string
	// PendingWrites counts queued offline mutations.
	PendingWrites int
	// Errors holds the last failure per operation.
	Errors  map[string]error
	Version uint64
}

func (s State) Err(op string) error {
	return s.Errors[op]
}

// Action is a state transition. The set is closed.
type Action interface{ isAction() }

type (
	LoadStarted  struct{}
	LoadFinished struct{ Err error }

	SummaryChanged     struct{ Summary domain.ProgressSummary }
	PreferencesChanged struct{ Preferences domain.PreferencesData }
	ConsentChanged     struct{ State domain.ConsentState }
	FeedChanged        struct {
		Items   []domain.ActivityRecord
		HasMore bool
	}
	QueryChanged      struct{ Query string }
	ConnectionChanged struct{ State realtime.State }
	QueueChanged      struct{ Pending int }

	OperationFailed struct {
		Op  string
		Err error
	}
	OperationSucceeded struct{ Op string }

	Closed struct{}
)

func (LoadStarted) isAction()        {}
func (LoadFinished) isAction()       {}
func (SummaryChanged) isAction()     {}
func (PreferencesChanged) isAction() {}
func (ConsentChanged) isAction()     {}
func (FeedChanged) isAction()        {}
func (QueryChanged) isAction()       {}
func (ConnectionChanged) isAction()  {}
func (QueueChanged) isAction()       {}
func (OperationFailed) isAction()    {}
func (OperationSucceeded) isAction() {}
func (Closed) isAction()             {}

// Reduce returns the state after a. It does not modify s.
func Reduce(s State, a Action) State {
	next := s
	switch a := a.(type) {
	case LoadStarted:
		next.Phase = PhaseLoading
	case LoadFinished:
		if a.Err != nil {
			next.Phase = PhaseFailed
			next.Errors = withError(s.Errors, "load", a.Err)
		} else {
			next.Phase = PhaseReady
			next.Errors = withError(s.Errors, "load", nil)
		}
	case SummaryChanged:
		sum := a.Summary.Clone()
		next.Summary = &sum
	case PreferencesChanged:
		p := a.Preferences
		next.Preferences = &p
	case ConsentChanged:
		next.Consent = domain.ConsentState{
			Preferences: a.State.Preferences,
			History:     append([]domain.ConsentHistoryEntry(nil), a.State.History...),
		}
	case FeedChanged:
		next.Feed = append([]domain.ActivityRecord(nil), a.Items...)
		next.FeedHasMore = a.HasMore
	case QueryChanged:
		if a.Query == s.Query {
			return s
		}
		next.Query = a.Query
	case ConnectionChanged:
		if a.State == s.Connection {
			return s
		}
		next.Connection = a.State
	case QueueChanged:
		if a.Pending < 0 {
			a.Pending = 0
		}
		if a.Pending == s.PendingWrites {
			return s
		}
		next.PendingWrites = a.Pending
	case OperationFailed:
		next.Errors = withError(s.Errors, a.Op, a.Err)
	case OperationSucceeded:
		if s.Errors[a.Op] == nil {
			return s
		}
		next.Errors = withError(s.Errors, a.Op, nil)
	case Closed:
		next.Phase = PhaseClosed
		next.Connection = realtime.StateDisconnected
	default:
		return s
	}
	next.Version = s.Version + 1
	return next
}

func withError(errs map[string]error, op string, err error) map[string]error {
	if err == nil && errs[op] == nil {
		return errs
	}
	out := make(map[string]error, len(errs)+1)
	for k, v := range errs {
		out[k] = v
	}
	if err == nil {
		delete(out, op)
	} else {
		out[op] = err
	}
	return out
}
