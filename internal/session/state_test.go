package session

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/clients/realtime"
	"github.com/yungbote/neurobridge-sync/internal/domain"
)

func TestReduceDoesNotMutateInput(t *testing.T) {
	sum := domain.ProgressSummary{UserID: uuid.New(), TopicMasteries: map[string]domain.SkillMastery{"go": {Mastery: 0.3}}}
	s0 := State{Phase: PhaseIdle}
	s1 := Reduce(s0, SummaryChanged{Summary: sum})
	if s0.Summary != nil || s0.Version != 0 {
		t.Fatalf("input mutated: got=%+v", s0)
	}
	if s1.Version != 1 || s1.Summary == nil {
		t.Fatalf("next: got=%+v", s1)
	}
	// The reduced copy does not alias the action's maps.
	sum.TopicMasteries["go"] = domain.SkillMastery{Mastery: 0.9}
	if s1.Summary.TopicMasteries["go"].Mastery != 0.3 {
		t.Fatalf("summary aliased action data")
	}

	s2 := Reduce(s1, OperationFailed{Op: "preferences", Err: errors.New("x")})
	if s1.Err("preferences") != nil || s2.Err("preferences") == nil {
		t.Fatalf("errors: s1=%v s2=%v", s1.Errors, s2.Errors)
	}
	s3 := Reduce(s2, OperationSucceeded{Op: "preferences"})
	if s3.Err("preferences") != nil || s2.Err("preferences") == nil {
		t.Fatalf("clear: s2=%v s3=%v", s2.Errors, s3.Errors)
	}
}

func TestReduceLifecycle(t *testing.T) {
	s := State{Phase: PhaseIdle}
	s = Reduce(s, LoadStarted{})
	if s.Phase != PhaseLoading {
		t.Fatalf("phase: want=%s got=%s", PhaseLoading, s.Phase)
	}
	s = Reduce(s, LoadFinished{Err: errors.New("offline")})
	if s.Phase != PhaseFailed || s.Err("load") == nil {
		t.Fatalf("failed load: got=%+v", s)
	}
	s = Reduce(s, LoadFinished{})
	if s.Phase != PhaseReady || s.Err("load") != nil {
		t.Fatalf("ready: got=%+v", s)
	}
	s = Reduce(s, ConnectionChanged{State: realtime.StateConnected})
	v := s.Version
	if again := Reduce(s, ConnectionChanged{State: realtime.StateConnected}); again.Version != v {
		t.Fatalf("no-op transition bumped version")
	}
	s = Reduce(s, Closed{})
	if s.Phase != PhaseClosed || s.Connection != realtime.StateDisconnected {
		t.Fatalf("closed: got=%+v", s)
	}
}
