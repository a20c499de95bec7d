package local

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-sync/internal/clients/realtime"
	"github.com/yungbote/neurobridge-sync/internal/domain"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

func TestQueueStorePreservesOrder(t *testing.T) {
	ctx := context.Background()
	store := NewQueueStore(testDB(t), nil)
	uid := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 10; i++ {
		m, err := realtime.NewMutation(uid, realtime.MutationRecordActivity, map[string]int{"i": i})
		if err != nil {
			t.Fatalf("NewMutation: %v", err)
		}
		m.EnqueuedAt = time.Now().UTC()
		if err := store.Append(ctx, m); err != nil {
			t.Fatalf("Append: %v", err)
		}
		ids = append(ids, m.ID)
	}

	for i, want := range ids {
		head, ok, err := store.Peek(ctx)
		if err != nil || !ok {
			t.Fatalf("Peek %d: ok=%v err=%v", i, ok, err)
		}
		if head.ID != want {
			t.Fatalf("Peek %d: want=%s got=%s", i, want, head.ID)
		}
		if err := store.Remove(ctx, head.ID); err != nil {
			t.Fatalf("Remove: %v", err)
		}
	}
	if n, _ := store.Len(ctx); n != 0 {
		t.Fatalf("Len: want=0 got=%d", n)
	}
	if _, ok, _ := store.Peek(ctx); ok {
		t.Fatalf("Peek on empty store: want ok=false")
	}
}

func TestQueueStoreMarkAttemptAndList(t *testing.T) {
	ctx := context.Background()
	store := NewQueueStore(testDB(t), nil)
	m, _ := realtime.NewMutation(uuid.New(), realtime.MutationUpdatePreferences, map[string]string{"language": "en"})
	if err := store.Append(ctx, m); err != nil {
		t.Fatalf("Append: %v", err)
	}
	_ = store.MarkAttempt(ctx, m.ID)
	_ = store.MarkAttempt(ctx, m.ID)

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Attempts != 2 {
		t.Fatalf("List: want one entry with 2 attempts got=%+v", list)
	}
	if list[0].Kind != realtime.MutationUpdatePreferences {
		t.Fatalf("Kind: want=%s got=%s", realtime.MutationUpdatePreferences, list[0].Kind)
	}
	if string(list[0].Payload) != `{"language":"en"}` {
		t.Fatalf("Payload: got=%s", list[0].Payload)
	}
}

func TestConsentStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewConsentStore(testDB(t), nil)
	uid := uuid.New()

	if _, ok, err := store.Load(ctx, uid); err != nil || ok {
		t.Fatalf("Load empty: ok=%v err=%v", ok, err)
	}

	state := domain.ConsentState{
		Preferences: domain.ConsentPreferences{Analytics: true},
		History: []domain.ConsentHistoryEntry{{
			ID: uuid.New(), UserID: uid, ConsentType: domain.ConsentAnalytics, Granted: true,
			Purpose: "usage stats", Timestamp: time.Now().UTC(), Status: domain.ConsentConfirmed,
		}},
	}
	if err := store.Save(ctx, uid, state); err != nil {
		t.Fatalf("Save: %v", err)
	}
	state.Preferences = state.Preferences.With(domain.ConsentMarketing, true)
	if err := store.Save(ctx, uid, state); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}

	got, ok, err := store.Load(ctx, uid)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if !got.Preferences.Analytics || !got.Preferences.Marketing {
		t.Fatalf("Preferences: got=%+v", got.Preferences)
	}
	if len(got.History) != 1 || got.History[0].Status != domain.ConsentConfirmed {
		t.Fatalf("History: got=%+v", got.History)
	}
}
