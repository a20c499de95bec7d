package consent

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/data/repos/testutil"
	"github.com/yungbote/neurobridge-sync/internal/domain"
)

func TestConsentHistoryAndCurrent(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewConsentRepo(db, testutil.Logger(t))
	ctx := context.Background()
	uid := uuid.New()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	entries := []domain.ConsentHistoryEntry{
		{ConsentType: domain.ConsentAnalytics, Granted: true, Status: domain.ConsentConfirmed},
		{ConsentType: domain.ConsentMarketing, Granted: true, Status: domain.ConsentConfirmed},
		{ConsentType: domain.ConsentAnalytics, Granted: false, Status: domain.ConsentConfirmed},
		{ConsentType: domain.ConsentPersonalization, Granted: true, Status: domain.ConsentFailed},
	}
	for i := range entries {
		e := entries[i]
		e.ID = uuid.New()
		e.UserID = uid
		e.Purpose = "test"
		e.Timestamp = base.Add(time.Duration(i) * time.Minute)
		if err := repo.Append(ctx, tx, &e); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	history, err := repo.ListByUser(ctx, tx, uid)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("history: want=4 got=%d", len(history))
	}
	if history[0].ConsentType != domain.ConsentAnalytics || !history[0].Granted {
		t.Fatalf("history not oldest first: got=%+v", *history[0])
	}

	cur := Current(history)
	want := domain.ConsentPreferences{Marketing: true}
	if cur != want {
		t.Fatalf("Current: want=%+v got=%+v", want, cur)
	}
}
