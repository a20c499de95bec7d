package user

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/data/repos/testutil"
	"github.com/yungbote/neurobridge-sync/internal/domain"
)

func TestUserRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	repo := NewUserRepo(db, testutil.Logger(t))
	ctx := context.Background()
	now := time.Now().UTC()

	created, err := repo.Create(ctx, tx, []*domain.UserProfile{
		{ID: uuid.New(), DisplayName: "Ada", Email: "userrepo@example.com", CohortID: "c1", CreatedAt: now, UpdatedAt: now},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("Create: expected 1 user, got %d", len(created))
	}

	gotByIDs, err := repo.GetByIDs(ctx, tx, []uuid.UUID{created[0].ID})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(gotByIDs) != 1 || gotByIDs[0].ID != created[0].ID {
		t.Fatalf("GetByIDs: unexpected result: %+v", gotByIDs)
	}

	gotByEmails, err := repo.GetByEmails(ctx, tx, []string{created[0].Email})
	if err != nil {
		t.Fatalf("GetByEmails: %v", err)
	}
	if len(gotByEmails) != 1 || gotByEmails[0].Email != created[0].Email {
		t.Fatalf("GetByEmails: unexpected result: %+v", gotByEmails)
	}

	testutil.SeedUser(t, ctx, tx, "Grace", "c1")
	testutil.SeedUser(t, ctx, tx, "Linus", "c2")
	cohort, err := repo.ListByCohort(ctx, tx, "c1")
	if err != nil {
		t.Fatalf("ListByCohort: %v", err)
	}
	if len(cohort) != 2 {
		t.Fatalf("ListByCohort: want=2 got=%d", len(cohort))
	}

	again := &domain.UserProfile{ID: created[0].ID, DisplayName: "renamed", CreatedAt: now, UpdatedAt: now}
	if err := repo.Ensure(ctx, tx, again); err != nil {
		t.Fatalf("Ensure existing: %v", err)
	}
	got, _ := repo.GetByIDs(ctx, tx, []uuid.UUID{created[0].ID})
	if got[0].DisplayName != "Ada" {
		t.Fatalf("Ensure overwrote profile: got=%q", got[0].DisplayName)
	}
}

func TestPreferencesRepoDefaultsAndUpsert(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewPreferencesRepo(db, testutil.Logger(t))
	ctx := context.Background()
	uid := uuid.New()

	prefs, err := repo.Get(ctx, tx, uid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if prefs != domain.DefaultPreferences() {
		t.Fatalf("Get defaults: want=%+v got=%+v", domain.DefaultPreferences(), prefs)
	}

	prefs.DashboardLayout = "compact"
	prefs.DailyGoalMinutes = 45
	if err := repo.Upsert(ctx, tx, uid, prefs); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	prefs.WeeklyDigest = false
	if err := repo.Upsert(ctx, tx, uid, prefs); err != nil {
		t.Fatalf("Upsert again: %v", err)
	}
	got, err := repo.Get(ctx, tx, uid)
	if err != nil {
		t.Fatalf("Get after upsert: %v", err)
	}
	if got != prefs {
		t.Fatalf("Get after upsert: want=%+v got=%+v", prefs, got)
	}
}
