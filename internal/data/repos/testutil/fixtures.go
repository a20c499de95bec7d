package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-sync/internal/domain"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, name, cohort string) *domain.UserProfile {
	tb.Helper()
	now := time.Now().UTC()
	u := &domain.UserProfile{
		ID:          uuid.New(),
		DisplayName: name,
		Email:       uuid.NewString() + "@example.com",
		CohortID:    cohort,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedActivity(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, typ domain.ActivityType, topic string, at time.Time) *domain.ActivityRecord {
	tb.Helper()
	rec := &domain.ActivityRecord{
		ID:         uuid.New(),
		UserID:     userID,
		Type:       typ,
		Topic:      topic,
		Timestamp:  at.UTC(),
		DurationMs: 60_000,
		CreatedAt:  at.UTC(),
	}
	if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
		tb.Fatalf("seed activity: %v", err)
	}
	return rec
}

func SeedMastery(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, topic string, mastery float64) *domain.TopicMastery {
	tb.Helper()
	row := &domain.TopicMastery{
		UserID:     userID,
		Topic:      topic,
		Mastery:    mastery,
		Confidence: 0.5,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		tb.Fatalf("seed mastery: %v", err)
	}
	return row
}
