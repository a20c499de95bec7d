package progress

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

type MilestoneRepo interface {
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*domain.MilestoneRecord, error)
	Upsert(ctx context.Context, tx *gorm.DB, rows []*domain.MilestoneRecord) error
}

type milestoneRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMilestoneRepo(db *gorm.DB, baseLog *logger.Logger) MilestoneRepo {
	return &milestoneRepo{db: db, log: baseLog.With("repo", "MilestoneRepo")}
}

func (r *milestoneRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*domain.MilestoneRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*domain.MilestoneRecord
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("milestone_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Upsert writes milestone state. Callers merge with MergeMilestone first, so an
// achieved row is never rewritten as unachieved.
func (r *milestoneRepo) Upsert(ctx context.Context, tx *gorm.DB, rows []*domain.MilestoneRecord) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, row := range rows {
		row.UpdatedAt = now
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "user_id"},
				{Name: "milestone_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "description", "type", "topic", "target", "value",
				"progress", "achieved", "achieved_at", "updated_at",
			}),
		}).
		Create(&rows).Error
}
