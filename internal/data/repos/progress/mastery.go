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

type TopicMasteryRepo interface {
	GetByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*domain.TopicMastery, error)
	GetOne(ctx context.Context, tx *gorm.DB, userID uuid.UUID, topic string) (*domain.TopicMastery, error)
	GetByUsers(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*domain.TopicMastery, error)
	Upsert(ctx context.Context, tx *gorm.DB, row *domain.TopicMastery) error
}

type topicMasteryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTopicMasteryRepo(db *gorm.DB, baseLog *logger.Logger) TopicMasteryRepo {
	return &topicMasteryRepo{db: db, log: baseLog.With("repo", "TopicMasteryRepo")}
}

func (r *topicMasteryRepo) GetByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*domain.TopicMastery, error) {
	return r.GetByUsers(ctx, tx, []uuid.UUID{userID})
}

func (r *topicMasteryRepo) GetOne(ctx context.Context, tx *gorm.DB, userID uuid.UUID, topic string) (*domain.TopicMastery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row domain.TopicMastery
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND topic = ?", userID, topic).
		Take(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *topicMasteryRepo) GetByUsers(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*domain.TopicMastery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*domain.TopicMastery
	if len(userIDs) == 0 {
		return rows, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Order("topic ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *topicMasteryRepo) Upsert(ctx context.Context, tx *gorm.DB, row *domain.TopicMastery) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil || row.UserID == uuid.Nil || row.Topic == "" {
		return nil
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "user_id"},
				{Name: "topic"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"mastery", "confidence", "practice_count", "last_practiced", "updated_at",
			}),
		}).
		Create(row).Error
}

type MasterySampleRepo interface {
	Append(ctx context.Context, tx *gorm.DB, samples []*domain.MasterySample) error
	// ListSince returns samples at or after since, oldest first; a zero since
	// returns the whole history.
	ListSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*domain.MasterySample, error)
}

type masterySampleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMasterySampleRepo(db *gorm.DB, baseLog *logger.Logger) MasterySampleRepo {
	return &masterySampleRepo{db: db, log: baseLog.With("repo", "MasterySampleRepo")}
}

func (r *masterySampleRepo) Append(ctx context.Context, tx *gorm.DB, samples []*domain.MasterySample) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(samples) == 0 {
		return nil
	}
	for _, s := range samples {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		s.At = s.At.UTC()
	}
	return transaction.WithContext(ctx).Create(&samples).Error
}

func (r *masterySampleRepo) ListSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*domain.MasterySample, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).Where("user_id = ?", userID)
	if !since.IsZero() {
		q = q.Where("sampled_at >= ?", since.UTC())
	}
	var rows []*domain.MasterySample
	if err := q.Order("sampled_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
