package consent

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

// ConsentRepo stores the append-only consent audit trail; the current
// preferences are the latest entry per consent type.
type ConsentRepo interface {
	Append(ctx context.Context, tx *gorm.DB, entry *domain.ConsentHistoryEntry) error
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*domain.ConsentHistoryEntry, error)
}

type consentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConsentRepo(db *gorm.DB, baseLog *logger.Logger) ConsentRepo {
	return &consentRepo{db: db, log: baseLog.With("repo", "ConsentRepo")}
}

func (r *consentRepo) Append(ctx context.Context, tx *gorm.DB, entry *domain.ConsentHistoryEntry) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(entry).Error
}

// ListByUser returns the history oldest first.
func (r *consentRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*domain.ConsentHistoryEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*domain.ConsentHistoryEntry
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("recorded_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Current folds a history into the latest decision per consent type.
func Current(history []*domain.ConsentHistoryEntry) domain.ConsentPreferences {
	var prefs domain.ConsentPreferences
	for _, e := range history {
		if e == nil || e.Status == domain.ConsentFailed {
			continue
		}
		prefs = prefs.With(e.ConsentType, e.Granted)
	}
	return prefs
}
