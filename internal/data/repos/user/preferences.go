package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

type PreferencesRepo interface {
	// Get returns the stored preferences, or defaults when none were saved.
	Get(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (domain.PreferencesData, error)
	Upsert(ctx context.Context, tx *gorm.DB, userID uuid.UUID, prefs domain.PreferencesData) error
}

type preferencesRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPreferencesRepo(db *gorm.DB, baseLog *logger.Logger) PreferencesRepo {
	return &preferencesRepo{db: db, log: baseLog.With("repo", "PreferencesRepo")}
}

func (r *preferencesRepo) Get(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (domain.PreferencesData, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row domain.UserPreferences
	err := transaction.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.DefaultPreferences(), nil
	}
	if err != nil {
		return domain.PreferencesData{}, err
	}
	return row.PreferencesData, nil
}

func (r *preferencesRepo) Upsert(ctx context.Context, tx *gorm.DB, userID uuid.UUID, prefs domain.PreferencesData) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	row := domain.UserPreferences{UserID: userID, PreferencesData: prefs, UpdatedAt: time.Now().UTC()}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
}
