package local

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

type consentSnapshot struct {
	UserID      uuid.UUID                                        `gorm:"type:uuid;primaryKey"`
	Preferences datatypes.JSONType[domain.ConsentPreferences]    `gorm:"not null"`
	History     datatypes.JSONType[[]domain.ConsentHistoryEntry] `gorm:"column:history"`
	UpdatedAt   time.Time                                        `gorm:"not null"`
}

func (consentSnapshot) TableName() string { return "consent_snapshot" }

// ConsentStore keeps the last confirmed consent state per user on device.
type ConsentStore struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConsentStore(db *gorm.DB, baseLog *logger.Logger) *ConsentStore {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &ConsentStore{db: db, log: baseLog.With("store", "ConsentSnapshot")}
}

func (s *ConsentStore) Load(ctx context.Context, userID uuid.UUID) (domain.ConsentState, bool, error) {
	var row consentSnapshot
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ConsentState{}, false, nil
	}
	if err != nil {
		return domain.ConsentState{}, false, err
	}
	return domain.ConsentState{
		Preferences: row.Preferences.Data(),
		History:     row.History.Data(),
	}, true, nil
}

func (s *ConsentStore) Save(ctx context.Context, userID uuid.UUID, state domain.ConsentState) error {
	row := consentSnapshot{
		UserID:      userID,
		Preferences: datatypes.NewJSONType(state.Preferences),
		History:     datatypes.NewJSONType(state.History),
		UpdatedAt:   time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"preferences", "history", "updated_at"}),
	}).Create(&row).Error
}
