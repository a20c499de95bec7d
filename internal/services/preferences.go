package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-sync/internal/data/repos"
	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

type PreferencesService interface {
	Get(ctx context.Context, userID uuid.UUID) (domain.PreferencesData, error)
	Update(ctx context.Context, userID uuid.UUID, patch domain.PreferencesPatch) (domain.PreferencesData, error)
}

type preferencesService struct {
	db        *gorm.DB
	log       *logger.Logger
	prefsRepo repos.PreferencesRepo
}

func NewPreferencesService(db *gorm.DB, log *logger.Logger, prefsRepo repos.PreferencesRepo) PreferencesService {
	return &preferencesService{db: db, log: log.With("service", "PreferencesService"), prefsRepo: prefsRepo}
}

func (s *preferencesService) Get(ctx context.Context, userID uuid.UUID) (domain.PreferencesData, error) {
	prefs, err := s.prefsRepo.Get(ctx, nil, userID)
	if err != nil {
		return domain.PreferencesData{}, repos.MapError("get preferences", err)
	}
	return prefs, nil
}

func (s *preferencesService) Update(ctx context.Context, userID uuid.UUID, patch domain.PreferencesPatch) (domain.PreferencesData, error) {
	if fe := domain.ValidateStruct(patch); fe != nil {
		return domain.PreferencesData{}, apierr.Validation(fe.Field, fe)
	}
	if patch.Timezone != nil {
		if _, err := time.LoadLocation(*patch.Timezone); err != nil {
			return domain.PreferencesData{}, apierr.Validation("timezone", err)
		}
	}
	var out domain.PreferencesData
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := s.prefsRepo.Get(ctx, tx, userID)
		if err != nil {
			return err
		}
		out = patch.ApplyTo(cur)
		return s.prefsRepo.Upsert(ctx, tx, userID, out)
	})
	if err != nil {
		return domain.PreferencesData{}, repos.MapError("update preferences", err)
	}
	s.log.Debug("preferences updated", "user_id", userID.String())
	return out, nil
}
