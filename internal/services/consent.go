package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-sync/internal/data/repos"
	"github.com/yungbote/neurobridge-sync/internal/data/repos/consent"
	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

type ConsentService interface {
	Get(ctx context.Context, userID uuid.UUID) (domain.ConsentState, error)
	Record(ctx context.Context, userID uuid.UUID, req domain.ConsentRequest) (domain.ConsentHistoryEntry, error)
}

type consentService struct {
	db          *gorm.DB
	log         *logger.Logger
	consentRepo repos.ConsentRepo
	now         func() time.Time
}

func NewConsentService(db *gorm.DB, log *logger.Logger, consentRepo repos.ConsentRepo) ConsentService {
	return &consentService{db: db, log: log.With("service", "ConsentService"), consentRepo: consentRepo, now: time.Now}
}

func (s *consentService) Get(ctx context.Context, userID uuid.UUID) (domain.ConsentState, error) {
	history, err := s.consentRepo.ListByUser(ctx, nil, userID)
	if err != nil {
		return domain.ConsentState{}, repos.MapError("list consent", err)
	}
	out := domain.ConsentState{
		Preferences: consent.Current(history),
		History:     make([]domain.ConsentHistoryEntry, 0, len(history)),
	}
	for _, e := range history {
		out.History = append(out.History, *e)
	}
	return out, nil
}

// Record appends one decision to the audit trail. Every call is recorded, even
// when the decision matches the current state.
func (s *consentService) Record(ctx context.Context, userID uuid.UUID, req domain.ConsentRequest) (domain.ConsentHistoryEntry, error) {
	req.Purpose = strings.TrimSpace(req.Purpose)
	if fe := domain.ValidateStruct(req); fe != nil {
		return domain.ConsentHistoryEntry{}, apierr.Validation(fe.Field, fe)
	}
	legal := req.LegalBasis
	if legal == "" {
		legal = "consent"
	}
	entry := domain.ConsentHistoryEntry{
		ID:          uuid.New(),
		UserID:      userID,
		ConsentType: req.ConsentType,
		Granted:     req.Granted,
		Purpose:     req.Purpose,
		LegalBasis:  legal,
		Timestamp:   s.now().UTC(),
		Status:      domain.ConsentConfirmed,
	}
	if err := s.consentRepo.Append(ctx, nil, &entry); err != nil {
		return domain.ConsentHistoryEntry{}, repos.MapError("record consent", err)
	}
	s.log.Info("consent recorded", "user_id", userID.String(), "consent_type", entry.ConsentType, "granted", entry.Granted)
	return entry, nil
}
