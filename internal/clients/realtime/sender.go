package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
)

// UserService is the subset of the user service client the sender needs.
type UserService interface {
	RecordActivity(ctx context.Context, rec domain.ActivityRecord) (domain.ActivityRecord, error)
	UpdatePreferences(ctx context.Context, userID uuid.UUID, patch domain.PreferencesPatch) (domain.PreferencesData, error)
}

// ServiceSender replays queued mutations against the user service.
type ServiceSender struct {
	svc UserService
}

func NewServiceSender(svc UserService) *ServiceSender {
	return &ServiceSender{svc: svc}
}

func (s *ServiceSender) Send(ctx context.Context, m Mutation) error {
	switch m.Kind {
	case MutationRecordActivity:
		var rec domain.ActivityRecord
		if err := json.Unmarshal(m.Payload, &rec); err != nil {
			return apierr.Validation("payload", fmt.Errorf("decode activity: %w", err))
		}
		if rec.UserID == uuid.Nil {
			rec.UserID = m.UserID
		}
		_, err := s.svc.RecordActivity(ctx, rec)
		return err
	case MutationUpdatePreferences:
		var patch domain.PreferencesPatch
		if err := json.Unmarshal(m.Payload, &patch); err != nil {
			return apierr.Validation("payload", fmt.Errorf("decode preferences: %w", err))
		}
		_, err := s.svc.UpdatePreferences(ctx, m.UserID, patch)
		return err
	default:
		return apierr.Validation("kind", fmt.Errorf("unknown mutation kind %q", m.Kind))
	}
}
