package services

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
	"github.com/yungbote/neurobridge-sync/internal/progress"
)

// Insights are the service's authoritative predictions and recommendations.
// Users without any mastery data get a 404, which clients read as "none".
func (ps *progressService) Insights(ctx context.Context, userID uuid.UUID) (domain.ServerInsights, error) {
	s, err := ps.Summary(ctx, userID, domain.Range90d)
	if err != nil {
		return domain.ServerInsights{}, err
	}
	if len(s.TopicMasteries) == 0 {
		return domain.ServerInsights{}, apierr.New(apierr.KindNotFound, http.StatusNotFound, "not_found", errNoInsights)
	}
	now := ps.now().UTC()
	preds := progress.Predict(s, ps.strategy, nil, now)
	for i := range preds {
		preds[i].Source = domain.SourceServer
	}
	return domain.ServerInsights{
		Predictions:     preds,
		Recommendations: s.Recommendations,
		ComputedAt:      now,
	}, nil
}

var errNoInsights = errors.New("no mastery data yet")
