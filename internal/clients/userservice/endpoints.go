package userservice

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
)

func userPath(userID uuid.UUID, suffix string) string {
	return "/users/" + userID.String() + suffix
}

func requireUser(userID uuid.UUID) error {
	if userID == uuid.Nil {
		return apierr.Validation("user_id", errors.New("user id required"))
	}
	return nil
}

func (c *Client) GetUser(ctx context.Context, userID uuid.UUID) (domain.UserProfile, error) {
	var out domain.UserProfile
	if err := requireUser(userID); err != nil {
		return out, err
	}
	err := c.doJSON(ctx, http.MethodGet, userPath(userID, ""), nil, nil, &out)
	return out, err
}

func (c *Client) GetProgressSummary(ctx context.Context, userID uuid.UUID, r domain.SummaryRange) (domain.ProgressSummary, error) {
	var out domain.ProgressSummary
	if err := requireUser(userID); err != nil {
		return out, err
	}
	if r == "" {
		r = domain.Range30d
	}
	q := url.Values{"range": {string(r)}}
	if err := c.doJSON(ctx, http.MethodGet, userPath(userID, "/progress-summary"), q, nil, &out); err != nil {
		return out, err
	}
	out.Normalize()
	return out, nil
}

func (c *Client) GetActivitySummary(ctx context.Context, userID uuid.UUID, dr domain.DateRange) (domain.ActivitySummary, error) {
	var out domain.ActivitySummary
	if err := requireUser(userID); err != nil {
		return out, err
	}
	if err := dr.Validate(); err != nil {
		return out, apierr.Validation("range", err)
	}
	q := url.Values{
		"start": {dr.Start.UTC().Format(time.RFC3339)},
		"end":   {dr.End.UTC().Format(time.RFC3339)},
	}
	err := c.doJSON(ctx, http.MethodGet, userPath(userID, "/activity-summary"), q, nil, &out)
	return out, err
}

type ActivityQuery struct {
	Cursor string
	Limit  int
	Search string
}

func (c *Client) ListActivities(ctx context.Context, userID uuid.UUID, q ActivityQuery) (domain.ActivityPage, error) {
	var out domain.ActivityPage
	if err := requireUser(userID); err != nil {
		return out, err
	}
	vals := url.Values{}
	if q.Cursor != "" {
		vals.Set("cursor", q.Cursor)
	}
	if q.Limit > 0 {
		vals.Set("limit", strconv.Itoa(q.Limit))
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		vals.Set("q", s)
	}
	if err := c.doJSON(ctx, http.MethodGet, userPath(userID, "/activities"), vals, nil, &out); err != nil {
		return out, err
	}
	domain.SortActivities(out.Items)
	return out, nil
}

func (c *Client) RecordActivity(ctx context.Context, rec domain.ActivityRecord) (domain.ActivityRecord, error) {
	var out domain.ActivityRecord
	if err := requireUser(rec.UserID); err != nil {
		return out, err
	}
	if !rec.Type.Known() {
		return out, apierr.Validation("activity_type", errors.New("unknown activity type"))
	}
	if rec.DurationMs < 0 {
		return out, apierr.Validation("duration_ms", errors.New("duration must be non-negative"))
	}
	err := c.doJSON(ctx, http.MethodPost, userPath(rec.UserID, "/activities"), nil, rec, &out)
	return out, err
}

func (c *Client) GetPreferences(ctx context.Context, userID uuid.UUID) (domain.PreferencesData, error) {
	var out domain.PreferencesData
	if err := requireUser(userID); err != nil {
		return out, err
	}
	err := c.doJSON(ctx, http.MethodGet, userPath(userID, "/preferences"), nil, nil, &out)
	return out, err
}

func (c *Client) UpdatePreferences(ctx context.Context, userID uuid.UUID, patch domain.PreferencesPatch) (domain.PreferencesData, error) {
	var out domain.PreferencesData
	if err := requireUser(userID); err != nil {
		return out, err
	}
	if fe := domain.ValidateStruct(patch); fe != nil {
		return out, apierr.Validation(fe.Field, fe)
	}
	err := c.doJSON(ctx, http.MethodPatch, userPath(userID, "/preferences"), nil, patch, &out)
	return out, err
}

func (c *Client) GetConsent(ctx context.Context, userID uuid.UUID) (domain.ConsentState, error) {
	var out domain.ConsentState
	if err := requireUser(userID); err != nil {
		return out, err
	}
	err := c.doJSON(ctx, http.MethodGet, userPath(userID, "/consent"), nil, nil, &out)
	return out, err
}

func (c *Client) RecordConsent(ctx context.Context, userID uuid.UUID, req domain.ConsentRequest) (domain.ConsentHistoryEntry, error) {
	var out domain.ConsentHistoryEntry
	if err := requireUser(userID); err != nil {
		return out, err
	}
	if fe := domain.ValidateStruct(req); fe != nil {
		return out, apierr.Validation(fe.Field, fe)
	}
	err := c.doJSON(ctx, http.MethodPost, userPath(userID, "/consent"), nil, req, &out)
	return out, err
}

func (c *Client) GetMilestones(ctx context.Context, userID uuid.UUID) ([]domain.Milestone, error) {
	var out []domain.Milestone
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	err := c.doJSON(ctx, http.MethodGet, userPath(userID, "/milestones"), nil, nil, &out)
	return out, err
}

func (c *Client) GetPeerStats(ctx context.Context, userID uuid.UUID) (domain.PeerStats, error) {
	var out domain.PeerStats
	if err := requireUser(userID); err != nil {
		return out, err
	}
	err := c.doJSON(ctx, http.MethodGet, userPath(userID, "/peer-stats"), nil, nil, &out)
	return out, err
}

// GetInsights fetches server-computed predictions and recommendations. A 404
// means the service has none for this user and is not an error.
func (c *Client) GetInsights(ctx context.Context, userID uuid.UUID) (domain.ServerInsights, error) {
	var out domain.ServerInsights
	if err := requireUser(userID); err != nil {
		return out, err
	}
	err := c.doJSON(ctx, http.MethodGet, userPath(userID, "/predictions"), nil, nil, &out)
	if apierr.KindOf(err) == apierr.KindNotFound {
		return domain.ServerInsights{}, nil
	}
	if err != nil {
		return out, err
	}
	for i := range out.Predictions {
		out.Predictions[i].Source = domain.SourceServer
	}
	for i := range out.Recommendations {
		out.Recommendations[i].Source = domain.SourceServer
	}
	return out, nil
}
