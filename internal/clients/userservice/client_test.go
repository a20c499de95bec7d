package userservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
)

func newTestClient(t *testing.T, h http.Handler, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts.BaseURL = srv.URL
	if opts.InitialBackoff == 0 {
		opts.InitialBackoff = time.Millisecond
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestGetProgressSummarySendsAuthAndRange(t *testing.T) {
	uid := uuid.New()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization: want=%q got=%q", "Bearer tok", got)
		}
		if r.URL.Path != "/api/users/"+uid.String()+"/progress-summary" {
			t.Errorf("path: got=%s", r.URL.Path)
		}
		if got := r.URL.Query().Get("range"); got != "7d" {
			t.Errorf("range: want=7d got=%s", got)
		}
		writeJSON(w, http.StatusOK, domain.ProgressSummary{
			UserID:         uid,
			OverallMastery: 1.4,
			TopicMasteries: map[string]domain.SkillMastery{"loops": {Mastery: 0.5}},
		})
	}), Options{Tokens: StaticToken("tok")})

	got, err := c.GetProgressSummary(context.Background(), uid, domain.Range7d)
	if err != nil {
		t.Fatalf("GetProgressSummary: %v", err)
	}
	if got.OverallMastery != 1 {
		t.Fatalf("OverallMastery clamped: want=1 got=%v", got.OverallMastery)
	}
	if got.TopicMasteries["loops"].Topic != "loops" {
		t.Fatalf("topic key normalized: want=loops got=%q", got.TopicMasteries["loops"].Topic)
	}
}

func TestRetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	uid := uuid.New()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": map[string]string{"message": "busy"}})
			return
		}
		writeJSON(w, http.StatusOK, domain.UserProfile{ID: uid, DisplayName: "Ada"})
	}), Options{MaxRetries: 3})

	got, err := c.GetUser(context.Background(), uid)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.DisplayName != "Ada" {
		t.Fatalf("DisplayName: want=Ada got=%s", got.DisplayName)
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("attempts: want=3 got=%d", n)
	}
}

func TestValidationErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": map[string]string{"message": "bad timezone", "code": "validation_failed", "field": "timezone"},
		})
	}), Options{MaxRetries: 3})

	tz := "Europe/Paris"
	_, err := c.UpdatePreferences(context.Background(), uuid.New(), domain.PreferencesPatch{Timezone: &tz})
	if apierr.KindOf(err) != apierr.KindValidation {
		t.Fatalf("kind: want=%s got=%s (%v)", apierr.KindValidation, apierr.KindOf(err), err)
	}
	var ae *apierr.Error
	if !asAPIErr(err, &ae) || ae.Field != "timezone" {
		t.Fatalf("field: want=timezone got=%+v", ae)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("attempts: want=1 got=%d", n)
	}
}

func TestLocalValidationSkipsNetwork(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	}), Options{})

	goal := 1
	_, err := c.UpdatePreferences(context.Background(), uuid.New(), domain.PreferencesPatch{DailyGoalMinutes: &goal})
	var ae *apierr.Error
	if !asAPIErr(err, &ae) || ae.Kind != apierr.KindValidation || ae.Field != "daily_goal_minutes" {
		t.Fatalf("local validation: want field=daily_goal_minutes got=%v", err)
	}
}

func TestUnauthorizedIsTerminal(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}), Options{MaxRetries: 2})

	_, err := c.GetPeerStats(context.Background(), uuid.New())
	if !apierr.IsTerminal(err) {
		t.Fatalf("IsTerminal: want=true got=false (%v)", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("attempts: want=1 got=%d", n)
	}
}

func TestTimeoutIsTransient(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}), Options{Timeout: 20 * time.Millisecond})

	_, err := c.GetMilestones(context.Background(), uuid.New())
	if !apierr.IsRetryable(err) {
		t.Fatalf("timeout: want transient got kind=%s (%v)", apierr.KindOf(err), err)
	}
}

func TestInsightsNotFoundIsEmpty(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}), Options{})

	got, err := c.GetInsights(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("GetInsights: %v", err)
	}
	if len(got.Predictions) != 0 {
		t.Fatalf("predictions: want=0 got=%d", len(got.Predictions))
	}
}

func TestInsightsMarkedServerSource(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.ServerInsights{
			Predictions: []domain.ProgressPrediction{{Topic: "loops", PredictedMastery: 0.8}},
		})
	}), Options{})

	got, err := c.GetInsights(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("GetInsights: %v", err)
	}
	if got.Predictions[0].Source != domain.SourceServer {
		t.Fatalf("source: want=%s got=%s", domain.SourceServer, got.Predictions[0].Source)
	}
}

func TestListActivitiesQueryAndOrder(t *testing.T) {
	older := domain.ActivityRecord{ID: uuid.New(), Type: domain.ActivityLessonViewed, Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := domain.ActivityRecord{ID: uuid.New(), Type: domain.ActivityHintUsed, Timestamp: older.Timestamp.Add(time.Hour)}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("cursor") != "abc" || q.Get("limit") != "25" || q.Get("q") != "loops" {
			t.Errorf("query: got=%s", r.URL.RawQuery)
		}
		writeJSON(w, http.StatusOK, domain.ActivityPage{Items: []domain.ActivityRecord{older, newer}, NextCursor: "def", HasMore: true})
	}), Options{})

	page, err := c.ListActivities(context.Background(), uuid.New(), ActivityQuery{Cursor: "abc", Limit: 25, Search: " loops "})
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if page.Items[0].ID != newer.ID {
		t.Fatalf("order: want newest first")
	}
	if !page.HasMore || page.NextCursor != "def" {
		t.Fatalf("page cursor: got=%+v", page)
	}
}

func TestSpanRoute(t *testing.T) {
	got := spanRoute("/users/" + uuid.NewString() + "/consent")
	if got != "/users/{id}/consent" {
		t.Fatalf("spanRoute: want=/users/{id}/consent got=%s", got)
	}
}

func asAPIErr(err error, target **apierr.Error) bool {
	ae := apierr.Wrap(err)
	if ae == nil {
		return false
	}
	*target = ae
	return true
}
