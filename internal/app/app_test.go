package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/clients/realtime"
	"github.com/yungbote/neurobridge-sync/internal/clients/userservice"
	"github.com/yungbote/neurobridge-sync/internal/data/db"
	"github.com/yungbote/neurobridge-sync/internal/data/repos/testutil"
	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
)

func newTestApp(t *testing.T) (*App, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := Config{
		ServiceName:    "",
		JWTSecretKey:   "test-secret",
		AccessTokenTTL: time.Hour,
		DevAuth:        true,
		Heartbeat:      time.Hour,
		DB:             db.Config{SQLitePath: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())},
	}
	a, err := NewWithConfig(cfg, testutil.Logger(t))
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	srv := httptest.NewServer(a.Server.Engine)
	t.Cleanup(func() {
		srv.CloseClientConnections()
		srv.Close()
		a.Close()
	})
	return a, srv
}

type devToken struct {
	Token  string    `json:"token"`
	UserID uuid.UUID `json:"user_id"`
}

func mintToken(t *testing.T, base string, body map[string]string) devToken {
	t.Helper()
	raw, _ := json.Marshal(body)
	resp, err := http.Post(base+"/api/dev/token", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST dev token: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dev token status: want=200 got=%d", resp.StatusCode)
	}
	var out devToken
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode dev token: %v", err)
	}
	if out.Token == "" || out.UserID == uuid.Nil {
		t.Fatalf("dev token incomplete: %+v", out)
	}
	return out
}

func newClient(t *testing.T, base, token string) *userservice.Client {
	t.Helper()
	c, err := userservice.New(userservice.Options{BaseURL: base, Tokens: userservice.StaticToken(token)})
	if err != nil {
		t.Fatalf("userservice.New: %v", err)
	}
	return c
}

func TestRecordActivityReachesStreamAndFeed(t *testing.T) {
	_, srv := newTestApp(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tok := mintToken(t, srv.URL, map[string]string{"display_name": "Ada", "cohort_id": "c1"})
	client := newClient(t, srv.URL, tok.Token)

	transport, err := realtime.NewSSETransport(realtime.SSEOptions{BaseURL: srv.URL, Tokens: userservice.StaticToken(tok.Token)})
	if err != nil {
		t.Fatalf("NewSSETransport: %v", err)
	}
	stream, err := transport.Connect(ctx, tok.UserID)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer stream.Close()

	profile, err := client.GetUser(ctx, tok.UserID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if profile.DisplayName != "Ada" || profile.CohortID != "c1" {
		t.Fatalf("profile: got=%+v", profile)
	}

	now := time.Now().UTC()
	var rec domain.ActivityRecord
	for _, at := range []time.Time{now.Add(-48 * time.Hour), now.Add(-time.Minute)} {
		rec, err = client.RecordActivity(ctx, domain.ActivityRecord{
			UserID:     tok.UserID,
			Type:       domain.ActivityPracticeCompleted,
			Topic:      "go",
			Timestamp:  at,
			DurationMs: 60_000,
		})
		if err != nil {
			t.Fatalf("RecordActivity: %v", err)
		}
	}

	seen := map[domain.EventType]bool{}
	for !(seen[domain.EventActivity] && seen[domain.EventProgress]) {
		env, err := stream.Next(ctx)
		if err != nil {
			t.Fatalf("stream.Next: %v (seen=%v)", err, seen)
		}
		if env.UserID != tok.UserID {
			t.Fatalf("event for another user: %s", env.UserID)
		}
		seen[env.Type] = true
	}

	page, err := client.ListActivities(ctx, tok.UserID, userservice.ActivityQuery{Limit: 10})
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != rec.ID {
		t.Fatalf("feed: got=%+v", page.Items)
	}

	summary, err := client.GetProgressSummary(ctx, tok.UserID, domain.Range7d)
	if err != nil {
		t.Fatalf("GetProgressSummary: %v", err)
	}
	if summary.LastActivityAt == nil {
		t.Fatalf("summary missing last activity")
	}
	if _, ok := summary.TopicMasteries["go"]; !ok {
		t.Fatalf("summary missing go mastery: %+v", summary.TopicMasteries)
	}

	insights, err := client.GetInsights(ctx, tok.UserID)
	if err != nil {
		t.Fatalf("GetInsights: %v", err)
	}
	if len(insights.Predictions) == 0 {
		t.Fatalf("expected predictions after practice")
	}
}

func TestOtherUsersDataIsForbidden(t *testing.T) {
	_, srv := newTestApp(t)
	ctx := context.Background()

	alice := mintToken(t, srv.URL, map[string]string{})
	bob := mintToken(t, srv.URL, map[string]string{})
	client := newClient(t, srv.URL, alice.Token)

	_, err := client.GetPreferences(ctx, bob.UserID)
	if apierr.KindOf(err) != apierr.KindAuthorization {
		t.Fatalf("cross-user read: want authorization got=%v", err)
	}

	anon := newClient(t, srv.URL, "")
	_, err = anon.GetUser(ctx, alice.UserID)
	if apierr.KindOf(err) != apierr.KindAuthorization {
		t.Fatalf("anonymous read: want authorization got=%v", err)
	}
}

func TestPreferencesAndConsentRoundTrip(t *testing.T) {
	_, srv := newTestApp(t)
	ctx := context.Background()
	tok := mintToken(t, srv.URL, map[string]string{})
	client := newClient(t, srv.URL, tok.Token)

	prefs, err := client.GetPreferences(ctx, tok.UserID)
	if err != nil {
		t.Fatalf("GetPreferences: %v", err)
	}
	if prefs.DailyGoalMinutes != domain.DefaultPreferences().DailyGoalMinutes {
		t.Fatalf("default goal: want=%d got=%d", domain.DefaultPreferences().DailyGoalMinutes, prefs.DailyGoalMinutes)
	}
	goal := 45
	prefs, err = client.UpdatePreferences(ctx, tok.UserID, domain.PreferencesPatch{DailyGoalMinutes: &goal})
	if err != nil {
		t.Fatalf("UpdatePreferences: %v", err)
	}
	if prefs.DailyGoalMinutes != 45 {
		t.Fatalf("goal after patch: want=45 got=%d", prefs.DailyGoalMinutes)
	}
	bad := "Mars/Olympus"
	_, err = client.UpdatePreferences(ctx, tok.UserID, domain.PreferencesPatch{Timezone: &bad})
	if apierr.KindOf(err) != apierr.KindValidation {
		t.Fatalf("bad timezone: want validation got=%v", err)
	}

	entry, err := client.RecordConsent(ctx, tok.UserID, domain.ConsentRequest{
		ConsentType: domain.ConsentAnalytics,
		Granted:     true,
		Purpose:     "usage analytics",
	})
	if err != nil {
		t.Fatalf("RecordConsent: %v", err)
	}
	if entry.Status != domain.ConsentConfirmed {
		t.Fatalf("consent status: want=%s got=%s", domain.ConsentConfirmed, entry.Status)
	}
	state, err := client.GetConsent(ctx, tok.UserID)
	if err != nil {
		t.Fatalf("GetConsent: %v", err)
	}
	if !state.Preferences.Get(domain.ConsentAnalytics) || len(state.History) != 1 {
		t.Fatalf("consent state: got=%+v", state)
	}
}

func TestInsightsNotFoundIsEmpty(t *testing.T) {
	_, srv := newTestApp(t)
	tok := mintToken(t, srv.URL, map[string]string{})
	client := newClient(t, srv.URL, tok.Token)

	insights, err := client.GetInsights(context.Background(), tok.UserID)
	if err != nil {
		t.Fatalf("GetInsights: %v", err)
	}
	if len(insights.Predictions) != 0 || len(insights.Recommendations) != 0 {
		t.Fatalf("expected empty insights, got=%+v", insights)
	}
}

func TestHealthAndReady(t *testing.T) {
	_, srv := newTestApp(t)
	for _, path := range []string{"/healthcheck", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: want=200 got=%d", path, resp.StatusCode)
		}
	}
}
