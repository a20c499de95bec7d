package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/clients/userservice"
	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
)

func TestReadSSEFraming(t *testing.T) {
	input := ": ping\n\nevent: progress\ndata: {\"a\":\ndata: 1}\n\nevent: heartbeat\n\ndata: tail"
	type frame struct{ event, data string }
	var got []frame
	err := readSSE(strings.NewReader(input), func(event, data string) error {
		got = append(got, frame{event, data})
		return nil
	})
	if err != nil {
		t.Fatalf("readSSE: %v", err)
	}
	want := []frame{{"progress", "{\"a\":\n1}"}, {"heartbeat", ""}, {"", "tail"}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("frames: want=%v got=%v", want, got)
	}
}

func TestSSETransportStreamsEnvelopes(t *testing.T) {
	uid := uuid.New()
	payload, _ := json.Marshal(domain.Milestone{ID: "m1", Title: "First steps", Achieved: true})
	env := domain.Envelope{ID: "evt-1", Type: domain.EventMilestone, UserID: uid, Payload: payload}
	frame, _ := json.Marshal(env)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/realtime/stream" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		fmt.Fprint(w, ": connected\n\n")
		fmt.Fprint(w, "event: heartbeat\ndata: {}\n\n")
		fmt.Fprintf(w, "event: milestone\ndata: %s\n\n", frame)
		fl.Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	tr, err := NewSSETransport(SSEOptions{BaseURL: srv.URL, Tokens: userservice.StaticToken("secret")})
	if err != nil {
		t.Fatalf("NewSSETransport: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	stream, err := tr.Connect(ctx, uid)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer stream.Close()

	got, err := stream.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got.ID != "evt-1" || got.Type != domain.EventMilestone {
		t.Fatalf("envelope: got=%+v", got)
	}
	ev, err := domain.DecodeEvent(got)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if m, ok := ev.(domain.MilestoneEvent); !ok || m.Milestone.ID != "m1" {
		t.Fatalf("event: got=%#v", ev)
	}
}

func TestSSETransportRejectsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	tr, _ := NewSSETransport(SSEOptions{BaseURL: srv.URL})
	_, err := tr.Connect(context.Background(), uuid.New())
	if !apierr.IsTerminal(err) {
		t.Fatalf("Connect: want terminal error got=%v", err)
	}
}
