package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", "200", time.Millisecond)
	m.APIInflightInc()
	m.IncEventEmitted("ProgressUpdate")
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("nil write: %v", err)
	}
}

func TestObserveAPIExposition(t *testing.T) {
	m := newMetrics()
	m.ObserveAPI("GET", "/api/users/:id", "200", 20*time.Millisecond)
	m.ObserveAPI("GET", "/api/users/:id", "500", 2*time.Second)
	m.IncEventEmitted("ProgressUpdate")
	m.StreamClientConnected()

	if got := m.apiErrors.Value(); got != 1 {
		t.Fatalf("server errors: want=1 got=%v", got)
	}
	if got := m.apiRequests.Value("GET", "/api/users/:id", "200"); got != 1 {
		t.Fatalf("requests 200: want=1 got=%v", got)
	}

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`# TYPE sync_api_requests_total counter`,
		`sync_api_requests_total{method="GET",route="/api/users/:id",status="500"} 1`,
		`sync_api_request_duration_seconds_bucket{method="GET",route="/api/users/:id",status="200",le="0.025"} 1`,
		`sync_api_request_duration_seconds_bucket{method="GET",route="/api/users/:id",status="500",le="+Inf"} 1`,
		`sync_realtime_events_total{type="ProgressUpdate"} 1`,
		`sync_realtime_clients 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("exposition missing %q\n%s", want, out)
		}
	}
}

func TestEscapeLabel(t *testing.T) {
	if got := labelString([]string{"q"}, []string{"a\"b\\c\nd"}); got != `{q="a\"b\\c\nd"}` {
		t.Fatalf("labelString: got=%s", got)
	}
	if got := withLe("", "1"); got != `{le="1"}` {
		t.Fatalf("withLe empty: got=%s", got)
	}
}
