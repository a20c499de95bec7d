package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-sync/internal/platform/ctxutil"
)

func TestAttachTraceContext(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	const validTrace = "4bf92f3577b34da6a3ce929d0e0e4736"
	cases := []struct {
		name        string
		requestID   string
		traceID     string
		wantRequest string
		wantTrace   string
	}{
		{"client ids kept", "req-1", validTrace, "req-1", validTrace},
		{"trace id lowercased", "req-2", strings.ToUpper(validTrace), "req-2", validTrace},
		{"malformed trace replaced", "req-3", "not-a-trace", "req-3", ""},
		{"zero trace replaced", "req-4", strings.Repeat("0", 32), "req-4", ""},
		{"oversized request id replaced", strings.Repeat("x", 65), validTrace, "", validTrace},
		{"request id with spaces replaced", "a b", validTrace, "", validTrace},
		{"nothing supplied", "", "", "", ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var seen ctxutil.Trace
			r := gin.New()
			r.Use(AttachTraceContext())
			r.GET("/x", func(c *gin.Context) {
				seen = ctxutil.TraceFrom(c.Request.Context())
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tc.requestID != "" {
				req.Header.Set(headerRequestID, tc.requestID)
			}
			if tc.traceID != "" {
				req.Header.Set(headerTraceID, tc.traceID)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if seen.RequestID == "" || seen.TraceID == "" {
				t.Fatalf("trace not attached: %+v", seen)
			}
			if tc.wantRequest != "" && seen.RequestID != tc.wantRequest {
				t.Fatalf("request id: want=%q got=%q", tc.wantRequest, seen.RequestID)
			}
			if tc.wantRequest == "" && seen.RequestID == tc.requestID {
				t.Fatalf("request id %q should have been replaced", tc.requestID)
			}
			if tc.wantTrace != "" && seen.TraceID != tc.wantTrace {
				t.Fatalf("trace id: want=%q got=%q", tc.wantTrace, seen.TraceID)
			}
			if tc.wantTrace == "" && len(cleanTraceID(seen.TraceID)) != 32 {
				t.Fatalf("generated trace id not W3C form: %q", seen.TraceID)
			}
			if got := rec.Header().Get(headerRequestID); got != seen.RequestID {
				t.Fatalf("request id header: want=%q got=%q", seen.RequestID, got)
			}
			if got := rec.Header().Get(headerTraceID); got != seen.TraceID {
				t.Fatalf("trace id header: want=%q got=%q", seen.TraceID, got)
			}
		})
	}
}
