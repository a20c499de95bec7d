package middleware

import (
	"encoding/hex"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/neurobridge-sync/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"

	maxRequestIDLen = 64
)

// AttachTraceContext gives every request a request id and a trace id, echoes
// both as response headers and stores them for logs and error bodies.
// The server span wins over a client-supplied trace id; malformed client
// values are replaced.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		tr := ctxutil.Trace{
			RequestID: cleanRequestID(c.GetHeader(headerRequestID)),
			TraceID:   spanTraceID(c),
		}
		if tr.RequestID == "" {
			tr.RequestID = uuid.NewString()
		}
		if tr.TraceID == "" {
			tr.TraceID = cleanTraceID(c.GetHeader(headerTraceID))
		}
		if tr.TraceID == "" {
			tr.TraceID = strings.ReplaceAll(uuid.NewString(), "-", "")
		}
		c.Request = c.Request.WithContext(ctxutil.WithTrace(c.Request.Context(), tr))
		c.Writer.Header().Set(headerTraceID, tr.TraceID)
		c.Writer.Header().Set(headerRequestID, tr.RequestID)
		c.Next()
	}
}

func spanTraceID(c *gin.Context) string {
	sc := trace.SpanContextFromContext(c.Request.Context())
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// cleanTraceID accepts only the 32 hex digit W3C form.
func cleanTraceID(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if len(v) != 32 || strings.Trim(v, "0") == "" {
		return ""
	}
	if _, err := hex.DecodeString(v); err != nil {
		return ""
	}
	return v
}

func cleanRequestID(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || len(v) > maxRequestIDLen {
		return ""
	}
	for _, r := range v {
		if r < 0x21 || r > 0x7e {
			return ""
		}
	}
	return v
}
