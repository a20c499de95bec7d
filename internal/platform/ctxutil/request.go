package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type (
	requestDataKey struct{}
	traceKey       struct{}
)

// RequestData is the authenticated caller attached by the auth middleware.
type RequestData struct {
	TokenString string
	UserID      uuid.UUID
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		return rd
	}
	return nil
}

// Trace correlates one HTTP request across log lines, error bodies and spans.
// It lives under its own key so re-authentication does not drop it.
type Trace struct {
	RequestID string
	TraceID   string
}

func WithTrace(ctx context.Context, tr Trace) context.Context {
	return context.WithValue(ctx, traceKey{}, tr)
}

func TraceFrom(ctx context.Context) Trace {
	if ctx == nil {
		return Trace{}
	}
	tr, _ := ctx.Value(traceKey{}).(Trace)
	return tr
}

// LogFields returns the request_id, trace_id and user_id pairs known for ctx,
// ready to append to a logger call.
func LogFields(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	var out []any
	tr := TraceFrom(ctx)
	if tr.RequestID != "" {
		out = append(out, "request_id", tr.RequestID)
	}
	if tr.TraceID != "" {
		out = append(out, "trace_id", tr.TraceID)
	}
	if rd := GetRequestData(ctx); rd != nil && rd.UserID != uuid.Nil {
		out = append(out, "user_id", rd.UserID.String())
	}
	return out
}
