package realtime

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/domain"
)

// Stream is one live connection. Next blocks until an envelope arrives, the
// stream ends (io.EOF) or ctx is done.
type Stream interface {
	Next(ctx context.Context) (domain.Envelope, error)
	Close() error
}

type Transport interface {
	Connect(ctx context.Context, userID uuid.UUID) (Stream, error)
}
