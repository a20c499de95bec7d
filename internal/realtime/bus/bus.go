package bus

import (
	"context"

	"github.com/yungbote/neurobridge-sync/internal/realtime"
)

// Bus fans realtime messages out across server instances.
type Bus interface {
	Publish(ctx context.Context, msg realtime.Message) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error
	Ping(ctx context.Context) error
	Close() error
}
