package realtime

import (
	"context"

	"github.com/yungbote/neurobridge-sync/internal/domain"
)

// Emitter pushes an envelope to the owning user's streams.
type Emitter interface {
	Emit(ctx context.Context, env domain.Envelope)
}

type HubEmitter struct{ Hub *Hub }

func (e *HubEmitter) Emit(_ context.Context, env domain.Envelope) {
	e.Hub.Broadcast(ForUser(env))
}

// Publisher is satisfied by bus.Bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// PublishEmitter sends through a bus; the bus forwarder broadcasts into the
// local hub, so local streams are reached the same way as remote ones. When
// publishing fails the envelope goes straight to Fallback.
type PublishEmitter struct {
	Bus      Publisher
	Fallback *Hub
}

func (e *PublishEmitter) Emit(ctx context.Context, env domain.Envelope) {
	msg := ForUser(env)
	if err := e.Bus.Publish(ctx, msg); err != nil && e.Fallback != nil {
		e.Fallback.log.Warn("bus publish failed; delivering locally", "event_id", env.ID, "error", err)
		e.Fallback.Broadcast(msg)
	}
}

// CountingEmitter reports each envelope's type to Count before passing it on.
type CountingEmitter struct {
	Next  Emitter
	Count func(t domain.EventType)
}

func (e *CountingEmitter) Emit(ctx context.Context, env domain.Envelope) {
	if e.Count != nil {
		e.Count(env.Type)
	}
	e.Next.Emit(ctx, env)
}
