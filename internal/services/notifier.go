package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
	"github.com/yungbote/neurobridge-sync/internal/realtime"
)

// ProgressNotifier pushes realtime events to a user's open streams.
type ProgressNotifier interface {
	ActivityRecorded(ctx context.Context, rec domain.ActivityRecord)
	ProgressChanged(ctx context.Context, userID uuid.UUID, p domain.ProgressPayload, at time.Time)
	MilestoneChanged(ctx context.Context, userID uuid.UUID, m domain.Milestone, at time.Time)
}

type progressNotifier struct {
	emit realtime.Emitter
	log  *logger.Logger
}

func NewProgressNotifier(emit realtime.Emitter, log *logger.Logger) ProgressNotifier {
	return &progressNotifier{emit: emit, log: log.With("service", "ProgressNotifier")}
}

func (n *progressNotifier) ActivityRecorded(ctx context.Context, rec domain.ActivityRecord) {
	if n == nil || n.emit == nil || rec.UserID == uuid.Nil {
		return
	}
	// The activity id doubles as the event id so a client can match the echo
	// of its own write.
	n.send(ctx, domain.ActivityEvent{
		EventMeta: domain.EventMeta{ID: "activity:" + rec.ID.String(), UserID: rec.UserID, OccurredAt: rec.Timestamp},
		Activity:  rec,
	})
}

func (n *progressNotifier) ProgressChanged(ctx context.Context, userID uuid.UUID, p domain.ProgressPayload, at time.Time) {
	if n == nil || n.emit == nil || userID == uuid.Nil {
		return
	}
	n.send(ctx, domain.ProgressEvent{
		EventMeta: domain.EventMeta{ID: uuid.NewString(), UserID: userID, OccurredAt: at.UTC()},
		Payload:   p,
	})
}

func (n *progressNotifier) MilestoneChanged(ctx context.Context, userID uuid.UUID, m domain.Milestone, at time.Time) {
	if n == nil || n.emit == nil || userID == uuid.Nil {
		return
	}
	n.send(ctx, domain.MilestoneEvent{
		EventMeta: domain.EventMeta{ID: uuid.NewString(), UserID: userID, OccurredAt: at.UTC()},
		Milestone: m,
	})
}

func (n *progressNotifier) send(ctx context.Context, ev domain.Event) {
	env, err := domain.EncodeEvent(ev)
	if err != nil {
		n.log.Warn("failed to encode realtime event", "event_id", ev.EventID(), "error", err)
		return
	}
	n.emit.Emit(ctx, env)
}
