package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventActivity  EventType = "activity"
	EventProgress  EventType = "progress"
	EventMilestone EventType = "milestone"
)

// Envelope is the wire shape of a realtime push.
type Envelope struct {
	ID         string          `json:"id"`
	Type       EventType       `json:"type"`
	UserID     uuid.UUID       `json:"user_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Event is one of ActivityEvent, ProgressEvent or MilestoneEvent.
type Event interface {
	EventID() string
	EventUser() uuid.UUID
	EventTime() time.Time
	isEvent()
}

type EventMeta struct {
	ID         string
	UserID     uuid.UUID
	OccurredAt time.Time
}

func (m EventMeta) EventID() string      { return m.ID }
func (m EventMeta) EventUser() uuid.UUID { return m.UserID }
func (m EventMeta) EventTime() time.Time { return m.OccurredAt }

type ActivityEvent struct {
	EventMeta
	Activity ActivityRecord
}

// ProgressEvent carries the scoring service's latest values for one topic.
type ProgressEvent struct {
	EventMeta
	Payload ProgressPayload
}

type ProgressPayload struct {
	Topic          string   `json:"topic"`
	Mastery        float64  `json:"mastery"`
	Confidence     float64  `json:"confidence"`
	PracticeCount  *int     `json:"practice_count,omitempty"`
	OverallMastery *float64 `json:"overall_mastery,omitempty"`
}

type MilestoneEvent struct {
	EventMeta
	Milestone Milestone
}

func (ActivityEvent) isEvent()  {}
func (ProgressEvent) isEvent()  {}
func (MilestoneEvent) isEvent() {}

func DecodeEvent(env Envelope) (Event, error) {
	meta := EventMeta{ID: env.ID, UserID: env.UserID, OccurredAt: env.OccurredAt}
	switch env.Type {
	case EventActivity:
		var rec ActivityRecord
		if err := json.Unmarshal(env.Payload, &rec); err != nil {
			return nil, fmt.Errorf("decode activity payload: %w", err)
		}
		if meta.OccurredAt.IsZero() {
			meta.OccurredAt = rec.Timestamp
		}
		return ActivityEvent{EventMeta: meta, Activity: rec}, nil
	case EventProgress:
		var p ProgressPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode progress payload: %w", err)
		}
		if p.Topic == "" {
			return nil, fmt.Errorf("progress payload missing topic")
		}
		return ProgressEvent{EventMeta: meta, Payload: p}, nil
	case EventMilestone:
		var m Milestone
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, fmt.Errorf("decode milestone payload: %w", err)
		}
		if m.ID == "" {
			return nil, fmt.Errorf("milestone payload missing id")
		}
		return MilestoneEvent{EventMeta: meta, Milestone: m}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}

func EncodeEvent(ev Event) (Envelope, error) {
	env := Envelope{ID: ev.EventID(), UserID: ev.EventUser(), OccurredAt: ev.EventTime()}
	var payload any
	switch e := ev.(type) {
	case ActivityEvent:
		env.Type, payload = EventActivity, e.Activity
	case ProgressEvent:
		env.Type, payload = EventProgress, e.Payload
	case MilestoneEvent:
		env.Type, payload = EventMilestone, e.Milestone
	default:
		return Envelope{}, fmt.Errorf("unsupported event %T", ev)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = raw
	return env, nil
}
