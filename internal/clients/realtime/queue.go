package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MutationKind string

const (
	MutationRecordActivity    MutationKind = "record_activity"
	MutationUpdatePreferences MutationKind = "update_preferences"
)

// Mutation is a write waiting to reach the user service.
type Mutation struct {
	ID         uuid.UUID       `json:"id"`
	UserID     uuid.UUID       `json:"user_id"`
	Kind       MutationKind    `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Attempts   int             `json:"attempts"`
}

func NewMutation(userID uuid.UUID, kind MutationKind, payload any) (Mutation, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Mutation{}, err
	}
	return Mutation{ID: uuid.New(), UserID: userID, Kind: kind, Payload: raw}, nil
}

// QueueStore holds pending mutations in enqueue order.
type QueueStore interface {
	Append(ctx context.Context, m Mutation) error
	// Peek returns the oldest entry without removing it.
	Peek(ctx context.Context) (Mutation, bool, error)
	Remove(ctx context.Context, id uuid.UUID) error
	// MarkAttempt bumps the attempt counter of one entry.
	MarkAttempt(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]Mutation, error)
	Len(ctx context.Context) (int, error)
}

type MemoryQueue struct {
	mu    sync.Mutex
	items []Mutation
}

func NewMemoryQueue() *MemoryQueue { return &MemoryQueue{} }

func (q *MemoryQueue) Append(_ context.Context, m Mutation) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, m)
	return nil
}

func (q *MemoryQueue) Peek(_ context.Context) (Mutation, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Mutation{}, false, nil
	}
	return q.items[0], true, nil
}

func (q *MemoryQueue) Remove(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		if q.items[i].ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *MemoryQueue) MarkAttempt(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		if q.items[i].ID == id {
			q.items[i].Attempts++
			return nil
		}
	}
	return nil
}

func (q *MemoryQueue) List(_ context.Context) ([]Mutation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Mutation(nil), q.items...), nil
}

func (q *MemoryQueue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}
