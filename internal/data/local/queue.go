package local

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-sync/internal/clients/realtime"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

type queuedMutation struct {
	Seq        uint64         `gorm:"primaryKey;autoIncrement"`
	ID         uuid.UUID      `gorm:"type:uuid;uniqueIndex;not null"`
	UserID     uuid.UUID      `gorm:"type:uuid;index;not null"`
	Kind       string         `gorm:"not null"`
	Payload    datatypes.JSON `gorm:"not null"`
	EnqueuedAt time.Time      `gorm:"not null"`
	Attempts   int            `gorm:"not null;default:0"`
}

func (queuedMutation) TableName() string { return "offline_mutation" }

func (q queuedMutation) toMutation() realtime.Mutation {
	return realtime.Mutation{
		ID:         q.ID,
		UserID:     q.UserID,
		Kind:       realtime.MutationKind(q.Kind),
		Payload:    []byte(q.Payload),
		EnqueuedAt: q.EnqueuedAt,
		Attempts:   q.Attempts,
	}
}

// QueueStore is a durable realtime.QueueStore. Order is the insertion
// sequence, so a queue survives restarts in enqueue order.
type QueueStore struct {
	db  *gorm.DB
	log *logger.Logger
}

var _ realtime.QueueStore = (*QueueStore)(nil)

func NewQueueStore(db *gorm.DB, baseLog *logger.Logger) *QueueStore {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &QueueStore{db: db, log: baseLog.With("store", "OfflineQueue")}
}

func (s *QueueStore) Append(ctx context.Context, m realtime.Mutation) error {
	if m.ID == uuid.Nil {
		return errors.New("mutation id required")
	}
	payload := m.Payload
	if len(payload) == 0 {
		payload = []byte("null")
	}
	row := queuedMutation{
		ID:         m.ID,
		UserID:     m.UserID,
		Kind:       string(m.Kind),
		Payload:    datatypes.JSON(payload),
		EnqueuedAt: m.EnqueuedAt,
		Attempts:   m.Attempts,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *QueueStore) Peek(ctx context.Context) (realtime.Mutation, bool, error) {
	var row queuedMutation
	err := s.db.WithContext(ctx).Order("seq ASC").Limit(1).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return realtime.Mutation{}, false, nil
	}
	if err != nil {
		return realtime.Mutation{}, false, err
	}
	return row.toMutation(), true, nil
}

func (s *QueueStore) Remove(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&queuedMutation{}).Error
}

func (s *QueueStore) MarkAttempt(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&queuedMutation{}).
		Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
}

func (s *QueueStore) List(ctx context.Context) ([]realtime.Mutation, error) {
	var rows []queuedMutation
	if err := s.db.WithContext(ctx).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]realtime.Mutation, len(rows))
	for i, r := range rows {
		out[i] = r.toMutation()
	}
	return out, nil
}

func (s *QueueStore) Len(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&queuedMutation{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}
