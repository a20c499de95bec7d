package activity

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var ErrBadCursor = errors.New("malformed cursor")

// Cursor is the position after the last row of a page in feed order.
type Cursor struct {
	Timestamp time.Time
	ID        uuid.UUID
}

func (c Cursor) Encode() string {
	raw := fmt.Sprintf("%d|%s", c.Timestamp.UTC().UnixMicro(), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(s string) (*Cursor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrBadCursor
	}
	tsPart, idPart, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, ErrBadCursor
	}
	var micros int64
	if _, err := fmt.Sscanf(tsPart, "%d", &micros); err != nil {
		return nil, ErrBadCursor
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return nil, ErrBadCursor
	}
	return &Cursor{Timestamp: time.UnixMicro(micros).UTC(), ID: id}, nil
}

type ListFilter struct {
	After *Cursor
	Limit int
	Query string
}

type ActivityRepo interface {
	Create(ctx context.Context, tx *gorm.DB, recs []*domain.ActivityRecord) ([]*domain.ActivityRecord, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.ActivityRecord, error)
	// List returns one page in feed order plus whether more rows follow.
	List(ctx context.Context, tx *gorm.DB, userID uuid.UUID, f ListFilter) ([]*domain.ActivityRecord, bool, error)
	ListBetween(ctx context.Context, tx *gorm.DB, userID uuid.UUID, start, end time.Time) ([]*domain.ActivityRecord, error)
}

type activityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewActivityRepo(db *gorm.DB, baseLog *logger.Logger) ActivityRepo {
	return &activityRepo{db: db, log: baseLog.With("repo", "ActivityRepo")}
}

func (r *activityRepo) Create(ctx context.Context, tx *gorm.DB, recs []*domain.ActivityRecord) ([]*domain.ActivityRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(recs) == 0 {
		return []*domain.ActivityRecord{}, nil
	}
	for _, rec := range recs {
		// Postgres keeps microseconds; cursors must round-trip exactly.
		rec.Timestamp = rec.Timestamp.UTC().Truncate(time.Microsecond)
		rec.CreatedAt = rec.CreatedAt.UTC().Truncate(time.Microsecond)
	}
	if err := transaction.WithContext(ctx).Create(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *activityRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.ActivityRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rec domain.ActivityRecord
	if err := transaction.WithContext(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *activityRepo) List(ctx context.Context, tx *gorm.DB, userID uuid.UUID, f ListFilter) ([]*domain.ActivityRecord, bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	q := transaction.WithContext(ctx).Model(&domain.ActivityRecord{}).Where("user_id = ?", userID)
	if f.After != nil {
		q = q.Where("(occurred_at < ?) OR (occurred_at = ? AND id < ?)", f.After.Timestamp, f.After.Timestamp, f.After.ID)
	}
	if term := strings.ToLower(strings.TrimSpace(f.Query)); term != "" {
		like := "%" + term + "%"
		q = q.Where("(LOWER(topic) LIKE ? OR LOWER(type) LIKE ?)", like, like)
	}

	var rows []*domain.ActivityRecord
	if err := q.Order("occurred_at DESC").Order("id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, false, err
	}
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	return rows, hasMore, nil
}

func (r *activityRepo) ListBetween(ctx context.Context, tx *gorm.DB, userID uuid.UUID, start, end time.Time) ([]*domain.ActivityRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*domain.ActivityRecord
	q := transaction.WithContext(ctx).Where("user_id = ?", userID)
	if !start.IsZero() {
		q = q.Where("occurred_at >= ?", start.UTC())
	}
	if !end.IsZero() {
		q = q.Where("occurred_at <= ?", end.UTC())
	}
	if err := q.Order("occurred_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
