package services

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-sync/internal/data/repos"
	"github.com/yungbote/neurobridge-sync/internal/data/repos/activity"
	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

const topTopicsLimit = 5

type ActivityQuery struct {
	Cursor string
	Limit  int
	Query  string
}

type ActivityService interface {
	// Record stores an activity and publishes its effects. Replaying an id that
	// is already stored returns the stored row without publishing again.
	Record(ctx context.Context, rec domain.ActivityRecord) (domain.ActivityRecord, error)
	List(ctx context.Context, userID uuid.UUID, q ActivityQuery) (domain.ActivityPage, error)
	Summarize(ctx context.Context, userID uuid.UUID, r domain.DateRange) (domain.ActivitySummary, error)
}

type activityService struct {
	db         *gorm.DB
	log        *logger.Logger
	activities repos.ActivityRepo
	progress   ProgressService
	now        func() time.Time
}

func NewActivityService(db *gorm.DB, log *logger.Logger, activities repos.ActivityRepo, progress ProgressService) ActivityService {
	return &activityService{
		db:         db,
		log:        log.With("service", "ActivityService"),
		activities: activities,
		progress:   progress,
		now:        time.Now,
	}
}

func (s *activityService) Record(ctx context.Context, rec domain.ActivityRecord) (domain.ActivityRecord, error) {
	if rec.UserID == uuid.Nil {
		return rec, apierr.Validation("user_id", errors.New("user id required"))
	}
	if !rec.Type.Known() {
		return rec, apierr.Validation("activity_type", errors.New("unknown activity type"))
	}
	if rec.DurationMs < 0 {
		return rec, apierr.Validation("duration_ms", errors.New("duration must be non-negative"))
	}
	now := s.now().UTC()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now
	}
	if rec.Timestamp.After(now.Add(5 * time.Minute)) {
		return rec, apierr.Validation("timestamp", errors.New("timestamp is in the future"))
	}
	rec.CreatedAt = now

	var (
		fx       Effects
		existing *domain.ActivityRecord
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prev, err := s.activities.GetByID(ctx, tx, rec.ID)
		switch {
		case err == nil:
			existing = prev
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		created, err := s.activities.Create(ctx, tx, []*domain.ActivityRecord{&rec})
		if err != nil {
			return err
		}
		rec = *created[0]
		fx, err = s.progress.Observe(ctx, tx, rec)
		return err
	})
	if err != nil {
		return domain.ActivityRecord{}, repos.MapError("record activity", err)
	}
	if existing != nil {
		if existing.UserID != rec.UserID {
			return domain.ActivityRecord{}, apierr.New(apierr.KindValidation, http.StatusConflict, "conflict", errors.New("activity id already used"))
		}
		s.log.Debug("activity replayed", "activity_id", existing.ID.String())
		return *existing, nil
	}
	s.progress.Publish(ctx, rec, fx)
	return rec, nil
}

func (s *activityService) List(ctx context.Context, userID uuid.UUID, q ActivityQuery) (domain.ActivityPage, error) {
	after, err := activity.DecodeCursor(q.Cursor)
	if err != nil {
		return domain.ActivityPage{}, apierr.Validation("cursor", err)
	}
	if q.Limit < 0 || q.Limit > activity.MaxLimit {
		return domain.ActivityPage{}, apierr.Validation("limit", errors.New("limit must be between 1 and 100"))
	}
	rows, more, err := s.activities.List(ctx, nil, userID, activity.ListFilter{After: after, Limit: q.Limit, Query: q.Query})
	if err != nil {
		return domain.ActivityPage{}, repos.MapError("list activities", err)
	}
	page := domain.ActivityPage{Items: make([]domain.ActivityRecord, 0, len(rows)), HasMore: more}
	for _, r := range rows {
		page.Items = append(page.Items, *r)
	}
	if more && len(rows) > 0 {
		last := rows[len(rows)-1]
		page.NextCursor = activity.Cursor{Timestamp: last.Timestamp, ID: last.ID}.Encode()
	}
	return page, nil
}

func (s *activityService) Summarize(ctx context.Context, userID uuid.UUID, r domain.DateRange) (domain.ActivitySummary, error) {
	if err := r.Validate(); err != nil {
		return domain.ActivitySummary{}, apierr.Validation("range", err)
	}
	rows, err := s.activities.ListBetween(ctx, nil, userID, r.Start, r.End)
	if err != nil {
		return domain.ActivitySummary{}, repos.MapError("summarize activities", err)
	}
	return summarizeActivities(userID, r, rows), nil
}

func summarizeActivities(userID uuid.UUID, r domain.DateRange, rows []*domain.ActivityRecord) domain.ActivitySummary {
	out := domain.ActivitySummary{
		UserID:    userID,
		Start:     r.Start.UTC(),
		End:       r.End.UTC(),
		ByType:    map[domain.ActivityType]int{},
		TopTopics: []domain.TopicCount{},
	}
	days := map[time.Time]bool{}
	topics := map[string]int{}
	for _, a := range rows {
		out.TotalActivities++
		out.TotalDurationMs += a.DurationMs
		out.ByType[a.Type]++
		days[dayOf(a.Timestamp)] = true
		if a.Topic != "" {
			topics[a.Topic]++
		}
	}
	out.ActiveDays = len(days)
	for t, n := range topics {
		out.TopTopics = append(out.TopTopics, domain.TopicCount{Topic: t, Count: n})
	}
	sort.Slice(out.TopTopics, func(i, j int) bool {
		if out.TopTopics[i].Count != out.TopTopics[j].Count {
			return out.TopTopics[i].Count > out.TopTopics[j].Count
		}
		return out.TopTopics[i].Topic < out.TopTopics[j].Topic
	})
	if len(out.TopTopics) > topTopicsLimit {
		out.TopTopics = out.TopTopics[:topTopicsLimit]
	}
	return out
}
