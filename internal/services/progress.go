package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-sync/internal/data/repos"
	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
	"github.com/yungbote/neurobridge-sync/internal/progress"
)

type ProgressService interface {
	Summary(ctx context.Context, userID uuid.UUID, rng domain.SummaryRange) (domain.ProgressSummary, error)
	Milestones(ctx context.Context, userID uuid.UUID) ([]domain.Milestone, error)
	PeerStats(ctx context.Context, userID uuid.UUID) (domain.PeerStats, error)
	Insights(ctx context.Context, userID uuid.UUID) (domain.ServerInsights, error)
	// Observe folds a newly stored activity into mastery and milestones inside
	// tx. The returned effects are published once tx commits.
	Observe(ctx context.Context, tx *gorm.DB, rec domain.ActivityRecord) (Effects, error)
	Publish(ctx context.Context, rec domain.ActivityRecord, fx Effects)
}

// Effects are the realtime consequences of one recorded activity.
type Effects struct {
	Progress   *domain.ProgressPayload
	Milestones []domain.Milestone
	At         time.Time
}

type progressService struct {
	db          *gorm.DB
	log         *logger.Logger
	userRepo    repos.UserRepo
	activities  repos.ActivityRepo
	masteries   repos.TopicMasteryRepo
	samples     repos.MasterySampleRepo
	milestones  repos.MilestoneRepo
	notifier    ProgressNotifier
	recommender progress.Recommender
	strategy    progress.Strategy
	now         func() time.Time
}

func NewProgressService(
	db *gorm.DB,
	log *logger.Logger,
	userRepo repos.UserRepo,
	activities repos.ActivityRepo,
	masteries repos.TopicMasteryRepo,
	samples repos.MasterySampleRepo,
	milestones repos.MilestoneRepo,
	notifier ProgressNotifier,
) ProgressService {
	return &progressService{
		db:          db,
		log:         log.With("service", "ProgressService"),
		userRepo:    userRepo,
		activities:  activities,
		masteries:   masteries,
		samples:     samples,
		milestones:  milestones,
		notifier:    notifier,
		recommender: progress.DefaultRecommender(),
		strategy:    progress.DefaultStrategy(),
		now:         time.Now,
	}
}

func (ps *progressService) Summary(ctx context.Context, userID uuid.UUID, rng domain.SummaryRange) (domain.ProgressSummary, error) {
	now := ps.now().UTC()
	var since time.Time
	if d := rng.Days(); d > 0 {
		since = now.AddDate(0, 0, -d)
	}
	acts, err := ps.activities.ListBetween(ctx, nil, userID, time.Time{}, time.Time{})
	if err != nil {
		return domain.ProgressSummary{}, repos.MapError("list activities", err)
	}
	rows, err := ps.masteries.GetByUser(ctx, nil, userID)
	if err != nil {
		return domain.ProgressSummary{}, repos.MapError("list mastery", err)
	}
	samples, err := ps.samples.ListSince(ctx, nil, userID, since)
	if err != nil {
		return domain.ProgressSummary{}, repos.MapError("list mastery history", err)
	}
	stored, err := ps.milestones.ListByUser(ctx, nil, userID)
	if err != nil {
		return domain.ProgressSummary{}, repos.MapError("list milestones", err)
	}
	s := buildSummary(userID, acts, rows, samples, stored, since, now)
	trends := progress.ComputeTrends(s, domain.LastDays(now, 30), progress.DefaultEpsilon)
	s.Recommendations = asServer(ps.recommender.Recommend(s, trends, now))
	return s, nil
}

// buildSummary derives a summary from stored rows. Streaks and weekly totals
// replay the full activity log; weekly points and history are then trimmed to
// the requested window.
func buildSummary(
	userID uuid.UUID,
	acts []*domain.ActivityRecord,
	rows []*domain.TopicMastery,
	samples []*domain.MasterySample,
	stored []*domain.MilestoneRecord,
	since, now time.Time,
) domain.ProgressSummary {
	s := domain.ProgressSummary{UserID: userID, TopicMasteries: map[string]domain.SkillMastery{}}
	for _, a := range acts {
		if a == nil {
			continue
		}
		s, _ = progress.ApplyEvent(s, domain.ActivityEvent{
			EventMeta: domain.EventMeta{ID: a.ID.String(), UserID: userID, OccurredAt: a.Timestamp},
			Activity:  *a,
		})
	}
	if s.LastActivityAt != nil {
		gap := dayOf(now).Sub(dayOf(*s.LastActivityAt)).Hours() / 24
		if gap > 1 {
			s.ConsecutiveDays = 0
		}
	}

	s.TopicMasteries = make(map[string]domain.SkillMastery, len(rows))
	for _, r := range rows {
		s.TopicMasteries[r.Topic] = r.Skill()
	}
	s.RecomputeOverall()

	s.MasteryHistory = map[string][]domain.MasteryPoint{}
	weekSum := map[time.Time][2]float64{}
	for _, p := range samples {
		s.MasteryHistory[p.Topic] = append(s.MasteryHistory[p.Topic], domain.MasteryPoint{At: p.At.UTC(), Mastery: p.Mastery})
		w := domain.WeekStart(p.At)
		acc := weekSum[w]
		weekSum[w] = [2]float64{acc[0] + p.Mastery, acc[1] + 1}
	}
	weeks := s.WeeklyProgress[:0]
	carry := 0.0
	for _, w := range s.WeeklyProgress {
		if acc, ok := weekSum[w.WeekStart]; ok && acc[1] > 0 {
			carry = acc[0] / acc[1]
		}
		w.Mastery = carry
		if since.IsZero() || !w.WeekStart.Before(domain.WeekStart(since)) {
			weeks = append(weeks, w)
		}
	}
	s.WeeklyProgress = weeks

	s.Milestones = make([]domain.Milestone, 0, len(stored))
	for _, m := range stored {
		s.Milestones = append(s.Milestones, m.Milestone())
	}
	s.UpdatedAt = now
	s.Normalize()
	return s
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func asServer(recs []domain.Recommendation) []domain.Recommendation {
	for i := range recs {
		recs[i].Source = domain.SourceServer
	}
	return recs
}

func (ps *progressService) Milestones(ctx context.Context, userID uuid.UUID) ([]domain.Milestone, error) {
	rows, err := ps.milestones.ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, repos.MapError("list milestones", err)
	}
	out := make([]domain.Milestone, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Milestone())
	}
	return out, nil
}

func (ps *progressService) PeerStats(ctx context.Context, userID uuid.UUID) (domain.PeerStats, error) {
	users, err := ps.userRepo.GetByIDs(ctx, nil, []uuid.UUID{userID})
	if err != nil {
		return domain.PeerStats{}, repos.MapError("get user", err)
	}
	if len(users) == 0 {
		return domain.PeerStats{}, apierr.New(apierr.KindNotFound, http.StatusNotFound, "not_found", errors.New("user not found"))
	}
	out := domain.PeerStats{
		CohortID:         users[0].CohortID,
		OverallMasteries: []float64{},
		TopicMasteries:   map[string][]float64{},
		ComputedAt:       ps.now().UTC(),
	}
	if out.CohortID == "" {
		return out, nil
	}
	members, err := ps.userRepo.ListByCohort(ctx, nil, out.CohortID)
	if err != nil {
		return domain.PeerStats{}, repos.MapError("list cohort", err)
	}
	peerIDs := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		if m.ID != userID {
			peerIDs = append(peerIDs, m.ID)
		}
	}
	rows, err := ps.masteries.GetByUsers(ctx, nil, peerIDs)
	if err != nil {
		return domain.PeerStats{}, repos.MapError("list cohort mastery", err)
	}
	perUser := map[uuid.UUID][]float64{}
	for _, r := range rows {
		m := domain.Clamp01(r.Mastery)
		perUser[r.UserID] = append(perUser[r.UserID], m)
		out.TopicMasteries[r.Topic] = append(out.TopicMasteries[r.Topic], m)
	}
	for _, id := range peerIDs {
		vals := perUser[id]
		if len(vals) == 0 {
			continue
		}
		var sum float64
		for _, v := range vals {
			sum += v
		}
		out.OverallMasteries = append(out.OverallMasteries, sum/float64(len(vals)))
	}
	sort.Float64s(out.OverallMasteries)
	for k := range out.TopicMasteries {
		sort.Float64s(out.TopicMasteries[k])
	}
	out.SampleSize = len(out.OverallMasteries)
	return out, nil
}

func (ps *progressService) Observe(ctx context.Context, tx *gorm.DB, rec domain.ActivityRecord) (Effects, error) {
	fx := Effects{At: rec.Timestamp}
	if score, ok := outcomeScore(rec); ok {
		prev, err := ps.masteries.GetOne(ctx, tx, rec.UserID, rec.Topic)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fx, fmt.Errorf("load mastery: %w", err)
		}
		if prev == nil {
			prev = &domain.TopicMastery{UserID: rec.UserID, Topic: rec.Topic}
		}
		next := smoothMastery(*prev, score, rec.Timestamp)
		if err := ps.masteries.Upsert(ctx, tx, &next); err != nil {
			return fx, fmt.Errorf("save mastery: %w", err)
		}
		if err := ps.samples.Append(ctx, tx, []*domain.MasterySample{{
			UserID: rec.UserID, Topic: rec.Topic, Mastery: next.Mastery, At: rec.Timestamp,
		}}); err != nil {
			return fx, fmt.Errorf("save mastery sample: %w", err)
		}
		count := next.PracticeCount
		fx.Progress = &domain.ProgressPayload{
			Topic:         rec.Topic,
			Mastery:       next.Mastery,
			Confidence:    next.Confidence,
			PracticeCount: &count,
		}
	}

	stats, err := ps.stats(ctx, tx, rec.UserID)
	if err != nil {
		return fx, err
	}
	if fx.Progress != nil {
		overall := stats.overall
		fx.Progress.OverallMastery = &overall
	}
	storedRows, err := ps.milestones.ListByUser(ctx, tx, rec.UserID)
	if err != nil {
		return fx, fmt.Errorf("load milestones: %w", err)
	}
	stored := make([]domain.Milestone, 0, len(storedRows))
	for _, r := range storedRows {
		stored = append(stored, r.Milestone())
	}
	_, changed := evaluateMilestones(stored, stats.milestoneStats, ps.now())
	if len(changed) > 0 {
		rows := make([]*domain.MilestoneRecord, 0, len(changed))
		for _, m := range changed {
			r := domain.MilestoneRecordFrom(rec.UserID, m)
			rows = append(rows, &r)
		}
		if err := ps.milestones.Upsert(ctx, tx, rows); err != nil {
			return fx, fmt.Errorf("save milestones: %w", err)
		}
	}
	fx.Milestones = changed
	return fx, nil
}

type userStats struct {
	milestoneStats
	overall float64
}

func (ps *progressService) stats(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (userStats, error) {
	acts, err := ps.activities.ListBetween(ctx, tx, userID, time.Time{}, time.Time{})
	if err != nil {
		return userStats{}, fmt.Errorf("load activities: %w", err)
	}
	rows, err := ps.masteries.GetByUser(ctx, tx, userID)
	if err != nil {
		return userStats{}, fmt.Errorf("load mastery: %w", err)
	}
	s := buildSummary(userID, acts, rows, nil, nil, time.Time{}, ps.now().UTC())
	out := userStats{
		milestoneStats: milestoneStats{
			CurrentStreak: s.ConsecutiveDays,
			Activities:    len(acts),
			Topics:        map[string]float64{},
		},
		overall: s.OverallMastery,
	}
	for _, a := range acts {
		if a.Type.CountsAsPractice() {
			out.Practice++
		}
	}
	for topic, m := range s.TopicMasteries {
		out.Topics[topic] = m.Mastery
	}
	return out, nil
}

func (ps *progressService) Publish(ctx context.Context, rec domain.ActivityRecord, fx Effects) {
	if ps.notifier == nil {
		return
	}
	ps.notifier.ActivityRecorded(ctx, rec)
	if fx.Progress != nil {
		ps.notifier.ProgressChanged(ctx, rec.UserID, *fx.Progress, fx.At)
	}
	for _, m := range fx.Milestones {
		ps.notifier.MilestoneChanged(ctx, rec.UserID, m, fx.At)
	}
}
