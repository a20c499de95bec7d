package domain

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

type SkillMastery struct {
	Topic         string     `json:"topic"`
	Mastery       float64    `json:"mastery"`
	Confidence    float64    `json:"confidence"`
	PracticeCount int        `json:"practice_count"`
	LastPracticed *time.Time `json:"last_practiced,omitempty"`
}

type MasteryPoint struct {
	At      time.Time `json:"at"`
	Mastery float64   `json:"mastery"`
}

type WeeklyPoint struct {
	WeekStart     time.Time `json:"week_start"`
	Mastery       float64   `json:"mastery"`
	ActivityCount int       `json:"activity_count"`
	MinutesSpent  int       `json:"minutes_spent"`
}

type ProgressSummary struct {
	UserID          uuid.UUID                 `json:"user_id"`
	OverallMastery  float64                   `json:"overall_mastery"`
	TopicMasteries  map[string]SkillMastery   `json:"topic_masteries"`
	LearningStreak  int                       `json:"learning_streak"`
	ConsecutiveDays int                       `json:"consecutive_days"`
	WeeklyProgress  []WeeklyPoint             `json:"weekly_progress"`
	Milestones      []Milestone               `json:"milestones"`
	Recommendations []Recommendation          `json:"recommendations"`
	MasteryHistory  map[string][]MasteryPoint `json:"mastery_history,omitempty"`
	LastActivityAt  *time.Time                `json:"last_activity_at,omitempty"`
	UpdatedAt       time.Time                 `json:"updated_at"`

	// AppliedActivities holds the ids of activities folded in locally, so a
	// replayed event never counts twice. It never leaves the process.
	AppliedActivities map[uuid.UUID]struct{} `json:"-"`
}

// Clamp01 bounds v to [0,1]; NaN becomes 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// WeekStart returns Monday 00:00 UTC of the week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// Normalize enforces the summary invariants in place: masteries within [0,1],
// weekly points ascending by week, history ascending by time.
func (s *ProgressSummary) Normalize() {
	if s.TopicMasteries == nil {
		s.TopicMasteries = map[string]SkillMastery{}
	}
	for k, m := range s.TopicMasteries {
		m.Topic = k
		m.Mastery = Clamp01(m.Mastery)
		m.Confidence = Clamp01(m.Confidence)
		if m.PracticeCount < 0 {
			m.PracticeCount = 0
		}
		s.TopicMasteries[k] = m
	}
	s.OverallMastery = Clamp01(s.OverallMastery)
	sort.SliceStable(s.WeeklyProgress, func(i, j int) bool {
		return s.WeeklyProgress[i].WeekStart.Before(s.WeeklyProgress[j].WeekStart)
	})
	for k, pts := range s.MasteryHistory {
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].At.Before(pts[j].At) })
		for i := range pts {
			pts[i].Mastery = Clamp01(pts[i].Mastery)
		}
		s.MasteryHistory[k] = pts
	}
	for i := range s.Milestones {
		s.Milestones[i].Progress = Clamp01(s.Milestones[i].Progress)
	}
}

// Clone returns a deep copy so derivations and merges never alias cached data.
func (s ProgressSummary) Clone() ProgressSummary {
	out := s
	out.TopicMasteries = make(map[string]SkillMastery, len(s.TopicMasteries))
	for k, v := range s.TopicMasteries {
		if v.LastPracticed != nil {
			lp := *v.LastPracticed
			v.LastPracticed = &lp
		}
		out.TopicMasteries[k] = v
	}
	out.WeeklyProgress = append([]WeeklyPoint(nil), s.WeeklyProgress...)
	out.Milestones = make([]Milestone, len(s.Milestones))
	for i, m := range s.Milestones {
		if m.AchievedAt != nil {
			at := *m.AchievedAt
			m.AchievedAt = &at
		}
		out.Milestones[i] = m
	}
	out.Recommendations = append([]Recommendation(nil), s.Recommendations...)
	if s.MasteryHistory != nil {
		out.MasteryHistory = make(map[string][]MasteryPoint, len(s.MasteryHistory))
		for k, pts := range s.MasteryHistory {
			out.MasteryHistory[k] = append([]MasteryPoint(nil), pts...)
		}
	}
	if s.LastActivityAt != nil {
		at := *s.LastActivityAt
		out.LastActivityAt = &at
	}
	if s.AppliedActivities != nil {
		out.AppliedActivities = make(map[uuid.UUID]struct{}, len(s.AppliedActivities))
		for id := range s.AppliedActivities {
			out.AppliedActivities[id] = struct{}{}
		}
	}
	return out
}

// RecomputeOverall sets OverallMastery to the mean topic mastery.
func (s *ProgressSummary) RecomputeOverall() {
	if len(s.TopicMasteries) == 0 {
		s.OverallMastery = 0
		return
	}
	var sum float64
	for _, m := range s.TopicMasteries {
		sum += Clamp01(m.Mastery)
	}
	s.OverallMastery = Clamp01(sum / float64(len(s.TopicMasteries)))
}

// Topics returns topic ids in stable (sorted) order.
func (s ProgressSummary) Topics() []string {
	out := make([]string, 0, len(s.TopicMasteries))
	for k := range s.TopicMasteries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
