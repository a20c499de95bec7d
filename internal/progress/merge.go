package progress

import (
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/domain"
)

// ApplyEvent folds one realtime event into a copy of summary. The input is
// never modified. changed is false when the event carries nothing new for this
// summary (wrong user, unknown topic payload, older than what is held).
func ApplyEvent(summary domain.ProgressSummary, ev domain.Event) (out domain.ProgressSummary, changed bool) {
	if ev == nil {
		return summary, false
	}
	if summary.UserID != uuid.Nil && ev.EventUser() != uuid.Nil && summary.UserID != ev.EventUser() {
		return summary, false
	}
	out = summary.Clone()
	switch e := ev.(type) {
	case domain.ActivityEvent:
		changed = applyActivity(&out, e.Activity)
	case domain.ProgressEvent:
		changed = applyProgress(&out, e.Payload, e.OccurredAt)
	case domain.MilestoneEvent:
		changed = applyMilestone(&out, e.Milestone)
	}
	if !changed {
		return summary, false
	}
	if t := ev.EventTime(); !t.IsZero() && t.After(out.UpdatedAt) {
		out.UpdatedAt = t
	}
	out.Normalize()
	return out, true
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func applyActivity(s *domain.ProgressSummary, a domain.ActivityRecord) bool {
	if a.Timestamp.IsZero() {
		return false
	}
	if a.ID != uuid.Nil {
		if _, dup := s.AppliedActivities[a.ID]; dup {
			return false
		}
		if s.AppliedActivities == nil {
			s.AppliedActivities = map[uuid.UUID]struct{}{}
		}
		s.AppliedActivities[a.ID] = struct{}{}
	}
	ts := a.Timestamp.UTC()

	// Streaks only move forward in time; late-arriving older activity still
	// counts toward weekly totals.
	if s.LastActivityAt == nil || ts.After(*s.LastActivityAt) {
		if s.LastActivityAt == nil {
			s.ConsecutiveDays = 1
		} else {
			gap := int(day(ts).Sub(day(*s.LastActivityAt)).Hours() / 24)
			switch {
			case gap == 0:
				if s.ConsecutiveDays == 0 {
					s.ConsecutiveDays = 1
				}
			case gap == 1:
				s.ConsecutiveDays++
			default:
				s.ConsecutiveDays = 1
			}
		}
		if s.ConsecutiveDays > s.LearningStreak {
			s.LearningStreak = s.ConsecutiveDays
		}
		s.LastActivityAt = &ts
	}

	week := domain.WeekStart(ts)
	idx := -1
	for i := range s.WeeklyProgress {
		if s.WeeklyProgress[i].WeekStart.Equal(week) {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.WeeklyProgress = append(s.WeeklyProgress, domain.WeeklyPoint{WeekStart: week, Mastery: s.OverallMastery})
		idx = len(s.WeeklyProgress) - 1
	}
	s.WeeklyProgress[idx].ActivityCount++
	if a.DurationMs > 0 {
		s.WeeklyProgress[idx].MinutesSpent += int(a.DurationMs / 60000)
	}

	if a.Topic != "" && a.Type.CountsAsPractice() {
		m := s.TopicMasteries[a.Topic]
		m.Topic = a.Topic
		m.PracticeCount++
		if m.LastPracticed == nil || ts.After(*m.LastPracticed) {
			lp := ts
			m.LastPracticed = &lp
		}
		s.TopicMasteries[a.Topic] = m
	}
	return true
}

func applyProgress(s *domain.ProgressSummary, p domain.ProgressPayload, at time.Time) bool {
	if p.Topic == "" {
		return false
	}
	m := s.TopicMasteries[p.Topic]
	m.Topic = p.Topic
	m.Mastery = domain.Clamp01(p.Mastery)
	m.Confidence = domain.Clamp01(p.Confidence)
	if p.PracticeCount != nil && *p.PracticeCount >= 0 {
		m.PracticeCount = *p.PracticeCount
	}
	s.TopicMasteries[p.Topic] = m

	if !at.IsZero() {
		if s.MasteryHistory == nil {
			s.MasteryHistory = map[string][]domain.MasteryPoint{}
		}
		s.MasteryHistory[p.Topic] = append(s.MasteryHistory[p.Topic], domain.MasteryPoint{At: at.UTC(), Mastery: m.Mastery})
	}

	if p.OverallMastery != nil {
		s.OverallMastery = domain.Clamp01(*p.OverallMastery)
	} else {
		s.RecomputeOverall()
	}
	if !at.IsZero() {
		week := domain.WeekStart(at)
		for i := range s.WeeklyProgress {
			if s.WeeklyProgress[i].WeekStart.Equal(week) {
				s.WeeklyProgress[i].Mastery = s.OverallMastery
			}
		}
	}
	return true
}

func applyMilestone(s *domain.ProgressSummary, m domain.Milestone) bool {
	if m.ID == "" {
		return false
	}
	for i := range s.Milestones {
		if s.Milestones[i].ID == m.ID {
			s.Milestones[i] = domain.MergeMilestone(s.Milestones[i], m)
			return true
		}
	}
	s.Milestones = append(s.Milestones, domain.MergeMilestone(domain.Milestone{}, m))
	return true
}

// MergeSummary reconciles a freshly fetched summary with the cached one. The
// fresh copy wins except that milestones never go from achieved back to
// unachieved, newer local history points are kept and the applied activity
// ids carry over.
func MergeSummary(cached, fresh domain.ProgressSummary) domain.ProgressSummary {
	out := fresh.Clone()
	if len(cached.AppliedActivities) > 0 {
		out.AppliedActivities = cached.Clone().AppliedActivities
	}
	prev := make(map[string]domain.Milestone, len(cached.Milestones))
	for _, m := range cached.Milestones {
		prev[m.ID] = m
	}
	for i, m := range out.Milestones {
		if old, ok := prev[m.ID]; ok {
			out.Milestones[i] = domain.MergeMilestone(old, m)
			delete(prev, m.ID)
		}
	}
	for _, m := range cached.Milestones {
		if _, missing := prev[m.ID]; missing && m.Achieved {
			out.Milestones = append(out.Milestones, m)
		}
	}
	for topic, pts := range cached.MasteryHistory {
		if len(pts) == 0 {
			continue
		}
		fp := out.MasteryHistory[topic]
		var last time.Time
		if len(fp) > 0 {
			last = fp[len(fp)-1].At
		}
		for _, p := range pts {
			if p.At.After(last) {
				if out.MasteryHistory == nil {
					out.MasteryHistory = map[string][]domain.MasteryPoint{}
				}
				out.MasteryHistory[topic] = append(out.MasteryHistory[topic], p)
			}
		}
	}
	out.Normalize()
	return out
}
