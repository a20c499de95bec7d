package domain

import "time"

type MilestoneType string

const (
	MilestoneStreak        MilestoneType = "streak"
	MilestoneMastery       MilestoneType = "mastery"
	MilestonePracticeCount MilestoneType = "practice_count"
	MilestoneActivityCount MilestoneType = "activity_count"
)

type Milestone struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Type        MilestoneType `json:"type"`
	Topic       string        `json:"topic,omitempty"`
	Progress    float64       `json:"progress"`
	Target      float64       `json:"target"`
	Value       float64       `json:"value"`
	Achieved    bool          `json:"achieved"`
	AchievedAt  *time.Time    `json:"achieved_at,omitempty"`
}

// Advance records a new value. Once achieved, a milestone stays achieved and
// keeps its original AchievedAt.
func (m Milestone) Advance(value float64, at time.Time) Milestone {
	m.Value = value
	if m.Target > 0 {
		m.Progress = Clamp01(value / m.Target)
	}
	if m.Achieved {
		m.Progress = 1
		return m
	}
	if m.Target > 0 && value >= m.Target {
		m.Achieved = true
		m.Progress = 1
		ts := at.UTC()
		m.AchievedAt = &ts
	}
	return m
}

// MergeMilestone folds an incoming milestone state into the current one
// without ever un-achieving it.
func MergeMilestone(current, incoming Milestone) Milestone {
	out := incoming
	if out.Title == "" {
		out.Title = current.Title
	}
	if out.Description == "" {
		out.Description = current.Description
	}
	if out.Type == "" {
		out.Type = current.Type
	}
	if out.Target == 0 {
		out.Target = current.Target
	}
	out.Progress = Clamp01(out.Progress)
	if current.Achieved {
		out.Achieved = true
		out.Progress = 1
		out.AchievedAt = current.AchievedAt
		if out.Value < current.Value {
			out.Value = current.Value
		}
		return out
	}
	if out.Achieved {
		out.Progress = 1
		if out.AchievedAt == nil {
			now := time.Now().UTC()
			out.AchievedAt = &now
		}
	}
	return out
}
