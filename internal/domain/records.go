package domain

import (
	"time"

	"github.com/google/uuid"
)

// The rows below are persisted by the user service only; clients see them
// through ProgressSummary and PreferencesData.

type UserPreferences struct {
	UserID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	PreferencesData `gorm:"embedded"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (UserPreferences) TableName() string { return "user_preferences" }

// DefaultPreferences are served to users who never saved any.
func DefaultPreferences() PreferencesData {
	return PreferencesData{
		Language:           "en",
		Timezone:           "UTC",
		DailyGoalMinutes:   30,
		EmailNotifications: true,
		WeeklyDigest:       true,
		DashboardLayout:    "detailed",
	}
}

type TopicMastery struct {
	UserID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Topic         string     `gorm:"primaryKey"`
	Mastery       float64    `gorm:"not null;default:0"`
	Confidence    float64    `gorm:"not null;default:0"`
	PracticeCount int        `gorm:"not null;default:0"`
	LastPracticed *time.Time `gorm:"column:last_practiced"`
	UpdatedAt     time.Time  `gorm:"not null"`
}

func (TopicMastery) TableName() string { return "topic_mastery" }

func (m TopicMastery) Skill() SkillMastery {
	return SkillMastery{
		Topic:         m.Topic,
		Mastery:       Clamp01(m.Mastery),
		Confidence:    Clamp01(m.Confidence),
		PracticeCount: m.PracticeCount,
		LastPracticed: m.LastPracticed,
	}
}

// MasterySample is one point of a topic's mastery history.
type MasterySample struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID  uuid.UUID `gorm:"type:uuid;not null;index:idx_mastery_sample_user_at,priority:1"`
	Topic   string    `gorm:"not null;index"`
	Mastery float64   `gorm:"not null"`
	At      time.Time `gorm:"column:sampled_at;not null;index:idx_mastery_sample_user_at,priority:2"`
}

func (MasterySample) TableName() string { return "mastery_sample" }

type MilestoneRecord struct {
	UserID      uuid.UUID     `gorm:"type:uuid;primaryKey"`
	MilestoneID string        `gorm:"column:milestone_id;primaryKey"`
	Title       string        `gorm:"not null"`
	Description string        `gorm:"column:description"`
	Type        MilestoneType `gorm:"column:type;not null"`
	Topic       string        `gorm:"column:topic"`
	Target      float64       `gorm:"not null"`
	Value       float64       `gorm:"not null;default:0"`
	Progress    float64       `gorm:"not null;default:0"`
	Achieved    bool          `gorm:"not null;default:false"`
	AchievedAt  *time.Time    `gorm:"column:achieved_at"`
	UpdatedAt   time.Time     `gorm:"not null"`
}

func (MilestoneRecord) TableName() string { return "milestone" }

func (r MilestoneRecord) Milestone() Milestone {
	return Milestone{
		ID:          r.MilestoneID,
		Title:       r.Title,
		Description: r.Description,
		Type:        r.Type,
		Topic:       r.Topic,
		Progress:    Clamp01(r.Progress),
		Target:      r.Target,
		Value:       r.Value,
		Achieved:    r.Achieved,
		AchievedAt:  r.AchievedAt,
	}
}

func MilestoneRecordFrom(userID uuid.UUID, m Milestone) MilestoneRecord {
	return MilestoneRecord{
		UserID:      userID,
		MilestoneID: m.ID,
		Title:       m.Title,
		Description: m.Description,
		Type:        m.Type,
		Topic:       m.Topic,
		Target:      m.Target,
		Value:       m.Value,
		Progress:    m.Progress,
		Achieved:    m.Achieved,
		AchievedAt:  m.AchievedAt,
	}
}
