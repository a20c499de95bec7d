package domain

import (
	"bytes"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ActivityType string

const (
	ActivityPracticeCompleted ActivityType = "practice_completed"
	ActivityCodeSubmitted     ActivityType = "code_submitted"
	ActivityQuizStarted       ActivityType = "quiz_started"
	ActivityQuestionAnswered  ActivityType = "question_answered"
	ActivityQuizCompleted     ActivityType = "quiz_completed"
	ActivityLessonViewed      ActivityType = "lesson_viewed"
	ActivityLessonCompleted   ActivityType = "lesson_completed"
	ActivityHintUsed          ActivityType = "hint_used"
	ActivityExplanationOpened ActivityType = "explanation_opened"
	ActivitySessionStarted    ActivityType = "session_started"
	ActivitySessionEnded      ActivityType = "session_ended"
)

type ActivityCategory string

const (
	CategoryPractice   ActivityCategory = "practice"
	CategoryAssessment ActivityCategory = "assessment"
	CategoryContent    ActivityCategory = "content"
	CategoryHelp       ActivityCategory = "help"
	CategorySession    ActivityCategory = "session"
	CategoryUnknown    ActivityCategory = ""
)

// Category maps every known activity type to its category. New types must be
// added here; Known() reports false for anything unmapped.
func (t ActivityType) Category() ActivityCategory {
	switch t {
	case ActivityPracticeCompleted, ActivityCodeSubmitted:
		return CategoryPractice
	case ActivityQuizStarted, ActivityQuestionAnswered, ActivityQuizCompleted:
		return CategoryAssessment
	case ActivityLessonViewed, ActivityLessonCompleted:
		return CategoryContent
	case ActivityHintUsed, ActivityExplanationOpened:
		return CategoryHelp
	case ActivitySessionStarted, ActivitySessionEnded:
		return CategorySession
	default:
		return CategoryUnknown
	}
}

func (t ActivityType) Known() bool { return t.Category() != CategoryUnknown }

// CountsAsPractice reports whether the activity bumps a topic's practice count.
func (t ActivityType) CountsAsPractice() bool {
	switch t.Category() {
	case CategoryPractice, CategoryAssessment:
		return t != ActivityQuizStarted
	default:
		return false
	}
}

type ActivityRecord struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID      `gorm:"type:uuid;not null;index:idx_activity_user_ts,priority:1" json:"user_id"`
	Type       ActivityType   `gorm:"column:type;not null;index" json:"activity_type"`
	Topic      string         `gorm:"column:topic;index" json:"topic,omitempty"`
	Timestamp  time.Time      `gorm:"column:occurred_at;not null;index:idx_activity_user_ts,priority:2" json:"timestamp"`
	DurationMs int64          `gorm:"column:duration_ms;not null;default:0" json:"duration_ms"`
	Metadata   datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	SessionID  string         `gorm:"column:session_id" json:"session_id,omitempty"`
	DeviceType string         `gorm:"column:device_type" json:"device_type,omitempty"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
}

func (ActivityRecord) TableName() string { return "activity_record" }

// NewerThan is the feed order: newest first, ties broken by id descending.
func (a ActivityRecord) NewerThan(b ActivityRecord) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) > 0
}

func SortActivities(items []ActivityRecord) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].NewerThan(items[j]) })
}

type ActivityPage struct {
	Items      []ActivityRecord `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
	HasMore    bool             `json:"has_more"`
}

type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

type ActivitySummary struct {
	UserID          uuid.UUID            `json:"user_id"`
	Start           time.Time            `json:"start"`
	End             time.Time            `json:"end"`
	TotalActivities int                  `json:"total_activities"`
	TotalDurationMs int64                `json:"total_duration_ms"`
	ActiveDays      int                  `json:"active_days"`
	ByType          map[ActivityType]int `json:"by_type"`
	TopTopics       []TopicCount         `json:"top_topics"`
}
