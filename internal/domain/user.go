package domain

import (
	"time"

	"github.com/google/uuid"
)

type UserProfile struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DisplayName string    `gorm:"column:display_name;not null" json:"display_name"`
	Email       string    `gorm:"column:email;index" json:"email,omitempty"`
	CohortID    string    `gorm:"column:cohort_id;index" json:"cohort_id,omitempty"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (UserProfile) TableName() string { return "user_profile" }

// PeerStats is an anonymized snapshot of mastery across the user's cohort.
type PeerStats struct {
	CohortID         string               `json:"cohort_id"`
	SampleSize       int                  `json:"sample_size"`
	OverallMasteries []float64            `json:"overall_masteries"`
	TopicMasteries   map[string][]float64 `json:"topic_masteries"`
	ComputedAt       time.Time            `json:"computed_at"`
}
