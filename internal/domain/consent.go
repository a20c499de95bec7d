package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ConsentType string

const (
	ConsentAnalytics         ConsentType = "analytics"
	ConsentMarketing         ConsentType = "marketing"
	ConsentPersonalization   ConsentType = "personalization"
	ConsentThirdPartySharing ConsentType = "third_party_sharing"
)

var ConsentTypes = []ConsentType{
	ConsentAnalytics,
	ConsentMarketing,
	ConsentPersonalization,
	ConsentThirdPartySharing,
}

func ParseConsentType(s string) (ConsentType, error) {
	for _, t := range ConsentTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown consent type %q", s)
}

type ConsentPreferences struct {
	Analytics         bool `json:"analytics"`
	Marketing         bool `json:"marketing"`
	Personalization   bool `json:"personalization"`
	ThirdPartySharing bool `json:"third_party_sharing"`
}

func (p ConsentPreferences) Get(t ConsentType) bool {
	switch t {
	case ConsentAnalytics:
		return p.Analytics
	case ConsentMarketing:
		return p.Marketing
	case ConsentPersonalization:
		return p.Personalization
	case ConsentThirdPartySharing:
		return p.ThirdPartySharing
	default:
		return false
	}
}

func (p ConsentPreferences) With(t ConsentType, granted bool) ConsentPreferences {
	switch t {
	case ConsentAnalytics:
		p.Analytics = granted
	case ConsentMarketing:
		p.Marketing = granted
	case ConsentPersonalization:
		p.Personalization = granted
	case ConsentThirdPartySharing:
		p.ThirdPartySharing = granted
	}
	return p
}

type ConsentStatus string

const (
	ConsentPending   ConsentStatus = "pending"
	ConsentConfirmed ConsentStatus = "confirmed"
	ConsentFailed    ConsentStatus = "failed"
)

type ConsentHistoryEntry struct {
	ID          uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID     `gorm:"type:uuid;not null;index" json:"user_id"`
	ConsentType ConsentType   `gorm:"column:consent_type;not null;index" json:"consent_type"`
	Granted     bool          `gorm:"column:granted;not null" json:"granted"`
	Purpose     string        `gorm:"column:purpose" json:"purpose"`
	LegalBasis  string        `gorm:"column:legal_basis" json:"legal_basis"`
	Timestamp   time.Time     `gorm:"column:recorded_at;not null;index" json:"timestamp"`
	Status      ConsentStatus `gorm:"column:status;not null;default:confirmed" json:"status"`
}

func (ConsentHistoryEntry) TableName() string { return "consent_history" }

type ConsentRequest struct {
	ConsentType ConsentType `json:"consent_type" validate:"required,oneof=analytics marketing personalization third_party_sharing"`
	Granted     bool        `json:"granted"`
	Purpose     string      `json:"purpose" validate:"required,max=200"`
	LegalBasis  string      `json:"legal_basis,omitempty" validate:"omitempty,oneof=consent contract legitimate_interest legal_obligation"`
}

type ConsentState struct {
	Preferences ConsentPreferences    `json:"preferences"`
	History     []ConsentHistoryEntry `json:"history"`
}
