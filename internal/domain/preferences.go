package domain

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

type PreferencesData struct {
	Language           string `json:"language"`
	Timezone           string `json:"timezone"`
	DailyGoalMinutes   int    `json:"daily_goal_minutes"`
	EmailNotifications bool   `json:"email_notifications"`
	PushNotifications  bool   `json:"push_notifications"`
	WeeklyDigest       bool   `json:"weekly_digest"`
	DashboardLayout    string `json:"dashboard_layout"`
}

// PreferencesPatch is a partial update; nil fields are left untouched.
type PreferencesPatch struct {
	Language           *string `json:"language,omitempty" validate:"omitempty,bcp47_language_tag"`
	Timezone           *string `json:"timezone,omitempty" validate:"omitempty,timezone"`
	DailyGoalMinutes   *int    `json:"daily_goal_minutes,omitempty" validate:"omitempty,min=5,max=600"`
	EmailNotifications *bool   `json:"email_notifications,omitempty"`
	PushNotifications  *bool   `json:"push_notifications,omitempty"`
	WeeklyDigest       *bool   `json:"weekly_digest,omitempty"`
	DashboardLayout    *string `json:"dashboard_layout,omitempty" validate:"omitempty,oneof=compact detailed focus"`
}

func (p PreferencesPatch) Empty() bool {
	return p.Language == nil && p.Timezone == nil && p.DailyGoalMinutes == nil &&
		p.EmailNotifications == nil && p.PushNotifications == nil && p.WeeklyDigest == nil &&
		p.DashboardLayout == nil
}

// ApplyTo returns base with the patch applied.
func (p PreferencesPatch) ApplyTo(base PreferencesData) PreferencesData {
	if p.Language != nil {
		base.Language = *p.Language
	}
	if p.Timezone != nil {
		base.Timezone = *p.Timezone
	}
	if p.DailyGoalMinutes != nil {
		base.DailyGoalMinutes = *p.DailyGoalMinutes
	}
	if p.EmailNotifications != nil {
		base.EmailNotifications = *p.EmailNotifications
	}
	if p.PushNotifications != nil {
		base.PushNotifications = *p.PushNotifications
	}
	if p.WeeklyDigest != nil {
		base.WeeklyDigest = *p.WeeklyDigest
	}
	if p.DashboardLayout != nil {
		base.DashboardLayout = *p.DashboardLayout
	}
	return base
}

// Merge overlays a newer patch on top of p.
func (p PreferencesPatch) Merge(next PreferencesPatch) PreferencesPatch {
	if next.Language != nil {
		p.Language = next.Language
	}
	if next.Timezone != nil {
		p.Timezone = next.Timezone
	}
	if next.DailyGoalMinutes != nil {
		p.DailyGoalMinutes = next.DailyGoalMinutes
	}
	if next.EmailNotifications != nil {
		p.EmailNotifications = next.EmailNotifications
	}
	if next.PushNotifications != nil {
		p.PushNotifications = next.PushNotifications
	}
	if next.WeeklyDigest != nil {
		p.WeeklyDigest = next.WeeklyDigest
	}
	if next.DashboardLayout != nil {
		p.DashboardLayout = next.DashboardLayout
	}
	return p
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// FieldError describes the first failing field of a validation error.
type FieldError struct {
	Field string
	Rule  string
}

func (e FieldError) Error() string {
	return "failed " + e.Rule + " validation"
}

// ValidateStruct runs struct validation and reports the first failing field.
func ValidateStruct(v any) *FieldError {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &FieldError{Field: verrs[0].Field(), Rule: verrs[0].Tag()}
	}
	return &FieldError{Field: "", Rule: "struct"}
}
