package domain

import (
	"errors"
	"time"
)

type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return errors.New("date range requires start and end")
	}
	if r.End.Before(r.Start) {
		return errors.New("date range end precedes start")
	}
	return nil
}

func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// LastDays is the range ending at now and starting n days earlier.
func LastDays(now time.Time, n int) DateRange {
	return DateRange{Start: now.AddDate(0, 0, -n), End: now}
}

type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

type ProgressTrend struct {
	Topic        string         `json:"topic"`
	StartMastery float64        `json:"start_mastery"`
	EndMastery   float64        `json:"end_mastery"`
	Delta        float64        `json:"delta"`
	Direction    TrendDirection `json:"direction"`
}

type TopicComparison struct {
	Topic            string  `json:"topic"`
	Mastery          float64 `json:"mastery"`
	Confidence       float64 `json:"confidence"`
	PracticeCount    int     `json:"practice_count"`
	Rank             int     `json:"rank"`
	DeltaFromAverage float64 `json:"delta_from_average"`
	Found            bool    `json:"found"`
}

type PeerComparison struct {
	CohortID         string             `json:"cohort_id"`
	SampleSize       int                `json:"sample_size"`
	UserMastery      float64            `json:"user_mastery"`
	PeerAverage      float64            `json:"peer_average"`
	PeerMedian       float64            `json:"peer_median"`
	Percentile       float64            `json:"percentile"`
	TopicPercentiles map[string]float64 `json:"topic_percentiles"`
}

type Source string

const (
	SourceClient Source = "client"
	SourceServer Source = "server"
)

type ProgressPrediction struct {
	Topic             string     `json:"topic"`
	CurrentMastery    float64    `json:"current_mastery"`
	PredictedMastery  float64    `json:"predicted_mastery"`
	HorizonDays       int        `json:"horizon_days"`
	SlopePerDay       float64    `json:"slope_per_day"`
	Confidence        float64    `json:"confidence"`
	TargetMastery     float64    `json:"target_mastery,omitempty"`
	EstimatedTargetAt *time.Time `json:"estimated_target_at,omitempty"`
	Source            Source     `json:"source"`
}

type RecommendationKind string

const (
	RecommendReview   RecommendationKind = "review"
	RecommendPractice RecommendationKind = "practice"
	RecommendAdvance  RecommendationKind = "advance"
)

type Recommendation struct {
	ID       string             `json:"id"`
	Topic    string             `json:"topic"`
	Kind     RecommendationKind `json:"kind"`
	Reason   string             `json:"reason"`
	Priority int                `json:"priority"`
	Source   Source             `json:"source"`
}

// ServerInsights are the authoritative predictions and recommendations computed
// by the user service, when it has them.
type ServerInsights struct {
	Predictions     []ProgressPrediction `json:"predictions"`
	Recommendations []Recommendation     `json:"recommendations"`
	ComputedAt      time.Time            `json:"computed_at"`
}

// SummaryRange selects the window of a progress summary.
type SummaryRange string

const (
	Range7d  SummaryRange = "7d"
	Range30d SummaryRange = "30d"
	Range90d SummaryRange = "90d"
	RangeAll SummaryRange = "all"
)

func ParseSummaryRange(s string) (SummaryRange, error) {
	switch r := SummaryRange(s); r {
	case Range7d, Range30d, Range90d, RangeAll:
		return r, nil
	case "":
		return Range30d, nil
	default:
		return "", errors.New("range must be one of 7d, 30d, 90d, all")
	}
}

// Days returns the window length in days; 0 means unbounded.
func (r SummaryRange) Days() int {
	switch r {
	case Range7d:
		return 7
	case Range30d:
		return 30
	case Range90d:
		return 90
	default:
		return 0
	}
}
