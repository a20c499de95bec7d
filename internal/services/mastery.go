package services

import (
	"encoding/json"
	"math"
	"time"

	"github.com/yungbote/neurobridge-sync/internal/domain"
)

// Exponential smoothing weight of the newest outcome.
const masteryAlpha = 0.3

var defaultOutcome = map[domain.ActivityType]float64{
	domain.ActivityPracticeCompleted: 0.7,
	domain.ActivityCodeSubmitted:     0.7,
	domain.ActivityQuestionAnswered:  0.6,
	domain.ActivityQuizCompleted:     0.75,
}

// outcomeScore is the [0,1] evidence an activity gives about its topic. A
// numeric "score" in metadata overrides the per-type default; percentages
// above 1 are scaled down.
func outcomeScore(rec domain.ActivityRecord) (float64, bool) {
	if rec.Topic == "" || !rec.Type.CountsAsPractice() {
		return 0, false
	}
	score, ok := defaultOutcome[rec.Type]
	if !ok {
		score = 0.5
	}
	if len(rec.Metadata) > 0 {
		var meta struct {
			Score *float64 `json:"score"`
		}
		if err := json.Unmarshal(rec.Metadata, &meta); err == nil && meta.Score != nil {
			s := *meta.Score
			if s > 1 {
				s /= 100
			}
			score = s
		}
	}
	return domain.Clamp01(score), true
}

// smoothMastery folds one outcome into a topic's mastery.
func smoothMastery(prev domain.TopicMastery, score float64, at time.Time) domain.TopicMastery {
	next := prev
	if prev.PracticeCount == 0 && prev.Mastery == 0 {
		next.Mastery = domain.Clamp01(score * masteryAlpha)
	} else {
		next.Mastery = domain.Clamp01(prev.Mastery + masteryAlpha*(score-prev.Mastery))
	}
	next.PracticeCount = prev.PracticeCount + 1
	next.Confidence = domain.Clamp01(1 - math.Exp(-float64(next.PracticeCount)/5))
	ts := at.UTC()
	if prev.LastPracticed == nil || ts.After(*prev.LastPracticed) {
		next.LastPracticed = &ts
	}
	next.UpdatedAt = time.Now().UTC()
	return next
}
