package progress

import (
	"fmt"
	"sort"
	"time"

	"github.com/yungbote/neurobridge-sync/internal/domain"
)

type Recommender interface {
	Recommend(s domain.ProgressSummary, trends []domain.ProgressTrend, now time.Time) []domain.Recommendation
}

// RuleRecommender flags declining, weak and neglected topics, and suggests
// moving on from strong ones. At most one recommendation per topic.
type RuleRecommender struct {
	LowMastery float64
	StaleAfter time.Duration
	AdvanceAt  float64
}

func DefaultRecommender() RuleRecommender {
	return RuleRecommender{LowMastery: 0.5, StaleAfter: 14 * 24 * time.Hour, AdvanceAt: 0.85}
}

func RecommendationID(topic string, kind domain.RecommendationKind) string {
	return topic + ":" + string(kind)
}

func (r RuleRecommender) Recommend(s domain.ProgressSummary, trends []domain.ProgressTrend, now time.Time) []domain.Recommendation {
	declining := map[string]float64{}
	for _, t := range trends {
		if t.Direction == domain.TrendDown {
			declining[t.Topic] = t.Delta
		}
	}
	var out []domain.Recommendation
	add := func(topic string, kind domain.RecommendationKind, prio int, reason string) {
		out = append(out, domain.Recommendation{
			ID:       RecommendationID(topic, kind),
			Topic:    topic,
			Kind:     kind,
			Reason:   reason,
			Priority: prio,
			Source:   domain.SourceClient,
		})
	}
	for _, topic := range s.Topics() {
		m := s.TopicMasteries[topic]
		switch {
		case declining[topic] < 0:
			add(topic, domain.RecommendReview, 1, fmt.Sprintf("mastery dropped by %.0f%%", -declining[topic]*100))
		case m.Mastery < r.LowMastery:
			add(topic, domain.RecommendPractice, 2, fmt.Sprintf("mastery at %.0f%%", m.Mastery*100))
		case r.StaleAfter > 0 && m.LastPracticed != nil && now.Sub(*m.LastPracticed) > r.StaleAfter:
			add(topic, domain.RecommendReview, 2, fmt.Sprintf("not practiced for %d days", int(now.Sub(*m.LastPracticed).Hours()/24)))
		case r.AdvanceAt > 0 && m.Mastery >= r.AdvanceAt:
			add(topic, domain.RecommendAdvance, 3, "ready for harder material")
		}
	}
	return out
}

// MergeRecommendations overlays server recommendations on local ones; the
// server wins when both name the same (topic, kind). Result is ordered by
// priority, then topic.
func MergeRecommendations(local, server []domain.Recommendation) []domain.Recommendation {
	type key struct {
		topic string
		kind  domain.RecommendationKind
	}
	merged := map[key]domain.Recommendation{}
	for _, r := range local {
		merged[key{r.Topic, r.Kind}] = r
	}
	for _, r := range server {
		r.Source = domain.SourceServer
		if r.ID == "" {
			r.ID = RecommendationID(r.Topic, r.Kind)
		}
		merged[key{r.Topic, r.Kind}] = r
	}
	out := make([]domain.Recommendation, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		if out[i].Topic != out[j].Topic {
			return out[i].Topic < out[j].Topic
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}
