package progress

import (
	"sort"

	"github.com/yungbote/neurobridge-sync/internal/domain"
)

// CompareTopics ranks every topic by mastery (1 = strongest) and reports the
// requested ones with their distance from the user's average. An empty request
// returns all topics. Unknown topics come back with Found=false.
func CompareTopics(s domain.ProgressSummary, topicIDs []string) []domain.TopicComparison {
	topics := s.Topics()
	sort.SliceStable(topics, func(i, j int) bool {
		return s.TopicMasteries[topics[i]].Mastery > s.TopicMasteries[topics[j]].Mastery
	})
	rank := make(map[string]int, len(topics))
	var sum float64
	for i, t := range topics {
		rank[t] = i + 1
		sum += s.TopicMasteries[t].Mastery
	}
	avg := 0.0
	if len(topics) > 0 {
		avg = sum / float64(len(topics))
	}

	want := topicIDs
	if len(want) == 0 {
		want = topics
	}
	out := make([]domain.TopicComparison, 0, len(want))
	seen := make(map[string]struct{}, len(want))
	for _, id := range want {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		m, ok := s.TopicMasteries[id]
		if !ok {
			out = append(out, domain.TopicComparison{Topic: id})
			continue
		}
		out = append(out, domain.TopicComparison{
			Topic:            id,
			Mastery:          m.Mastery,
			Confidence:       m.Confidence,
			PracticeCount:    m.PracticeCount,
			Rank:             rank[id],
			DeltaFromAverage: m.Mastery - avg,
			Found:            true,
		})
	}
	return out
}
