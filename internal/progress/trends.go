package progress

import (
	"math"
	"sort"
	"time"

	"github.com/yungbote/neurobridge-sync/internal/domain"
)

const DefaultEpsilon = 0.02

// Direction classifies a mastery change. |delta| < eps is stable.
func Direction(delta, eps float64) domain.TrendDirection {
	if eps < 0 {
		eps = 0
	}
	switch {
	case math.Abs(delta) < eps:
		return domain.TrendStable
	case delta > 0:
		return domain.TrendUp
	default:
		return domain.TrendDown
	}
}

// masteryAt returns the last recorded mastery at or before t. When nothing
// precedes t, the first point after it is used.
func masteryAt(pts []domain.MasteryPoint, t time.Time) (float64, bool) {
	if len(pts) == 0 {
		return 0, false
	}
	i := sort.Search(len(pts), func(i int) bool { return pts[i].At.After(t) })
	if i == 0 {
		return pts[0].Mastery, true
	}
	return pts[i-1].Mastery, true
}

// ComputeTrends compares each topic's mastery at the range start and end.
// Topics without any history inside or before the range use their current
// mastery for both ends.
func ComputeTrends(s domain.ProgressSummary, r domain.DateRange, eps float64) []domain.ProgressTrend {
	out := make([]domain.ProgressTrend, 0, len(s.TopicMasteries))
	for _, topic := range s.Topics() {
		pts := s.MasteryHistory[topic]
		var start, end float64
		if len(pts) == 0 || pts[0].At.After(r.End) {
			cur := s.TopicMasteries[topic].Mastery
			start, end = cur, cur
		} else {
			start, _ = masteryAt(pts, r.Start)
			end, _ = masteryAt(pts, r.End)
		}
		delta := end - start
		out = append(out, domain.ProgressTrend{
			Topic:        topic,
			StartMastery: start,
			EndMastery:   end,
			Delta:        delta,
			Direction:    Direction(delta, eps),
		})
	}
	return out
}
