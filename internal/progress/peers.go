package progress

import (
	"errors"
	"fmt"

	"github.com/montanaflynn/stats"

	"github.com/yungbote/neurobridge-sync/internal/domain"
)

var ErrNoCohort = errors.New("no cohort data")

// percentileRank is the share of the cohort below v, counting ties as half,
// scaled to 0..100.
func percentileRank(values []float64, v float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var below, equal float64
	for _, x := range values {
		switch {
		case x < v:
			below++
		case x == v:
			equal++
		}
	}
	return 100 * (below + equal/2) / float64(len(values))
}

func ComparePeers(s domain.ProgressSummary, peers domain.PeerStats) (domain.PeerComparison, error) {
	if len(peers.OverallMasteries) == 0 {
		return domain.PeerComparison{}, ErrNoCohort
	}
	data := stats.LoadRawData(peers.OverallMasteries)
	mean, err := stats.Mean(data)
	if err != nil {
		return domain.PeerComparison{}, fmt.Errorf("cohort mean: %w", err)
	}
	median, err := stats.Median(data)
	if err != nil {
		return domain.PeerComparison{}, fmt.Errorf("cohort median: %w", err)
	}
	size := peers.SampleSize
	if size <= 0 {
		size = len(peers.OverallMasteries)
	}
	out := domain.PeerComparison{
		CohortID:         peers.CohortID,
		SampleSize:       size,
		UserMastery:      s.OverallMastery,
		PeerAverage:      mean,
		PeerMedian:       median,
		Percentile:       percentileRank(peers.OverallMasteries, s.OverallMastery),
		TopicPercentiles: map[string]float64{},
	}
	for topic, m := range s.TopicMasteries {
		values := peers.TopicMasteries[topic]
		if len(values) == 0 {
			continue
		}
		out.TopicPercentiles[topic] = percentileRank(values, m.Mastery)
	}
	return out, nil
}
