package progress

import (
	"fmt"
	"time"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

// Snapshot is the cached state every derivation reads from.
type Snapshot struct {
	Summary  domain.ProgressSummary
	Peers    *domain.PeerStats
	Insights *domain.ServerInsights
}

// SnapshotSource returns the current snapshot; ok is false before the first
// summary has loaded.
type SnapshotSource func() (snap Snapshot, ok bool)

type Options struct {
	Source      SnapshotSource
	Strategy    Strategy
	Recommender Recommender
	Epsilon     float64
	Now         func() time.Time
	Logger      *logger.Logger
}

// Aggregator derives trends, comparisons, predictions and recommendations
// from cached data. Failures degrade to empty results and are logged.
type Aggregator struct {
	source      SnapshotSource
	strategy    Strategy
	recommender Recommender
	eps         float64
	now         func() time.Time
	log         *logger.Logger
}

func NewAggregator(opts Options) *Aggregator {
	a := &Aggregator{
		source:      opts.Source,
		strategy:    opts.Strategy,
		recommender: opts.Recommender,
		eps:         opts.Epsilon,
		now:         opts.Now,
		log:         opts.Logger,
	}
	if a.source == nil {
		a.source = func() (Snapshot, bool) { return Snapshot{}, false }
	}
	if a.strategy == nil {
		a.strategy = DefaultStrategy()
	}
	if a.recommender == nil {
		a.recommender = DefaultRecommender()
	}
	if a.eps <= 0 {
		a.eps = DefaultEpsilon
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.log == nil {
		a.log = logger.Nop()
	}
	a.log = a.log.With("component", "progress")
	return a
}

// derive runs fn against a private copy of the snapshot and converts a panic
// into a logged derivation error.
func derive[T any](a *Aggregator, name string, fn func(Snapshot) (T, error)) (out T) {
	snap, ok := a.source()
	if !ok {
		return out
	}
	snap.Summary = snap.Summary.Clone()
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("derivation panicked", "derivation", name, "error", apierr.Derivation(fmt.Errorf("%v", r)))
			var zero T
			out = zero
		}
	}()
	v, err := fn(snap)
	if err != nil {
		a.log.Warn("derivation failed", "derivation", name, "error", apierr.Derivation(err))
		var zero T
		return zero
	}
	return v
}

func (a *Aggregator) ProgressTrends(r domain.DateRange) []domain.ProgressTrend {
	return derive(a, "trends", func(s Snapshot) ([]domain.ProgressTrend, error) {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		return ComputeTrends(s.Summary, r, a.eps), nil
	})
}

func (a *Aggregator) TopicComparison(topicIDs ...string) []domain.TopicComparison {
	return derive(a, "topic_comparison", func(s Snapshot) ([]domain.TopicComparison, error) {
		return CompareTopics(s.Summary, topicIDs), nil
	})
}

// PeerComparison reports ok=false when no cohort data is cached.
func (a *Aggregator) PeerComparison() (domain.PeerComparison, bool) {
	type result struct {
		cmp domain.PeerComparison
		ok  bool
	}
	r := derive(a, "peer_comparison", func(s Snapshot) (result, error) {
		if s.Peers == nil {
			return result{}, nil
		}
		cmp, err := ComparePeers(s.Summary, *s.Peers)
		if err != nil {
			return result{}, err
		}
		return result{cmp: cmp, ok: true}, nil
	})
	return r.cmp, r.ok
}

func (a *Aggregator) GeneratePredictions() []domain.ProgressPrediction {
	return derive(a, "predictions", func(s Snapshot) ([]domain.ProgressPrediction, error) {
		var server []domain.ProgressPrediction
		if s.Insights != nil {
			server = s.Insights.Predictions
		}
		return Predict(s.Summary, a.strategy, server, a.now()), nil
	})
}

// Recommendations uses the trend over the last 30 days to spot declining
// topics.
func (a *Aggregator) Recommendations() []domain.Recommendation {
	return derive(a, "recommendations", func(s Snapshot) ([]domain.Recommendation, error) {
		now := a.now()
		trends := ComputeTrends(s.Summary, domain.LastDays(now, 30), a.eps)
		local := a.recommender.Recommend(s.Summary, trends, now)
		server := append([]domain.Recommendation(nil), s.Summary.Recommendations...)
		if s.Insights != nil {
			server = append(server, s.Insights.Recommendations...)
		}
		return MergeRecommendations(local, server), nil
	})
}
