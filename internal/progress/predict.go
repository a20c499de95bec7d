package progress

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/yungbote/neurobridge-sync/internal/domain"
)

// Strategy projects a topic's mastery forward. ok is false when the history
// cannot support a prediction.
type Strategy interface {
	Predict(topic domain.SkillMastery, history []domain.MasteryPoint, now time.Time) (p domain.ProgressPrediction, ok bool)
}

// LinearTrend fits mastery against time (in days) by least squares and uses
// R² as confidence.
type LinearTrend struct {
	HorizonDays   int
	TargetMastery float64
}

func DefaultStrategy() LinearTrend {
	return LinearTrend{HorizonDays: 14, TargetMastery: 0.85}
}

func (l LinearTrend) Predict(topic domain.SkillMastery, history []domain.MasteryPoint, now time.Time) (domain.ProgressPrediction, bool) {
	if len(history) < 2 {
		return domain.ProgressPrediction{}, false
	}
	horizon := l.HorizonDays
	if horizon <= 0 {
		horizon = 14
	}
	pts := append([]domain.MasteryPoint(nil), history...)
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].At.Before(pts[j].At) })

	origin := pts[0].At
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i] = p.At.Sub(origin).Hours() / 24
		ys[i] = domain.Clamp01(p.Mastery)
	}
	if xs[len(xs)-1] == xs[0] {
		return domain.ProgressPrediction{}, false
	}
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) {
		return domain.ProgressPrediction{}, false
	}
	conf := stat.RSquared(xs, ys, nil, alpha, beta)
	if math.IsNaN(conf) || math.IsInf(conf, 0) {
		// Flat series: no variance to explain.
		conf = 0
	}

	xNow := now.Sub(origin).Hours() / 24
	current := domain.Clamp01(topic.Mastery)
	out := domain.ProgressPrediction{
		Topic:            topic.Topic,
		CurrentMastery:   current,
		PredictedMastery: domain.Clamp01(alpha + beta*(xNow+float64(horizon))),
		HorizonDays:      horizon,
		SlopePerDay:      beta,
		Confidence:       domain.Clamp01(conf),
		TargetMastery:    l.TargetMastery,
		Source:           domain.SourceClient,
	}
	if l.TargetMastery > 0 && current < l.TargetMastery && beta > 0 {
		days := (l.TargetMastery - current) / beta
		at := now.UTC().Add(time.Duration(days * float64(24*time.Hour)))
		out.EstimatedTargetAt = &at
	}
	return out, true
}

// Predict runs strategy over every topic with history. A server prediction for
// a topic replaces the local one.
func Predict(s domain.ProgressSummary, strategy Strategy, server []domain.ProgressPrediction, now time.Time) []domain.ProgressPrediction {
	if strategy == nil {
		strategy = DefaultStrategy()
	}
	byTopic := map[string]domain.ProgressPrediction{}
	for _, topic := range s.Topics() {
		p, ok := strategy.Predict(s.TopicMasteries[topic], s.MasteryHistory[topic], now)
		if !ok {
			continue
		}
		p.Topic = topic
		byTopic[topic] = p
	}
	for _, p := range server {
		if p.Topic == "" {
			continue
		}
		p.Source = domain.SourceServer
		byTopic[p.Topic] = p
	}
	out := make([]domain.ProgressPrediction, 0, len(byTopic))
	for _, p := range byTopic {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}
