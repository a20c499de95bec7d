package services

import (
	"sort"
	"time"

	"github.com/yungbote/neurobridge-sync/internal/domain"
)

const topicMasteryTarget = 0.8

type milestoneStats struct {
	CurrentStreak int
	Activities    int
	Practice      int
	Topics        map[string]float64
}

type milestoneDef struct {
	id     string
	title  string
	typ    domain.MilestoneType
	target float64
}

var milestoneCatalog = []milestoneDef{
	{"streak-3", "Three-day streak", domain.MilestoneStreak, 3},
	{"streak-7", "One-week streak", domain.MilestoneStreak, 7},
	{"streak-30", "Thirty-day streak", domain.MilestoneStreak, 30},
	{"activities-10", "Ten activities", domain.MilestoneActivityCount, 10},
	{"activities-100", "One hundred activities", domain.MilestoneActivityCount, 100},
	{"practice-25", "Twenty-five practice sessions", domain.MilestonePracticeCount, 25},
}

func (d milestoneDef) value(s milestoneStats) float64 {
	switch d.typ {
	case domain.MilestoneStreak:
		return float64(s.CurrentStreak)
	case domain.MilestoneActivityCount:
		return float64(s.Activities)
	case domain.MilestonePracticeCount:
		return float64(s.Practice)
	default:
		return 0
	}
}

// evaluateMilestones advances every milestone against stats. It returns the
// full set in id order and the subset whose state changed. Stored achieved
// milestones stay achieved.
func evaluateMilestones(stored []domain.Milestone, s milestoneStats, now time.Time) (all []domain.Milestone, changed []domain.Milestone) {
	byID := make(map[string]domain.Milestone, len(stored))
	for _, m := range stored {
		byID[m.ID] = m
	}
	advance := func(base domain.Milestone, value float64) {
		prev, had := byID[base.ID]
		if had && prev.Achieved {
			return
		}
		cur := base
		if had {
			cur = domain.MergeMilestone(prev, base)
		}
		next := cur.Advance(value, now)
		if !had || next.Value != prev.Value || next.Achieved != prev.Achieved || next.Progress != prev.Progress {
			changed = append(changed, next)
		}
		byID[base.ID] = next
	}

	for _, d := range milestoneCatalog {
		advance(domain.Milestone{ID: d.id, Title: d.title, Type: d.typ, Target: d.target}, d.value(s))
	}
	topics := make([]string, 0, len(s.Topics))
	for t := range s.Topics {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	for _, t := range topics {
		advance(domain.Milestone{
			ID:     "mastery:" + t,
			Title:  "Master " + t,
			Type:   domain.MilestoneMastery,
			Topic:  t,
			Target: topicMasteryTarget,
		}, s.Topics[t])
	}

	all = make([]domain.Milestone, 0, len(byID))
	for _, m := range byID {
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, changed
}
