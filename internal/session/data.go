package session

import (
	"context"
	"time"

	"github.com/yungbote/neurobridge-sync/internal/cache"
	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/progress"
)

const (
	peerTTL = 30 * time.Minute
	// maxEarlyEvents bounds the events held while the summary is not cached.
	maxEarlyEvents = 256
)

func (s *Session) summaryKey() string     { return cache.Key(s.userID, "summary", string(s.rng)) }
func (s *Session) preferencesKey() string { return cache.Key(s.userID, "preferences") }
func (s *Session) peersKey() string       { return cache.Key(s.userID, "peers") }
func (s *Session) insightsKey() string    { return cache.Key(s.userID, "insights") }

// Summary serves the progress summary stale-while-revalidate. A refetch is
// merged over the cached copy so achieved milestones never regress.
func (s *Session) Summary(ctx context.Context) (domain.ProgressSummary, error) {
	key := s.summaryKey()
	sum, err := cache.FetchAs(ctx, s.cache, key, s.ttl, func(ctx context.Context) (domain.ProgressSummary, error) {
		fresh, err := s.svc.GetProgressSummary(ctx, s.userID, s.rng)
		if err != nil {
			return fresh, err
		}
		if fresh.UserID != s.userID {
			fresh.UserID = s.userID
		}
		if cur, ok := cache.GetAs[domain.ProgressSummary](s.cache, key); ok {
			fresh = progress.MergeSummary(cur, fresh)
		}
		return fresh, nil
	})
	if err != nil {
		return sum, err
	}
	if replayed, ok := s.replayEarly(); ok {
		sum = replayed
	}
	return sum, nil
}

func (s *Session) Preferences(ctx context.Context) (domain.PreferencesData, error) {
	return cache.FetchAs(ctx, s.cache, s.preferencesKey(), s.ttl, func(ctx context.Context) (domain.PreferencesData, error) {
		return s.svc.GetPreferences(ctx, s.userID)
	})
}

func (s *Session) PeerStats(ctx context.Context) (domain.PeerStats, error) {
	return cache.FetchAs(ctx, s.cache, s.peersKey(), peerTTL, func(ctx context.Context) (domain.PeerStats, error) {
		return s.svc.GetPeerStats(ctx, s.userID)
	})
}

func (s *Session) Insights(ctx context.Context) (domain.ServerInsights, error) {
	return cache.FetchAs(ctx, s.cache, s.insightsKey(), s.ttl, func(ctx context.Context) (domain.ServerInsights, error) {
		return s.svc.GetInsights(ctx, s.userID)
	})
}

// snapshot feeds the aggregator from whatever is cached right now, without
// triggering fetches.
func (s *Session) snapshot() (progress.Snapshot, bool) {
	sum, ok := cache.GetAs[domain.ProgressSummary](s.cache, s.summaryKey())
	if !ok {
		return progress.Snapshot{}, false
	}
	snap := progress.Snapshot{Summary: sum}
	if s.features.PeerComparison {
		if p, ok := cache.GetAs[domain.PeerStats](s.cache, s.peersKey()); ok {
			snap.Peers = &p
		}
	}
	if s.features.Predictions {
		if in, ok := cache.GetAs[domain.ServerInsights](s.cache, s.insightsKey()); ok {
			snap.Insights = &in
		}
	}
	return snap, true
}

func (s *Session) onCacheChange(key string, e cache.Entry) {
	switch key {
	case s.summaryKey():
		if sum, ok := e.Value.(domain.ProgressSummary); ok {
			s.Dispatch(SummaryChanged{Summary: sum})
		}
	case s.preferencesKey():
		if p, ok := e.Value.(domain.PreferencesData); ok {
			s.Dispatch(PreferencesChanged{Preferences: p})
		}
	}
}

func (s *Session) onRefreshError(key string, err error) {
	switch key {
	case s.summaryKey():
		s.Dispatch(OperationFailed{Op: "summary", Err: err})
	case s.preferencesKey():
		s.Dispatch(OperationFailed{Op: "preferences", Err: err})
	}
}

// applyEvent folds a realtime event into the cached summary and feed. The
// channel delivers each event id once. Events that arrive while no summary is
// cached are held until the next fetch stores one.
func (s *Session) applyEvent(ev domain.Event) {
	if a, ok := ev.(domain.ActivityEvent); ok {
		s.feed.Prepend(a.Activity)
	}
	s.evMu.Lock()
	defer s.evMu.Unlock()
	present := false
	_, changed := s.cache.Update(s.summaryKey(), func(cur cache.Entry, ok bool) (any, bool) {
		if !ok {
			return nil, false
		}
		present = true
		sum, ok := cur.Value.(domain.ProgressSummary)
		if !ok {
			return nil, false
		}
		return progress.ApplyEvent(sum, ev)
	})
	if !present {
		if len(s.early) >= maxEarlyEvents {
			s.early = s.early[1:]
		}
		s.early = append(s.early, ev)
		return
	}
	if !changed {
		s.log.Debug("event not applied to summary", "event_id", ev.EventID())
	}
}

// replayEarly applies held events to the freshly stored summary. Events at or
// before the summary's UpdatedAt are already part of it and are skipped.
func (s *Session) replayEarly() (domain.ProgressSummary, bool) {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	if len(s.early) == 0 {
		return domain.ProgressSummary{}, false
	}
	e, ok := s.cache.Update(s.summaryKey(), func(cur cache.Entry, ok bool) (any, bool) {
		if !ok {
			return nil, false
		}
		sum, ok := cur.Value.(domain.ProgressSummary)
		if !ok {
			return nil, false
		}
		since := sum.UpdatedAt
		changed := false
		for _, ev := range s.early {
			if !since.IsZero() && !ev.EventTime().After(since) {
				continue
			}
			if next, applied := progress.ApplyEvent(sum, ev); applied {
				sum = next
				changed = true
			}
		}
		s.early = nil
		return sum, changed
	})
	if !ok {
		return domain.ProgressSummary{}, false
	}
	out, ok := e.Value.(domain.ProgressSummary)
	return out, ok
}
