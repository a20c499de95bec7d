package session

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/cache"
	"github.com/yungbote/neurobridge-sync/internal/clients/realtime"
	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/mutation"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
)

// cacheStore adapts one cache key to mutation.Store.
type cacheStore[T any] struct {
	c   *cache.Cache
	key string
}

func (s cacheStore[T]) Load() (T, bool) { return cache.GetAs[T](s.c, s.key) }

func (s cacheStore[T]) Store(v T) {
	s.c.Update(s.key, func(cache.Entry, bool) (any, bool) { return v, true })
}

func (s cacheStore[T]) Delete() { s.c.Invalidate(s.key) }

// UpdatePreferences validates patch, shows it immediately through the cached
// preferences and rolls the cache back if the service rejects it. While the
// realtime channel is down the patch is queued and the patched value stays
// cached until the queue replays it.
func (s *Session) UpdatePreferences(ctx context.Context, patch domain.PreferencesPatch) (domain.PreferencesData, error) {
	if fe := domain.ValidateStruct(patch); fe != nil {
		err := apierr.Validation(fe.Field, fe)
		s.Dispatch(OperationFailed{Op: "preferences", Err: err})
		return domain.PreferencesData{}, err
	}
	cur, err := s.Preferences(ctx)
	if err != nil {
		return cur, err
	}
	if patch.Empty() {
		return cur, nil
	}
	store := cacheStore[domain.PreferencesData]{c: s.cache, key: s.preferencesKey()}
	if s.channel.Status().State != realtime.StateConnected {
		return s.queuePreferences(ctx, cur, patch)
	}
	res, err := mutation.Apply(ctx, store, patch.ApplyTo(cur), func(ctx context.Context) (domain.PreferencesData, error) {
		return s.svc.UpdatePreferences(ctx, s.userID, patch)
	})
	if err != nil {
		s.log.Warn("preferences update rolled back", "error", err)
		s.Dispatch(OperationFailed{Op: "preferences", Err: err})
		return res, err
	}
	s.Dispatch(OperationSucceeded{Op: "preferences"})
	return res, nil
}

func (s *Session) queuePreferences(ctx context.Context, cur domain.PreferencesData, patch domain.PreferencesPatch) (domain.PreferencesData, error) {
	m, err := realtime.NewMutation(s.userID, realtime.MutationUpdatePreferences, patch)
	if err != nil {
		return cur, err
	}
	next := patch.ApplyTo(cur)
	s.cache.Set(s.preferencesKey(), next, s.ttl)
	_, err = s.channel.Send(ctx, m)
	s.refreshQueueLength()
	if err != nil {
		s.cache.Set(s.preferencesKey(), cur, s.ttl)
		s.log.Warn("preferences update rolled back", "error", err)
		s.Dispatch(OperationFailed{Op: "preferences", Err: err})
		return cur, err
	}
	return next, nil
}

// AutosavePreferences collects patches and saves their union once edits
// pause.
func (s *Session) AutosavePreferences(patch domain.PreferencesPatch) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.patch = s.patch.Merge(patch)
	merged := s.patch
	s.mu.Unlock()
	s.autosave.Trigger(merged)
}

// FlushAutosave saves pending autosave edits now.
func (s *Session) FlushAutosave() { s.autosave.Flush() }

func (s *Session) runAutosave(ctx context.Context, patch domain.PreferencesPatch) {
	s.mu.Lock()
	s.patch = domain.PreferencesPatch{}
	s.mu.Unlock()
	if _, err := s.UpdatePreferences(ctx, patch); err != nil && ctx.Err() == nil {
		s.log.Warn("autosave failed", "error", err)
	}
}

// Search debounces query changes and reloads the feed for the last one.
func (s *Session) Search(query string) {
	s.Dispatch(QueryChanged{Query: query})
	s.search.Trigger(query)
}

func (s *Session) runSearch(ctx context.Context, query string) {
	s.feed.Reset(query)
	if _, err := s.feed.LoadMore(ctx); err != nil && ctx.Err() == nil {
		s.Dispatch(OperationFailed{Op: "search", Err: err})
	}
}

// RecordActivity shows the activity in the feed and sends it to the service,
// or queues it when offline. queued reports the latter.
func (s *Session) RecordActivity(ctx context.Context, rec domain.ActivityRecord) (domain.ActivityRecord, bool, error) {
	if !rec.Type.Known() {
		return rec, false, apierr.Validation("activity_type", errors.New("unknown activity type"))
	}
	if rec.DurationMs < 0 {
		return rec, false, apierr.Validation("duration_ms", errors.New("duration must be non-negative"))
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.UserID = s.userID
	now := s.now().UTC()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	m, err := realtime.NewMutation(s.userID, realtime.MutationRecordActivity, rec)
	if err != nil {
		return rec, false, err
	}
	s.feed.Prepend(rec)
	queued, err := s.channel.Send(ctx, m)
	s.refreshQueueLength()
	if err != nil {
		s.feed.Remove(rec.ID)
		s.Dispatch(OperationFailed{Op: "activity", Err: err})
		return rec, false, err
	}
	return rec, queued, nil
}

// SetConsent toggles one consent category. The change is visible at once and
// reverts if the service rejects it.
func (s *Session) SetConsent(ctx context.Context, t domain.ConsentType, granted bool, purpose string) (domain.ConsentHistoryEntry, error) {
	entry, err := s.consent.Set(ctx, t, granted, purpose)
	if err != nil {
		s.Dispatch(OperationFailed{Op: "consent", Err: err})
		return entry, err
	}
	s.Dispatch(OperationSucceeded{Op: "consent"})
	return entry, nil
}
