package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maejeom/market-game/internal/model"
	"github.com/maejeom/market-game/internal/simulator"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and then refresh the cache; reads
// check Redis first then fall back to the primary. Redis errors never fail
// a call, they only cost a round trip to the primary.
type CachedStore struct {
	primary Store
	rdb     redis.UniversalClient
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.UniversalClient, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, then cache) ---

func (s *CachedStore) SaveState(ctx context.Context, sessionID string, state model.LedgerState) error {
	if err := s.primary.SaveState(ctx, sessionID, state); err != nil {
		// The primary may or may not have applied it; drop the cached copy.
		s.invalidate(ctx, stateKey(sessionID))
		return err
	}
	s.cache(ctx, stateKey(sessionID), state)
	return nil
}

func (s *CachedStore) SaveSeries(ctx context.Context, sessionID string, series *simulator.Series) error {
	if err := s.primary.SaveSeries(ctx, sessionID, series); err != nil {
		s.invalidate(ctx, seriesKey(sessionID))
		return err
	}
	s.cache(ctx, seriesKey(sessionID), series)
	return nil
}

func (s *CachedStore) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.primary.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	s.invalidate(ctx, stateKey(sessionID), seriesKey(sessionID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) LoadState(ctx context.Context, sessionID string) (*model.LedgerState, error) {
	var st model.LedgerState
	if s.lookup(ctx, stateKey(sessionID), &st) {
		return &st, nil
	}

	// Cache miss: read from primary.
	loaded, err := s.primary.LoadState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, stateKey(sessionID), loaded)
	return loaded, nil
}

func (s *CachedStore) LoadSeries(ctx context.Context, sessionID string) (*simulator.Series, error) {
	var series simulator.Series
	if s.lookup(ctx, seriesKey(sessionID), &series) {
		return &series, nil
	}

	loaded, err := s.primary.LoadSeries(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, seriesKey(sessionID), loaded)
	return loaded, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListSessions(ctx context.Context) ([]string, error) {
	return s.primary.ListSessions(ctx)
}

// --- Cache helpers ---

// lookup decodes the cached value at key into dst and reports a hit.
func (s *CachedStore) lookup(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("cache read failed", "key", key, "err", err)
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		slog.Warn("cache entry corrupt, dropping", "key", key, "err", err)
		s.invalidate(ctx, key)
		return false
	}
	return true
}

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
		slog.Warn("cache write failed", "key", key, "err", err)
	}
}

func (s *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("cache invalidate failed", "keys", keys, "err", err)
	}
}

func stateKey(id string) string  { return fmt.Sprintf("session:state:%s", id) }
func seriesKey(id string) string { return fmt.Sprintf("session:series:%s", id) }
