package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/i474232898/weather-dashboard/internal/store"
)

// Entry is the persisted shape of a cached payload. Timestamp is Unix milliseconds.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// FetchedAt returns the entry timestamp as a time.
func (e Entry) FetchedAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

// Cache is a TTL cache of JSON payloads on top of a store.Store.
// An entry is fresh while now - fetchedAt < ttl.
type Cache struct {
	store store.Store
	ttl   time.Duration
	now   Clock
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the wall clock.
func WithClock(now Clock) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a Cache with the given TTL.
func New(s store.Store, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		store: s,
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured validity window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Now returns the cache's notion of the current time.
func (c *Cache) Now() time.Time {
	return c.now()
}

// Load decodes a fresh entry for key into v. It reports a miss (false) when the
// key is absent, expired, or unreadable; only store failures are returned as errors.
func (c *Cache) Load(ctx context.Context, key string, v any) (time.Time, bool, error) {
	raw, err := c.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("cache get %s: %w", key, err)
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache: discarding unreadable entry")
		return time.Time{}, false, nil
	}

	fetchedAt := e.FetchedAt()
	if c.now().Sub(fetchedAt) >= c.ttl {
		return fetchedAt, false, nil
	}

	if err := json.Unmarshal(e.Data, v); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache: discarding entry with unexpected payload")
		return time.Time{}, false, nil
	}
	return fetchedAt, true, nil
}

// Save overwrites the entry for key with v stamped at the current time.
func (c *Cache) Save(ctx context.Context, key string, v any) (time.Time, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("cache encode %s: %w", key, err)
	}

	now := c.now()
	raw, err := json.Marshal(Entry{Data: data, Timestamp: now.UnixMilli()})
	if err != nil {
		return time.Time{}, fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.store.Set(ctx, key, raw); err != nil {
		return time.Time{}, fmt.Errorf("cache set %s: %w", key, err)
	}
	return now, nil
}

// Peek returns the stored entry for key regardless of freshness.
func (c *Cache) Peek(ctx context.Context, key string) (Entry, bool) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false
	}
	return e, true
}
