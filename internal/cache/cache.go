// Package cache is the local read accelerator and offline fallback for
// events and registrations. Each collection is stored as one JSON blob.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"eventDesk/internal/model"
)

type Collection string

const (
	Events        Collection = "events"
	Registrations Collection = "registrations"
)

// ErrCacheCorrupt is logged when a stored blob cannot be parsed. Callers
// never receive it; the collection reads as empty instead.
var ErrCacheCorrupt = errors.New("cache corrupt")

func (c Collection) lastUpdatedKey() string { return string(c) + "LastUpdated" }

type LocalCache struct {
	store Storage
	log   *zerolog.Logger
	now   func() time.Time
	mu    sync.Mutex
}

func New(store Storage, log *zerolog.Logger) *LocalCache {
	return &LocalCache{store: store, log: log, now: time.Now}
}

func (c *LocalCache) Storage() Storage { return c.store }

func (c *LocalCache) Events(ctx context.Context) []model.Event {
	out := load[model.Event](ctx, c, Events)
	if out == nil {
		out = []model.Event{}
	}
	return out
}

func (c *LocalCache) Registrations(ctx context.Context) []model.Registration {
	out := load[model.Registration](ctx, c, Registrations)
	if out == nil {
		out = []model.Registration{}
	}
	return out
}

func (c *LocalCache) PutEvents(ctx context.Context, events []model.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.put(ctx, Events, events)
}

func (c *LocalCache) PutRegistrations(ctx context.Context, regs []model.Registration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.put(ctx, Registrations, regs)
}

// MutateEvents runs fn over the cached events and stores its result.
// The read-modify-write is serialized against every other cache write.
func (c *LocalCache) MutateEvents(ctx context.Context, fn func([]model.Event) []model.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.put(ctx, Events, fn(load[model.Event](ctx, c, Events)))
}

func (c *LocalCache) MutateRegistrations(ctx context.Context, fn func([]model.Registration) []model.Registration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.put(ctx, Registrations, fn(load[model.Registration](ctx, c, Registrations)))
}

func (c *LocalCache) Clear(ctx context.Context, col Collection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Remove(ctx, string(col)); err != nil {
		return fmt.Errorf("clear %s: %w", col, err)
	}
	return c.store.Remove(ctx, col.lastUpdatedKey())
}

// Touch records the current time as the collection's last write.
func (c *LocalCache) Touch(ctx context.Context, col Collection) error {
	stamp := c.now().UTC().Format(time.RFC3339Nano)
	if err := c.store.Set(ctx, col.lastUpdatedKey(), stamp); err != nil {
		return fmt.Errorf("touch %s: %w", col, err)
	}
	return nil
}

func (c *LocalCache) LastUpdated(ctx context.Context, col Collection) (time.Time, bool) {
	raw, ok, err := c.store.Get(ctx, col.lastUpdatedKey())
	if err != nil || !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (c *LocalCache) put(ctx context.Context, col Collection, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", col, err)
	}
	if err := c.store.Set(ctx, string(col), string(raw)); err != nil {
		return fmt.Errorf("put %s: %w", col, err)
	}
	return c.Touch(ctx, col)
}

// load decodes a collection blob. A blob that does not decode cleanly,
// including a type mismatch in a single entry, reads as empty.
func load[T any](ctx context.Context, c *LocalCache, col Collection) []T {
	raw, ok, err := c.store.Get(ctx, string(col))
	if err != nil {
		c.log.Warn().Err(err).Str("collection", string(col)).Msg("cache read failed")
		return nil
	}
	if !ok || raw == "" {
		return nil
	}
	var out []T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		c.log.Error().
			Err(fmt.Errorf("%w: %v", ErrCacheCorrupt, err)).
			Str("collection", string(col)).
			Msg("discarding unreadable cache blob")
		return nil
	}
	return out
}
