package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// RefreshKey is written and immediately cleared to tell other instances
// that shared data changed.
const RefreshKey = "dataNeedsRefresh"

type Broadcaster struct {
	store Storage
	log   *zerolog.Logger
}

func NewBroadcaster(store Storage, log *zerolog.Logger) *Broadcaster {
	return &Broadcaster{store: store, log: log}
}

// Notify never fails the caller; a lost signal is caught by the next periodic sync.
func (b *Broadcaster) Notify(ctx context.Context, collection string) {
	stamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := b.store.Set(ctx, RefreshKey, stamp); err != nil {
		b.log.Warn().Err(err).Str("collection", collection).Msg("refresh broadcast failed")
		return
	}
	if err := b.store.Remove(ctx, RefreshKey); err != nil {
		b.log.Warn().Err(err).Msg("failed to clear refresh key")
	}
}

// Listen calls fn whenever the refresh key is observed to change. A single
// Notify shows up twice (write, clear), so fn must tolerate repeats.
// It returns immediately if the storage cannot report changes.
func Listen(ctx context.Context, store Storage, log *zerolog.Logger, fn func()) {
	w, ok := store.(Watcher)
	if !ok {
		log.Debug().Msg("storage has no change feed, refresh signals disabled")
		return
	}
	keys, err := w.Watch(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to watch storage")
		return
	}
	go func() {
		for key := range keys {
			if key == RefreshKey {
				fn()
			}
		}
	}()
}
