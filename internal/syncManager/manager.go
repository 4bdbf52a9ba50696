// Package syncManager keeps the local cache in step with the remote store.
// At most one sync cycle runs at a time; requests that arrive during a
// cycle are dropped, not queued.
package syncManager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"eventDesk/internal/cache"
	"eventDesk/internal/model"
	"eventDesk/internal/repo"
)

var ErrSyncInProgress = errors.New("sync already in progress")

type Config struct {
	Interval      time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:      5 * time.Minute,
		RetryAttempts: 3,
		RetryDelay:    2 * time.Second,
	}
}

type Status struct {
	InProgress      bool       `json:"inProgress"`
	RemoteAvailable bool       `json:"remoteAvailable"`
	LastSyncTime    *time.Time `json:"lastSyncTime,omitempty"`
	LastError       string     `json:"lastError,omitempty"`
	Cycles          int64      `json:"cycles"`
	EventsCachedAt  *time.Time `json:"eventsCachedAt,omitempty"`
	RegsCachedAt    *time.Time `json:"registrationsCachedAt,omitempty"`
}

type Manager struct {
	repo  repo.Repository
	cache *cache.LocalCache
	cfg   Config
	log   *zerolog.Logger
	sleep func(ctx context.Context, d time.Duration) error

	syncing atomic.Bool
	cycles  atomic.Int64

	mu       sync.RWMutex
	lastSync time.Time
	lastErr  error

	// life guards loopCtx, cancel and stopped, and orders wg.Add against Stop.
	life    sync.Mutex
	loopCtx context.Context
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

func New(r repo.Repository, c *cache.LocalCache, cfg Config, log *zerolog.Logger) *Manager {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = def.RetryAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	return &Manager{
		repo:  r,
		cache: c,
		cfg:   cfg,
		log:   log,
		sleep: sleepCtx,
	}
}

// SyncData runs one cycle. It returns ErrSyncInProgress without doing any
// work if another cycle is running.
func (m *Manager) SyncData(ctx context.Context) error {
	if !m.repo.Available() {
		return repo.ErrRemoteUnavailable
	}
	if !m.syncing.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	defer m.syncing.Store(false)

	err := m.cycle(ctx)

	m.mu.Lock()
	m.lastErr = err
	if err == nil {
		m.lastSync = time.Now()
	}
	m.mu.Unlock()
	return err
}

// ForceSync is the manual entry point; every failure reaches the caller.
func (m *Manager) ForceSync(ctx context.Context) error {
	m.log.Info().Msg("forced sync requested")
	return m.SyncData(ctx)
}

func (m *Manager) cycle(ctx context.Context) error {
	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= m.cfg.RetryAttempts; attempt++ {
		events, regs, err := m.pull(ctx)
		if err == nil {
			if err := m.store(ctx, events, regs); err != nil {
				return err
			}
			n := m.cycles.Add(1)
			m.log.Info().
				Int("events", len(events)).
				Int("registrations", len(regs)).
				Int("attempt", attempt).
				Int64("cycle", n).
				Dur("took", time.Since(start)).
				Msg("sync completed")
			return nil
		}
		lastErr = err
		m.log.Warn().Err(err).Int("attempt", attempt).Int("max", m.cfg.RetryAttempts).Msg("sync attempt failed")

		if attempt < m.cfg.RetryAttempts {
			if err := m.sleep(ctx, m.cfg.RetryDelay*time.Duration(attempt)); err != nil {
				return err
			}
		}
	}
	m.log.Error().Err(lastErr).Msg("sync failed after all retries")
	return fmt.Errorf("sync failed after %d attempts: %w", m.cfg.RetryAttempts, lastErr)
}

// pull reads events before registrations; registration rows carry event names.
func (m *Manager) pull(ctx context.Context) ([]model.Event, []model.Registration, error) {
	events, err := m.repo.ListEvents(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("pull events: %w", err)
	}
	regs, err := m.repo.ListRegistrations(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("pull registrations: %w", err)
	}
	return events, regs, nil
}

func (m *Manager) store(ctx context.Context, events []model.Event, regs []model.Registration) error {
	if err := m.cache.PutEvents(ctx, events); err != nil {
		return fmt.Errorf("cache events: %w", err)
	}
	if err := m.cache.PutRegistrations(ctx, regs); err != nil {
		return fmt.Errorf("cache registrations: %w", err)
	}
	return nil
}

// Start runs the initial sync and then one per interval until ctx ends or Stop is called.
func (m *Manager) Start(ctx context.Context) {
	m.life.Lock()
	if m.stopped || m.cancel != nil {
		m.life.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.loopCtx, m.cancel = loopCtx, cancel
	m.wg.Add(1)
	m.life.Unlock()

	go func() {
		defer m.wg.Done()
		m.run(loopCtx, "startup")

		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				m.log.Info().Msg("sync loop stopped")
				return
			case <-ticker.C:
				m.run(loopCtx, "interval")
			}
		}
	}()
	m.log.Info().Dur("interval", m.cfg.Interval).Msg("sync loop started")
}

// Trigger requests a background sync, e.g. when a client regains focus or
// another instance reports a change. It never blocks and does nothing once
// Stop has been called.
func (m *Manager) Trigger(reason string) {
	m.life.Lock()
	ctx := m.loopCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if m.stopped || ctx.Err() != nil {
		m.life.Unlock()
		return
	}
	m.wg.Add(1)
	m.life.Unlock()

	go func() {
		defer m.wg.Done()
		m.run(ctx, reason)
	}()
}

// run swallows failures; the next tick retries.
func (m *Manager) run(ctx context.Context, reason string) {
	if !m.repo.Available() {
		m.log.Debug().Str("reason", reason).Msg("remote unavailable, sync skipped")
		return
	}
	err := m.SyncData(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrSyncInProgress):
		m.log.Debug().Str("reason", reason).Msg("sync already running, request dropped")
	default:
		m.log.Error().Err(err).Str("reason", reason).Msg("background sync failed")
	}
}

func (m *Manager) Stop() {
	m.life.Lock()
	m.stopped = true
	if m.cancel != nil {
		m.cancel()
	}
	m.life.Unlock()
	m.wg.Wait()
}

func (m *Manager) Status(ctx context.Context) Status {
	m.mu.RLock()
	st := Status{
		InProgress:      m.syncing.Load(),
		RemoteAvailable: m.repo.Available(),
		Cycles:          m.cycles.Load(),
	}
	if !m.lastSync.IsZero() {
		t := m.lastSync
		st.LastSyncTime = &t
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()

	if t, ok := m.cache.LastUpdated(ctx, cache.Events); ok {
		st.EventsCachedAt = &t
	}
	if t, ok := m.cache.LastUpdated(ctx, cache.Registrations); ok {
		st.RegsCachedAt = &t
	}
	return st
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
