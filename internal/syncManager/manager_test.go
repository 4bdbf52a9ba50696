package syncManager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventDesk/internal/cache"
	"eventDesk/internal/mapper"
	"eventDesk/internal/model"
	"eventDesk/internal/remote"
	"eventDesk/internal/repo"
)

var tables = remote.Tables{Events: "events", Registrations: "registrations"}

// flakyRepo fails the first failures event pulls and can block inside a pull.
type flakyRepo struct {
	repo.Repository
	failures    int32
	eventPulls  atomic.Int32
	regPulls    atomic.Int32
	block       chan struct{}
	entered     chan struct{}
	enteredOnce sync.Once
}

func (f *flakyRepo) ListEvents(ctx context.Context) ([]model.Event, error) {
	n := f.eventPulls.Add(1)
	if f.block != nil {
		f.enteredOnce.Do(func() { close(f.entered) })
		<-f.block
	}
	if n <= f.failures {
		return nil, repo.ErrRemoteQueryFailed
	}
	return f.Repository.ListEvents(ctx)
}

func (f *flakyRepo) ListRegistrations(ctx context.Context) ([]model.Registration, error) {
	f.regPulls.Add(1)
	return f.Repository.ListRegistrations(ctx)
}

type fixture struct {
	mgr    *Manager
	repo   *flakyRepo
	store  *remote.MemoryStore
	cache  *cache.LocalCache
	delays []time.Duration
}

func newFixture(t *testing.T, failures int32) *fixture {
	t.Helper()
	log := zerolog.Nop()
	store := remote.NewMemoryStore(tables)
	base, err := repo.NewRepository(store, tables, &log)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = base.CreateEvent(ctx, mapper.Record{"name": "Remote event", "type": "leadership", "date": "2025-06-01", "active": true})
	require.NoError(t, err)

	f := &fixture{
		repo:  &flakyRepo{Repository: base, failures: failures},
		store: store,
		cache: cache.New(cache.NewMemoryStorage(), &log),
	}
	f.mgr = New(f.repo, f.cache, Config{Interval: time.Hour, RetryAttempts: 3, RetryDelay: time.Second}, &log)
	f.mgr.sleep = func(_ context.Context, d time.Duration) error {
		f.delays = append(f.delays, d)
		return nil
	}
	return f
}

func TestDefaultConfig(t *testing.T) {
	log := zerolog.Nop()
	m := New(nil, nil, Config{}, &log)
	assert.Equal(t, DefaultConfig(), m.cfg)
}

func TestSyncData_PopulatesCache(t *testing.T) {
	f := newFixture(t, 0)

	require.NoError(t, f.mgr.SyncData(context.Background()))

	events := f.cache.Events(context.Background())
	require.Len(t, events, 1)
	assert.Equal(t, "Remote event", events[0].Name)
	assert.Empty(t, f.delays)
	assert.EqualValues(t, 1, f.mgr.Status(context.Background()).Cycles)
}

func TestSyncData_RetriesWithLinearDelay(t *testing.T) {
	f := newFixture(t, 2)

	require.NoError(t, f.mgr.SyncData(context.Background()))

	assert.EqualValues(t, 3, f.repo.eventPulls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.delays)
	assert.Len(t, f.cache.Events(context.Background()), 1)
}

func TestSyncData_ExhaustedRetriesLeaveCacheUntouched(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	seeded := []model.Event{{ID: "cached", Name: "Cached"}}
	require.NoError(t, f.cache.PutEvents(ctx, seeded))

	err := f.mgr.SyncData(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, repo.ErrRemoteQueryFailed)
	assert.Equal(t, seeded, f.cache.Events(ctx))
	assert.EqualValues(t, 3, f.repo.eventPulls.Load())
	assert.Zero(t, f.repo.regPulls.Load(), "registrations are not pulled after an events failure")

	st := f.mgr.Status(ctx)
	assert.False(t, st.InProgress)
	assert.NotEmpty(t, st.LastError)
	assert.Nil(t, st.LastSyncTime)
}

func TestSyncData_AtMostOneInFlight(t *testing.T) {
	f := newFixture(t, 0)
	f.repo.block = make(chan struct{})
	f.repo.entered = make(chan struct{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- f.mgr.SyncData(ctx) }()
	<-f.repo.entered

	assert.ErrorIs(t, f.mgr.SyncData(ctx), ErrSyncInProgress)
	assert.True(t, f.mgr.Status(ctx).InProgress)

	close(f.repo.block)
	require.NoError(t, <-done)
	assert.EqualValues(t, 1, f.repo.eventPulls.Load())
	assert.EqualValues(t, 1, f.repo.regPulls.Load())
}

func TestSyncData_RemoteUnavailable(t *testing.T) {
	f := newFixture(t, 0)
	f.store.SetReady(false)

	err := f.mgr.ForceSync(context.Background())

	assert.ErrorIs(t, err, repo.ErrRemoteUnavailable)
	assert.Zero(t, f.repo.eventPulls.Load())
}

func TestSyncData_CancelledDuringBackoff(t *testing.T) {
	f := newFixture(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	f.mgr.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := f.mgr.SyncData(ctx)

	assert.True(t, errors.Is(err, context.Canceled))
	assert.EqualValues(t, 1, f.repo.eventPulls.Load())
}

func TestStartAndTrigger(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	f.mgr.Start(ctx)
	require.Eventually(t, func() bool {
		return f.mgr.Status(ctx).Cycles >= 1
	}, time.Second, 5*time.Millisecond)

	f.mgr.Trigger("visibility")
	require.Eventually(t, func() bool {
		return f.mgr.Status(ctx).Cycles >= 2
	}, time.Second, 5*time.Millisecond)

	f.mgr.Stop()
	f.mgr.Trigger("after stop")
	assert.EqualValues(t, 2, f.mgr.Status(ctx).Cycles)
}

func TestTrigger_SkipsWhenUnavailable(t *testing.T) {
	f := newFixture(t, 0)
	f.store.SetReady(false)

	f.mgr.Trigger("visibility")
	f.mgr.Stop()

	assert.Zero(t, f.repo.eventPulls.Load())
	assert.Empty(t, f.mgr.Status(context.Background()).LastError)
}

func TestTrigger_NoopOnceStopped(t *testing.T) {
	f := newFixture(t, 0)

	f.mgr.Stop()
	f.mgr.Trigger("peer change")
	f.mgr.Start(context.Background())
	f.mgr.Stop()

	assert.Zero(t, f.repo.eventPulls.Load())
	assert.Zero(t, f.mgr.Status(context.Background()).Cycles)
}

func TestTrigger_RacingStop(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.mgr.Start(ctx)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 50; j++ {
				f.mgr.Trigger("peer change")
			}
		}()
	}
	close(start)
	require.NotPanics(t, f.mgr.Stop)
	wg.Wait()

	pulls := f.repo.eventPulls.Load()
	f.mgr.Trigger("late peer change")
	assert.Equal(t, pulls, f.repo.eventPulls.Load())
	assert.False(t, f.mgr.Status(ctx).InProgress)
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))
}
