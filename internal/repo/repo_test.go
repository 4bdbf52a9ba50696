package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventDesk/internal/mapper"
	"eventDesk/internal/model"
	"eventDesk/internal/remote"
)

var tables = remote.Tables{Events: "events", Registrations: "registrations"}

func newTestRepo(t *testing.T) (Repository, *remote.MemoryStore) {
	t.Helper()
	store := remote.NewMemoryStore(tables)
	log := zerolog.Nop()
	r, err := NewRepository(store, tables, &log)
	require.NoError(t, err)
	return r, store
}

type failingStore struct {
	*remote.MemoryStore
}

var errBoom = errors.New("boom")

func (failingStore) Select(context.Context, string, remote.Query) ([]mapper.Record, error) {
	return nil, errBoom
}

func (failingStore) Insert(context.Context, string, mapper.Record) (mapper.Record, error) {
	return nil, errBoom
}

func TestNewRepository_Validation(t *testing.T) {
	log := zerolog.Nop()
	_, err := NewRepository(nil, tables, &log)
	assert.Error(t, err)
	_, err = NewRepository(remote.NewMemoryStore(tables), remote.Tables{}, &log)
	assert.Error(t, err)
}

func TestEvents_CreateListUpdateDelete(t *testing.T) {
	r, store := newTestRepo(t)
	ctx := context.Background()

	later, err := r.CreateEvent(ctx, mapper.Record{"name": "Later", "type": "leadership", "date": "2025-07-01", "active": true, "time": "09:30"})
	require.NoError(t, err)
	earlier, err := r.CreateEvent(ctx, mapper.Record{"name": "Earlier", "type": "leadership", "date": "2025-06-01", "active": true})
	require.NoError(t, err)
	assert.NotEmpty(t, later.ID)
	require.NotNil(t, later.Time)
	assert.Equal(t, "09:30", *later.Time)
	assert.NotNil(t, later.CreatedAt)

	raw, err := store.Select(ctx, "events", remote.Query{Eq: map[string]string{"id": later.ID}})
	require.NoError(t, err)
	assert.Equal(t, "09:30", raw[0]["event_time"], "stored with wire column names")

	events, err := r.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, earlier.ID, events[0].ID)

	updated, err := r.UpdateEvent(ctx, earlier.ID, mapper.Record{"location": "Room 1", "id": "hijack"})
	require.NoError(t, err)
	assert.Equal(t, earlier.ID, updated.ID)
	require.NotNil(t, updated.Location)
	assert.Equal(t, "Room 1", *updated.Location)

	require.NoError(t, r.DeleteEvent(ctx, earlier.ID))
	_, err = r.GetEvent(ctx, earlier.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWritesOnMissingID(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := r.UpdateEvent(ctx, "nope", mapper.Record{"name": "x"})
	assert.ErrorIs(t, err, ErrRemoteWriteFailed)
	assert.ErrorIs(t, err, ErrNotFound)

	err = r.DeleteRegistration(ctx, "nope")
	assert.ErrorIs(t, err, ErrRemoteWriteFailed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistrations_JoinAndOrder(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	ev, err := r.CreateEvent(ctx, mapper.Record{"name": "Art", "type": "art-workshop", "date": "2025-06-01", "active": true})
	require.NoError(t, err)

	_, err = r.CreateRegistration(ctx, mapper.Record{
		"eventId": ev.ID, "name": "First", "status": "pending",
		"submittedAt": "2025-05-01T10:00:00Z", "eventName": "must not be stored",
	})
	require.NoError(t, err)
	second, err := r.CreateRegistration(ctx, mapper.Record{
		"eventId": "gone", "name": "Second", "status": "pending", "className": "3B",
		"submittedAt": "2025-05-02T10:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, model.DeletedEventName, second.EventName)
	require.NotNil(t, second.ClassName)
	assert.Equal(t, "3B", *second.ClassName)

	regs, err := r.ListRegistrations(ctx)
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.Equal(t, "Second", regs[0].Name, "newest submission first")
	assert.Equal(t, "Art", regs[1].EventName)
	assert.Equal(t, model.DeletedEventName, regs[0].EventName)

	byEvent, err := r.ListRegistrationsByEvent(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, byEvent, 1)
	assert.Equal(t, "First", byEvent[0].Name)
}

func TestRegistrations_DerivedFieldNotWritten(t *testing.T) {
	r, store := newTestRepo(t)
	ctx := context.Background()

	reg, err := r.CreateRegistration(ctx, mapper.Record{"eventId": "e", "name": "n", "eventName": "x"})
	require.NoError(t, err)

	raw, err := store.Select(ctx, "registrations", remote.Query{Eq: map[string]string{"id": reg.ID}})
	require.NoError(t, err)
	assert.NotContains(t, raw[0], "eventName")
	assert.NotContains(t, raw[0], "event_name")
}

func TestUpdateRegistration(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	reg, err := r.CreateRegistration(ctx, mapper.Record{"eventId": "e", "name": "n", "status": "pending"})
	require.NoError(t, err)

	updated, err := r.UpdateRegistration(ctx, reg.ID, mapper.Record{"status": "processed"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, updated.Status)

	got, err := r.GetRegistration(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, got.Status)
}

func TestUnavailable(t *testing.T) {
	r, store := newTestRepo(t)
	store.SetReady(false)
	ctx := context.Background()

	assert.False(t, r.Available())
	_, err := r.ListEvents(ctx)
	assert.ErrorIs(t, err, ErrRemoteUnavailable)
	_, err = r.CreateRegistration(ctx, mapper.Record{"name": "x"})
	assert.ErrorIs(t, err, ErrRemoteUnavailable)
	assert.ErrorIs(t, r.DeleteEvent(ctx, "x"), ErrRemoteUnavailable)

	store.SetReady(true)
	assert.True(t, r.Available(), "availability is re-evaluated per call")
}

func TestRemoteErrorsAreClassified(t *testing.T) {
	store := failingStore{remote.NewMemoryStore(tables)}
	log := zerolog.Nop()
	r, err := NewRepository(store, tables, &log)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = r.ListRegistrations(ctx)
	assert.ErrorIs(t, err, ErrRemoteQueryFailed)
	assert.ErrorIs(t, err, errBoom)

	_, err = r.CreateEvent(ctx, mapper.Record{"name": "x"})
	assert.ErrorIs(t, err, ErrRemoteWriteFailed)
	assert.NotErrorIs(t, err, ErrNotFound)
}
