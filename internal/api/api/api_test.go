package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/ginext"

	"eventDesk/cmd/middleware"
	"eventDesk/internal/cache"
	"eventDesk/internal/model"
	"eventDesk/internal/remote"
	"eventDesk/internal/repo"
	"eventDesk/internal/service"
	"eventDesk/internal/syncManager"
)

var tables = remote.Tables{Events: "events", Registrations: "registrations"}

type fakeSyncer struct {
	err   error
	calls int
}

func (f *fakeSyncer) ForceSync(context.Context) error {
	f.calls++
	return f.err
}

func (f *fakeSyncer) Status(context.Context) syncManager.Status {
	return syncManager.Status{RemoteAvailable: true, Cycles: int64(f.calls)}
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, time.Hour, nil
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *struct {
		Code string `json:"code"`
		Desc string `json:"desc"`
	} `json:"error"`
}

type testServer struct {
	app   *ginext.Engine
	store *remote.MemoryStore
	sync  *fakeSyncer
}

func newServer(t *testing.T, limiter middleware.Limiter) *testServer {
	t.Helper()
	log := zerolog.Nop()
	store := remote.NewMemoryStore(tables)
	r, err := repo.NewRepository(store, tables, &log)
	require.NoError(t, err)
	svc := service.NewService(r, cache.New(cache.NewMemoryStorage(), &log), &log,
		service.WithClock(func() time.Time { return time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC) }))

	ts := &testServer{store: store, sync: &fakeSyncer{}}
	ts.app = NewRouters(&Routers{
		Service:   svc,
		Sync:      ts.sync,
		Limiter:   limiter,
		RateLimit: middleware.DefaultRateLimitConfig(),
		Log:       &log,
		Mode:      "test",
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.app.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (ts *testServer) createEvent(t *testing.T, body map[string]any) model.Event {
	t.Helper()
	w, env := ts.do(t, http.MethodPost, "/v1/events", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ev model.Event
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	return ev
}

func eventBody() map[string]any {
	return map[string]any{"name": "Parent night", "type": "parent-education", "date": "2025-06-01", "capacity": 1}
}

func TestEventLifecycle(t *testing.T) {
	ts := newServer(t, nil)

	ev := ts.createEvent(t, eventBody())
	assert.NotEmpty(t, ev.ID)
	assert.True(t, ev.Active)

	w, env := ts.do(t, http.MethodGet, "/v1/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list service.EventList
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Items, 1)
	assert.False(t, list.FromCache)

	w, env = ts.do(t, http.MethodPut, "/v1/events/"+ev.ID, map[string]any{"name": "Parents night"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated model.Event
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "Parents night", updated.Name)

	w, _ = ts.do(t, http.MethodDelete, "/v1/events/"+ev.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, env = ts.do(t, http.MethodGet, "/v1/events/"+ev.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestErrorMapping(t *testing.T) {
	ts := newServer(t, nil)
	ev := ts.createEvent(t, eventBody())

	w, env := ts.do(t, http.MethodPost, "/v1/events", map[string]any{"name": "", "type": "party", "date": "soon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "FIELD_INCORRECT", env.Error.Code)

	w, env = ts.do(t, http.MethodGet, "/v1/events?all=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "FIELD_BADFORMAT", env.Error.Code)

	w, env = ts.do(t, http.MethodPut, "/v1/events/missing", map[string]any{"name": "X"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	reg := map[string]any{"name": "Jane Doe", "email": "jane@example.org"}
	w, _ = ts.do(t, http.MethodPost, "/v1/events/"+ev.ID+"/registrations", reg)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env = ts.do(t, http.MethodPost, "/v1/events/"+ev.ID+"/registrations", map[string]any{"name": "John Roe", "phone": "0912345678"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "EVENT_FULL", env.Error.Code)

	ts.store.SetReady(false)
	w, env = ts.do(t, http.MethodPost, "/v1/events", eventBody())
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "REMOTE_UNAVAILABLE", env.Error.Code)

	w, env = ts.do(t, http.MethodGet, "/v1/registrations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var regs service.RegistrationList
	require.NoError(t, json.Unmarshal(env.Data, &regs))
	assert.True(t, regs.FromCache)
	assert.Len(t, regs.Items, 1)
}

func TestRegistrationAdmin(t *testing.T) {
	ts := newServer(t, nil)
	ev := ts.createEvent(t, map[string]any{"name": "Art", "type": "art-workshop", "date": "2025-06-01"})

	for _, name := range []string{"Jane Doe", "John Roe"} {
		w, _ := ts.do(t, http.MethodPost, "/v1/events/"+ev.ID+"/registrations", map[string]any{"name": name, "phone": "0912345678"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w, env := ts.do(t, http.MethodGet, "/v1/registrations?search=jane", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list service.RegistrationList
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Art", list.Items[0].EventName)
	id := list.Items[0].ID

	w, _ = ts.do(t, http.MethodGet, "/v1/registrations?period=decade", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = ts.do(t, http.MethodPatch, "/v1/registrations/"+id, map[string]any{"status": "processed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = ts.do(t, http.MethodPatch, "/v1/registrations/"+id, map[string]any{"status": "pending"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "FIELD_INCORRECT", env.Error.Code)

	w, env = ts.do(t, http.MethodGet, "/v1/registrations/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st service.Stats
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Pending)

	w, _ = ts.do(t, http.MethodGet, "/v1/registrations/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "registrations_")
	assert.Contains(t, w.Body.String(), "Jane Doe")
	assert.Contains(t, w.Body.String(), "Processed")

	w, _ = ts.do(t, http.MethodDelete, "/v1/registrations/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, env = ts.do(t, http.MethodDelete, "/v1/registrations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":1}`, string(env.Data))

	w, env = ts.do(t, http.MethodGet, "/v1/registrations/export", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimitedSubmission(t *testing.T) {
	ts := newServer(t, denyAll{})
	ev := ts.createEvent(t, eventBody())

	w, env := ts.do(t, http.MethodPost, "/v1/events/"+ev.ID+"/registrations", map[string]any{"name": "Jane Doe", "email": "jane@example.org"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "TOO_MANY_REQUESTS", env.Error.Code)

	w, _ = ts.do(t, http.MethodGet, "/v1/events", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSyncEndpoints(t *testing.T) {
	ts := newServer(t, nil)

	w, env := ts.do(t, http.MethodPost, "/v1/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st syncManager.Status
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, int64(1), st.Cycles)

	ts.sync.err = syncManager.ErrSyncInProgress
	w, env = ts.do(t, http.MethodPost, "/v1/sync", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SYNC_IN_PROGRESS", env.Error.Code)

	ts.sync.err = repo.ErrRemoteUnavailable
	w, _ = ts.do(t, http.MethodPost, "/v1/sync", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, _ = ts.do(t, http.MethodGet, "/v1/sync/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
