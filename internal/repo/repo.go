package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"eventDesk/internal/mapper"
	"eventDesk/internal/model"
	"eventDesk/internal/remote"
)

var (
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	ErrRemoteQueryFailed = errors.New("remote query failed")
	ErrRemoteWriteFailed = errors.New("remote write failed")
	ErrNotFound          = errors.New("record not found")
)

type Repository interface {
	Available() bool

	ListEvents(ctx context.Context) ([]model.Event, error)
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	CreateEvent(ctx context.Context, fields mapper.Record) (*model.Event, error)
	UpdateEvent(ctx context.Context, id string, patch mapper.Record) (*model.Event, error)
	DeleteEvent(ctx context.Context, id string) error

	ListRegistrations(ctx context.Context) ([]model.Registration, error)
	ListRegistrationsByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
	GetRegistration(ctx context.Context, id string) (*model.Registration, error)
	CreateRegistration(ctx context.Context, fields mapper.Record) (*model.Registration, error)
	UpdateRegistration(ctx context.Context, id string, patch mapper.Record) (*model.Registration, error)
	DeleteRegistration(ctx context.Context, id string) error
}

type repository struct {
	store  remote.Store
	tables remote.Tables
	log    *zerolog.Logger
}

func NewRepository(store remote.Store, tables remote.Tables, log *zerolog.Logger) (Repository, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if tables.Events == "" || tables.Registrations == "" {
		return nil, fmt.Errorf("table names cannot be empty")
	}
	return &repository{store: store, tables: tables, log: log}, nil
}

// Available is evaluated on every call; the store flag may flip at runtime.
func (r *repository) Available() bool {
	return r.store.Ready()
}

// serverManaged are internal keys the store owns and callers never send.
var serverManaged = []string{"id", "createdAt", "updatedAt"}

func (r *repository) ListEvents(ctx context.Context) ([]model.Event, error) {
	if !r.Available() {
		return nil, ErrRemoteUnavailable
	}
	rows, err := r.store.Select(ctx, r.tables.Events, remote.Query{Order: "date", Ascending: true})
	if err != nil {
		r.log.Error().Err(err).Msg("failed to list events")
		return nil, errors.Join(ErrRemoteQueryFailed, err)
	}
	return decodeAll[model.Event](mapper.Events(), rows)
}

func (r *repository) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if !r.Available() {
		return nil, ErrRemoteUnavailable
	}
	rows, err := r.store.Select(ctx, r.tables.Events, remote.Query{Eq: map[string]string{"id": id}, Limit: 1})
	if err != nil {
		return nil, errors.Join(ErrRemoteQueryFailed, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return decodeOne[model.Event](mapper.Events(), rows[0])
}

func (r *repository) CreateEvent(ctx context.Context, fields mapper.Record) (*model.Event, error) {
	if !r.Available() {
		return nil, ErrRemoteUnavailable
	}
	row, err := r.store.Insert(ctx, r.tables.Events, mapper.Events().ToWire(fields.Without(serverManaged...)))
	if err != nil {
		r.log.Error().Err(err).Msg("failed to create event")
		return nil, errors.Join(ErrRemoteWriteFailed, err)
	}
	return decodeOne[model.Event](mapper.Events(), row)
}

func (r *repository) UpdateEvent(ctx context.Context, id string, patch mapper.Record) (*model.Event, error) {
	if !r.Available() {
		return nil, ErrRemoteUnavailable
	}
	row, err := r.store.Update(ctx, r.tables.Events, id, mapper.Events().ToWire(patch.Without(serverManaged...)))
	if err != nil {
		return nil, r.writeErr("update event", id, err)
	}
	return decodeOne[model.Event](mapper.Events(), row)
}

func (r *repository) DeleteEvent(ctx context.Context, id string) error {
	if !r.Available() {
		return ErrRemoteUnavailable
	}
	if err := r.store.Delete(ctx, r.tables.Events, id); err != nil {
		return r.writeErr("delete event", id, err)
	}
	return nil
}

func (r *repository) ListRegistrations(ctx context.Context) ([]model.Registration, error) {
	return r.listRegistrations(ctx, nil)
}

func (r *repository) ListRegistrationsByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	return r.listRegistrations(ctx, map[string]string{"event_id": eventID})
}

func (r *repository) listRegistrations(ctx context.Context, eq map[string]string) ([]model.Registration, error) {
	if !r.Available() {
		return nil, ErrRemoteUnavailable
	}
	rows, err := r.store.Select(ctx, r.tables.Registrations, remote.Query{Eq: eq, Order: "submitted_at"})
	if err != nil {
		r.log.Error().Err(err).Msg("failed to list registrations")
		return nil, errors.Join(ErrRemoteQueryFailed, err)
	}
	regs, err := decodeAll[model.Registration](mapper.Registrations(), rows)
	if err != nil {
		return nil, err
	}
	names, err := r.eventNames(ctx)
	if err != nil {
		return nil, err
	}
	for i := range regs {
		regs[i].EventName = joinName(names, regs[i].EventID)
	}
	return regs, nil
}

func (r *repository) GetRegistration(ctx context.Context, id string) (*model.Registration, error) {
	if !r.Available() {
		return nil, ErrRemoteUnavailable
	}
	rows, err := r.store.Select(ctx, r.tables.Registrations, remote.Query{Eq: map[string]string{"id": id}, Limit: 1})
	if err != nil {
		return nil, errors.Join(ErrRemoteQueryFailed, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("registration %s: %w", id, ErrNotFound)
	}
	reg, err := decodeOne[model.Registration](mapper.Registrations(), rows[0])
	if err != nil {
		return nil, err
	}
	return r.withEventName(ctx, reg), nil
}

func (r *repository) CreateRegistration(ctx context.Context, fields mapper.Record) (*model.Registration, error) {
	if !r.Available() {
		return nil, ErrRemoteUnavailable
	}
	out := mapper.Registrations().ToWire(fields.Without(append(serverManaged, model.Derived...)...))
	row, err := r.store.Insert(ctx, r.tables.Registrations, out)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to create registration")
		return nil, errors.Join(ErrRemoteWriteFailed, err)
	}
	reg, err := decodeOne[model.Registration](mapper.Registrations(), row)
	if err != nil {
		return nil, err
	}
	return r.withEventName(ctx, reg), nil
}

func (r *repository) UpdateRegistration(ctx context.Context, id string, patch mapper.Record) (*model.Registration, error) {
	if !r.Available() {
		return nil, ErrRemoteUnavailable
	}
	out := mapper.Registrations().ToWire(patch.Without(append(serverManaged, model.Derived...)...))
	row, err := r.store.Update(ctx, r.tables.Registrations, id, out)
	if err != nil {
		return nil, r.writeErr("update registration", id, err)
	}
	reg, err := decodeOne[model.Registration](mapper.Registrations(), row)
	if err != nil {
		return nil, err
	}
	return r.withEventName(ctx, reg), nil
}

func (r *repository) DeleteRegistration(ctx context.Context, id string) error {
	if !r.Available() {
		return ErrRemoteUnavailable
	}
	if err := r.store.Delete(ctx, r.tables.Registrations, id); err != nil {
		return r.writeErr("delete registration", id, err)
	}
	return nil
}

// writeErr classifies a failed write. A missing id is a write failure that
// also matches ErrNotFound.
func (r *repository) writeErr(op, id string, err error) error {
	r.log.Error().Err(err).Str("id", id).Msgf("failed to %s", op)
	if errors.Is(err, remote.ErrNoRows) {
		return fmt.Errorf("%s %s: %w: %w", op, id, ErrRemoteWriteFailed, ErrNotFound)
	}
	return errors.Join(ErrRemoteWriteFailed, err)
}

func (r *repository) eventNames(ctx context.Context) (map[string]string, error) {
	rows, err := r.store.Select(ctx, r.tables.Events, remote.Query{})
	if err != nil {
		return nil, errors.Join(ErrRemoteQueryFailed, err)
	}
	names := make(map[string]string, len(rows))
	for _, row := range rows {
		id, _ := row["id"].(string)
		name, _ := row["name"].(string)
		names[id] = name
	}
	return names, nil
}

// withEventName fills the display name; a failed lookup degrades to the
// deleted-event label instead of failing the write that preceded it.
func (r *repository) withEventName(ctx context.Context, reg *model.Registration) *model.Registration {
	names, err := r.eventNames(ctx)
	if err != nil {
		r.log.Warn().Err(err).Str("registration_id", reg.ID).Msg("event name lookup failed")
	}
	reg.EventName = joinName(names, reg.EventID)
	return reg
}

func joinName(names map[string]string, eventID string) string {
	if name, ok := names[eventID]; ok && eventID != "" {
		return name
	}
	return model.DeletedEventName
}

func decodeOne[T any](m *mapper.FieldMapper, row mapper.Record) (*T, error) {
	var v T
	if err := mapper.Decode(m.ToInternal(row), &v); err != nil {
		return nil, errors.Join(ErrRemoteQueryFailed, err)
	}
	return &v, nil
}

func decodeAll[T any](m *mapper.FieldMapper, rows []mapper.Record) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		v, err := decodeOne[T](m, row)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}
