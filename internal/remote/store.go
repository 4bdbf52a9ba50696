// Package remote talks to the authoritative store that holds events and
// registrations. Records cross this boundary in wire (snake_case) form.
package remote

import (
	"context"
	"errors"

	"eventDesk/internal/mapper"
)

var (
	ErrNoRows         = errors.New("no rows matched")
	ErrNotInitialized = errors.New("remote store not initialized")
)

type Query struct {
	Eq        map[string]string
	Order     string
	Ascending bool
	Limit     int
}

type Store interface {
	// Ready is a local check of the initialization flag, never a network probe.
	Ready() bool
	Select(ctx context.Context, table string, q Query) ([]mapper.Record, error)
	Insert(ctx context.Context, table string, row mapper.Record) (mapper.Record, error)
	Update(ctx context.Context, table, id string, patch mapper.Record) (mapper.Record, error)
	Delete(ctx context.Context, table, id string) error
}

type Tables struct {
	Events        string
	Registrations string
}
