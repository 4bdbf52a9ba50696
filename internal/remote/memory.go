package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"eventDesk/internal/mapper"
)

// MemoryStore is an in-process Store. It assigns ids and timestamps the
// way the hosted store does, which makes it usable for local runs and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	tables Tables
	rows   map[string][]mapper.Record
	ready  atomic.Bool
	now    func() time.Time
}

func NewMemoryStore(tables Tables) *MemoryStore {
	s := &MemoryStore{
		tables: tables,
		rows:   make(map[string][]mapper.Record),
		now:    time.Now,
	}
	s.ready.Store(true)
	return s
}

// SetReady flips the availability flag, simulating an unconfigured or lost backend.
func (s *MemoryStore) SetReady(ready bool) { s.ready.Store(ready) }

func (s *MemoryStore) Ready() bool { return s.ready.Load() }

func (s *MemoryStore) Select(_ context.Context, table string, q Query) ([]mapper.Record, error) {
	if !s.Ready() {
		return nil, ErrNotInitialized
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]mapper.Record, 0, len(s.rows[table]))
	for _, row := range s.rows[table] {
		if matches(row, q.Eq) {
			out = append(out, clone(row))
		}
	}
	if q.Order != "" {
		sort.SliceStable(out, func(i, j int) bool {
			less := compare(out[i][q.Order], out[j][q.Order]) < 0
			if q.Ascending {
				return less
			}
			return compare(out[j][q.Order], out[i][q.Order]) < 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Insert(_ context.Context, table string, row mapper.Record) (mapper.Record, error) {
	if !s.Ready() {
		return nil, ErrNotInitialized
	}
	stored := clone(row)
	if id, _ := stored["id"].(string); id == "" {
		stored["id"] = uuid.NewString()
	}
	stamp := s.now().UTC().Format(time.RFC3339Nano)
	if table == s.tables.Events {
		stored["created_at"] = stamp
	}
	stored["updated_at"] = stamp

	s.mu.Lock()
	s.rows[table] = append(s.rows[table], stored)
	s.mu.Unlock()
	return clone(stored), nil
}

func (s *MemoryStore) Update(_ context.Context, table, id string, patch mapper.Record) (mapper.Record, error) {
	if !s.Ready() {
		return nil, ErrNotInitialized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows[table] {
		if row["id"] != id {
			continue
		}
		for k, v := range patch {
			if k == "id" {
				continue
			}
			row[k] = v
		}
		row["updated_at"] = s.now().UTC().Format(time.RFC3339Nano)
		return clone(row), nil
	}
	return nil, fmt.Errorf("update %s/%s: %w", table, id, ErrNoRows)
}

func (s *MemoryStore) Delete(_ context.Context, table, id string) error {
	if !s.Ready() {
		return ErrNotInitialized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.rows[table]
	for i, row := range rows {
		if row["id"] == id {
			s.rows[table] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("delete %s/%s: %w", table, id, ErrNoRows)
}

func matches(row mapper.Record, eq map[string]string) bool {
	for k, want := range eq {
		if fmt.Sprint(row[k]) != want {
			return false
		}
	}
	return true
}

func clone(r mapper.Record) mapper.Record {
	out := make(mapper.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// compare orders nils first, then numbers numerically, then strings.
func compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	if ta, err := time.Parse(time.RFC3339Nano, sa); err == nil {
		if tb, err := time.Parse(time.RFC3339Nano, sb); err == nil {
			return ta.Compare(tb)
		}
	}
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
