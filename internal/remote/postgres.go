package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"eventDesk/internal/mapper"
)

// PostgresStore is a Store over a direct Postgres connection. Rows are
// exchanged as jsonb so the wire shape matches the REST backend.
type PostgresStore struct {
	db    *dbpg.DB
	log   *zerolog.Logger
	ready atomic.Bool
}

func NewPostgresStore(db *dbpg.DB, log *zerolog.Logger) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	s := &PostgresStore{db: db, log: log}
	if err := db.Master.Ping(); err != nil {
		log.Warn().Err(err).Msg("postgres ping failed, store starts unavailable")
		return s, nil
	}
	s.ready.Store(true)
	return s, nil
}

func (s *PostgresStore) Ready() bool { return s.ready.Load() }

func (s *PostgresStore) MigrateUp(ctx context.Context, migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}
	sort.Strings(files)
	for _, file := range files {
		if err := s.execFile(ctx, file); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}
	s.log.Info().Int("files", len(files)).Str("dir", migrationsDir).Msg("migrations applied")
	return nil
}

func (s *PostgresStore) MigrateDown(ctx context.Context, migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.down.sql"))
	if err != nil {
		return fmt.Errorf("failed to read rollback files: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	for _, file := range files {
		if err := s.execFile(ctx, file); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", file, err)
		}
	}
	s.log.Info().Int("files", len(files)).Str("dir", migrationsDir).Msg("migrations rolled back")
	return nil
}

func (s *PostgresStore) execFile(ctx context.Context, file string) error {
	sqlBytes, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(sqlBytes))
	return err
}

func (s *PostgresStore) Select(ctx context.Context, table string, q Query) ([]mapper.Record, error) {
	if !s.Ready() {
		return nil, ErrNotInitialized
	}
	var (
		b    strings.Builder
		args []any
	)
	fmt.Fprintf(&b, "SELECT to_jsonb(t) FROM %s t", pq.QuoteIdentifier(table))

	cols := make([]string, 0, len(q.Eq))
	for col := range q.Eq {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for i, col := range cols {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		args = append(args, q.Eq[col])
		fmt.Fprintf(&b, "t.%s::text = $%d", pq.QuoteIdentifier(col), len(args))
	}
	if q.Order != "" {
		dir := "DESC"
		if q.Ascending {
			dir = "ASC"
		}
		fmt.Fprintf(&b, " ORDER BY t.%s %s", pq.QuoteIdentifier(q.Order), dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var out []mapper.Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("select %s: %w", table, err)
		}
		rec, err := decodeRow(raw)
		if err != nil {
			return nil, fmt.Errorf("select %s: %w", table, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return out, nil
}

// Insert writes only the supplied columns so omitted ones keep their defaults.
func (s *PostgresStore) Insert(ctx context.Context, table string, row mapper.Record) (mapper.Record, error) {
	if !s.Ready() {
		return nil, ErrNotInitialized
	}
	payload, cols, err := encodeRow(row)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	qt := pq.QuoteIdentifier(table)
	query := fmt.Sprintf(
		"INSERT INTO %s AS t (%s) SELECT %s FROM jsonb_populate_record(NULL::%s, $1::jsonb) RETURNING to_jsonb(t)",
		qt, cols, cols, qt,
	)
	var raw []byte
	if err := s.db.Master.QueryRowContext(ctx, query, payload).Scan(&raw); err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	return decodeRow(raw)
}

func (s *PostgresStore) Update(ctx context.Context, table, id string, patch mapper.Record) (mapper.Record, error) {
	if !s.Ready() {
		return nil, ErrNotInitialized
	}
	patch = patch.Without("id", "updated_at")
	qt := pq.QuoteIdentifier(table)

	var query string
	var args []any
	if len(patch) == 0 {
		query = fmt.Sprintf("UPDATE %s AS t SET updated_at = now() WHERE t.id::text = $1 RETURNING to_jsonb(t)", qt)
		args = []any{id}
	} else {
		payload, cols, err := encodeRow(patch)
		if err != nil {
			return nil, fmt.Errorf("update %s/%s: %w", table, id, err)
		}
		query = fmt.Sprintf(
			"UPDATE %s AS t SET (%s) = (SELECT %s FROM jsonb_populate_record(NULL::%s, $2::jsonb)), updated_at = now() WHERE t.id::text = $1 RETURNING to_jsonb(t)",
			qt, cols, cols, qt,
		)
		args = []any{id, payload}
	}

	var raw []byte
	err := s.db.Master.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update %s/%s: %w", table, id, ErrNoRows)
	}
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", table, id, err)
	}
	return decodeRow(raw)
}

func (s *PostgresStore) Delete(ctx context.Context, table, id string) error {
	if !s.Ready() {
		return ErrNotInitialized
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id::text = $1", pq.QuoteIdentifier(table))
	res, err := s.db.Master.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s/%s: %w", table, id, ErrNoRows)
	}
	return nil
}

// encodeRow returns the jsonb payload and the quoted, sorted column list.
func encodeRow(row mapper.Record) ([]byte, string, error) {
	if len(row) == 0 {
		return nil, "", errors.New("no columns to write")
	}
	names := make([]string, 0, len(row))
	for k := range row {
		names = append(names, k)
	}
	sort.Strings(names)
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = pq.QuoteIdentifier(n)
	}
	payload, err := json.Marshal(row)
	if err != nil {
		return nil, "", err
	}
	return payload, strings.Join(quoted, ", "), nil
}

func decodeRow(raw []byte) (mapper.Record, error) {
	var rec mapper.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return rec, nil
}
