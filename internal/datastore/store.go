// Package datastore gives each project access to its own SQL database.
//
// Connections are never pooled across calls: every Query and Exec opens the
// database, runs one statement and closes it again.
package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Driver names registered by the imported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNoRef is returned when a project has no database reference
var ErrNoRef = errors.New("datastore reference is empty")

// ExecResult reports the effect of a write statement
type ExecResult struct {
	Changes int64 `json:"changes"`
	LastID  int64 `json:"lastID"`
}

// Store is a per-project database reference
type Store struct {
	driver  string
	dsn     string
	timeout time.Duration
}

// Open resolves ref to a driver. postgres:// and postgresql:// URLs use
// PostgreSQL; anything else is treated as a SQLite file path.
// No connection is made until the first statement.
func Open(ref string, timeout time.Duration) (*Store, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrNoRef
	}
	s := &Store{driver: DriverSQLite, dsn: ref, timeout: timeout}
	if strings.HasPrefix(ref, "postgres://") || strings.HasPrefix(ref, "postgresql://") {
		s.driver = DriverPostgres
	}
	return s, nil
}

// Driver returns the SQL driver name
func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) open(ctx context.Context) (*sql.DB, context.Context, context.CancelFunc, error) {
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open %s store: %w", s.driver, err)
	}
	db.SetMaxOpenConns(1)

	cancel := context.CancelFunc(func() {})
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	return db, ctx, cancel, nil
}

// Query runs a statement and returns every row as a column map.
// Byte slices are returned as strings.
func (s *Store) Query(ctx context.Context, query string, params []any) ([]map[string]any, error) {
	db, ctx, cancel, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	defer cancel()

	rows, err := db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// Exec runs a write statement
func (s *Store) Exec(ctx context.Context, query string, params []any) (ExecResult, error) {
	db, ctx, cancel, err := s.open(ctx)
	if err != nil {
		return ExecResult{}, err
	}
	defer db.Close()
	defer cancel()

	res, err := db.ExecContext(ctx, query, params...)
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec: %w", err)
	}

	var out ExecResult
	if n, err := res.RowsAffected(); err == nil {
		out.Changes = n
	}
	// PostgreSQL does not report insert ids
	if id, err := res.LastInsertId(); err == nil {
		out.LastID = id
	}
	return out, nil
}

// Tables lists user tables of the store
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	query := `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	if s.driver == DriverPostgres {
		query = `SELECT table_name AS name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name`
	}
	rows, err := s.Query(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, fmt.Sprint(row["name"]))
	}
	return names, nil
}
