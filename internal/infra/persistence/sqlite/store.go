// Package sqlite keeps the demo row set in an embedded SQLite file, one
// table row per entity, and serves reads from memory.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"dashcore/internal/infra/persistence/memory"
	"dashcore/pkg/reportapi"
)

const defaultPath = "dashcore.db"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS demo_rows (
		position  INTEGER PRIMARY KEY,
		entity_id TEXT NOT NULL UNIQUE,
		zone      TEXT,
		row_json  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS demo_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

const metaUpdatedAt = "updated_at"

var sqlOpen = sql.Open

type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens or creates the database file at path and loads its rows.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}
	db, err := sqlOpen("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, ddl := range schema {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	rs, err := s.db.QueryContext(ctx, `SELECT row_json FROM demo_rows ORDER BY position`)
	if err != nil {
		return fmt.Errorf("read demo_rows: %w", err)
	}
	defer func() { _ = rs.Close() }()
	var rows []reportapi.Row
	for rs.Next() {
		var raw string
		if err := rs.Scan(&raw); err != nil {
			return fmt.Errorf("scan demo_rows: %w", err)
		}
		var row reportapi.Row
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			return fmt.Errorf("decode demo row: %w", err)
		}
		rows = append(rows, row)
	}
	if err := rs.Err(); err != nil {
		return fmt.Errorf("read demo_rows: %w", err)
	}

	var updatedAt time.Time
	var stamp string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM demo_meta WHERE key = ?`, metaUpdatedAt).Scan(&stamp)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("read demo_meta: %w", err)
	default:
		if updatedAt, err = time.Parse(time.RFC3339Nano, stamp); err != nil {
			return fmt.Errorf("decode %s: %w", metaUpdatedAt, err)
		}
	}
	if len(rows) > 0 || !updatedAt.IsZero() {
		s.ImportState(memory.Snapshot{Rows: rows, UpdatedAt: updatedAt})
	}
	return nil
}

// Replace swaps the row set in memory and rewrites both tables in one
// transaction.
func (s *Store) Replace(ctx context.Context, rows []reportapi.Row, updatedAt time.Time) error {
	if err := s.Store.Replace(ctx, rows, updatedAt); err != nil {
		return err
	}
	return s.write(ctx)
}

func (s *Store) write(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.ExportState()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM demo_rows`); err != nil {
		return fmt.Errorf("clear demo_rows: %w", err)
	}
	insert, err := tx.PrepareContext(ctx, `INSERT INTO demo_rows (position, entity_id, zone, row_json) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = insert.Close() }()
	for i, row := range snap.Rows {
		raw, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encode row %s: %w", row.EntityID, err)
		}
		if _, err := insert.ExecContext(ctx, i, row.EntityID, row.Zone, string(raw)); err != nil {
			return fmt.Errorf("insert row %s: %w", row.EntityID, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO demo_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		metaUpdatedAt, snap.UpdatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("write demo_meta: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error { return s.db.Close() }
