// Package postgres keeps the demo row set in a Postgres snapshot table and
// serves reads from an in-memory copy.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"dashcore/internal/infra/persistence/memory"
	"dashcore/pkg/reportapi"
)

const (
	driverName = "pgx"
	defaultDSN = "postgres://localhost/dashcore?sslmode=disable"

	createSnapshotTable = `CREATE TABLE IF NOT EXISTS demo_snapshot (
		bucket     TEXT PRIMARY KEY,
		payload    JSONB NOT NULL,
		written_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	selectSnapshot = `SELECT bucket, payload FROM demo_snapshot`
	upsertBucket   = `INSERT INTO demo_snapshot (bucket, payload) VALUES ($1, $2)
		ON CONFLICT (bucket) DO UPDATE SET payload = EXCLUDED.payload, written_at = now()`

	bucketRows      = "rows"
	bucketUpdatedAt = "updated_at"
)

// Store writes every Replace through to Postgres.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore connects to dsn (defaultDSN when empty), creates the snapshot
// table when missing and loads any existing snapshot.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s, err := newStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func newStore(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, createSnapshotTable); err != nil {
		return nil, fmt.Errorf("create demo_snapshot: %w", err)
	}
	snapshot, err := load(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore()
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db}, nil
}

func (s *Store) Replace(ctx context.Context, rows []reportapi.Row, updatedAt time.Time) error {
	if err := s.Store.Replace(ctx, rows, updatedAt); err != nil {
		return err
	}
	return s.flush(ctx)
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func load(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, selectSnapshot)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("read demo_snapshot: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snap memory.Snapshot
	for rows.Next() {
		var (
			bucket  string
			payload []byte
		)
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan demo_snapshot: %w", err)
		}
		switch bucket {
		case bucketRows:
			err = json.Unmarshal(payload, &snap.Rows)
		case bucketUpdatedAt:
			err = json.Unmarshal(payload, &snap.UpdatedAt)
		default:
			continue
		}
		if err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode bucket %s: %w", bucket, err)
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("read demo_snapshot: %w", err)
	}
	return snap, nil
}

// flush upserts both buckets in one transaction.
func (s *Store) flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.ExportState()
	rowsJSON, err := json.Marshal(snap.Rows)
	if err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}
	updatedJSON, err := json.Marshal(snap.UpdatedAt)
	if err != nil {
		return fmt.Errorf("encode updated_at: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, b := range []struct {
		name    string
		payload []byte
	}{{bucketRows, rowsJSON}, {bucketUpdatedAt, updatedJSON}} {
		if _, err := tx.ExecContext(ctx, upsertBucket, b.name, b.payload); err != nil {
			return fmt.Errorf("upsert %s: %w", b.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
