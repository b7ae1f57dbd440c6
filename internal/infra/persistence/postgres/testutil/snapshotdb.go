// Package testutil provides a fake database/sql backend that understands the
// demo_snapshot statements issued by the postgres row store.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
)

var ErrInjected = errors.New("injected failure")

// SnapshotDB holds the demo_snapshot buckets in memory. The Fail* switches
// make the matching driver call return ErrInjected.
type SnapshotDB struct {
	mu         sync.Mutex
	Statements []string
	Buckets    map[string][]byte

	FailPing   bool
	FailBegin  bool
	FailCommit bool
	FailSelect bool
	FailUpsert string
}

// Open returns a *sql.DB wired to a fresh SnapshotDB.
func Open() (*sql.DB, *SnapshotDB) {
	fake := &SnapshotDB{Buckets: map[string][]byte{}}
	return sql.OpenDB(connector{fake}), fake
}

// Seed stores a bucket as if an earlier process had written it.
func (f *SnapshotDB) Seed(bucket string, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Buckets[bucket] = slices.Clone(payload)
}

// Bucket returns a stored payload.
func (f *SnapshotDB) Bucket(name string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.Buckets[name]
	return slices.Clone(p), ok
}

// Executed reports whether any statement containing fragment ran.
func (f *SnapshotDB) Executed(fragment string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, stmt := range f.Statements {
		if strings.Contains(strings.ToUpper(stmt), strings.ToUpper(fragment)) {
			return true
		}
	}
	return false
}

type connector struct{ fake *SnapshotDB }

func (c connector) Connect(context.Context) (driver.Conn, error) { return &conn{fake: c.fake}, nil }
func (c connector) Driver() driver.Driver                        { return fakeDriver{} }

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("snapshotdb: use testutil.Open")
}

// conn stages upserts until commit.
type conn struct {
	fake   *SnapshotDB
	staged map[string][]byte
	inTx   bool
}

func (c *conn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("snapshotdb: prepared statements not supported")
}

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.fake.FailBegin {
		return nil, fmt.Errorf("begin: %w", ErrInjected)
	}
	c.inTx = true
	c.staged = map[string][]byte{}
	return tx{c}, nil
}

func (c *conn) Ping(context.Context) error {
	if c.fake.FailPing {
		return fmt.Errorf("ping: %w", ErrInjected)
	}
	return nil
}

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.fake.mu.Lock()
	c.fake.Statements = append(c.fake.Statements, query)
	c.fake.mu.Unlock()

	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "INSERT INTO DEMO_SNAPSHOT") {
		return driver.RowsAffected(0), nil
	}
	if len(args) != 2 {
		return nil, fmt.Errorf("snapshotdb: upsert wants 2 args, got %d", len(args))
	}
	bucket, _ := args[0].Value.(string)
	payload, _ := args[1].Value.([]byte)
	if bucket == c.fake.FailUpsert {
		return nil, fmt.Errorf("upsert %s: %w", bucket, ErrInjected)
	}
	if c.inTx {
		c.staged[bucket] = slices.Clone(payload)
	} else {
		c.fake.Seed(bucket, payload)
	}
	return driver.RowsAffected(1), nil
}

func (c *conn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if c.fake.FailSelect {
		return nil, fmt.Errorf("select: %w", ErrInjected)
	}
	if !strings.Contains(strings.ToLower(query), "from demo_snapshot") {
		return nil, fmt.Errorf("snapshotdb: unsupported query %q", query)
	}
	c.fake.mu.Lock()
	defer c.fake.mu.Unlock()
	names := make([]string, 0, len(c.fake.Buckets))
	for name := range c.fake.Buckets {
		names = append(names, name)
	}
	slices.Sort(names)
	out := &rows{}
	for _, name := range names {
		out.values = append(out.values, []driver.Value{name, slices.Clone(c.fake.Buckets[name])})
	}
	return out, nil
}

type tx struct{ c *conn }

func (t tx) Commit() error {
	defer func() { t.c.inTx, t.c.staged = false, nil }()
	if t.c.fake.FailCommit {
		return fmt.Errorf("commit: %w", ErrInjected)
	}
	for name, payload := range t.c.staged {
		t.c.fake.Seed(name, payload)
	}
	return nil
}

func (t tx) Rollback() error {
	t.c.inTx, t.c.staged = false, nil
	return nil
}

type rows struct {
	values [][]driver.Value
	next   int
}

func (r *rows) Columns() []string { return []string{"bucket", "payload"} }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.next >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.next])
	r.next++
	return nil
}
