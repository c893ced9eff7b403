// Package dbopen opens SQLite databases with the pragmas every rewind store
// relies on: WAL journaling so the capture loop and HTTP readers do not
// block each other, a generous busy timeout, and NORMAL synchronous mode.
//
//	import _ "modernc.org/sqlite"
//	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(ddl))
//
// Use WithTrace to route statements through the "sqlite-trace" driver
// registered by package trace.
package dbopen

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type options struct {
	driver      string
	busyTimeout int
	synchronous string
	mkdirAll    bool
	schemas     []string
	ping        bool
}

func defaults() options {
	return options{
		driver:      "sqlite",
		busyTimeout: 10_000,
		synchronous: "NORMAL",
		ping:        true,
	}
}

// Option customises Open.
type Option func(*options)

// WithDriver sets the database/sql driver name. Default "sqlite".
func WithDriver(name string) Option { return func(o *options) { o.driver = name } }

// WithTrace selects the "sqlite-trace" driver.
func WithTrace() Option { return WithDriver("sqlite-trace") }

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds.
func WithBusyTimeout(ms int) Option { return func(o *options) { o.busyTimeout = ms } }

// WithSynchronous sets PRAGMA synchronous.
func WithSynchronous(mode string) Option { return func(o *options) { o.synchronous = mode } }

// WithMkdirAll creates the parent directory of the database file.
func WithMkdirAll() Option { return func(o *options) { o.mkdirAll = true } }

// WithSchema queues DDL to run once the database is open. Statements must be idempotent.
func WithSchema(ddl string) Option {
	return func(o *options) { o.schemas = append(o.schemas, ddl) }
}

// WithoutPing skips the connectivity check.
func WithoutPing() Option { return func(o *options) { o.ping = false } }

// Open opens the database at path. The driver must already be registered.
func Open(path string, opts ...Option) (*sql.DB, error) {
	o := defaults()
	for _, fn := range opts {
		fn(&o)
	}

	if o.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open(o.driver, dsn(path, o))
	if err != nil {
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}

	for _, ddl := range o.schemas {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: schema: %w", err)
		}
	}

	if o.ping {
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: ping: %w", err)
		}
	}
	return db, nil
}

// dsn carries the pragmas as _pragma query parameters, which the driver
// applies to every new connection of the pool, not only the first one.
func dsn(path string, o options) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", o.busyTimeout))
	q.Add("_pragma", fmt.Sprintf("synchronous(%s)", o.synchronous))
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}

// OpenMemory opens a private in-memory database for tests. A single
// connection is kept so every query sees the same database.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
