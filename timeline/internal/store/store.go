// Package store persists timeline entries in SQLite. Entries are immutable
// and unique per second: the timestamp column carries a UNIQUE constraint
// and inserts use ON CONFLICT DO NOTHING, so concurrent writers never need
// application-level locking.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hazyhaar/rewind/dbopen"
	"github.com/hazyhaar/rewind/embedder"
)

// Entry is one recorded moment.
type Entry struct {
	ID        int64     `json:"id"`
	App       string    `json:"app"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Timestamp int64     `json:"timestamp"`
	Embedding []float32 `json:"-"`
	Filename  string    `json:"filename"`
	PageURL   string    `json:"page_url,omitempty"`
}

// Store is the timeline database handle.
type Store struct {
	DB *sql.DB
}

// Open opens or creates the database at path and brings its schema up to
// date.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	db, err := dbopen.Open(path, append([]dbopen.Option{dbopen.WithMkdirAll()}, opts...)...)
	if err != nil {
		return nil, err
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New applies the schema and migrations to an open database.
func New(db *sql.DB) (*Store, error) {
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// migrate creates missing tables and adds columns introduced after the
// database was created. Existing rows are never touched.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("store: schema: %w", err)
	}
	have, err := columns(db)
	if err != nil {
		return err
	}
	for _, c := range addedColumns {
		if have[c.name] {
			continue
		}
		if _, err := db.Exec(c.ddl); err != nil {
			return fmt.Errorf("store: add column %s: %w", c.name, err)
		}
	}
	return nil
}

func columns(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query("PRAGMA table_info(entries)")
	if err != nil {
		return nil, fmt.Errorf("store: table_info: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("store: scan table_info: %w", err)
		}
		out[name] = true
	}
	return out, rows.Err()
}

// Insert stores e. inserted is false, with a nil error, when an entry with
// the same timestamp already exists; the existing entry is kept.
func (s *Store) Insert(ctx context.Context, e *Entry) (id int64, inserted bool, err error) {
	var pageURL sql.NullString
	if e.PageURL != "" {
		pageURL = sql.NullString{String: e.PageURL, Valid: true}
	}
	res, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO entries (app, title, text, timestamp, embedding, filename, page_url)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(timestamp) DO NOTHING`,
		e.App, e.Title, e.Text, e.Timestamp, embedder.Encode(e.Embedding), e.Filename, pageURL)
	if err != nil {
		// A constraint failure that slipped past ON CONFLICT still means
		// another writer won the second.
		if existing, gerr := s.GetByTimestamp(ctx, e.Timestamp); gerr == nil && existing != nil {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("store: insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return 0, false, nil
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("store: last insert id: %w", err)
	}
	e.ID = id
	return id, true, nil
}

// Databases written before the NOT NULL defaults may hold NULLs.
const selectEntry = `SELECT id, COALESCE(app, ''), COALESCE(title, ''), COALESCE(text, ''), timestamp,
	embedding, COALESCE(filename, ''), page_url FROM entries`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e       Entry
		blob    []byte
		pageURL sql.NullString
	)
	if err := row.Scan(&e.ID, &e.App, &e.Title, &e.Text, &e.Timestamp, &blob, &e.Filename, &pageURL); err != nil {
		return nil, err
	}
	e.Embedding = embedder.Decode(blob)
	e.PageURL = pageURL.String
	return &e, nil
}

// GetAll returns every entry, newest first.
func (s *Store) GetAll(ctx context.Context) ([]*Entry, error) {
	rows, err := s.DB.QueryContext(ctx, selectEntry+` ORDER BY timestamp DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: get all: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetByTimestamp returns the entry recorded at ts, or nil if there is none.
func (s *Store) GetByTimestamp(ctx context.Context, ts int64) (*Entry, error) {
	e, err := scanEntry(s.DB.QueryRowContext(ctx, selectEntry+` WHERE timestamp = ?`, ts))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %d: %w", ts, err)
	}
	return e, nil
}

// ListTimestamps returns all entry timestamps, newest first.
func (s *Store) ListTimestamps(ctx context.Context) ([]int64, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT timestamp FROM entries ORDER BY timestamp DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list timestamps: %w", err)
	}
	defer rows.Close()

	out := []int64{}
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("store: scan timestamp: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// Count returns the number of entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}
