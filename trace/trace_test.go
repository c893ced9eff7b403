package trace

import (
	"database/sql"
	"sync"
	"testing"
	"time"
)

func openTraced(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite-trace", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDriver_ExecAndQuery(t *testing.T) {
	db := openTraced(t)
	if _, err := db.Exec("CREATE TABLE t (v INTEGER)"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("INSERT INTO t (v) VALUES (?)", 3); err != nil {
		t.Fatal(err)
	}
	var v int
	if err := db.QueryRow("SELECT v FROM t").Scan(&v); err != nil {
		t.Fatal(err)
	}
	if v != 3 {
		t.Fatalf("got %d, want 3", v)
	}
}

func TestRecorder_ReceivesFailures(t *testing.T) {
	var (
		mu  sync.Mutex
		got []Entry
	)
	SetRecorder(func(e Entry) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})
	t.Cleanup(func() { SetRecorder(nil) })

	db := openTraced(t)
	if _, err := db.Exec("CREATE TABLE t (v INTEGER UNIQUE)"); err != nil {
		t.Fatal(err)
	}
	db.Exec("INSERT INTO t (v) VALUES (1)")
	if _, err := db.Exec("INSERT INTO t (v) VALUES (1)"); err == nil {
		t.Fatal("expected unique violation")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("recorded %d entries, want 1 (only the failure)", len(got))
	}
	if got[0].Op != "Exec" || got[0].Err == nil {
		t.Fatalf("entry: %+v", got[0])
	}
}

func TestRecorder_SlowThreshold(t *testing.T) {
	old := SlowThreshold
	SlowThreshold = -time.Nanosecond
	t.Cleanup(func() { SlowThreshold = old })

	var n int
	SetRecorder(func(Entry) { n++ })
	t.Cleanup(func() { SetRecorder(nil) })

	db := openTraced(t)
	if _, err := db.Exec("CREATE TABLE t (v INTEGER)"); err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Fatal("statement above threshold was not recorded")
	}
}
