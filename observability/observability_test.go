package observability

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/rewind/dbopen"
)

func setupObsDB(t *testing.T) *sql.DB {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := Init(db); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestInit_CreatesTables(t *testing.T) {
	db := setupObsDB(t)
	for _, table := range []string{"metrics_timeseries", "worker_heartbeats", "events"} {
		var n int
		db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
		if n != 1 {
			t.Fatalf("table %s not found", table)
		}
	}
	if err := Init(db); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}

func TestMetricsManager_FlushOnClose(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)

	mm.RecordSimple(MetricEntriesIngested, 1, "count")
	mm.Record(&Metric{
		Name:      MetricIngestDurationMs,
		Timestamp: time.Now(),
		Value:     42,
		Unit:      "ms",
		Labels:    map[string]string{"monitor": "0"},
	})
	mm.Close()
	mm.Close()

	got, err := mm.Query(context.Background(), MetricIngestDurationMs, time.Now().Add(-time.Minute), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("datapoints: got %d, want 1", len(got))
	}
	if got[0].Value != 42 || got[0].Labels["monitor"] != "0" || got[0].Unit != "ms" {
		t.Fatalf("datapoint: %+v", got[0])
	}

	all, err := mm.Query(context.Background(), "", time.Time{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("all datapoints: got %d, want 2", len(all))
	}
}

func TestMetricsManager_FlushWhenFull(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 2, time.Hour)
	defer mm.Close()

	mm.RecordSimple(MetricFramesCaptured, 1, "count")
	mm.RecordSimple(MetricFramesCaptured, 1, "count")

	var n int
	db.QueryRow("SELECT COUNT(*) FROM metrics_timeseries").Scan(&n)
	if n != 2 {
		t.Fatalf("rows after full buffer: got %d, want 2", n)
	}
}

func TestHeartbeat(t *testing.T) {
	db := setupObsDB(t)
	ctx := context.Background()

	hs, err := LatestHeartbeat(ctx, db, "rewind_capture", time.Minute)
	if err != nil || hs != nil {
		t.Fatalf("before any beat: got %+v, %v", hs, err)
	}

	hw := NewHeartbeatWriter(db, "rewind_capture", time.Hour)
	runCtx, cancel := context.WithCancel(ctx)
	go hw.Run(runCtx)
	deadline := time.Now().Add(2 * time.Second)
	for {
		hs, err = LatestHeartbeat(ctx, db, "rewind_capture", time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		if hs != nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-hw.Done()

	if hs == nil || !hs.Alive {
		t.Fatalf("heartbeat: got %+v, want alive", hs)
	}
}

func TestEventLogger(t *testing.T) {
	db := setupObsDB(t)
	l := NewEventLogger(db)
	ctx := context.Background()

	l.Log(ctx, Event{Type: EventCapturePaused, Success: true})
	l.Log(ctx, Event{Type: EventCapturePaused, Success: true})
	l.Log(ctx, Event{Type: EventArchiveSweep, Details: `{"archived":3}`, Success: true})

	n, err := l.Count(ctx, EventCapturePaused)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("paused events: got %d, want 2", n)
	}
}
