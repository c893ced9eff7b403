package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// HeartbeatWriter periodically records that a named worker is alive, along
// with goroutine count and heap size.
type HeartbeatWriter struct {
	db         *sql.DB
	workerName string
	hostname   string
	pid        int
	interval   time.Duration
	done       chan struct{}
}

func NewHeartbeatWriter(db *sql.DB, workerName string, interval time.Duration) *HeartbeatWriter {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &HeartbeatWriter{
		db:         db,
		workerName: workerName,
		hostname:   hostname,
		pid:        os.Getpid(),
		interval:   interval,
		done:       make(chan struct{}),
	}
}

// Run writes one heartbeat immediately and then one per interval until ctx
// is cancelled.
func (hw *HeartbeatWriter) Run(ctx context.Context) {
	defer close(hw.done)
	ticker := time.NewTicker(hw.interval)
	defer ticker.Stop()
	for {
		if err := hw.Write(ctx); err != nil {
			slog.Warn("observability: heartbeat", "error", err, "worker", hw.workerName)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Done is closed when Run returns.
func (hw *HeartbeatWriter) Done() <-chan struct{} { return hw.done }

func (hw *HeartbeatWriter) Write(ctx context.Context) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	_, err := hw.db.ExecContext(ctx, `
		INSERT INTO worker_heartbeats (worker_name, hostname, worker_pid, timestamp, goroutines_count, memory_alloc_mb)
		VALUES (?,?,?,?,?,?)`,
		hw.workerName, hw.hostname, hw.pid, time.Now().Unix(),
		runtime.NumGoroutine(), float64(mem.Alloc)/1024/1024)
	if err != nil {
		return fmt.Errorf("insert heartbeat: %w", err)
	}
	return nil
}

// HeartbeatStatus is the most recent heartbeat of a worker.
type HeartbeatStatus struct {
	WorkerName string    `json:"worker_name"`
	Timestamp  time.Time `json:"timestamp"`
	Alive      bool      `json:"alive"`
}

// LatestHeartbeat returns the newest heartbeat of workerName, or nil if none
// was written. Alive is true when it is younger than staleAfter.
func LatestHeartbeat(ctx context.Context, db *sql.DB, workerName string, staleAfter time.Duration) (*HeartbeatStatus, error) {
	var ts int64
	err := db.QueryRowContext(ctx,
		`SELECT timestamp FROM worker_heartbeats WHERE worker_name = ? ORDER BY timestamp DESC, id DESC LIMIT 1`,
		workerName).Scan(&ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query heartbeat: %w", err)
	}
	at := time.Unix(ts, 0)
	return &HeartbeatStatus{
		WorkerName: workerName,
		Timestamp:  at,
		Alive:      time.Since(at) <= staleAfter,
	}, nil
}
