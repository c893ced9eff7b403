package observability

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/hazyhaar/rewind/idgen"
)

// Event types recorded by rewind.
const (
	EventCapturePaused  = "capture_paused"
	EventCaptureResumed = "capture_resumed"
	EventArchiveSweep   = "archive_sweep"
	EventAdhocIngested  = "adhoc_ingested"
)

// Event is a domain occurrence worth keeping beyond the logs.
type Event struct {
	Type     string
	EntityID string
	Details  string // JSON, optional
	Success  bool
}

// EventLogger writes events. It never returns errors to callers.
type EventLogger struct {
	db    *sql.DB
	newID idgen.Generator
}

func NewEventLogger(db *sql.DB) *EventLogger {
	return &EventLogger{db: db, newID: idgen.Prefixed("evt_", idgen.Default)}
}

func (l *EventLogger) Log(ctx context.Context, e Event) {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO events (event_id, event_type, entity_id, details, success, created_at) VALUES (?,?,?,?,?,?)`,
		l.newID(), e.Type, e.EntityID, e.Details, e.Success, time.Now().Unix())
	if err != nil {
		slog.Warn("observability: event", "error", err, "event_type", e.Type)
	}
}

// Count returns how many events of eventType were logged.
func (l *EventLogger) Count(ctx context.Context, eventType string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE event_type = ?`, eventType).Scan(&n)
	return n, err
}
