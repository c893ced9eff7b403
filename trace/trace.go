// Package trace registers the "sqlite-trace" database/sql driver, a thin
// wrapper over modernc.org/sqlite that times every statement. Each statement
// is logged through slog (Debug normally, Warn past SlowThreshold, Error on
// failure) and, when a recorder is installed, handed to it for persistence.
//
//	import _ "github.com/hazyhaar/rewind/trace"
//	db, err := dbopen.Open(path, dbopen.WithTrace())
//
// The observability database must keep the plain "sqlite" driver, otherwise
// recording a trace would itself be traced.
package trace

import (
	"database/sql"
	"sync/atomic"
	"time"

	sqlite "modernc.org/sqlite"
)

// Entry describes one executed statement.
type Entry struct {
	TraceID  string
	Op       string // "Exec" or "Query"
	Query    string
	Duration time.Duration
	Err      error
}

// RecorderFunc receives statements that were slow or failed. It runs on the
// caller's goroutine and must not block.
type RecorderFunc func(Entry)

// SlowThreshold is the duration past which a statement is logged at Warn and
// forwarded to the recorder.
var SlowThreshold = 100 * time.Millisecond

var recorder atomic.Pointer[RecorderFunc]

// SetRecorder installs fn as the recorder. nil disables recording.
func SetRecorder(fn RecorderFunc) {
	if fn == nil {
		recorder.Store(nil)
		return
	}
	recorder.Store(&fn)
}

func currentRecorder() RecorderFunc {
	if p := recorder.Load(); p != nil {
		return *p
	}
	return nil
}

func init() {
	sql.Register("sqlite-trace", &TracingDriver{Driver: &sqlite.Driver{}})
}
