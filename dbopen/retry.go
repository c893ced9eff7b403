package dbopen

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

const busyAttempts = 3

// IsBusy reports whether err is an SQLite lock contention error.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// Exec runs a write statement, retrying up to three times with 100/200 ms
// pauses when SQLite reports lock contention.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var (
		res sql.Result
		err error
	)
	for i := range busyAttempts {
		res, err = db.ExecContext(ctx, query, args...)
		if !IsBusy(err) || i == busyAttempts-1 {
			return res, err
		}
		if werr := wait(ctx, time.Duration(i+1)*100*time.Millisecond); werr != nil {
			return nil, werr
		}
	}
	return res, err
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
