package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/hazyhaar/rewind/idgen"
	"github.com/hazyhaar/rewind/kit"
)

var newTraceID = idgen.Hex(4)

// TraceID tags each request with a short random trace ID for log lines and
// a UUIDv7 request ID, echoes them in X-Trace-ID and X-Request-ID, and
// stores a request logger in the context. A well-formed X-Request-ID sent
// by the client is kept.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := newTraceID()
		reqID := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = idgen.New()
		}
		w.Header().Set("X-Trace-ID", id)
		w.Header().Set("X-Request-ID", reqID)

		logger := slog.Default().With(
			"trace_id", id,
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
		)
		ctx := kit.WithTraceID(r.Context(), id)
		ctx = kit.WithRequestID(ctx, reqID)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Debug("request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetLogger returns the request logger, or slog.Default outside a request.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
