// Package shield holds the HTTP middleware placed in front of the rewind
// API: security headers, HEAD handling, upload body caps, and a per-request
// trace ID with its own structured logger.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(32 << 20) {
//	    r.Use(mw)
//	}
package shield

import "net/http"

type contextKey string

// LoggerKey is the context key for the per-request logger.
const LoggerKey contextKey = "shield_logger"

// DefaultStack returns HeadToGet, SecurityHeaders, MaxBody and TraceID in
// that order. maxBody caps POST bodies, including multipart uploads.
func DefaultStack(maxBody int64) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(maxBody),
		TraceID,
	}
}

// HeadToGet lets GET routes, screenshots included, answer HEAD requests.
// net/http discards the body.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
