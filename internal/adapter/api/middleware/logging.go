package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// statusRecorder captures the status code and response size so the access
// log can classify how a relay request ended.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// outcome maps the relay's response codes onto a coarse delivery label.
// /process-event answers 200 when every event reached the vendor, 207 on a
// mixed batch and 502 when all deliveries failed; 4xx means the request was
// rejected before any dispatch.
func outcome(status int) string {
	switch {
	case status == http.StatusMultiStatus:
		return "partial"
	case status >= 500:
		return "failed"
	case status >= 400:
		return "rejected"
	default:
		return "delivered"
	}
}

// Logging is a middleware factory that writes one access-log line per
// request. Requests that end in a 5xx are logged at warn so failed
// deliveries stand out without scanning status fields.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			if rec.status >= 500 {
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "handled request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"status", rec.status,
				"outcome", outcome(rec.status),
				"bytes", rec.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
