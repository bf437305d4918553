// Package middleware provides HTTP middleware for the operations API server.
package middleware

import (
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/fzdarsky/realmgate/internal/logging"
)

// RequestIDHeader carries the request id. A valid incoming id is kept,
// otherwise a new one is assigned.
const RequestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Logging returns middleware that tags each request with an id and logs it
// when it completes. Successful requests to quietPaths (scrapes and probes)
// are logged at debug level.
func Logging(logger *logging.Logger, quietPaths ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := requestID(r)
			w.Header().Set(RequestIDHeader, id)
			rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			fields := map[string]any{
				"request_id":  id,
				"method":      r.Method,
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
				"status":      rw.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
				"bytes":       rw.written,
			}
			if ua := r.UserAgent(); ua != "" {
				fields["user_agent"] = ua
			}

			if rw.statusCode < http.StatusBadRequest && slices.Contains(quietPaths, r.URL.Path) {
				logger.Debug("http request", fields)
				return
			}
			logger.Info("http request", fields)
		})
	}
}

func requestID(r *http.Request) string {
	if id, err := uuid.Parse(r.Header.Get(RequestIDHeader)); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
