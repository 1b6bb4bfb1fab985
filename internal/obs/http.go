package obs

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Headers that carry correlation across the suite and the app under test.
const (
	HeaderRequestID = "X-Request-Id"
	HeaderTestName  = "X-Test-Name"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status != 0 {
		return
	}
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Middleware tags each request with a request ID (echoed back in X-Request-Id) and the
// calling test's name from X-Test-Name, then logs one access line when the handler returns.
// Server errors log at warn so they show up in a default-level run.
func Middleware(pkg string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if requestID == "" {
			requestID = NewRequestID()
		}
		w.Header().Set(HeaderRequestID, requestID)
		ctx := WithCorrelation(r.Context(), Correlation{
			RequestID: requestID,
			TestName:  strings.TrimSpace(r.Header.Get(HeaderTestName)),
		})

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r.WithContext(ctx))
		if sw.status == 0 {
			sw.status = http.StatusOK
		}

		level := slog.LevelDebug
		if sw.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		From(ctx).With("pkg", pkg).Log(ctx, level, "http_access",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"dur_ms", float64(time.Since(start).Microseconds())/1000.0,
			"resp_bytes", sw.bytes,
		)
	})
}
