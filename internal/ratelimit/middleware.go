package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/kuitang/knowledge-e2e/internal/errs"
	"github.com/kuitang/knowledge-e2e/internal/model"
)

// RetryAfterSeconds is sent in Retry-After on a 429.
const RetryAfterSeconds = 1

// Middleware answers requests over their key's budget with the API's JSON error envelope
// and a 429. Requests for which keyFn returns "" pass through; token checks reject them later.
func Middleware(l *Limiter, keyFn func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if l.Allow(key) {
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(l.Remaining(key)))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
			h.Set("X-RateLimit-Remaining", "0")
			h.Set("Content-Type", "application/json")
			w.WriteHeader(errs.HTTPStatus(errs.RateLimited))
			_ = json.NewEncoder(w).Encode(model.ErrorBody{
				Error: "Too many requests",
				Code:  string(errs.RateLimited),
			})
		})
	}
}
