// Package fakeapp is an in-process stand-in for the knowledge service's REST API.
//
// It implements the routes the API tests exercise (sources CRUD, validation, extraction
// jobs and health) with the response shapes and status codes the real service returns,
// so the API client and tests can run without a deployed application. A small set of
// HTML screens (login, dashboard, sources, students) sits on top of the same API for
// the browser tests.
package fakeapp

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kuitang/knowledge-e2e/internal/obs"
	"github.com/kuitang/knowledge-e2e/internal/ratelimit"
)

// DefaultTokens are the bearer tokens the fake accepts, mapped to roles.
var DefaultTokens = map[string]string{
	"test-token":       "admin",
	"admin-test-token": "admin",
	"user-test-token":  "user",
}

// Options configures a Server. Zero values select defaults.
type Options struct {
	Tokens          map[string]string
	RateLimit       ratelimit.Config
	JobStep         int           // progress added per job poll; default 25
	ValidateTimeout time.Duration // connectivity probe budget; default 2s
	Version         string        // default "1.0.0"
	Environment     string        // default "development"
	// ServiceStatus overrides the reported status of vectorDb or cache.
	ServiceStatus map[string]string
	Now           func() time.Time
}

// Server is the fake API.
type Server struct {
	store     *Store
	limiter   *ratelimit.Limiter
	opts      Options
	startedAt time.Time
	handler   http.Handler

	// jobMu serializes job advancement so concurrent polls never skip a step.
	jobMu sync.Mutex
}

// New builds a server with a fresh store.
func New(opts Options) (*Server, error) {
	if opts.Tokens == nil {
		opts.Tokens = DefaultTokens
	}
	if opts.RateLimit.Default.RPS == 0 {
		opts.RateLimit = ratelimit.DefaultConfig
	}
	if opts.JobStep <= 0 {
		opts.JobStep = 25
	}
	if opts.ValidateTimeout <= 0 {
		opts.ValidateTimeout = 2 * time.Second
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}
	if opts.Environment == "" {
		opts.Environment = "development"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	store, err := OpenStore(opts.Now)
	if err != nil {
		return nil, err
	}

	s := &Server{
		store:     store,
		limiter:   ratelimit.New(opts.RateLimit),
		opts:      opts,
		startedAt: opts.Now().UTC(),
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Store exposes the backing store for test setup.
func (s *Server) Store() *Store {
	return s.store
}

// Close stops background work and drops all data.
func (s *Server) Close() error {
	s.limiter.Stop()
	return s.store.Close()
}

func (s *Server) routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/sources", s.listSources)
	api.HandleFunc("POST /api/sources", s.createSource)
	api.HandleFunc("GET /api/sources/{id}", s.getSource)
	api.HandleFunc("PUT /api/sources/{id}", s.replaceSource)
	api.HandleFunc("PATCH /api/sources/{id}", s.updateSource)
	api.HandleFunc("DELETE /api/sources/{id}", s.deleteSource)
	api.HandleFunc("POST /api/sources/{id}/validate", s.validateSource)
	api.HandleFunc("POST /api/extract/{id}", s.startExtraction)
	api.HandleFunc("GET /api/jobs/{id}", s.getJob)

	protected := ratelimit.Middleware(s.limiter, bearerToken)(s.requireToken(api))

	root := http.NewServeMux()
	root.HandleFunc("GET /health", s.health)
	root.Handle("/api/", protected)
	s.registerUI(root)

	return obs.Middleware("fakeapp", root)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if _, ok := s.opts.Tokens[token]; !ok || token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="knowledge"`)
			writeJSON(w, http.StatusUnauthorized, errorBody("Unauthorized", "unauthenticated"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
