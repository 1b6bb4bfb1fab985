// Package obs configures structured logging for the suite and carries per-test and
// per-request correlation fields through context.
package obs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	slogmulti "github.com/samber/slog-multi"
)

type correlationContextKey struct{}

// Correlation carries identifiers that tie log lines to one test case or request.
type Correlation struct {
	RequestID string
	TestName  string
	Profile   string
}

var (
	loggerMu sync.RWMutex
	logger   *slog.Logger
)

// Options selects where suite logs go. Stderr always gets human-readable text at Level;
// File, when set, additionally receives every record as JSON at debug level.
type Options struct {
	Level slog.Level
	File  string
}

// Setup installs the global logger. The returned func closes the log file, if any, and
// falls back to stderr-only logging.
func Setup(opts Options) (func() error, error) {
	stderr := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: opts.Level})
	if opts.File == "" {
		install(slog.New(stderr))
		return func() error { return nil }, nil
	}

	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", opts.File, err)
	}
	install(slog.New(slogmulti.Fanout(stderr, newJSONHandler(f))))
	return func() error {
		install(slog.New(stderr))
		return f.Close()
	}, nil
}

func install(l *slog.Logger) {
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
	slog.SetDefault(l)
}

// SetOutputForTests sends JSON records to w until the returned func restores the previous logger.
func SetOutputForTests(w io.Writer) func() {
	loggerMu.RLock()
	prev := logger
	loggerMu.RUnlock()
	install(slog.New(newJSONHandler(w)))
	return func() {
		if prev == nil {
			prev = defaultLogger()
		}
		install(prev)
	}
}

func defaultLogger() *slog.Logger {
	return slog.New(newJSONHandler(os.Stderr))
}

func newJSONHandler(w io.Writer) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				t, ok := attr.Value.Any().(time.Time)
				if ok {
					return slog.String(slog.TimeKey, t.UTC().Format(time.RFC3339Nano))
				}
			}
			return attr
		},
	})
}

func globalLogger() *slog.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l == nil {
		return defaultLogger()
	}
	return l
}

// Pkg returns a logger tagged with package name.
func Pkg(pkg string) *slog.Logger {
	return globalLogger().With("pkg", pkg)
}

// From returns a logger with correlation fields from context.
func From(ctx context.Context) *slog.Logger {
	l := globalLogger()
	attrs := correlationAttrs(CorrelationFromContext(ctx))
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}

// WithCorrelation merges non-empty correlation fields into context.
func WithCorrelation(ctx context.Context, corr Correlation) context.Context {
	existing := CorrelationFromContext(ctx)
	if corr.RequestID != "" {
		existing.RequestID = corr.RequestID
	}
	if corr.TestName != "" {
		existing.TestName = corr.TestName
	}
	if corr.Profile != "" {
		existing.Profile = corr.Profile
	}
	return context.WithValue(ctx, correlationContextKey{}, existing)
}

// WithTest tags context with the running test's name.
func WithTest(ctx context.Context, name string) context.Context {
	return WithCorrelation(ctx, Correlation{TestName: strings.TrimSpace(name)})
}

// CorrelationFromContext returns correlation fields from context.
func CorrelationFromContext(ctx context.Context) Correlation {
	if ctx == nil {
		return Correlation{}
	}
	corr, ok := ctx.Value(correlationContextKey{}).(Correlation)
	if !ok {
		return Correlation{}
	}
	return corr
}

func correlationAttrs(corr Correlation) []any {
	attrs := make([]any, 0, 6)
	if corr.RequestID != "" {
		attrs = append(attrs, "request_id", corr.RequestID)
	}
	if corr.TestName != "" {
		attrs = append(attrs, "test", corr.TestName)
	}
	if corr.Profile != "" {
		attrs = append(attrs, "profile", corr.Profile)
	}
	return attrs
}

// NewRequestID returns a random request identifier.
func NewRequestID() string {
	return "req-" + uuid.NewString()
}
