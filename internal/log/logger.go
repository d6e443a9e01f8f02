package log

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string // "debug", "info", "warn", "error"
	Service string // service name attached to every log entry
	NodeID  string // this node's identity
}

var (
	mu          sync.RWMutex
	base        zerolog.Logger
	configured  bool
)

// Configure initializes the global zerolog logger.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	service := cfg.Service
	if service == "" {
		service = "vms-core"
	}

	ctx := zerolog.New(os.Stdout).With().Timestamp().Str("service", service)
	if cfg.NodeID != "" {
		ctx = ctx.Str("node_id", cfg.NodeID)
	}
	base = ctx.Logger()
	configured = true
}

func ensureInitialized() {
	mu.RLock()
	if configured {
		mu.RUnlock()
		return
	}
	mu.RUnlock()
	Configure(Config{})
}

func logger() zerolog.Logger {
	ensureInitialized()
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Base returns the configured base logger by value.
func Base() zerolog.Logger { return logger() }

// L returns a pointer to a copy of the global logger.
func L() *zerolog.Logger {
	l := logger()
	return &l
}

// WithComponent returns a child logger annotated with a component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str("component", component).Logger()
}

// FromContext returns a logger enriched with whatever correlation fields
// are present in ctx, falling back to the base logger.
func FromContext(ctx context.Context) zerolog.Logger {
	l := logger().With()
	if rid := RequestIDFromContext(ctx); rid != "" {
		l = l.Str("request_id", rid)
	}
	if nid := NodeIDFromContext(ctx); nid != "" {
		l = l.Str("node_id", nid)
	}
	if term, ok := TermFromContext(ctx); ok {
		l = l.Uint64("term", term)
	}
	return l.Logger()
}

// Middleware logs every HTTP request handled by the router it is installed
// on (the coordinator's and the worker control plane's).
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			reqID := RequestIDFromContext(ctx)
			if reqID == "" {
				reqID = uuid.New().String()
				ctx = ContextWithRequestID(ctx, reqID)
			}
			w.Header().Set("X-Request-ID", reqID)
			r = r.WithContext(ctx)

			l := logger().With().
				Str("request_id", reqID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Logger()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			l.Info().
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
