package coordinator

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/quadrant-vms/core-sub001/internal/log"
)

// StackConfig configures the canonical middleware stack applied to every
// coordinator route, mirroring the layering other services in this
// ecosystem use: recover, tracing, request ID, logging, rate limit.
type StackConfig struct {
	RateLimitRPS int
}

func applyStack(r chi.Router, cfg StackConfig) {
	r.Use(middleware.Recoverer)
	r.Use(tracingMiddleware)
	r.Use(log.Middleware())
	if cfg.RateLimitRPS > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitRPS, time.Second))
	}
}

// tracingMiddleware wraps every request in an otelhttp span against the
// process-wide TracerProvider (internal/telemetry installs it, or a noop
// if no otlp_endpoint is configured). Health and metrics scraping are
// excluded so they don't dilute traces with zero-signal spans.
func tracingMiddleware(next http.Handler) http.Handler {
	return otelhttp.NewHandler(
		next,
		"coordinator",
		otelhttp.WithTracerProvider(otel.GetTracerProvider()),
		otelhttp.WithFilter(func(r *http.Request) bool {
			switch r.URL.Path {
			case "/healthz", "/readyz", "/metrics":
				return false
			default:
				return true
			}
		}),
	)
}

func writeNotAllowed(w http.ResponseWriter) {
	writeError(w, errBadRequest("method not allowed"))
}
