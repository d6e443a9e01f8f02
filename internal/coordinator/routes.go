package coordinator

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) routes(cfg StackConfig) http.Handler {
	r := chi.NewRouter()
	applyStack(r, cfg)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/cluster/status", s.handleClusterStatus)
	r.Post("/cluster/vote", s.handleVoteRPC)
	r.Post("/cluster/heartbeat", s.handleHeartbeatRPC)

	r.Route("/v1/leases", func(r chi.Router) {
		r.Get("/", s.handleListLeases)
		r.Post("/acquire", s.handleAcquireLease)
		r.Post("/renew", s.handleRenewLease)
		r.Post("/release", s.handleReleaseLease)
	})

	r.Route("/v1/state/{domain}", func(r chi.Router) {
		r.Get("/", s.handleListState)
		r.Put("/{id}", s.handleUpsertState)
		r.Get("/{id}", s.handleGetState)
		r.Delete("/{id}", s.handleDeleteState)
		r.Put("/{id}/state", s.handleUpdateTaskState)
		r.Put("/{id}/stats", s.handleUpdateTaskStats)
	})

	return r
}
