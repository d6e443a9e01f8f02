// Package coordinator implements C3 (spec.md §2): the HTTP service that
// exposes lease, cluster, and worker-state operations, forwarding
// mutations from followers to the current leader so that only one
// process ever mutates the lease table at a time.
package coordinator

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/quadrant-vms/core-sub001/internal/cluster"
	"github.com/quadrant-vms/core-sub001/internal/lease"
	"github.com/quadrant-vms/core-sub001/internal/log"
	"github.com/quadrant-vms/core-sub001/internal/statestore"
)

// Server wires the three domain packages behind the HTTP surface named in
// spec.md §6.
type Server struct {
	nodeID     string
	leases     lease.Store
	cluster    *cluster.Manager
	state      statestore.Store
	forwarder  *forwarder
	admission  *rate.Limiter
	startTime  time.Time
	router     http.Handler
}

// Config bounds the HTTP-facing behavior not already owned by lease.Limits
// or cluster.Config.
type Config struct {
	NodeID            string
	ForwardTimeout    time.Duration
	RateLimitRPS      int
	AdmissionRPS      float64
	AdmissionBurst    int
}

// New constructs a coordinator Server. leases and state must be the
// node-local store instances; only the leader's instances are ever
// mutated, enforced here by forwarding non-leader writes.
func New(cfg Config, leases lease.Store, clusterMgr *cluster.Manager, state statestore.Store) *Server {
	s := &Server{
		nodeID:    cfg.NodeID,
		leases:    leases,
		cluster:   clusterMgr,
		state:     state,
		forwarder: newForwarder(cfg.ForwardTimeout),
		admission: rate.NewLimiter(rate.Limit(cfg.AdmissionRPS), cfg.AdmissionBurst),
		startTime: time.Now(),
	}
	s.router = s.routes(StackConfig{RateLimitRPS: cfg.RateLimitRPS})
	return s
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	// Ready means the election state machine has produced a known
	// leader, follower or leader alike (spec.md §6).
	status := s.cluster.Status()
	w.Header().Set("Content-Type", "application/json")
	if status.LeaderID == "" {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"electing"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

func (s *Server) handleClusterStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cluster.Status())
}

// admit applies the admission-control limiter ahead of any mutating
// operation (SPEC_FULL.md's Coordinator Service supplement). Read
// endpoints are exempt.
func (s *Server) admit(w http.ResponseWriter, r *http.Request) bool {
	if !s.admission.Allow() {
		writeError(w, APIError{Status: http.StatusTooManyRequests, Code: "admission_rejected", Detail: "coordinator is over its configured mutation rate"})
		return false
	}
	return true
}

// leaderOrForward resolves whether this node may act locally. If it is
// the leader, ok=true and the caller proceeds. Otherwise it attempts to
// forward the request to the current leader and returns ok=false (the
// response has already been written).
func (s *Server) leaderOrForward(w http.ResponseWriter, r *http.Request, method, path string, body any) (ok bool) {
	isLeader, _ := s.cluster.IsLeader()
	if isLeader {
		return true
	}

	peer, known := s.cluster.LeaderAddress()
	if !known {
		writeError(w, errNoLeader())
		return false
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp, err := s.forwarder.forward(ctx, peer.Address, method, path, body)
	if err != nil {
		log.FromContext(r.Context()).Warn().Err(err).Str("leader", peer.Address).Msg("forwarding to leader failed")
		writeError(w, errForwardFailed(err.Error()))
		return false
	}
	decodeForwardedResponse(w, resp)
	return false
}
