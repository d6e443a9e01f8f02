package coordinator

import (
	"net/http"
	"time"

	"github.com/quadrant-vms/core-sub001/internal/lease"
	"github.com/quadrant-vms/core-sub001/internal/log"
)

type acquireRequest struct {
	ResourceID string `json:"resource_id"`
	HolderID   string `json:"holder_id"`
	Kind       string `json:"kind"`
	TTLSecs    int64  `json:"ttl_secs"`
}

type acquireResponse struct {
	Granted bool          `json:"granted"`
	Record  *lease.Record `json:"record,omitempty"`
}

// handleAcquireLease is non-idempotent: a forwarded-and-retried acquire
// can legitimately be denied the second time around (spec.md §7).
func (s *Server) handleAcquireLease(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}

	var req acquireRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, errBadRequest("invalid request body: "+err.Error()))
		return
	}
	if req.ResourceID == "" || req.HolderID == "" {
		writeError(w, errBadRequest("resource_id and holder_id are required"))
		return
	}
	kind, ok := lease.ParseKind(req.Kind)
	if !ok {
		writeError(w, errUnknownKind("unknown lease kind: "+req.Kind))
		return
	}
	if req.TTLSecs < 0 {
		writeError(w, errBadRequest("ttl_secs must not be negative"))
		return
	}

	if !s.leaderOrForward(w, r, http.MethodPost, "/v1/leases/acquire", req) {
		return
	}

	_, term := s.cluster.IsLeader()
	granted, rec, err := s.leases.Acquire(r.Context(), req.ResourceID, req.HolderID, kind, time.Duration(req.TTLSecs)*time.Second, term)
	if err != nil {
		leaseOpsTotal.WithLabelValues("acquire", "error").Inc()
		log.FromContext(r.Context()).Error().Err(err).Msg("lease acquire failed")
		writeError(w, errInternal("acquire failed"))
		return
	}

	if !granted {
		// spec.md §7 taxonomy item 3: LeaseConflict is an expected,
		// non-exceptional answer, not an error response.
		leaseOpsTotal.WithLabelValues("acquire", "conflict").Inc()
		writeJSON(w, http.StatusOK, acquireResponse{Granted: false})
		return
	}
	leaseOpsTotal.WithLabelValues("acquire", "granted").Inc()
	activeLeases.WithLabelValues(string(kind)).Inc()
	writeJSON(w, http.StatusCreated, acquireResponse{Granted: true, Record: &rec})
}

type renewRequest struct {
	LeaseID string `json:"lease_id"`
	TTLSecs int64  `json:"ttl_secs"`
}

type renewResponse struct {
	Renewed bool          `json:"renewed"`
	Record  *lease.Record `json:"record,omitempty"`
}

// handleRenewLease is idempotent: repeating a successful renew against the
// same lease ID just extends it again (spec.md §7, P2).
func (s *Server) handleRenewLease(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}

	var req renewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, errBadRequest("invalid request body: "+err.Error()))
		return
	}
	if req.TTLSecs < 0 {
		writeError(w, errBadRequest("ttl_secs must not be negative"))
		return
	}

	if !s.leaderOrForward(w, r, http.MethodPost, "/v1/leases/renew", req) {
		return
	}

	renewed, rec, err := s.leases.Renew(r.Context(), req.LeaseID, time.Duration(req.TTLSecs)*time.Second)
	if err != nil {
		leaseOpsTotal.WithLabelValues("renew", "error").Inc()
		writeError(w, errInternal("renew failed"))
		return
	}
	if !renewed {
		// spec.md §7 taxonomy item 4: LeaseNotFound is a 200-equivalent
		// answer, not an error response.
		leaseOpsTotal.WithLabelValues("renew", "not_found").Inc()
		writeJSON(w, http.StatusOK, renewResponse{Renewed: false})
		return
	}
	leaseOpsTotal.WithLabelValues("renew", "ok").Inc()
	writeJSON(w, http.StatusOK, renewResponse{Renewed: true, Record: &rec})
}

type releaseRequest struct {
	LeaseID string `json:"lease_id"`
}

// handleReleaseLease is idempotent: releasing an already-released or
// unknown lease ID returns 200 with released=false, never an error
// (spec.md §7, P3).
func (s *Server) handleReleaseLease(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}

	var req releaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, errBadRequest("invalid request body: "+err.Error()))
		return
	}

	if !s.leaderOrForward(w, r, http.MethodPost, "/v1/leases/release", req) {
		return
	}

	released, err := s.leases.Release(r.Context(), req.LeaseID)
	if err != nil {
		leaseOpsTotal.WithLabelValues("release", "error").Inc()
		writeError(w, errInternal("release failed"))
		return
	}
	if released {
		leaseOpsTotal.WithLabelValues("release", "ok").Inc()
	} else {
		leaseOpsTotal.WithLabelValues("release", "noop").Inc()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"released": released})
}

// handleListLeases serves from the local store without forwarding (spec.md
// §4.3 routing discipline: "list, status: served locally without
// forwarding. A follower's view may lag; this is acceptable because list
// consumers are diagnostic.").
func (s *Server) handleListLeases(w http.ResponseWriter, r *http.Request) {
	kindParam := r.URL.Query().Get("kind")
	var kind lease.Kind
	filterByKind := false
	if kindParam != "" {
		var ok bool
		kind, ok = lease.ParseKind(kindParam)
		if !ok {
			writeError(w, errUnknownKind("unknown lease kind: "+kindParam))
			return
		}
		filterByKind = true
	}

	records, err := s.leases.List(r.Context(), kind, filterByKind)
	if err != nil {
		writeError(w, errInternal("list failed"))
		return
	}
	writeJSON(w, http.StatusOK, records)
}
