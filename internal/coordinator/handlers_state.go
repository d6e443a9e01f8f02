package coordinator

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quadrant-vms/core-sub001/internal/statestore"
)

func parseDomain(raw string) (statestore.Domain, bool) {
	switch statestore.Domain(raw) {
	case statestore.DomainStreams, statestore.DomainRecordings, statestore.DomainAITasks:
		return statestore.Domain(raw), true
	default:
		return "", false
	}
}

// handleListState serves from the local store without forwarding, like
// handleListLeases: list is a diagnostic read and a follower's lagging
// view is acceptable (spec.md §4.3 routing discipline).
func (s *Server) handleListState(w http.ResponseWriter, r *http.Request) {
	domain, ok := parseDomain(chi.URLParam(r, "domain"))
	if !ok {
		writeError(w, errBadRequest("unknown state domain"))
		return
	}
	nodeID := r.URL.Query().Get("node_id")
	records, err := s.state.List(r.Context(), domain, nodeID)
	if err != nil {
		writeError(w, errInternal("list failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// handleGetState serves from the local store without forwarding, for the
// same reason as handleListState.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	domain, ok := parseDomain(chi.URLParam(r, "domain"))
	if !ok {
		writeError(w, errBadRequest("unknown state domain"))
		return
	}
	id := chi.URLParam(r, "id")

	rec, found, err := s.state.Get(r.Context(), domain, id)
	if err != nil {
		writeError(w, errInternal("get failed"))
		return
	}
	if !found {
		writeError(w, errNotFound("record not found: "+id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpsertState(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}
	domain, ok := parseDomain(chi.URLParam(r, "domain"))
	if !ok {
		writeError(w, errBadRequest("unknown state domain"))
		return
	}
	id := chi.URLParam(r, "id")

	var rec statestore.Record
	if err := decodeJSON(r, &rec); err != nil {
		writeError(w, errBadRequest("invalid request body: "+err.Error()))
		return
	}
	rec.Domain = domain
	rec.ID = id

	if !s.leaderOrForward(w, r, http.MethodPut, r.URL.RequestURI(), rec) {
		return
	}
	out, err := s.state.Upsert(r.Context(), rec)
	if err != nil {
		writeError(w, errInternal("upsert failed"))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteState(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}
	domain, ok := parseDomain(chi.URLParam(r, "domain"))
	if !ok {
		writeError(w, errBadRequest("unknown state domain"))
		return
	}
	id := chi.URLParam(r, "id")

	if !s.leaderOrForward(w, r, http.MethodDelete, r.URL.RequestURI(), nil) {
		return
	}
	deleted, err := s.state.Delete(r.Context(), domain, id)
	if err != nil {
		writeError(w, errInternal("delete failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

type updateStateRequest struct {
	State     statestore.TaskState `json:"state"`
	LastError string               `json:"last_error,omitempty"`
}

func (s *Server) handleUpdateTaskState(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}
	domain, ok := parseDomain(chi.URLParam(r, "domain"))
	if !ok {
		writeError(w, errBadRequest("unknown state domain"))
		return
	}
	id := chi.URLParam(r, "id")

	var req updateStateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, errBadRequest("invalid request body: "+err.Error()))
		return
	}

	if !s.leaderOrForward(w, r, http.MethodPut, r.URL.RequestURI(), req) {
		return
	}
	rec, found, err := s.state.UpdateState(r.Context(), domain, id, req.State, req.LastError)
	if err != nil {
		writeError(w, errInternal("update state failed"))
		return
	}
	if !found {
		writeError(w, errNotFound("record not found: "+id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type updateStatsRequest struct {
	FramesDelta     int64 `json:"frames_delta"`
	DetectionsDelta int64 `json:"detections_delta"`
}

func (s *Server) handleUpdateTaskStats(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}
	domain, ok := parseDomain(chi.URLParam(r, "domain"))
	if !ok {
		writeError(w, errBadRequest("unknown state domain"))
		return
	}
	id := chi.URLParam(r, "id")

	var req updateStatsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, errBadRequest("invalid request body: "+err.Error()))
		return
	}

	if !s.leaderOrForward(w, r, http.MethodPut, r.URL.RequestURI(), req) {
		return
	}
	rec, found, err := s.state.UpdateStats(r.Context(), domain, id, req.FramesDelta, req.DetectionsDelta)
	if err != nil {
		writeError(w, errInternal("update stats failed"))
		return
	}
	if !found {
		writeError(w, errNotFound("record not found: "+id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
