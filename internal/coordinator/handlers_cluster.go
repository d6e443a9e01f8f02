package coordinator

import (
	"net/http"

	"github.com/quadrant-vms/core-sub001/internal/cluster"
)

// handleVoteRPC is the peer-facing side of leader election (spec.md §4.2
// step 3). It is never forwarded — every node answers vote requests
// locally regardless of its current role.
func (s *Server) handleVoteRPC(w http.ResponseWriter, r *http.Request) {
	var req cluster.VoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, errBadRequest("invalid vote request: "+err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, s.cluster.HandleVoteRequest(req))
}

// handleHeartbeatRPC is the follower-facing side of the heartbeat
// protocol; also never forwarded.
func (s *Server) handleHeartbeatRPC(w http.ResponseWriter, r *http.Request) {
	var req cluster.HeartbeatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, errBadRequest("invalid heartbeat request: "+err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, s.cluster.HandleHeartbeat(req))
}
