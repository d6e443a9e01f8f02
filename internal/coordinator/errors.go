package coordinator

import (
	"encoding/json"
	"net/http"
)

// APIError is the JSON error envelope returned by every non-2xx response
// (spec.md §7 error taxonomy).
type APIError struct {
	Status int    `json:"-"`
	Code   string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (e APIError) Error() string { return e.Code }

func writeError(w http.ResponseWriter, apiErr APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	_ = json.NewEncoder(w).Encode(apiErr)
}

// Error classes named in spec.md §7 that are genuinely exceptional:
// malformed input, wrong node (not leader), and not-found for state
// records. LeaseConflict and LeaseNotFound are expected, non-exceptional
// outcomes and are surfaced as 200-equivalent response bodies instead
// (see handleAcquireLease, handleRenewLease).
func errBadRequest(detail string) APIError {
	return APIError{Status: http.StatusBadRequest, Code: "bad_request", Detail: detail}
}

func errNotLeader(leaderAddr string) APIError {
	detail := "this node is not the cluster leader"
	if leaderAddr != "" {
		detail += ": leader is at " + leaderAddr
	}
	return APIError{Status: http.StatusMisdirectedRequest, Code: "not_leader", Detail: detail}
}

func errNoLeader() APIError {
	return APIError{Status: http.StatusServiceUnavailable, Code: "no_leader", Detail: "cluster has no elected leader"}
}

func errNotFound(detail string) APIError {
	return APIError{Status: http.StatusNotFound, Code: "not_found", Detail: detail}
}

func errUnknownKind(detail string) APIError {
	return APIError{Status: http.StatusBadRequest, Code: "unknown_kind", Detail: detail}
}

func errInternal(detail string) APIError {
	return APIError{Status: http.StatusInternalServerError, Code: "internal_error", Detail: detail}
}

func errForwardFailed(detail string) APIError {
	return APIError{Status: http.StatusBadGateway, Code: "forward_failed", Detail: detail}
}
