package cluster

import "context"

// VoteRequest is the wire body of POST /cluster/vote.
type VoteRequest struct {
	CandidateID string `json:"candidate_id"`
	Term        uint64 `json:"term"`
}

// VoteResponse is the wire body returned from POST /cluster/vote.
type VoteResponse struct {
	VoteGranted bool   `json:"vote_granted"`
	Term        uint64 `json:"term"`
}

// HeartbeatRequest is the wire body of POST /cluster/heartbeat.
type HeartbeatRequest struct {
	LeaderID string `json:"leader_id"`
	Term     uint64 `json:"term"`
}

// HeartbeatResponse is the (empty-bodied per spec.md §6) response to a
// heartbeat; Term lets the sender detect it has been deposed.
type HeartbeatResponse struct {
	Term uint64 `json:"term"`
}

// Transport sends cluster RPCs to a named peer. The real implementation
// is HTTPTransport (cmd/coordinator wires it); tests use an
// in-memory transport that calls directly into peer Managers.
//
// Per spec.md §4.2 "Failure semantics", RPCs are fire-and-forget from the
// sender's perspective: a transport error is treated identically to a
// denied vote or a missed heartbeat, never propagated as a distinct
// failure mode.
type Transport interface {
	SendVote(ctx context.Context, peer Peer, req VoteRequest) (VoteResponse, error)
	SendHeartbeat(ctx context.Context, peer Peer, req HeartbeatRequest) (HeartbeatResponse, error)
}
