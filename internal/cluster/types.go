// Package cluster implements the per-node leader-election state machine
// (C2 in spec.md §2): a simplified Raft — no log replication, since this
// core does not replicate lease state (spec.md §4.2 "Known limitation").
package cluster

import "time"

// Role is one of the three states a node can occupy.
type Role string

const (
	RoleFollower  Role = "follower"
	RoleCandidate Role = "candidate"
	RoleLeader    Role = "leader"
)

// Peer describes one other member of the fixed cluster membership.
type Peer struct {
	ID      string
	Address string
}

// PeerStatus is the view of a peer published via /cluster/status.
type PeerStatus struct {
	ID            string    `json:"id"`
	Address       string    `json:"address"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Healthy       bool      `json:"healthy"`
}

// Status is the externally-visible snapshot of a node's cluster state
// (spec.md §6 GET /cluster/status).
type Status struct {
	NodeID   string       `json:"node_id"`
	Role     Role         `json:"role"`
	LeaderID string       `json:"leader_id,omitempty"`
	Term     uint64       `json:"term"`
	Peers    []PeerStatus `json:"peers"`
}
