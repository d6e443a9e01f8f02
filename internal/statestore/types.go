// Package statestore implements the worker state-store endpoints named in
// spec.md §4.3 ("State-store extensions") and §6: an opaque key-value CRUD
// over task records (streams, recordings, AI tasks) so a worker can
// reconstruct its in-flight work after a restart. This is explicitly NOT
// part of the lease invariant — see internal/lease for that.
package statestore

import "time"

// Domain is one of the three task-record families named in spec.md §6.
type Domain string

const (
	DomainStreams    Domain = "streams"
	DomainRecordings Domain = "recordings"
	DomainAITasks    Domain = "ai-tasks"
)

// TaskState mirrors the worker task state enum of spec.md §3
// ("Worker Task State").
type TaskState string

const (
	TaskPending      TaskState = "pending"
	TaskInitializing TaskState = "initializing"
	TaskProcessing   TaskState = "processing"
	TaskError        TaskState = "error"
	TaskStopped      TaskState = "stopped"
)

// Stats holds the monotonic counters exposed for AI tasks
// (PUT /v1/state/ai-tasks/:id/stats).
type Stats struct {
	Frames     int64 `json:"frames"`
	Detections int64 `json:"detections"`
}

// Record is one worker-owned task, persisted so the owning worker can
// rebuild its view of in-flight work after a restart.
type Record struct {
	ID        string            `json:"id"`
	Domain    Domain            `json:"domain"`
	NodeID    string            `json:"node_id"`
	State     TaskState         `json:"state"`
	LastError string            `json:"last_error,omitempty"`
	Config    map[string]string `json:"config,omitempty"`
	Stats     Stats             `json:"stats,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
