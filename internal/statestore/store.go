package statestore

import "context"

// Store is the CRUD surface behind /v1/state/{streams|recordings|ai-tasks}
// (spec.md §6). Like lease.Store, only the leader's instance is ever
// mutated; the coordinator forwards writes exactly as it does for leases.
type Store interface {
	Upsert(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, domain Domain, id string) (Record, bool, error)
	List(ctx context.Context, domain Domain, nodeID string) ([]Record, error)
	Delete(ctx context.Context, domain Domain, id string) (bool, error)
	UpdateState(ctx context.Context, domain Domain, id string, state TaskState, lastError string) (Record, bool, error)
	UpdateStats(ctx context.Context, domain Domain, id string, framesDelta, detectionsDelta int64) (Record, bool, error)
}
