// Package workerclient implements C4 (spec.md §2): the worker-side lease
// lifecycle — acquire, renewal loop, backoff, and release — against
// either a real coordinator over HTTP or an in-process CoordinatorClient
// for single-binary deployments and tests.
package workerclient

import (
	"context"
	"time"

	"github.com/quadrant-vms/core-sub001/internal/lease"
)

// CoordinatorClient is the surface a worker needs against the coordinator
// service. HTTPClient implements it over the wire; MemoryClient wraps a
// lease.Store directly for same-process deployments and tests.
type CoordinatorClient interface {
	Acquire(ctx context.Context, resourceID, holderID string, kind lease.Kind, ttl time.Duration) (granted bool, rec lease.Record, err error)
	Renew(ctx context.Context, leaseID string, ttl time.Duration) (renewed bool, rec lease.Record, err error)
	Release(ctx context.Context, leaseID string) (released bool, err error)
}
