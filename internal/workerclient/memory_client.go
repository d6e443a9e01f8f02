package workerclient

import (
	"context"
	"time"

	"github.com/quadrant-vms/core-sub001/internal/lease"
)

// MemoryClient wraps a lease.Store directly, bypassing HTTP. Used for
// single-binary deployments (worker and coordinator in the same process)
// and as the fast path in tests exercising the renewal loop without a
// network stack (SPEC_FULL.md's worker client supplement).
type MemoryClient struct {
	store        lease.Store
	fencingEpoch uint64
}

// NewMemoryClient wraps store. fencingEpoch is stamped onto every
// acquired lease, mirroring what the coordinator would stamp from the
// leader's current term.
func NewMemoryClient(store lease.Store, fencingEpoch uint64) *MemoryClient {
	return &MemoryClient{store: store, fencingEpoch: fencingEpoch}
}

func (c *MemoryClient) Acquire(ctx context.Context, resourceID, holderID string, kind lease.Kind, ttl time.Duration) (bool, lease.Record, error) {
	return c.store.Acquire(ctx, resourceID, holderID, kind, ttl, c.fencingEpoch)
}

func (c *MemoryClient) Renew(ctx context.Context, leaseID string, ttl time.Duration) (bool, lease.Record, error) {
	return c.store.Renew(ctx, leaseID, ttl)
}

func (c *MemoryClient) Release(ctx context.Context, leaseID string) (bool, error) {
	return c.store.Release(ctx, leaseID)
}
