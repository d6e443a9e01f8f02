package lease

import (
	"context"
	"time"
)

// Limits bounds the ttl_secs a caller may request; acquire/renew clamp
// silently rather than rejecting out-of-range values (spec.md §6).
type Limits struct {
	Min     time.Duration
	Max     time.Duration
	Default time.Duration
}

// Clamp returns ttl bounded to [Min, Max], substituting Default when ttl
// is zero (absent).
func (l Limits) Clamp(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = l.Default
	}
	if ttl < l.Min {
		return l.Min
	}
	if ttl > l.Max {
		return l.Max
	}
	return ttl
}

// Store is the authoritative mapping (resource_id, kind) -> active lease
// record (spec.md §4.1, C1). Implementations must serialize acquire
// against concurrent acquires of the same key (I1) and never hold their
// internal lock across I/O.
type Store interface {
	// Acquire grants a new lease for (resourceID, kind) to holderID unless
	// a live lease for that key already exists, in which case granted is
	// false and the existing record is not touched (I4). fencingEpoch is
	// stamped onto the record verbatim (typically the granting leader's
	// current term).
	Acquire(ctx context.Context, resourceID, holderID string, kind Kind, ttl time.Duration, fencingEpoch uint64) (granted bool, rec Record, err error)

	// Renew extends the expiry of the lease identified by leaseID (I2). A
	// renew against an unknown or expired lease returns renewed=false,
	// never an error.
	Renew(ctx context.Context, leaseID string, ttl time.Duration) (renewed bool, rec Record, err error)

	// Release removes the lease identified by leaseID. Idempotent: a
	// second release of the same id returns released=false, not an error
	// (I3, P3).
	Release(ctx context.Context, leaseID string) (released bool, err error)

	// List returns all currently-live leases, optionally filtered to a
	// single kind. Expired entries are swept opportunistically as a side
	// effect (spec.md §4.1 "lazy eviction"); pass filterByKind=false to
	// disable the kind filter.
	List(ctx context.Context, kind Kind, filterByKind bool) ([]Record, error)
}
