// Package lease implements the authoritative in-memory lease table: the
// single source of truth for "who owns what" across the cluster. Only the
// current leader's instance of this package is ever mutated by clients;
// followers never acquire/renew/release locally (see internal/coordinator).
package lease

import "time"

// Kind partitions the resource keyspace. The uniqueness invariant (I1) is
// scoped to a (ResourceID, Kind) pair, not to ResourceID alone — a stream
// and an AI task can share the same resource_id without conflicting.
type Kind string

const (
	KindStream   Kind = "stream"
	KindRecorder Kind = "recorder"
	KindAI       Kind = "ai"
	KindPlayback Kind = "playback"
)

// ParseKind normalizes the wire representation of a lease kind
// (case-insensitive) and rejects anything outside the fixed enum.
func ParseKind(s string) (Kind, bool) {
	switch Kind(lowerASCII(s)) {
	case KindStream, KindRecorder, KindAI, KindPlayback:
		return Kind(lowerASCII(s)), true
	default:
		return "", false
	}
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Record is a granted lease: exclusive ownership of (ResourceID, Kind) by
// Holder until ExpiresAt.
type Record struct {
	LeaseID     string    `json:"lease_id"`
	ResourceID  string    `json:"resource_id"`
	HolderID    string    `json:"holder_id"`
	Kind        Kind      `json:"kind"`
	GrantedAt   time.Time `json:"granted_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	TTLSecs     int64     `json:"ttl_secs"`
	// FencingEpoch is the granting leader's term. Not enforced anywhere in
	// this core (see SPEC_FULL.md Open Questions #2) — carried so a
	// downstream media-plane consumer can build fencing on top.
	FencingEpoch uint64 `json:"fencing_epoch"`
}

// Active reports whether the record has not yet expired as of now.
func (r Record) Active(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}

type key struct {
	resourceID string
	kind       Kind
}
