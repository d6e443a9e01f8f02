package lease

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the reference Store implementation: a single map guarded
// by one mutex, exactly as spec.md §4.1's algorithmic notes prescribe —
// "a single mutex over the entire map is sufficient given the expected
// rate (thousands of ops/sec, not millions)". Expiry is lazy: entries are
// dropped only when an operation happens to touch them.
type MemoryStore struct {
	mu sync.Mutex

	byKey    map[key]Record
	byLeaseID map[string]key

	limits Limits

	// now and newID are indirected for deterministic tests (TTL honesty,
	// P4) without real sleeps.
	now   func() time.Time
	newID func() string
}

// NewMemoryStore constructs an empty store bounded by limits.
func NewMemoryStore(limits Limits) *MemoryStore {
	return &MemoryStore{
		byKey:     make(map[key]Record),
		byLeaseID: make(map[string]key),
		limits:    limits,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// WithClock overrides the store's time source. Test-only hook.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// evictIfExpiredLocked removes byKey[k] (and its byLeaseID back-reference)
// if it is present but no longer active. Caller must hold s.mu.
func (s *MemoryStore) evictIfExpiredLocked(k key, now time.Time) (rec Record, live bool) {
	rec, ok := s.byKey[k]
	if !ok {
		return Record{}, false
	}
	if !rec.Active(now) {
		delete(s.byKey, k)
		delete(s.byLeaseID, rec.LeaseID)
		return Record{}, false
	}
	return rec, true
}

func (s *MemoryStore) Acquire(ctx context.Context, resourceID, holderID string, kind Kind, ttl time.Duration, fencingEpoch uint64) (bool, Record, error) {
	if _, ok := ParseKind(string(kind)); !ok {
		return false, Record{}, ErrUnknownKind
	}
	ttl = s.limits.Clamp(ttl)
	k := key{resourceID: resourceID, kind: kind}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, live := s.evictIfExpiredLocked(k, now); live {
		return false, Record{}, nil
	}

	rec := Record{
		LeaseID:      s.newID(),
		ResourceID:   resourceID,
		HolderID:     holderID,
		Kind:         kind,
		GrantedAt:    now,
		ExpiresAt:    now.Add(ttl),
		TTLSecs:      int64(ttl / time.Second),
		FencingEpoch: fencingEpoch,
	}
	s.byKey[k] = rec
	s.byLeaseID[rec.LeaseID] = k
	return true, rec, nil
}

func (s *MemoryStore) Renew(ctx context.Context, leaseID string, ttl time.Duration) (bool, Record, error) {
	ttl = s.limits.Clamp(ttl)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.byLeaseID[leaseID]
	if !ok {
		return false, Record{}, nil
	}
	rec, live := s.evictIfExpiredLocked(k, now)
	if !live || rec.LeaseID != leaseID {
		delete(s.byLeaseID, leaseID)
		return false, Record{}, nil
	}

	rec.ExpiresAt = now.Add(ttl)
	rec.TTLSecs = int64(ttl / time.Second)
	s.byKey[k] = rec
	return true, rec, nil
}

func (s *MemoryStore) Release(ctx context.Context, leaseID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.byLeaseID[leaseID]
	if !ok {
		return false, nil
	}
	delete(s.byLeaseID, leaseID)
	if rec, present := s.byKey[k]; present && rec.LeaseID == leaseID {
		delete(s.byKey, k)
		return true, nil
	}
	return false, nil
}

func (s *MemoryStore) List(ctx context.Context, kind Kind, filterByKind bool) ([]Record, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.byKey))
	for k, rec := range s.byKey {
		if !rec.Active(now) {
			delete(s.byKey, k)
			delete(s.byLeaseID, rec.LeaseID)
			continue
		}
		if filterByKind && k.kind != kind {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// LoadRecords seeds the store with previously-granted records, skipping
// any that have since expired. Used once at startup to warm an empty
// store from a Snapshotter.Restore call; never used once the store is
// serving traffic.
func (s *MemoryStore) LoadRecords(records []Record) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		if !rec.Active(now) {
			continue
		}
		k := key{resourceID: rec.ResourceID, kind: rec.Kind}
		s.byKey[k] = rec
		s.byLeaseID[rec.LeaseID] = k
	}
}

// Len reports the number of currently-live leases, without sweeping.
func (s *MemoryStore) Len() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.byKey {
		if rec.Active(now) {
			n++
		}
	}
	return n
}
