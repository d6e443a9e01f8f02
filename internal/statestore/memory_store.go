package statestore

import (
	"context"
	"sync"
	"time"
)

type recKey struct {
	domain Domain
	id     string
}

// MemoryStore is the in-memory Store used when no database_url is
// configured, and by tests. Single mutex, same rationale as
// lease.MemoryStore: the expected op rate does not justify finer-grained
// locking.
type MemoryStore struct {
	mu      sync.Mutex
	records map[recKey]Record
	now     func() time.Time
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[recKey]Record), now: time.Now}
}

func (s *MemoryStore) Upsert(ctx context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := recKey{domain: rec.Domain, id: rec.ID}
	now := s.now()
	if existing, ok := s.records[k]; ok {
		rec.StartedAt = existing.StartedAt
	} else {
		if rec.StartedAt.IsZero() {
			rec.StartedAt = now
		}
	}
	rec.UpdatedAt = now
	s.records[k] = rec
	return rec, nil
}

func (s *MemoryStore) Get(ctx context.Context, domain Domain, id string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recKey{domain: domain, id: id}]
	return rec, ok, nil
}

func (s *MemoryStore) List(ctx context.Context, domain Domain, nodeID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0)
	for k, rec := range s.records {
		if k.domain != domain {
			continue
		}
		if nodeID != "" && rec.NodeID != nodeID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, domain Domain, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := recKey{domain: domain, id: id}
	if _, ok := s.records[k]; !ok {
		return false, nil
	}
	delete(s.records, k)
	return true, nil
}

func (s *MemoryStore) UpdateState(ctx context.Context, domain Domain, id string, state TaskState, lastError string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := recKey{domain: domain, id: id}
	rec, ok := s.records[k]
	if !ok {
		return Record{}, false, nil
	}
	rec.State = state
	rec.LastError = lastError
	rec.UpdatedAt = s.now()
	s.records[k] = rec
	return rec, true, nil
}

func (s *MemoryStore) UpdateStats(ctx context.Context, domain Domain, id string, framesDelta, detectionsDelta int64) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := recKey{domain: domain, id: id}
	rec, ok := s.records[k]
	if !ok {
		return Record{}, false, nil
	}
	rec.Stats.Frames += framesDelta
	rec.Stats.Detections += detectionsDelta
	rec.UpdatedAt = s.now()
	s.records[k] = rec
	return rec, true, nil
}
