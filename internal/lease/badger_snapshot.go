package lease

import (
	"context"
	"encoding/json"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/quadrant-vms/core-sub001/internal/log"
)

// Snapshotter periodically persists the live contents of a MemoryStore to
// an embedded Badger database, keyed by lease_id with Badger's native
// per-key TTL set to the lease's remaining lifetime. This is advisory
// warm-restart acceleration only (SPEC_FULL.md, Lease Store supplement):
// acquire/renew/release never consult it, and a node started without a
// Badger directory configured behaves exactly as spec.md describes.
type Snapshotter struct {
	db       *badger.DB
	store    *MemoryStore
	interval time.Duration
}

// OpenSnapshotter opens (or creates) a Badger database at dir for use as a
// snapshot target.
func OpenSnapshotter(dir string, store *MemoryStore, interval time.Duration) (*Snapshotter, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Snapshotter{db: db, store: store, interval: interval}, nil
}

// Close releases the underlying Badger database.
func (s *Snapshotter) Close() error {
	return s.db.Close()
}

// Run snapshots the store on a fixed interval until ctx is cancelled.
func (s *Snapshotter) Run(ctx context.Context) {
	logger := log.WithComponent("lease.snapshotter")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.snapshotOnce(); err != nil {
				logger.Warn().Err(err).Msg("lease snapshot failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Snapshotter) snapshotOnce() error {
	records, err := s.store.List(context.Background(), "", false)
	if err != nil {
		return err
	}
	now := time.Now()
	return s.db.Update(func(txn *badger.Txn) error {
		for _, rec := range records {
			ttl := rec.ExpiresAt.Sub(now)
			if ttl <= 0 {
				continue
			}
			payload, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			entry := badger.NewEntry([]byte(rec.LeaseID), payload).WithTTL(ttl)
			if err := txn.SetEntry(entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// Restore reads every non-expired record out of the Badger snapshot. A
// node calls this once at startup, before serving any requests, to warm
// its otherwise-empty in-memory table. It is purely a latency
// optimization: if it returns an empty slice (no snapshot, or the leader
// never had one), the store behaves exactly as spec.md's "fresh empty
// store on failover" describes.
func (s *Snapshotter) Restore(ctx context.Context) ([]Record, error) {
	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var rec Record
				if err := json.Unmarshal(val, &rec); err != nil {
					return nil //nolint:nilerr // skip corrupt entries, don't abort restore
				}
				out = append(out, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}
