package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quadrant-vms/core-sub001/internal/log"
)

// CachedStore fronts a durable Store with a redis read-through cache for
// List reads, the coordinator's highest-QPS operation (workers poll their
// own domain/node_id slice on every renewal tick). Writes go straight to
// the backing store and invalidate the relevant list key; they are never
// served from cache.
type CachedStore struct {
	backing Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore wraps backing with a redis-backed List cache. ttl bounds
// the staleness a worker can observe; it should stay well under the
// renewal wake interval.
func NewCachedStore(backing Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{backing: backing, rdb: rdb, ttl: ttl}
}

func listCacheKey(domain Domain, nodeID string) string {
	return fmt.Sprintf("statestore:list:%s:%s", domain, nodeID)
}

func (c *CachedStore) Upsert(ctx context.Context, rec Record) (Record, error) {
	out, err := c.backing.Upsert(ctx, rec)
	if err == nil {
		c.invalidate(ctx, rec.Domain, rec.NodeID)
	}
	return out, err
}

func (c *CachedStore) Get(ctx context.Context, domain Domain, id string) (Record, bool, error) {
	return c.backing.Get(ctx, domain, id)
}

func (c *CachedStore) List(ctx context.Context, domain Domain, nodeID string) ([]Record, error) {
	key := listCacheKey(domain, nodeID)
	if cached, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var out []Record
		if jsonErr := json.Unmarshal(cached, &out); jsonErr == nil {
			return out, nil
		}
	} else if err != redis.Nil {
		log.WithComponent("statestore").Warn().Err(err).Msg("redis list cache read failed, falling back to backing store")
	}

	out, err := c.backing.List(ctx, domain, nodeID)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(out); err == nil {
		if err := c.rdb.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			log.WithComponent("statestore").Warn().Err(err).Msg("redis list cache write failed")
		}
	}
	return out, nil
}

func (c *CachedStore) Delete(ctx context.Context, domain Domain, id string) (bool, error) {
	rec, ok, err := c.backing.Get(ctx, domain, id)
	deleted, delErr := c.backing.Delete(ctx, domain, id)
	if delErr == nil && deleted {
		if err == nil && ok {
			c.invalidate(ctx, domain, rec.NodeID)
		} else {
			c.invalidate(ctx, domain, "")
		}
	}
	return deleted, delErr
}

func (c *CachedStore) UpdateState(ctx context.Context, domain Domain, id string, state TaskState, lastError string) (Record, bool, error) {
	rec, ok, err := c.backing.UpdateState(ctx, domain, id, state, lastError)
	if err == nil && ok {
		c.invalidate(ctx, domain, rec.NodeID)
	}
	return rec, ok, err
}

func (c *CachedStore) UpdateStats(ctx context.Context, domain Domain, id string, framesDelta, detectionsDelta int64) (Record, bool, error) {
	rec, ok, err := c.backing.UpdateStats(ctx, domain, id, framesDelta, detectionsDelta)
	if err == nil && ok {
		c.invalidate(ctx, domain, rec.NodeID)
	}
	return rec, ok, err
}

// invalidate drops both the node-scoped and the all-nodes list key for a
// domain, since a single write can affect either view.
func (c *CachedStore) invalidate(ctx context.Context, domain Domain, nodeID string) {
	keys := []string{listCacheKey(domain, "")}
	if nodeID != "" {
		keys = append(keys, listCacheKey(domain, nodeID))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		log.WithComponent("statestore").Warn().Err(err).Msg("redis list cache invalidation failed")
	}
}
