package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCachedStore(t *testing.T) (*miniredis.Miniredis, *CachedStore, *MemoryStore) {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	backing := NewMemoryStore()
	return mr, NewCachedStore(backing, rdb, time.Minute), backing
}

func TestCachedStoreListServesFromCacheOnSecondCall(t *testing.T) {
	ctx := context.Background()
	_, cached, backing := setupCachedStore(t)

	_, err := backing.Upsert(ctx, Record{ID: "cam-1", Domain: DomainStreams, NodeID: "node-1", State: TaskPending})
	require.NoError(t, err)

	first, err := cached.List(ctx, DomainStreams, "node-1")
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Mutate the backing store directly, bypassing the cache, to prove the
	// second List call is served from the (now stale) cache rather than
	// hitting the backing store again.
	_, err = backing.Upsert(ctx, Record{ID: "cam-2", Domain: DomainStreams, NodeID: "node-1", State: TaskPending})
	require.NoError(t, err)

	second, err := cached.List(ctx, DomainStreams, "node-1")
	require.NoError(t, err)
	assert.Len(t, second, 1, "second List should be served from cache and miss the newly-written record")
}

func TestCachedStoreUpsertInvalidatesListCache(t *testing.T) {
	ctx := context.Background()
	_, cached, _ := setupCachedStore(t)

	_, err := cached.Upsert(ctx, Record{ID: "cam-1", Domain: DomainStreams, NodeID: "node-1", State: TaskPending})
	require.NoError(t, err)

	first, err := cached.List(ctx, DomainStreams, "node-1")
	require.NoError(t, err)
	require.Len(t, first, 1)

	_, err = cached.Upsert(ctx, Record{ID: "cam-2", Domain: DomainStreams, NodeID: "node-1", State: TaskPending})
	require.NoError(t, err)

	second, err := cached.List(ctx, DomainStreams, "node-1")
	require.NoError(t, err)
	assert.Len(t, second, 2, "Upsert must invalidate the node-scoped list cache entry")
}

func TestCachedStoreDeleteInvalidatesListCache(t *testing.T) {
	ctx := context.Background()
	_, cached, _ := setupCachedStore(t)

	_, err := cached.Upsert(ctx, Record{ID: "cam-1", Domain: DomainStreams, NodeID: "node-1", State: TaskPending})
	require.NoError(t, err)

	_, err = cached.List(ctx, DomainStreams, "node-1")
	require.NoError(t, err)

	deleted, err := cached.Delete(ctx, DomainStreams, "cam-1")
	require.NoError(t, err)
	require.True(t, deleted)

	after, err := cached.List(ctx, DomainStreams, "node-1")
	require.NoError(t, err)
	assert.Empty(t, after)
}

func TestCachedStoreGetBypassesCache(t *testing.T) {
	ctx := context.Background()
	_, cached, _ := setupCachedStore(t)

	_, err := cached.Upsert(ctx, Record{ID: "cam-1", Domain: DomainStreams, NodeID: "node-1", State: TaskPending})
	require.NoError(t, err)

	rec, ok, err := cached.Get(ctx, DomainStreams, "cam-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, TaskPending, rec.State)

	_, ok, err = cached.Get(ctx, DomainStreams, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
