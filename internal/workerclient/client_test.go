package workerclient

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quadrant-vms/core-sub001/internal/lease"
)

// flakyClient wraps a MemoryClient and injects a fixed number of renew
// failures before reverting to normal behavior, for S7.
type flakyClient struct {
	*MemoryClient
	mu             sync.Mutex
	renewFailures  int
	renewCallCount int
}

func (c *flakyClient) Renew(ctx context.Context, leaseID string, ttl time.Duration) (bool, lease.Record, error) {
	c.mu.Lock()
	c.renewCallCount++
	shouldFail := c.renewFailures > 0
	if shouldFail {
		c.renewFailures--
	}
	c.mu.Unlock()

	if shouldFail {
		return false, lease.Record{}, assert.AnError
	}
	return c.MemoryClient.Renew(ctx, leaseID, ttl)
}

func fastSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestStartTaskGrantsAndRenews(t *testing.T) {
	store := lease.NewMemoryStore(lease.Limits{Min: time.Millisecond, Max: time.Hour, Default: 50 * time.Millisecond})
	client := NewMemoryClient(store, 1)
	mgr := NewManager(client, Config{})
	mgr.sleep = fastSleep

	task, granted, err := mgr.StartTask(context.Background(), "cam-1", "worker-a", lease.KindStream, 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, granted)
	first := task.Lease()

	require.Eventually(t, func() bool {
		return task.Status() == TaskActive && task.Lease().LeaseID != "" && task.Lease().ExpiresAt.After(first.ExpiresAt)
	}, time.Second, time.Millisecond)

	mgr.StopTask(context.Background(), "cam-1")
	assert.Equal(t, TaskStopped, task.Status())

	_, active := mgr.Task("cam-1")
	assert.False(t, active)
}

func TestStartTaskConflictIsNotGranted(t *testing.T) {
	store := lease.NewMemoryStore(lease.Limits{Min: time.Second, Max: time.Hour, Default: 30 * time.Second})
	client := NewMemoryClient(store, 1)
	mgr := NewManager(client, Config{})
	mgr.sleep = fastSleep

	_, granted1, err := mgr.StartTask(context.Background(), "cam-1", "worker-a", lease.KindStream, 30*time.Second)
	require.NoError(t, err)
	require.True(t, granted1)
	t.Cleanup(func() { mgr.StopTask(context.Background(), "cam-1") })

	mgr2 := NewManager(client, Config{})
	mgr2.sleep = fastSleep

	_, granted2, err := mgr2.StartTask(context.Background(), "cam-1", "worker-b", lease.KindStream, 30*time.Second)
	require.NoError(t, err)
	assert.False(t, granted2)
}

func TestStartTaskDuplicateResourceRejected(t *testing.T) {
	store := lease.NewMemoryStore(lease.Limits{Min: time.Second, Max: time.Hour, Default: 30 * time.Second})
	client := NewMemoryClient(store, 1)
	mgr := NewManager(client, Config{})
	mgr.sleep = fastSleep

	_, granted, err := mgr.StartTask(context.Background(), "cam-1", "worker-a", lease.KindStream, 30*time.Second)
	require.NoError(t, err)
	require.True(t, granted)
	t.Cleanup(func() { mgr.StopTask(context.Background(), "cam-1") })

	_, _, err = mgr.StartTask(context.Background(), "cam-1", "worker-a", lease.KindStream, 30*time.Second)
	assert.ErrorIs(t, err, ErrTaskExists)
}

func TestAtCapacityRejectsNewTasks(t *testing.T) {
	store := lease.NewMemoryStore(lease.Limits{Min: time.Second, Max: time.Hour, Default: 30 * time.Second})
	client := NewMemoryClient(store, 1)
	mgr := NewManager(client, Config{MaxConcurrentTasks: 1, AcquireRPS: 1000, AcquireBurst: 1000})
	mgr.sleep = fastSleep

	_, granted, err := mgr.StartTask(context.Background(), "cam-1", "worker-a", lease.KindStream, 30*time.Second)
	require.NoError(t, err)
	require.True(t, granted)
	t.Cleanup(func() { mgr.StopTask(context.Background(), "cam-1") })

	_, _, err = mgr.StartTask(context.Background(), "cam-2", "worker-a", lease.KindStream, 30*time.Second)
	assert.ErrorIs(t, err, ErrAtCapacity)
}

// TestRenewalSurvivesTransientFailure covers S7: the renewal loop retries
// after a single injected failure and stays Active, rather than moving to
// Error, since it has not exhausted MaxRenewalRetries.
func TestRenewalSurvivesTransientFailure(t *testing.T) {
	store := lease.NewMemoryStore(lease.Limits{Min: time.Millisecond, Max: time.Hour, Default: 40 * time.Millisecond})
	flaky := &flakyClient{MemoryClient: NewMemoryClient(store, 1), renewFailures: 1}
	mgr := NewManager(flaky, Config{})
	mgr.sleep = fastSleep

	task, granted, err := mgr.StartTask(context.Background(), "cam-1", "worker-a", lease.KindStream, 40*time.Millisecond)
	require.NoError(t, err)
	require.True(t, granted)

	require.Eventually(t, func() bool {
		flaky.mu.Lock()
		calls := flaky.renewCallCount
		flaky.mu.Unlock()
		return calls >= 2
	}, 2*time.Second, time.Millisecond)

	assert.Equal(t, TaskActive, task.Status())
	mgr.StopTask(context.Background(), "cam-1")
}

// TestRenewalExhaustsRetriesTransitionsToError covers the tail of S7: once
// MaxRenewalRetries consecutive failures occur, the task moves to Error
// and the renewal loop exits.
func TestRenewalExhaustsRetriesTransitionsToError(t *testing.T) {
	store := lease.NewMemoryStore(lease.Limits{Min: time.Millisecond, Max: time.Hour, Default: 40 * time.Millisecond})
	var calls int64
	client := &alwaysFailRenewClient{MemoryClient: NewMemoryClient(store, 1), calls: &calls}
	mgr := NewManager(client, Config{})
	mgr.sleep = fastSleep

	task, granted, err := mgr.StartTask(context.Background(), "cam-1", "worker-a", lease.KindStream, 40*time.Millisecond)
	require.NoError(t, err)
	require.True(t, granted)
	t.Cleanup(func() { mgr.StopTask(context.Background(), "cam-1") })

	require.Eventually(t, func() bool {
		return task.Status() == TaskError
	}, 2*time.Second, time.Millisecond)

	assert.GreaterOrEqual(t, atomic.LoadInt64(&calls), int64(MaxRenewalRetries))
}

type alwaysFailRenewClient struct {
	*MemoryClient
	calls *int64
}

func (c *alwaysFailRenewClient) Renew(ctx context.Context, leaseID string, ttl time.Duration) (bool, lease.Record, error) {
	atomic.AddInt64(c.calls, 1)
	return false, lease.Record{}, assert.AnError
}
