package workerclient

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/quadrant-vms/core-sub001/internal/lease"
	"github.com/quadrant-vms/core-sub001/internal/log"
)

// MaxRenewalRetries is the reference value from spec.md §9: a renewal
// loop gives up and transitions its task to Error after this many
// consecutive failures.
const MaxRenewalRetries = 3

// BaseBackoff is the starting delay before a retried renew; it doubles on
// each consecutive failure (spec.md §9 "Exponential backoff and jitter").
const BaseBackoff = 100 * time.Millisecond

// Manager owns the bounded set of leases a worker process is actively
// renewing (C4, spec.md §4.4).
type Manager struct {
	client    CoordinatorClient
	tasks     *taskMap
	admission *rate.Limiter
	clock     func() time.Time
	sleep     func(context.Context, time.Duration) error

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Config bounds the worker's admission behavior.
type Config struct {
	// MaxConcurrentTasks caps the bounded task map (0 = unbounded).
	MaxConcurrentTasks int
	// AcquireRPS / AcquireBurst throttle new-task admission so a burst of
	// start requests cannot overwhelm the coordinator (SPEC_FULL.md's
	// worker client supplement).
	AcquireRPS   float64
	AcquireBurst int
}

// NewManager constructs a renewal Manager against client.
func NewManager(client CoordinatorClient, cfg Config) *Manager {
	rps := cfg.AcquireRPS
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.AcquireBurst
	if burst <= 0 {
		burst = 10
	}
	return &Manager{
		client:    client,
		tasks:     newTaskMap(cfg.MaxConcurrentTasks),
		admission: rate.NewLimiter(rate.Limit(rps), burst),
		clock:     time.Now,
		sleep:     sleepCtx,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
	}
}

// randInt63n is a thread-safe wrapper around the Manager's seeded RNG:
// multiple renewal loops run concurrently and *rand.Rand is not safe for
// concurrent use on its own.
func (m *Manager) randInt63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	return m.rng.Int63n(n)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrTaskExists / ErrAtCapacity report admission failures for StartTask.
var (
	ErrTaskExists = errTaskExists{}
	ErrAtCapacity = errAtCapacity{}
)

type errTaskExists struct{}

func (errTaskExists) Error() string { return "workerclient: task already exists for resource" }

type errAtCapacity struct{}

func (errAtCapacity) Error() string { return "workerclient: worker is at max concurrent tasks" }

// StartTask acquires a lease for resourceID and, on success, spawns a
// background renewal loop (spec.md §4.4 steps 1-2). It blocks only for
// the initial acquire call; the renewal loop runs asynchronously until
// StopTask is called or it exhausts its retries.
func (m *Manager) StartTask(ctx context.Context, resourceID, holderID string, kind lease.Kind, ttl time.Duration) (*Task, bool, error) {
	if !m.admission.Allow() {
		return nil, false, errAtCapacity{}
	}

	task := &Task{ResourceID: resourceID, Kind: kind, TTL: ttl, status: TaskAcquiring}
	switch m.tasks.tryAdd(resourceID, task) {
	case addConflict:
		return nil, false, ErrTaskExists
	case addAtCapacity:
		return nil, false, ErrAtCapacity
	}

	granted, rec, err := m.client.Acquire(ctx, resourceID, holderID, kind, ttl)
	if err != nil {
		m.tasks.remove(resourceID)
		return nil, false, err
	}
	if !granted {
		m.tasks.remove(resourceID)
		return nil, false, nil
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	task.mu.Lock()
	task.status = TaskActive
	task.lease = rec
	task.cancel = cancel
	task.mu.Unlock()

	go m.renewalLoop(loopCtx, task)

	return task, true, nil
}

// StopTask cancels the task's renewal loop and releases its lease,
// best-effort (spec.md §4.4 step 3).
func (m *Manager) StopTask(ctx context.Context, resourceID string) {
	task, ok := m.tasks.get(resourceID)
	if !ok {
		return
	}

	task.mu.Lock()
	cancel := task.cancel
	leaseID := task.lease.LeaseID
	task.status = TaskStopped
	task.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.tasks.remove(resourceID)

	if leaseID != "" {
		_, _ = m.client.Release(ctx, leaseID)
	}
}

// Task returns the managed task for resourceID, if any.
func (m *Manager) Task(resourceID string) (*Task, bool) {
	return m.tasks.get(resourceID)
}

// Tasks returns a snapshot of all currently-managed tasks.
func (m *Manager) Tasks() []*Task {
	return m.tasks.list()
}

// renewalLoop implements spec.md §4.4 step 2: wake every ttl/2, renew,
// and on MaxRenewalRetries consecutive failures transition to Error.
func (m *Manager) renewalLoop(ctx context.Context, task *Task) {
	logger := log.WithComponent("workerclient").With().Str("resource_id", task.ResourceID).Logger()

	wakeInterval := task.TTL / 2
	if wakeInterval <= 0 {
		wakeInterval = time.Second
	}

	for {
		if err := m.sleep(ctx, wakeInterval); err != nil {
			return // cancelled, task map entry already being torn down by StopTask
		}

		task.mu.Lock()
		leaseID := task.lease.LeaseID
		ttl := task.TTL
		task.mu.Unlock()

		renewed, rec, err := m.client.Renew(ctx, leaseID, ttl)
		if err == nil && renewed {
			task.mu.Lock()
			task.lease = rec
			task.failures = 0
			task.status = TaskActive
			task.mu.Unlock()
			continue
		}

		task.mu.Lock()
		task.failures++
		failures := task.failures
		if err != nil {
			task.lastError = err.Error()
		} else {
			task.lastError = "renew rejected: lease not found or expired"
		}
		task.mu.Unlock()

		logger.Warn().Int("failures", failures).Str("reason", task.lastError).Msg("lease renewal failed")

		if failures >= MaxRenewalRetries {
			task.mu.Lock()
			task.status = TaskError
			task.mu.Unlock()
			logger.Error().Msg("renewal retries exhausted, task moved to error state")
			return
		}

		backoff := time.Duration(float64(BaseBackoff) * math.Pow(2, float64(failures-1)))
		// spec.md §9: renewal backoff MUST carry randomized jitter, like
		// the election timeout does. Uniform jitter up to half the
		// computed backoff, added on top.
		jitter := time.Duration(m.randInt63n(int64(backoff/2) + 1))
		if err := m.sleep(ctx, backoff+jitter); err != nil {
			return
		}
	}
}
