package workerclient

import (
	"sync"
	"time"

	"github.com/quadrant-vms/core-sub001/internal/lease"
)

// TaskStatus mirrors spec.md §3's worker task state enum as observed from
// the worker side of a single managed lease.
type TaskStatus string

const (
	TaskAcquiring TaskStatus = "acquiring"
	TaskActive    TaskStatus = "active"
	TaskError     TaskStatus = "error"
	TaskStopped   TaskStatus = "stopped"
)

// Task is one worker-owned lease under renewal management.
type Task struct {
	mu sync.Mutex

	ResourceID string
	Kind       lease.Kind
	TTL        time.Duration

	status       TaskStatus
	lease        lease.Record
	failures     int
	lastError    string
	cancel       func()
}

func (t *Task) snapshot() (TaskStatus, lease.Record, int, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, t.lease, t.failures, t.lastError
}

// Status returns the task's current observable state.
func (t *Task) Status() TaskStatus {
	s, _, _, _ := t.snapshot()
	return s
}

// Lease returns the most recently known lease record for this task.
func (t *Task) Lease() lease.Record {
	_, l, _, _ := t.snapshot()
	return l
}

// taskMap is a bounded registry of in-flight tasks, keyed by resource ID.
// Capacity caps the number of concurrently-managed leases per worker
// process (SPEC_FULL.md's worker client supplement); tryAdd returns
// addAtCapacity when the map is already at capacity.
type taskMap struct {
	mu       sync.RWMutex
	tasks    map[string]*Task
	capacity int
}

func newTaskMap(capacity int) *taskMap {
	return &taskMap{tasks: make(map[string]*Task), capacity: capacity}
}

// addOutcome distinguishes why tryAdd refused an entry, so callers can
// surface "already exists" and "at capacity" as the distinct errors
// spec.md §5 requires (a capacity rejection must not be reported as a
// conflict).
type addOutcome int

const (
	addOK addOutcome = iota
	addConflict
	addAtCapacity
)

func (m *taskMap) tryAdd(resourceID string, t *Task) addOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tasks[resourceID]; exists {
		return addConflict
	}
	if m.capacity > 0 && len(m.tasks) >= m.capacity {
		return addAtCapacity
	}
	m.tasks[resourceID] = t
	return addOK
}

func (m *taskMap) remove(resourceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, resourceID)
}

func (m *taskMap) get(resourceID string) (*Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[resourceID]
	return t, ok
}

func (m *taskMap) list() []*Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	return out
}

func (m *taskMap) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tasks)
}
