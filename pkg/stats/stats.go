// Package stats holds the Task Computer's lifetime tallies: computed
// tasks, tasks with errors, tasks with timeouts, tasks requested. It is
// the Go counterpart of the original's CompStats/IntStatsKeeper pair —
// an in-memory counter that can be snapshotted for durable persistence
// (pkg/storage) and that drives the Prometheus counters (pkg/metrics)
// as a side effect of each increment.
package stats

import (
	"sync"

	"github.com/cuemby/taskcomputer/pkg/metrics"
	"github.com/cuemby/taskcomputer/pkg/storage"
)

// Counter tracks the four lifetime tallies the original's CompStats
// held. All methods are safe for concurrent use; the tick loop mutates it
// while the admin API reads Snapshot from its own goroutine.
type Counter struct {
	mu sync.Mutex

	computedTasks    int
	tasksWithErrors  int
	tasksWithTimeout int
	tasksRequested   int
}

// NewCounter creates a zeroed counter.
func NewCounter() *Counter {
	return &Counter{}
}

// Restore seeds the counter from a durable snapshot, used once at
// startup before the counter ever observes a live event.
func Restore(snapshot storage.StatsSnapshot) *Counter {
	return &Counter{
		computedTasks:    snapshot.ComputedTasks,
		tasksWithErrors:  snapshot.TasksWithErrors,
		tasksWithTimeout: snapshot.TasksWithTimeout,
		tasksRequested:   snapshot.TasksRequested,
	}
}

// ComputedTask records a successful computation.
func (c *Counter) ComputedTask() {
	c.mu.Lock()
	c.computedTasks++
	c.mu.Unlock()
	metrics.ComputedTasksTotal.Inc()
}

// TaskWithError records a subtask that failed for a reason other than
// a timeout (worker error or malformed result). Resource-transfer
// failures are not counted here.
func (c *Counter) TaskWithError() {
	c.mu.Lock()
	c.tasksWithErrors++
	c.mu.Unlock()
	metrics.TasksWithErrorsTotal.Inc()
}

// TaskWithTimeout records a subtask whose outcome was classified as a
// timeout: either killed by the Supervisor's sweep or reporting a
// "Task timed out" error itself.
func (c *Counter) TaskWithTimeout() {
	c.mu.Lock()
	c.tasksWithTimeout++
	c.mu.Unlock()
	metrics.TasksWithTimeoutTotal.Inc()
}

// TaskRequested records one request_task call that returned a handle.
func (c *Counter) TaskRequested() {
	c.mu.Lock()
	c.tasksRequested++
	c.mu.Unlock()
	metrics.TasksRequestedTotal.Inc()
}

// Snapshot returns the current tallies as a durable snapshot, suitable
// for pkg/storage.Store.SaveStats.
func (c *Counter) Snapshot() storage.StatsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return storage.StatsSnapshot{
		ComputedTasks:    c.computedTasks,
		TasksWithErrors:  c.tasksWithErrors,
		TasksWithTimeout: c.tasksWithTimeout,
		TasksRequested:   c.tasksRequested,
	}
}
