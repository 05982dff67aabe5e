package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/taskcomputer/pkg/storage"
)

func TestCounterIncrementsAndSnapshots(t *testing.T) {
	c := NewCounter()

	c.ComputedTask()
	c.ComputedTask()
	c.TaskWithError()
	c.TaskWithTimeout()
	c.TaskRequested()
	c.TaskRequested()
	c.TaskRequested()

	snap := c.Snapshot()
	assert.Equal(t, storage.StatsSnapshot{
		ComputedTasks:    2,
		TasksWithErrors:  1,
		TasksWithTimeout: 1,
		TasksRequested:   3,
	}, snap)
}

func TestRestorePreservesSnapshot(t *testing.T) {
	snap := storage.StatsSnapshot{ComputedTasks: 5, TasksWithErrors: 2, TasksWithTimeout: 1, TasksRequested: 9}
	c := Restore(snap)
	assert.Equal(t, snap, c.Snapshot())

	c.ComputedTask()
	assert.Equal(t, 6, c.Snapshot().ComputedTasks)
}
