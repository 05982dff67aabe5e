package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeDuration(t *testing.T) {
	started := time.Now()
	outcome := Outcome{
		StartedAt:  started,
		FinishedAt: started.Add(5 * time.Second),
	}
	assert.Equal(t, 5*time.Second, outcome.Duration())
}

func TestContainerWorkerDeadline(t *testing.T) {
	deadline := time.Now().Add(time.Hour)
	w := NewContainerWorker(nil, "subtask-1", "image:latest", "/res", "/work", deadline)

	assert.Equal(t, "subtask-1", w.SubtaskID())
	assert.Equal(t, deadline, w.Deadline())
}

func TestContainerWorkerKillWithoutStartIsNoop(t *testing.T) {
	w := NewContainerWorker(nil, "subtask-1", "image:latest", "/res", "/work", time.Now())
	err := w.Kill(nil) //nolint:staticcheck // no containerd call happens before a container exists
	assert.NoError(t, err)
}
