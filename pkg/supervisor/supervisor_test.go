package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/taskcomputer/pkg/worker"
)

type fakeWorker struct {
	subtaskID string
	deadline  time.Time
	killed    bool
	killErr   error
}

func (f *fakeWorker) SubtaskID() string   { return f.subtaskID }
func (f *fakeWorker) Deadline() time.Time { return f.deadline }
func (f *fakeWorker) Start(context.Context) error { return nil }
func (f *fakeWorker) Wait(context.Context) (worker.Outcome, error) {
	return worker.Outcome{SubtaskID: f.subtaskID}, nil
}
func (f *fakeWorker) Kill(context.Context) error {
	f.killed = true
	return f.killErr
}
func (f *fakeWorker) Progress() float64 { return 0 }

func TestSweepKillsPastDeadlineWorkers(t *testing.T) {
	s := New()

	expired := &fakeWorker{subtaskID: "sub-1", deadline: time.Now().Add(-time.Minute)}
	fresh := &fakeWorker{subtaskID: "sub-2", deadline: time.Now().Add(time.Hour)}

	timedOut := s.Sweep(context.Background(), []worker.Worker{expired, fresh})

	assert.True(t, expired.killed)
	assert.False(t, fresh.killed)
	assert.Equal(t, []string{"sub-1"}, timedOut)
}

func TestSweepSkipsZeroDeadline(t *testing.T) {
	s := New()

	w := &fakeWorker{subtaskID: "sub-3"}
	timedOut := s.Sweep(context.Background(), []worker.Worker{w})

	assert.False(t, w.killed)
	require.Empty(t, timedOut)
}
