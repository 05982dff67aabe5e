package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCapabilityRecord struct {
	batches   int
	returnErr error
}

func (f *fakeCapabilityRecord) RunOneBatch(kwargs map[string]any) (any, error) {
	f.batches++
	if f.returnErr != nil {
		return nil, f.returnErr
	}
	return kwargs["value"], nil
}

func (f *fakeCapabilityRecord) Net() any            { return nil }
func (f *fakeCapabilityRecord) GetModelHash() string { return "fake-hash" }

func TestProcVMRunsCapabilityRecord(t *testing.T) {
	record := &fakeCapabilityRecord{}
	result, err := ProcVM{}.RunTask(context.Background(), record, map[string]any{"value": 42})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, record.batches)
}

func TestProcVMRequiresCapabilityRecord(t *testing.T) {
	_, err := ProcVM{}.RunTask(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestTestVMNeverTouchesPayload(t *testing.T) {
	record := &fakeCapabilityRecord{}
	result, err := TestVM{}.RunTask(context.Background(), record, map[string]any{"value": 7})

	require.NoError(t, err)
	assert.Equal(t, 0, record.batches, "TestVM should not invoke the capability record")
	assert.NotNil(t, result)
}

func TestDirectWorkerWritesResult(t *testing.T) {
	workDir := t.TempDir()
	record := &fakeCapabilityRecord{}
	w := NewDirectWorker("subtask-1", record, map[string]any{"value": "done"}, workDir, time.Now().Add(time.Minute))

	require.NoError(t, w.Start(context.Background()))
	outcome, err := w.Wait(context.Background())

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "subtask-1", outcome.SubtaskID)
	assert.FileExists(t, filepath.Join(workDir, "result.txt"))
}

func TestTestDirectWorkerSucceedsWithoutRunningPayload(t *testing.T) {
	workDir := t.TempDir()
	record := &fakeCapabilityRecord{}
	w := NewTestDirectWorker("subtask-1", record, nil, workDir, time.Now().Add(time.Minute))

	outcome, err := w.Wait(context.Background())

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, 0, record.batches)
}

func TestDirectWorkerResultValidWhenShapedCorrectly(t *testing.T) {
	workDir := t.TempDir()
	record := &fakeCapabilityRecord{}
	w := NewDirectWorker("subtask-3", record, map[string]any{
		"value": map[string]any{"data": "payload", "result_type": "bin"},
	}, workDir, time.Now().Add(time.Minute))

	outcome, err := w.Wait(context.Background())

	require.NoError(t, err)
	assert.True(t, outcome.ResultValid)
	assert.Equal(t, "bin", outcome.Result.ResultType)
}

func TestDirectWorkerResultInvalidWhenUnshaped(t *testing.T) {
	workDir := t.TempDir()
	record := &fakeCapabilityRecord{}
	w := NewDirectWorker("subtask-4", record, map[string]any{"value": "not-a-map"}, workDir, time.Now().Add(time.Minute))

	outcome, err := w.Wait(context.Background())

	require.NoError(t, err)
	assert.False(t, outcome.ResultValid)
}

func TestDirectWorkerReportsFailure(t *testing.T) {
	workDir := t.TempDir()
	record := &fakeCapabilityRecord{returnErr: os.ErrInvalid}
	w := NewDirectWorker("subtask-2", record, nil, workDir, time.Now().Add(time.Minute))

	outcome, err := w.Wait(context.Background())

	assert.Error(t, err)
	assert.False(t, outcome.Success)
}
