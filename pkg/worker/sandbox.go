package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/taskcomputer/pkg/types"
)

// CapabilityRecord is the in-process analogue of the payload's abstract
// model base: a capability record of {run_one_batch, kwargs, net,
// get_model_hash} rather than an inheritance hierarchy (see the tagged-sum
// design note this package follows). The payload itself is out of scope;
// VM implementations below only need to know how to drive one.
type CapabilityRecord interface {
	// RunOneBatch executes a single batch of the payload's work using the
	// keyword arguments supplied at construction time, returning whatever
	// result the payload produces.
	RunOneBatch(kwargs map[string]any) (any, error)

	// Net returns the payload's current network/model snapshot, the Go
	// analogue of a deepcopy of the model for this batch.
	Net() any

	// GetModelHash identifies the model version in use, for reporting
	// alongside the outcome.
	GetModelHash() string
}

// VM runs a CapabilityRecord to completion in-process, without a
// container. ProcVM is the real interpreter; TestVM is a deterministic
// stand-in used for support_direct_computation's "test task" path, the way
// PythonTestVM swaps in for PythonProcVM.
type VM interface {
	RunTask(ctx context.Context, record CapabilityRecord, kwargs map[string]any) (any, error)
}

// ProcVM runs the capability record directly, mirroring golem's
// PythonProcVM: one RunOneBatch call per task, no sandboxing beyond the
// worker's own process isolation.
type ProcVM struct{}

// RunTask implements VM.
func (ProcVM) RunTask(ctx context.Context, record CapabilityRecord, kwargs map[string]any) (any, error) {
	if record == nil {
		return nil, fmt.Errorf("direct computation requires a capability record")
	}

	done := make(chan struct{})
	var result any
	var err error

	go func() {
		result, err = record.RunOneBatch(kwargs)
		close(done)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
		return result, err
	}
}

// TestVM never touches the capability record's payload logic; it is the
// fast, deterministic double used to verify a task's environment and
// parameters before committing to a full container or direct run, the
// analogue of golem's PythonTestVM.
type TestVM struct{}

// RunTask implements VM. It reports success without running any payload
// code, matching PythonTestVM's purpose of validating task setup rather
// than computing a real result.
func (TestVM) RunTask(ctx context.Context, record CapabilityRecord, kwargs map[string]any) (any, error) {
	return map[string]any{"test": true, "kwargs": kwargs}, nil
}

// DirectWorker runs a subtask's capability record in-process via a VM,
// bypassing containerd entirely. This backs support_direct_computation:
// nodes that opt into trusting the task owner's code enough to run it
// without container isolation.
type DirectWorker struct {
	subtaskID string
	record    CapabilityRecord
	kwargs    map[string]any
	workDir   string
	deadline  time.Time
	startedAt time.Time
	vm        VM
}

// NewDirectWorker builds a worker that runs record through the real
// in-process VM.
func NewDirectWorker(subtaskID string, record CapabilityRecord, kwargs map[string]any, workDir string, deadline time.Time) *DirectWorker {
	return &DirectWorker{
		subtaskID: subtaskID,
		record:    record,
		kwargs:    kwargs,
		workDir:   workDir,
		deadline:  deadline,
		vm:        ProcVM{},
	}
}

// NewTestDirectWorker builds a worker that validates task setup via TestVM
// instead of running the payload, for the task-owner's "is this node
// capable of running my task" probe.
func NewTestDirectWorker(subtaskID string, record CapabilityRecord, kwargs map[string]any, workDir string, deadline time.Time) *DirectWorker {
	return &DirectWorker{
		subtaskID: subtaskID,
		record:    record,
		kwargs:    kwargs,
		workDir:   workDir,
		deadline:  deadline,
		vm:        TestVM{},
	}
}

// SubtaskID implements Worker.
func (w *DirectWorker) SubtaskID() string { return w.subtaskID }

// Deadline implements Worker.
func (w *DirectWorker) Deadline() time.Time { return w.deadline }

// Start implements Worker. Direct computation has no separate
// create/start phase: the whole run happens inside Wait.
func (w *DirectWorker) Start(ctx context.Context) error {
	w.startedAt = time.Now()
	return nil
}

// Progress implements Worker.
func (w *DirectWorker) Progress() float64 {
	return elapsedFraction(w.startedAt, w.deadline)
}

// Wait implements Worker: runs the capability record through the VM and
// writes the raw return value to result.txt in workDir.
func (w *DirectWorker) Wait(ctx context.Context) (Outcome, error) {
	result, err := w.vm.RunTask(ctx, w.record, w.kwargs)

	outcome := Outcome{
		SubtaskID:  w.subtaskID,
		ResultDir:  w.workDir,
		StartedAt:  w.startedAt,
		FinishedAt: time.Now(),
	}

	if err != nil {
		outcome.Success = false
		outcome.Err = fmt.Errorf("direct computation failed: %w", err)
		return outcome, outcome.Err
	}

	if err := writeDirectResult(w.workDir, result); err != nil {
		outcome.Success = false
		outcome.Err = err
		return outcome, err
	}

	outcome.Success = true
	outcome.Result, outcome.ResultValid = asTaskResult(result)
	return outcome, nil
}

// asTaskResult interprets a capability record's raw return value as a
// {data, result_type} payload result. Anything else — including TestVM's
// {"test": true, ...} probe reply — is not a well-formed computation
// result and is reported as such, never invented.
func asTaskResult(result any) (types.Result, bool) {
	m, ok := result.(map[string]any)
	if !ok {
		return types.Result{}, false
	}
	data, hasData := m["data"]
	if !hasData {
		return types.Result{}, false
	}
	resultType, ok := m["result_type"].(string)
	if !ok || resultType == "" {
		return types.Result{}, false
	}
	return types.Result{Data: data, ResultType: resultType}, true
}

// Kill implements Worker. Direct computation runs on a goroutine inside
// Wait's own context, so Kill only needs to be a safe no-op; cancelling
// the context passed to Wait is what actually stops it.
func (w *DirectWorker) Kill(ctx context.Context) error {
	return nil
}

func writeDirectResult(workDir string, result any) error {
	if workDir == "" {
		return nil
	}
	if err := os.MkdirAll(workDir, 0700); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	return os.WriteFile(filepath.Join(workDir, "result.txt"), []byte(fmt.Sprintf("%v", result)), 0644)
}
