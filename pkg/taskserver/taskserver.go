// Package taskserver defines the external collaborators the Task Computer
// consumes but never implements: the task server itself, the resource and
// directory managers, and the benchmark manager. spec.md §1 explicitly
// scopes these out as "external collaborators, treated by interface
// only"; this package holds exactly the interfaces, plus in-memory fakes
// (fake.go) used by pkg/taskcomputer's tests.
package taskserver

import (
	"context"
	"time"

	"github.com/cuemby/taskcomputer/pkg/types"
)

// RequestHandle is the non-null handle returned by a successful
// request_task/request_resource call, used purely as a presence marker —
// the Task Computer never inspects its contents.
type RequestHandle string

// TaskServer is the external protocol peer that offers subtasks and
// accepts their outcomes. request_task/request_resource may return a nil
// handle to mean "no offer available right now" without that being an
// error.
type TaskServer interface {
	// RequestTask asks for a new subtask offer. A nil handle with a nil
	// error means no offer is currently available.
	RequestTask(ctx context.Context) (*RequestHandle, error)

	// RequestResource asks the peer to begin transferring the resource
	// bundle for taskID, using header and envelope to address the
	// request.
	RequestResource(ctx context.Context, taskID string, header types.TaskHeader, envelope types.ReplyEnvelope) (*RequestHandle, error)

	// SendResults reports a successful computation. paidTime is the task
	// header's subtask_timeout, per spec.md §4.5's payment ceiling
	// rationale, or the attempt's wall-clock time when the TaskKeeper has
	// no header with a positive subtask_timeout.
	SendResults(ctx context.Context, subtaskID, taskID string, result types.Result, paidTime time.Duration, envelope types.ReplyEnvelope, nodeName string) error

	// SendTaskFailed reports a terminal failure for a subtask: resource
	// failure, worker error, worker timeout, or malformed result.
	SendTaskFailed(ctx context.Context, subtaskID, taskID, reason string, envelope types.ReplyEnvelope, nodeName string) error
}

// ResourceManager resolves the on-disk layout for a task's resource and
// scratch space. The Task Computer never creates these directories
// itself beyond the per-attempt temp dir (pkg/worker.WorkDirManager).
type ResourceManager interface {
	GetResourceDir(taskID string) (string, error)
	GetTemporaryDir(taskID string) (string, error)
	GetTaskResourceDir(taskID string) (string, error)
	GetResourceHeader(taskID string) (types.TaskHeader, error)
	UnpackDelta(dir string, delta types.ResourceDelta, taskID string) error
}

// TaskKeeper exposes the task headers the outcome dispatcher needs to
// learn each task's subtask_timeout (the payment ceiling).
type TaskKeeper interface {
	TaskHeader(taskID string) (types.TaskHeader, error)
}

// BenchmarkManager gates and runs node benchmarks as part of container
// reconfiguration (spec.md §4.6's change_docker_config).
type BenchmarkManager interface {
	BenchmarksNeeded() bool
	RunAllBenchmarks(ctx context.Context) error
}
