package taskserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/taskcomputer/pkg/types"
)

// FailureReport records one SendTaskFailed call, for test assertions.
type FailureReport struct {
	SubtaskID string
	TaskID    string
	Reason    string
}

// ResultReport records one SendResults call, for test assertions.
type ResultReport struct {
	SubtaskID string
	TaskID    string
	Result    types.Result
	PaidTime  time.Duration
}

// FakeTaskServer is a minimal in-memory TaskServer for tests. NextHandle
// controls what RequestTask returns; set it to nil to simulate "no offer
// available".
type FakeTaskServer struct {
	mu sync.Mutex

	NextHandle         *RequestHandle
	RequestTaskErr     error
	RequestResourceErr error

	Results  []ResultReport
	Failures []FailureReport
}

// NewFakeTaskServer creates an empty fake task server.
func NewFakeTaskServer() *FakeTaskServer {
	return &FakeTaskServer{}
}

// RequestTask implements TaskServer.
func (f *FakeTaskServer) RequestTask(ctx context.Context) (*RequestHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RequestTaskErr != nil {
		return nil, f.RequestTaskErr
	}
	return f.NextHandle, nil
}

// RequestResource implements TaskServer.
func (f *FakeTaskServer) RequestResource(ctx context.Context, taskID string, header types.TaskHeader, envelope types.ReplyEnvelope) (*RequestHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RequestResourceErr != nil {
		return nil, f.RequestResourceErr
	}
	h := RequestHandle(fmt.Sprintf("resource-%s", taskID))
	return &h, nil
}

// SendResults implements TaskServer.
func (f *FakeTaskServer) SendResults(ctx context.Context, subtaskID, taskID string, result types.Result, paidTime time.Duration, envelope types.ReplyEnvelope, nodeName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Results = append(f.Results, ResultReport{SubtaskID: subtaskID, TaskID: taskID, Result: result, PaidTime: paidTime})
	return nil
}

// SendTaskFailed implements TaskServer.
func (f *FakeTaskServer) SendTaskFailed(ctx context.Context, subtaskID, taskID, reason string, envelope types.ReplyEnvelope, nodeName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Failures = append(f.Failures, FailureReport{SubtaskID: subtaskID, TaskID: taskID, Reason: reason})
	return nil
}

// FakeResourceManager is a minimal in-memory ResourceManager for tests.
type FakeResourceManager struct {
	mu          sync.Mutex
	Headers     map[string]types.TaskHeader
	UnpackCalls []string
	UnpackErr   error
}

// NewFakeResourceManager creates an empty fake resource manager.
func NewFakeResourceManager() *FakeResourceManager {
	return &FakeResourceManager{Headers: make(map[string]types.TaskHeader)}
}

// GetResourceDir implements ResourceManager.
func (f *FakeResourceManager) GetResourceDir(taskID string) (string, error) {
	return "/resources/" + taskID, nil
}

// GetTemporaryDir implements ResourceManager.
func (f *FakeResourceManager) GetTemporaryDir(taskID string) (string, error) {
	return "/tmp/" + taskID, nil
}

// GetTaskResourceDir implements ResourceManager.
func (f *FakeResourceManager) GetTaskResourceDir(taskID string) (string, error) {
	return "/resources/" + taskID, nil
}

// GetResourceHeader implements ResourceManager.
func (f *FakeResourceManager) GetResourceHeader(taskID string) (types.TaskHeader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	header, ok := f.Headers[taskID]
	if !ok {
		return types.TaskHeader{}, fmt.Errorf("no header registered for task %s", taskID)
	}
	return header, nil
}

// UnpackDelta implements ResourceManager.
func (f *FakeResourceManager) UnpackDelta(dir string, delta types.ResourceDelta, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UnpackCalls = append(f.UnpackCalls, taskID)
	return f.UnpackErr
}

// FakeTaskKeeper is a minimal in-memory TaskKeeper for tests.
type FakeTaskKeeper struct {
	mu      sync.Mutex
	Headers map[string]types.TaskHeader
}

// NewFakeTaskKeeper creates an empty fake task keeper.
func NewFakeTaskKeeper() *FakeTaskKeeper {
	return &FakeTaskKeeper{Headers: make(map[string]types.TaskHeader)}
}

// Set registers the header to return for taskID.
func (f *FakeTaskKeeper) Set(taskID string, header types.TaskHeader) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Headers[taskID] = header
}

// TaskHeader implements TaskKeeper.
func (f *FakeTaskKeeper) TaskHeader(taskID string) (types.TaskHeader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	header, ok := f.Headers[taskID]
	if !ok {
		return types.TaskHeader{}, fmt.Errorf("no task header for %s", taskID)
	}
	return header, nil
}

// FakeBenchmarkManager is a minimal in-memory BenchmarkManager for tests.
type FakeBenchmarkManager struct {
	mu       sync.Mutex
	Needed   bool
	RunErr   error
	RunCalls int
}

// BenchmarksNeeded implements BenchmarkManager.
func (f *FakeBenchmarkManager) BenchmarksNeeded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Needed
}

// RunAllBenchmarks implements BenchmarkManager.
func (f *FakeBenchmarkManager) RunAllBenchmarks(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RunCalls++
	return f.RunErr
}
