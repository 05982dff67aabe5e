package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/taskcomputer/pkg/taskserver"
	"github.com/cuemby/taskcomputer/pkg/types"
	"github.com/cuemby/taskcomputer/pkg/worker"
)

// The Task Computer's networking transport, resource directory layout,
// task metadata store, benchmark suite, and payload content are all
// external collaborators (pkg/taskserver's interfaces, plus
// taskcomputer.PayloadLoader) that this module consumes but deliberately
// never implements. Standing one up for real means speaking golem's wire
// protocol and interpreting its payload format, which is out of scope.
//
// standaloneTaskServer and its siblings below exist only so `taskcomputer
// run` has something to construct and drive: a single node offering
// itself one direct-computation subtask at a time, with no peer on the
// other end. They are not test doubles (pkg/taskserver/fake.go already
// covers that) — they are the smallest real loop that lets the state
// machine run unattended against local input instead of a mock.

// offerSink is the subset of pkg/taskcomputer.Computer the standalone
// task server calls back into once it has "delivered" an offer. Defined
// here, consumer-side, so this file never imports pkg/taskcomputer.
type offerSink interface {
	TaskGiven(d types.SubtaskDescriptor) bool
	ResourceGiven(taskID string) bool
}

// standaloneTaskServer hands out its locally-queued subtasks, one per
// RequestTask call, and reports every SendResults/SendTaskFailed call to
// the console. Its sink
// is wired in after the Computer it serves is constructed, since the
// Computer's own constructor requires a TaskServer to already exist.
type standaloneTaskServer struct {
	mu      sync.Mutex
	pending []types.SubtaskDescriptor
	sink    offerSink
}

func newStandaloneTaskServer(queue []types.SubtaskDescriptor) *standaloneTaskServer {
	return &standaloneTaskServer{pending: queue}
}

// SetSink wires the Computer this task server delivers offers into. Must
// be called before the first RequestTask.
func (s *standaloneTaskServer) SetSink(sink offerSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

func (s *standaloneTaskServer) RequestTask(ctx context.Context) (*taskserver.RequestHandle, error) {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return nil, nil
	}
	d := s.pending[0]
	s.pending = s.pending[1:]
	sink := s.sink
	s.mu.Unlock()

	h := taskserver.RequestHandle(d.TaskID)
	if sink != nil {
		go sink.TaskGiven(d)
	}
	return &h, nil
}

func (s *standaloneTaskServer) RequestResource(ctx context.Context, taskID string, header types.TaskHeader, envelope types.ReplyEnvelope) (*taskserver.RequestHandle, error) {
	h := taskserver.RequestHandle(taskID + "-resource")

	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		go sink.ResourceGiven(taskID)
	}
	return &h, nil
}

func (s *standaloneTaskServer) SendResults(ctx context.Context, subtaskID, taskID string, result types.Result, paidTime time.Duration, envelope types.ReplyEnvelope, nodeName string) error {
	fmt.Printf("subtask %s (task %s) computed successfully, paid_time=%s\n", subtaskID, taskID, paidTime)
	return nil
}

func (s *standaloneTaskServer) SendTaskFailed(ctx context.Context, subtaskID, taskID, reason string, envelope types.ReplyEnvelope, nodeName string) error {
	fmt.Printf("subtask %s (task %s) failed: %s\n", subtaskID, taskID, reason)
	return nil
}

// standaloneResourceManager resolves every task's resource/scratch
// directories underneath a single local root.
type standaloneResourceManager struct {
	root string
}

func newStandaloneResourceManager(root string) *standaloneResourceManager {
	return &standaloneResourceManager{root: root}
}

func (m *standaloneResourceManager) GetResourceDir(taskID string) (string, error) {
	return m.root + "/" + taskID + "/resources", nil
}

func (m *standaloneResourceManager) GetTemporaryDir(taskID string) (string, error) {
	return m.root + "/" + taskID + "/tmp", nil
}

func (m *standaloneResourceManager) GetTaskResourceDir(taskID string) (string, error) {
	return m.root + "/" + taskID + "/resources", nil
}

func (m *standaloneResourceManager) GetResourceHeader(taskID string) (types.TaskHeader, error) {
	return types.TaskHeader{TaskID: taskID, Deadline: time.Now().Add(time.Hour), SubtaskTimeout: 10 * time.Minute}, nil
}

func (m *standaloneResourceManager) UnpackDelta(dir string, delta types.ResourceDelta, taskID string) error {
	return nil
}

// standaloneTaskKeeper answers every TaskHeader query with a one-hour
// deadline and the subtask timeout it was built with (unlike
// standaloneResourceManager's fixed ten minutes), since a single-node
// deployment has no separate task metadata store to consult.
type standaloneTaskKeeper struct {
	subtaskTimeout time.Duration
}

func newStandaloneTaskKeeper(subtaskTimeout time.Duration) *standaloneTaskKeeper {
	return &standaloneTaskKeeper{subtaskTimeout: subtaskTimeout}
}

func (k *standaloneTaskKeeper) TaskHeader(taskID string) (types.TaskHeader, error) {
	return types.TaskHeader{TaskID: taskID, Deadline: time.Now().Add(time.Hour), SubtaskTimeout: k.subtaskTimeout}, nil
}

// standaloneBenchmarkManager never requires benchmarks: a single local
// node has no peer pricing decision that depends on them.
type standaloneBenchmarkManager struct{}

func (standaloneBenchmarkManager) BenchmarksNeeded() bool { return false }

func (standaloneBenchmarkManager) RunAllBenchmarks(ctx context.Context) error { return nil }

// echoCapabilityRecord is the payload a standalonePayloadLoader hands
// direct-computation workers: it echoes its kwargs back as the result,
// enough to exercise the direct-worker path without a real compute
// payload format to interpret.
type echoCapabilityRecord struct{}

func (echoCapabilityRecord) RunOneBatch(kwargs map[string]any) (any, error) {
	return kwargs, nil
}

func (echoCapabilityRecord) Net() any { return nil }

func (echoCapabilityRecord) GetModelHash() string { return "standalone-echo" }

// standalonePayloadLoader resolves every subtask's source_code to the
// same echo capability record, since interpreting real payload content is
// out of scope for this module.
type standalonePayloadLoader struct{}

func (standalonePayloadLoader) Load(ctx context.Context, d types.SubtaskDescriptor) (worker.CapabilityRecord, map[string]any, error) {
	return echoCapabilityRecord{}, d.ExtraData, nil
}

// newStandaloneSubtask builds a single local subtask descriptor for the
// run subcommand's demo queue, distinct from anything task-server-offered
// subtasks would ever look like.
func newStandaloneSubtask(shortDesc string) types.SubtaskDescriptor {
	id := uuid.NewString()
	return types.SubtaskDescriptor{
		SubtaskID:        id,
		TaskID:           id,
		ShortDescription: shortDesc,
		ExtraData:        map[string]any{"hello": "world"},
		Deadline:         time.Now().Add(time.Hour),
	}
}
