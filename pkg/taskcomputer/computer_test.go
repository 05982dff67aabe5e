package taskcomputer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/taskcomputer/pkg/config"
	"github.com/cuemby/taskcomputer/pkg/stats"
	"github.com/cuemby/taskcomputer/pkg/taskserver"
	"github.com/cuemby/taskcomputer/pkg/types"
	"github.com/cuemby/taskcomputer/pkg/worker"
)

// fakeContainerManager is a minimal ContainerManager double: no VM unless
// DockerMachineOn is set, and UpdateConfig just counts calls.
type fakeContainerManager struct {
	mu              sync.Mutex
	DockerMachineOn bool
	UpdateCalls     int
	UpdateErr       error
}

func (f *fakeContainerManager) DockerMachine() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.DockerMachineOn
}

func (f *fakeContainerManager) UpdateConfig() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UpdateCalls++
	return f.UpdateErr
}

// fakeCapabilityRecord is the direct-computation payload double: it
// returns a well-formed {data, result_type} result every time.
type fakeCapabilityRecord struct{}

func (fakeCapabilityRecord) RunOneBatch(kwargs map[string]any) (any, error) {
	return map[string]any{"data": "ok", "result_type": "test-result"}, nil
}
func (fakeCapabilityRecord) Net() any { return nil }

func (fakeCapabilityRecord) GetModelHash() string { return "hash" }

// fakePayloadLoader always resolves to fakeCapabilityRecord, unless Err is
// set.
type fakePayloadLoader struct {
	Err error
}

func (f fakePayloadLoader) Load(ctx context.Context, d types.SubtaskDescriptor) (worker.CapabilityRecord, map[string]any, error) {
	if f.Err != nil {
		return nil, nil, f.Err
	}
	return fakeCapabilityRecord{}, d.ExtraData, nil
}

// fakeWorker is a Worker double for exercising Run's timeout-sweep branch
// and Quit without needing a real container or VM.
type fakeWorker struct {
	mu       sync.Mutex
	id       string
	deadline time.Time
	killed   bool
}

func (f *fakeWorker) SubtaskID() string { return f.id }

func (f *fakeWorker) Deadline() time.Time { return f.deadline }

func (f *fakeWorker) Start(ctx context.Context) error { return nil }

func (f *fakeWorker) Wait(ctx context.Context) (worker.Outcome, error) {
	<-ctx.Done()
	return worker.Outcome{}, ctx.Err()
}
func (f *fakeWorker) Progress() float64 { return 0 }
func (f *fakeWorker) Kill(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = true
	return nil
}
func (f *fakeWorker) wasKilled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.killed
}

// testHarness bundles a Computer with every fake collaborator, for direct
// field access (same package) and call assertions.
type testHarness struct {
	computer   *Computer
	taskServer *taskserver.FakeTaskServer
	resources  *taskserver.FakeResourceManager
	keeper     *taskserver.FakeTaskKeeper
	benchmarks *taskserver.FakeBenchmarkManager
	containers *fakeContainerManager
	payloads   fakePayloadLoader
}

func newHarness(t *testing.T, mutateCfg func(*config.ConfigDesc)) *testHarness {
	t.Helper()

	cfg := config.Default()
	cfg.SupportDirectComputation = true
	cfg.TaskRequestInterval = time.Nanosecond
	if mutateCfg != nil {
		mutateCfg(&cfg)
	}

	h := &testHarness{
		taskServer: taskserver.NewFakeTaskServer(),
		resources:  taskserver.NewFakeResourceManager(),
		keeper:     taskserver.NewFakeTaskKeeper(),
		benchmarks: &taskserver.FakeBenchmarkManager{},
		containers: &fakeContainerManager{},
		payloads:   fakePayloadLoader{},
	}

	h.computer = NewComputer(Deps{
		NodeName:        "node-1",
		TaskServer:      h.taskServer,
		ResourceManager: h.resources,
		TaskKeeper:      h.keeper,
		Benchmarks:      h.benchmarks,
		Containers:      h.containers,
		ContainerRT:     nil,
		Payloads:        h.payloads,
		WorkDirs:        worker.NewWorkDirManager(t.TempDir()),
		Stats:           stats.NewCounter(),
	}, cfg)

	return h
}

func TestTaskGivenInsertsAndRequestsResource(t *testing.T) {
	h := newHarness(t, nil)
	h.resources.Headers["t1"] = types.TaskHeader{TaskID: "t1"}

	d := types.SubtaskDescriptor{SubtaskID: "s1", TaskID: "t1"}
	assert.True(t, h.computer.TaskGiven(d))
	assert.Equal(t, "waiting_for_resources", h.computer.StateName())
}

func TestTaskGivenIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.resources.Headers["t1"] = types.TaskHeader{TaskID: "t1"}

	d := types.SubtaskDescriptor{SubtaskID: "s1", TaskID: "t1"}
	require.True(t, h.computer.TaskGiven(d))
	assert.False(t, h.computer.TaskGiven(d))
}

func TestResourceGivenSpawnsDirectWorkerAndReportsSuccess(t *testing.T) {
	h := newHarness(t, nil)
	h.resources.Headers["t1"] = types.TaskHeader{TaskID: "t1"}

	d := types.SubtaskDescriptor{SubtaskID: "s1", TaskID: "t1", Deadline: time.Now().Add(time.Hour)}
	require.True(t, h.computer.TaskGiven(d))

	assert.True(t, h.computer.ResourceGiven("t1"))
	assert.Equal(t, "computing", h.computer.StateName())

	require.Eventually(t, func() bool {
		h.computer.drainCompletions()
		return len(h.taskServer.Results) == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, "test-result", h.taskServer.Results[0].Result.ResultType)
	assert.Equal(t, "idle", h.computer.StateName())
	assert.Equal(t, 1, h.computer.stats.Snapshot().ComputedTasks)
}

func TestSpawnWorkerFailsWhenDirectComputationUnsupported(t *testing.T) {
	h := newHarness(t, func(cfg *config.ConfigDesc) { cfg.SupportDirectComputation = false })
	h.resources.Headers["t1"] = types.TaskHeader{TaskID: "t1"}

	d := types.SubtaskDescriptor{SubtaskID: "s1", TaskID: "t1"}
	require.True(t, h.computer.TaskGiven(d))
	h.computer.ResourceGiven("t1")

	require.Len(t, h.taskServer.Failures, 1)
	assert.Equal(t, directUnsupportedReason, h.taskServer.Failures[0].Reason)
	assert.Equal(t, "idle", h.computer.StateName())
}

func TestTaskComputedClassifiesTimeoutByErrorSubstring(t *testing.T) {
	h := newHarness(t, nil)
	d := types.SubtaskDescriptor{SubtaskID: "s1", TaskID: "t1"}
	h.computer.registry.insert(d)
	h.computer.mu.Lock()
	h.computer.countingTask = "t1"
	h.computer.currentComputations["s1"] = &activeComputation{descriptor: d, startedAt: time.Now()}
	h.computer.mu.Unlock()

	h.computer.TaskComputed(worker.Outcome{
		SubtaskID: "s1",
		Err:       errTimeoutLike(),
	})

	require.Len(t, h.taskServer.Failures, 1)
	assert.Equal(t, 1, h.computer.stats.Snapshot().TasksWithTimeout)
	assert.Equal(t, "", h.computer.countingTask)
}

func TestTaskComputedReportsMalformedResultAsError(t *testing.T) {
	h := newHarness(t, nil)
	d := types.SubtaskDescriptor{SubtaskID: "s1", TaskID: "t1"}
	h.computer.registry.insert(d)

	h.computer.TaskComputed(worker.Outcome{SubtaskID: "s1", ResultValid: false})

	require.Len(t, h.taskServer.Failures, 1)
	assert.Equal(t, malformedResultReason, h.taskServer.Failures[0].Reason)
	assert.Equal(t, 1, h.computer.stats.Snapshot().TasksWithErrors)
}

func TestTaskComputedOnUnknownSubtaskIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.computer.TaskComputed(worker.Outcome{SubtaskID: "missing", ResultValid: true})
	assert.Empty(t, h.taskServer.Results)
	assert.Empty(t, h.taskServer.Failures)
}

func TestRunSweepsTimedOutWorkerAndReportsFailure(t *testing.T) {
	h := newHarness(t, nil)
	d := types.SubtaskDescriptor{SubtaskID: "s1", TaskID: "t1"}
	h.computer.registry.insert(d)

	fw := &fakeWorker{id: "s1", deadline: time.Now().Add(-time.Minute)}
	h.computer.mu.Lock()
	h.computer.countingTask = "t1"
	h.computer.currentComputations["s1"] = &activeComputation{worker: fw, descriptor: d, startedAt: time.Now()}
	h.computer.mu.Unlock()

	require.NoError(t, h.computer.Run(context.Background()))

	assert.True(t, fw.wasKilled())
	require.Len(t, h.taskServer.Failures, 1)
	assert.Equal(t, 1, h.computer.stats.Snapshot().TasksWithTimeout)
}

func TestRunRequestsTaskWhenIdleAndIntervalElapsed(t *testing.T) {
	h := newHarness(t, nil)
	handle := taskserver.RequestHandle("offer-1")
	h.taskServer.NextHandle = &handle

	require.NoError(t, h.computer.Run(context.Background()))

	assert.Equal(t, "requesting_task", h.computer.StateName())
	assert.Equal(t, 1, h.computer.stats.Snapshot().TasksRequested)
}

func TestRunExpiresSessionOnWaitingTTL(t *testing.T) {
	h := newHarness(t, nil)
	h.computer.mu.Lock()
	h.computer.waitingForTask = handlePtr("offer-1")
	h.computer.useWaitingTTL = true
	h.computer.waitingTTL = -time.Second
	h.computer.lastChecking = time.Now().Add(-time.Minute)
	h.computer.mu.Unlock()

	require.NoError(t, h.computer.Run(context.Background()))

	assert.Equal(t, "idle", h.computer.StateName())
}

func TestSessionClosedResetsOnlyWhenIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.computer.mu.Lock()
	h.computer.waitingForTask = handlePtr("offer-1")
	h.computer.countingTask = "t1"
	h.computer.mu.Unlock()

	h.computer.SessionClosed()
	assert.Equal(t, "computing", h.computer.StateName(), "an in-flight computation must not be abandoned")

	h.computer.mu.Lock()
	h.computer.countingTask = ""
	h.computer.mu.Unlock()

	h.computer.SessionClosed()
	assert.Equal(t, "idle", h.computer.StateName())
}

func TestLockConfigBroadcastsToListeners(t *testing.T) {
	h := newHarness(t, nil)
	var seen []bool
	h.computer.RegisterListener(listenerFunc(func(on bool) { seen = append(seen, on) }))

	h.computer.LockConfig(true)
	h.computer.LockConfig(false)

	assert.Equal(t, []bool{true, false}, seen)
}

func TestChangeDockerConfigWithoutContainerVMOnlyRunsBenchmarks(t *testing.T) {
	h := newHarness(t, nil)
	h.benchmarks.Needed = true

	require.NoError(t, h.computer.ChangeConfig(context.Background(), h.computer.cfg, false, true))

	assert.Equal(t, 1, h.benchmarks.RunCalls)
	assert.Equal(t, 0, h.containers.UpdateCalls)
	assert.True(t, h.computer.runnable)
}

func TestChangeDockerConfigWithContainerVMQuiescesBeforeReconfiguring(t *testing.T) {
	h := newHarness(t, nil)
	h.containers.DockerMachineOn = true

	h.computer.mu.Lock()
	h.computer.countingTask = "t1"
	h.computer.mu.Unlock()

	var locked []bool
	var mu sync.Mutex
	h.computer.RegisterListener(listenerFunc(func(on bool) {
		mu.Lock()
		locked = append(locked, on)
		mu.Unlock()
	}))

	require.NoError(t, h.computer.ChangeConfig(context.Background(), h.computer.cfg, true, false))

	require.Eventually(t, func() bool { return h.computer.StateName() == "quiescing" }, time.Second, time.Millisecond)

	h.computer.mu.Lock()
	h.computer.countingTask = ""
	h.computer.mu.Unlock()

	require.Eventually(t, func() bool { return h.computer.StateName() != "quiescing" }, time.Second, time.Millisecond)
	assert.Equal(t, 1, h.containers.UpdateCalls)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, locked)
}

func TestQuitKillsLiveWorkers(t *testing.T) {
	h := newHarness(t, nil)
	fw := &fakeWorker{id: "s1", deadline: time.Now().Add(time.Hour)}
	h.computer.mu.Lock()
	h.computer.currentComputations["s1"] = &activeComputation{worker: fw, startedAt: time.Now()}
	h.computer.mu.Unlock()

	h.computer.Quit(context.Background())

	assert.True(t, fw.wasKilled())
	assert.Error(t, h.computer.runCtx.Err())
}

// listenerFunc adapts a plain function to the Listener interface.
type listenerFunc func(on bool)

func (f listenerFunc) LockConfig(on bool) { f(on) }

func handlePtr(s string) *taskserver.RequestHandle {
	h := taskserver.RequestHandle(s)
	return &h
}

func errTimeoutLike() error {
	return &timeoutError{}
}

type timeoutError struct{}

func (*timeoutError) Error() string { return timeoutSubstring + ": subtask s1 exceeded its deadline" }
