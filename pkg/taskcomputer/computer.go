package taskcomputer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/taskcomputer/pkg/config"
	"github.com/cuemby/taskcomputer/pkg/events"
	"github.com/cuemby/taskcomputer/pkg/log"
	"github.com/cuemby/taskcomputer/pkg/runtime"
	"github.com/cuemby/taskcomputer/pkg/stats"
	"github.com/cuemby/taskcomputer/pkg/supervisor"
	"github.com/cuemby/taskcomputer/pkg/taskserver"
	"github.com/cuemby/taskcomputer/pkg/types"
	"github.com/cuemby/taskcomputer/pkg/worker"
)

// activeComputation pairs a live worker with the descriptor it is running
// and its start time, so GetProgresses can report a short description
// without the Worker interface needing to know about SubtaskDescriptor.
type activeComputation struct {
	worker     worker.Worker
	descriptor types.SubtaskDescriptor
	startedAt  time.Time
}

// Deps bundles every external collaborator Computer needs. All fields are
// required except ContainerRT, which may be nil on a node that only ever
// runs direct-computation subtasks, and Events (see below).
type Deps struct {
	NodeName string

	TaskServer      taskserver.TaskServer
	ResourceManager taskserver.ResourceManager
	TaskKeeper      taskserver.TaskKeeper
	Benchmarks      taskserver.BenchmarkManager
	Containers      ContainerManager
	ContainerRT     *runtime.ContainerdRuntime
	Payloads        PayloadLoader
	WorkDirs        *worker.WorkDirManager
	Stats           *stats.Counter

	// Events is the monitor broker lifecycle events publish to. It is
	// optional; a nil broker silently drops every publish, the way a
	// Computer built without one (e.g. in tests) runs with no monitor at
	// all.
	Events *events.Broker
}

// Computer is the Task Computer's control-thread state. Every exported
// method is safe to call from any goroutine — mu is the single coarse
// lock spec.md §5 calls for — but all of them are meant to be invoked
// serially, the way callbacks from a single control thread would be.
// Worker completions are the one genuinely concurrent input: they arrive
// on doneCh from the worker's own goroutine and are drained by Run.
type Computer struct {
	mu sync.Mutex

	nodeName string

	taskServer      taskserver.TaskServer
	resourceManager taskserver.ResourceManager
	taskKeeper      taskserver.TaskKeeper
	benchmarks      taskserver.BenchmarkManager
	containers      ContainerManager
	containerRT     *runtime.ContainerdRuntime
	payloads        PayloadLoader
	workDirs        *worker.WorkDirManager
	stats           *stats.Counter
	supervisor      *supervisor.Supervisor
	events          *events.Broker

	cfg config.ConfigDesc

	registry            *registry
	currentComputations map[string]*activeComputation
	doneCh              chan worker.Outcome

	waitingForTask  *taskserver.RequestHandle
	countingTask    string
	waitingTTL      time.Duration
	lastChecking    time.Time
	lastTaskRequest time.Time
	useWaitingTTL   bool

	runnable     bool
	computeTasks bool

	delta    types.ResourceDelta
	hasDelta bool

	listeners []Listener

	runCtx    context.Context
	cancelRun context.CancelFunc

	logger zerolog.Logger
}

// NewComputer builds a Computer in the Idle state with cfg already
// applied, mirroring __init__'s call into change_config before the
// constructor returns.
func NewComputer(deps Deps, cfg config.ConfigDesc) *Computer {
	ctx, cancel := context.WithCancel(context.Background())

	now := time.Now()
	c := &Computer{
		nodeName:            deps.NodeName,
		taskServer:          deps.TaskServer,
		resourceManager:     deps.ResourceManager,
		taskKeeper:          deps.TaskKeeper,
		benchmarks:          deps.Benchmarks,
		containers:          deps.Containers,
		containerRT:         deps.ContainerRT,
		payloads:            deps.Payloads,
		workDirs:            deps.WorkDirs,
		stats:               deps.Stats,
		events:              deps.Events,
		supervisor:          supervisor.New(),
		cfg:                 cfg,
		registry:            newRegistry(),
		currentComputations: make(map[string]*activeComputation),
		doneCh:              make(chan worker.Outcome, 16),
		runnable:            true,
		computeTasks:        cfg.AcceptTasks,
		lastTaskRequest:     now,
		lastChecking:        now,
		runCtx:              ctx,
		cancelRun:           cancel,
		logger:              log.WithComponent("taskcomputer"),
	}
	return c
}

// CurrentComputations implements metrics.StateSource.
func (c *Computer) CurrentComputations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.currentComputations)
}

// StateName implements metrics.StateSource. The state is derived from
// runnable/countingTask/waitingForTask/registry occupancy rather than
// stored as an independent field, so it can never drift out of sync with
// the fields that actually drive transitions.
func (c *Computer) StateName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked().String()
}

func (c *Computer) stateLocked() State {
	switch {
	case !c.runnable:
		return Quiescing
	case c.countingTask != "":
		return Computing
	case c.waitingForTask != nil && c.registry.len() == 0:
		return RequestingTask
	case c.waitingForTask != nil:
		return WaitingForResources
	default:
		return Idle
	}
}

// wait arms the wait-TTL timer. A nil ttl falls back to
// waiting_for_task_session_timeout, per spec.md §4.1's "TTL of null means
// use session timeout" rule. Caller must hold mu.
func (c *Computer) wait(enabled bool, ttl *time.Duration) {
	c.useWaitingTTL = enabled
	if ttl == nil {
		c.waitingTTL = c.cfg.WaitingForTaskSessionTimeout
	} else {
		c.waitingTTL = *ttl
	}
}

// Wait is the exported form of wait, part of the core's public surface
// per spec.md §6.
func (c *Computer) Wait(enabled bool, ttl *time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wait(enabled, ttl)
}

// reset clears all wait state. It never touches currentComputations: a
// worker already running is not aborted by reset. Caller must hold mu.
func (c *Computer) reset(computingTask string) {
	c.countingTask = computingTask
	c.useWaitingTTL = false
	c.waitingForTask = nil
	c.waitingTTL = 0
}

// Reset is the exported form of reset.
func (c *Computer) Reset(computingTask string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset(computingTask)
}

// TaskGiven implements the task_given inbound callback. A subtask id
// already present is an idempotent rejection: no side effects, false.
func (c *Computer) TaskGiven(d types.SubtaskDescriptor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.registry.insert(d) {
		return false
	}

	timeout := c.cfg.WaitingForTaskTimeout
	c.wait(true, &timeout)

	header, err := c.resourceManager.GetResourceHeader(d.TaskID)
	if err != nil {
		c.logger.Error().Err(err).Str("task_id", d.TaskID).Msg("failed to resolve resource header")
	}

	c.lastChecking = time.Now()
	handle, err := c.taskServer.RequestResource(c.runCtx, d.TaskID, header, d.Envelope)
	if err != nil {
		c.logger.Error().Err(err).Str("task_id", d.TaskID).Msg("request_resource failed")
	}
	c.waitingForTask = handle

	c.publishEvent(events.EventSubtaskAssigned, d.SubtaskID, map[string]string{"task_id": d.TaskID})

	return true
}

// ResourceGiven implements the resource_given inbound callback: resources
// for task_id are already present, so computation can start immediately
// without an unpack step. A stale task_id (no matching registry entry) is
// a no-op that returns false.
func (c *Computer) ResourceGiven(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.registry.lookupByTask(taskID)
	if !ok {
		return false
	}

	c.spawnWorker(d)
	c.waitingForTask = nil
	return true
}

// TaskResourceCollected implements the task_resource_collected inbound
// callback: the resource transfer finished, so the observed delta (if
// any, and if requested) is unpacked and a worker is spawned.
func (c *Computer) TaskResourceCollected(taskID string, unpackDelta bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.registry.lookupByTask(taskID)
	if !ok {
		return false
	}

	if unpackDelta && c.hasDelta {
		dir, err := c.resourceManager.GetTaskResourceDir(taskID)
		if err != nil {
			c.logger.Error().Err(err).Str("task_id", taskID).Msg("failed to resolve task resource dir")
		} else if err := c.resourceManager.UnpackDelta(dir, c.delta, taskID); err != nil {
			c.logger.Error().Err(err).Str("task_id", taskID).Msg("failed to unpack resource delta")
		}
	}
	c.hasDelta = false
	c.delta = types.ResourceDelta{}
	c.lastChecking = time.Now()

	c.spawnWorker(d)
	return true
}

// TaskResourceFailure implements task_resource_failure: the subtask is
// discarded from the registry, the originator is told why, and the
// session closes. An unknown task_id is a no-op, satisfying idempotence.
func (c *Computer) TaskResourceFailure(taskID, reason string) {
	c.mu.Lock()
	d, ok := c.registry.popByTask(taskID)
	c.mu.Unlock()
	if !ok {
		return
	}

	if err := c.taskServer.SendTaskFailed(c.runCtx, d.SubtaskID, d.TaskID,
		fmt.Sprintf("Error downloading resources: %s", reason), d.Envelope, c.nodeName); err != nil {
		c.logger.Error().Err(err).Str("subtask_id", d.SubtaskID).Msg("failed to report resource failure")
	}

	c.publishEvent(events.EventResourceFailed, d.SubtaskID, map[string]string{"task_id": d.TaskID, "reason": reason})

	c.SessionClosed()
}

// WaitForResources implements wait_for_resources: records the observed
// delta for the next task_resource_collected to unpack. A task_id with no
// matching registry entry is ignored.
func (c *Computer) WaitForResources(taskID string, delta types.ResourceDelta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.registry.lookupByTask(taskID); !ok {
		return
	}
	c.delta = delta
	c.hasDelta = true

	c.publishEvent(events.EventResourceWaiting, "", map[string]string{"task_id": taskID})
}

// TaskRequestRejected implements task_request_rejected: the offer never
// produced a subtask, so there is nothing to discard from the registry —
// only the wait state resets.
func (c *Computer) TaskRequestRejected(taskID, reason string) {
	c.logger.Info().Str("task_id", taskID).Str("reason", reason).Msg("task request rejected")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset("")
}

// ResourceRequestRejected implements resource_request_rejected: the
// accepted subtask is discarded and the machine resets.
func (c *Computer) ResourceRequestRejected(subtaskID, reason string) {
	c.logger.Info().Str("subtask_id", subtaskID).Str("reason", reason).Msg("resource request rejected")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registry.popBySubtask(subtaskID)
	c.reset("")
}

// SessionTimeout implements session_timeout, indistinguishable from
// session_closed per spec.md §4.8.
func (c *Computer) SessionTimeout() {
	c.SessionClosed()
}

// SessionClosed implements session_closed: resets only if nothing is
// currently computing, so an in-flight worker is never abandoned.
func (c *Computer) SessionClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.countingTask == "" {
		c.reset("")
	}
}

// RegisterListener implements register_listener.
func (c *Computer) RegisterListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// LockConfig implements lock_config: broadcasts to every registered
// listener.
func (c *Computer) LockConfig(on bool) {
	c.mu.Lock()
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		l.LockConfig(on)
	}
}

// GetProgresses implements get_progresses.
func (c *Computer) GetProgresses() map[string]types.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]types.Progress, len(c.currentComputations))
	for id, ac := range c.currentComputations {
		out[id] = types.Progress{
			SubtaskID:        id,
			ShortDescription: ac.descriptor.ShortDescription,
			Fraction:         ac.worker.Progress(),
			StartedAt:        ac.startedAt,
		}
	}
	return out
}

// Quit implements quit: asks every live worker to terminate promptly and
// cancels the context any in-flight Wait calls were given.
func (c *Computer) Quit(ctx context.Context) {
	c.mu.Lock()
	workers := make([]worker.Worker, 0, len(c.currentComputations))
	for _, ac := range c.currentComputations {
		workers = append(workers, ac.worker)
	}
	c.mu.Unlock()

	for _, w := range workers {
		if err := w.Kill(ctx); err != nil {
			c.logger.Error().Err(err).Str("subtask_id", w.SubtaskID()).Msg("failed to kill worker during quit")
		}
	}

	c.cancelRun()
}

// spawnWorker builds and starts the Worker Thread for an accepted,
// resource-ready subtask, or — if no container image is offered and
// direct computation is disabled — fails it immediately without ever
// constructing a worker. Caller must hold mu.
func (c *Computer) spawnWorker(d types.SubtaskDescriptor) {
	header, err := c.taskKeeper.TaskHeader(d.TaskID)
	deadline := d.Deadline
	if err == nil && !header.Deadline.IsZero() && header.Deadline.Before(deadline) {
		deadline = header.Deadline
	}

	c.reset(d.TaskID)

	workDir, err := c.workDirs.PrepareWorkDir(d.SubtaskID)
	if err != nil {
		c.failSubtask(d, fmt.Sprintf("failed to prepare work directory: %s", err))
		c.countingTask = ""
		return
	}

	var w worker.Worker

	switch {
	case len(d.DockerImages) > 0:
		if c.containerRT == nil {
			c.failSubtask(d, directUnsupportedReason)
			c.countingTask = ""
			return
		}
		resourceDir, rErr := c.resourceManager.GetResourceDir(d.TaskID)
		if rErr != nil {
			c.failSubtask(d, fmt.Sprintf("failed to resolve resource directory: %s", rErr))
			c.countingTask = ""
			return
		}
		w = worker.NewContainerWorker(c.containerRT, d.SubtaskID, d.DockerImages[0], resourceDir, workDir, deadline)

	case c.cfg.SupportDirectComputation:
		record, kwargs, lErr := c.payloads.Load(c.runCtx, d)
		if lErr != nil {
			c.failSubtask(d, fmt.Sprintf("failed to load payload: %s", lErr))
			c.countingTask = ""
			return
		}
		w = worker.NewDirectWorker(d.SubtaskID, record, kwargs, workDir, deadline)

	default:
		c.failSubtask(d, directUnsupportedReason)
		c.countingTask = ""
		return
	}

	if err := w.Start(c.runCtx); err != nil {
		c.failSubtask(d, fmt.Sprintf("failed to start worker: %s", err))
		c.countingTask = ""
		return
	}

	c.currentComputations[d.SubtaskID] = &activeComputation{
		worker:     w,
		descriptor: d,
		startedAt:  time.Now(),
	}

	c.publishEvent(events.EventSubtaskStarted, d.SubtaskID, map[string]string{"task_id": d.TaskID})

	go c.runWorker(w)
}

// runWorker waits for one worker to finish and posts its Outcome onto
// doneCh, the single serialized channel Run drains on the control
// thread's behalf — the routing spec.md §5/§9 calls for instead of
// calling back into the dispatcher directly from this goroutine.
func (c *Computer) runWorker(w worker.Worker) {
	outcome, _ := w.Wait(c.runCtx)
	select {
	case c.doneCh <- outcome:
	case <-c.runCtx.Done():
	}
}

// failSubtask pops d from the registry and reports send_task_failed with
// reason. Caller must hold mu.
func (c *Computer) failSubtask(d types.SubtaskDescriptor, reason string) {
	c.registry.popBySubtask(d.SubtaskID)
	delete(c.currentComputations, d.SubtaskID)
	if err := c.taskServer.SendTaskFailed(c.runCtx, d.SubtaskID, d.TaskID, reason, d.Envelope, c.nodeName); err != nil {
		c.logger.Error().Err(err).Str("subtask_id", d.SubtaskID).Msg("failed to report task failure")
	}
}

// Run implements the tick loop (tickloop.Runner): it drains completed
// workers onto the Outcome Dispatcher, then runs whichever single branch
// of §4.7 the current state calls for.
func (c *Computer) Run(ctx context.Context) error {
	c.drainCompletions()

	c.mu.Lock()
	counting := c.countingTask != ""
	var liveWorkers []worker.Worker
	if counting {
		for _, ac := range c.currentComputations {
			liveWorkers = append(liveWorkers, ac.worker)
		}
	}
	computeTasks := c.computeTasks
	runnable := c.runnable
	waiting := c.waitingForTask != nil
	useTTL := c.useWaitingTTL
	noWorkers := len(c.currentComputations) == 0
	sinceLastRequest := time.Since(c.lastTaskRequest)
	requestFrequency := c.cfg.TaskRequestInterval
	ttl := c.waitingTTL
	lastChecking := c.lastChecking
	c.mu.Unlock()

	switch {
	case counting:
		timedOut := c.supervisor.Sweep(ctx, liveWorkers)
		for _, subtaskID := range timedOut {
			c.reportTimeout(subtaskID)
		}
		return nil

	case computeTasks && runnable && !waiting:
		if sinceLastRequest > requestFrequency && noWorkers {
			c.requestTask(ctx)
		}
		return nil

	case waiting && useTTL:
		now := time.Now()
		remaining := ttl - now.Sub(lastChecking)

		c.mu.Lock()
		c.waitingTTL = remaining
		c.lastChecking = now
		expired := remaining < 0
		c.mu.Unlock()

		if expired {
			c.Reset("")
		}
		return nil
	}

	return nil
}

// reportTimeout synthesizes the Outcome the supervisor's sweep doesn't
// produce on its own (Kill tears the worker down without waiting on it)
// and routes it through the same Outcome Dispatcher every other
// completion uses, so accounting never double-reports.
func (c *Computer) reportTimeout(subtaskID string) {
	c.mu.Lock()
	ac, ok := c.currentComputations[subtaskID]
	c.mu.Unlock()
	if !ok {
		return
	}

	c.TaskComputed(worker.Outcome{
		SubtaskID:  subtaskID,
		Success:    false,
		TimedOut:   true,
		Err:        fmt.Errorf("%s: subtask %s exceeded its deadline", timeoutSubstring, subtaskID),
		StartedAt:  ac.startedAt,
		FinishedAt: time.Now(),
	})
}

// drainCompletions empties doneCh without blocking, dispatching every
// outcome that arrived since the last tick.
func (c *Computer) drainCompletions() {
	for {
		select {
		case outcome := <-c.doneCh:
			c.TaskComputed(outcome)
		default:
			return
		}
	}
}

// requestTask re-checks the request guard under the lock, calls
// request_task, and arms the session TTL — the private __request_task
// sequence from spec.md §4.7.
func (c *Computer) requestTask(ctx context.Context) {
	c.mu.Lock()
	performRequest := c.waitingForTask == nil && c.countingTask == ""
	c.mu.Unlock()
	if !performRequest {
		return
	}

	now := time.Now()

	c.mu.Lock()
	c.wait(true, nil)
	c.lastChecking = now
	c.lastTaskRequest = now
	c.mu.Unlock()

	handle, err := c.taskServer.RequestTask(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("request_task failed")
		return
	}

	c.mu.Lock()
	c.waitingForTask = handle
	c.mu.Unlock()

	if handle != nil {
		c.stats.TaskRequested()
	}
}

// publishEvent sends a lifecycle event to the monitor broker, if one was
// configured. A nil broker (the common case in tests) makes this a no-op.
func (c *Computer) publishEvent(eventType events.EventType, subtaskID string, metadata map[string]string) {
	if c.events == nil {
		return
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata["subtask_id"] = subtaskID
	c.events.Publish(&events.Event{Type: eventType, Metadata: metadata})
}
