// Package worker runs a single subtask attempt to completion. A Worker is
// created per attempt, started once, and polled or waited on until it
// produces an Outcome; it is never reused across attempts. ContainerWorker
// backs the normal container-resource-computation path; DirectWorker and
// TestDirectWorker back support_direct_computation for capability-record
// work that doesn't need a container at all.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/taskcomputer/pkg/log"
	"github.com/cuemby/taskcomputer/pkg/runtime"
	"github.com/cuemby/taskcomputer/pkg/types"
)

// Outcome is the terminal result of one subtask attempt, regardless of
// which Worker implementation produced it. ResultValid is false whenever
// the worker ran without error but produced a result missing either of
// the data/result_type keys spec'd for a well-formed payload result; the
// outcome dispatcher treats that case as "Wrong result format".
type Outcome struct {
	SubtaskID   string
	Success     bool
	TimedOut    bool
	Err         error
	ResultDir   string
	Result      types.Result
	ResultValid bool
	Stdout      []byte
	Stderr      []byte
	StartedAt   time.Time
	FinishedAt  time.Time
}

// resultFileName is the well-known file a worker's payload writes its
// {data, result_type} result to, inside the attempt's work directory.
const resultFileName = "result.json"

// readResultFile loads and validates a result.json written into dir. It
// returns ok=false, with no error, when the file is absent or malformed —
// both cases the outcome dispatcher classifies as "Wrong result format"
// rather than a transport error.
func readResultFile(dir string) (types.Result, bool) {
	if dir == "" {
		return types.Result{}, false
	}

	data, err := os.ReadFile(filepath.Join(dir, resultFileName))
	if err != nil {
		return types.Result{}, false
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return types.Result{}, false
	}

	return asTaskResult(payload)
}

// Duration returns how long the attempt ran, for computation.time_spent
// reporting.
func (o Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// Worker drives one subtask attempt from start to finish. Start launches
// the attempt; Wait blocks until it finishes or the context is cancelled
// (neither implementation watches Deadline itself); Kill tears down any
// running resources without waiting for graceful completion (used when
// the supervisor's timeout sweep finds an attempt past its Deadline).
type Worker interface {
	SubtaskID() string
	Deadline() time.Time
	Start(ctx context.Context) error
	Wait(ctx context.Context) (Outcome, error)
	Kill(ctx context.Context) error
	// Progress reports how far the attempt has run, in [0,1], estimated
	// from elapsed wall-clock time against Deadline since neither worker
	// variant instruments payload-level progress.
	Progress() float64
}

// elapsedFraction estimates progress as elapsed time over the window
// between start and deadline, clamped to [0,1]. A zero start or deadline
// means the attempt hasn't begun yet.
func elapsedFraction(start, deadline time.Time) float64 {
	if start.IsZero() || deadline.IsZero() || !deadline.After(start) {
		return 0
	}
	total := deadline.Sub(start)
	elapsed := time.Since(start)
	if elapsed <= 0 {
		return 0
	}
	frac := float64(elapsed) / float64(total)
	if frac > 1 {
		return 1
	}
	return frac
}

// ContainerWorker runs a subtask inside a containerd container: pull the
// image, bind-mount the resource and work directories, start the task,
// wait for it to exit, and report the work directory back as the result.
// This is the container-resource-computation analogue of golem's
// DockerTaskThread.
type ContainerWorker struct {
	subtaskID   string
	image       string
	resourceDir string
	workDir     string
	deadline    time.Time

	rt          *runtime.ContainerdRuntime
	containerID string
	startedAt   time.Time

	stdout bytes.Buffer
	stderr bytes.Buffer

	logger zerolog.Logger
}

// NewContainerWorker builds a worker for one subtask attempt. resourceDir
// is mounted read-only; workDir (normally produced by WorkDirManager) is
// mounted read-write and becomes the attempt's result directory.
func NewContainerWorker(rt *runtime.ContainerdRuntime, subtaskID, image, resourceDir, workDir string, deadline time.Time) *ContainerWorker {
	return &ContainerWorker{
		subtaskID:   subtaskID,
		image:       image,
		resourceDir: resourceDir,
		workDir:     workDir,
		deadline:    deadline,
		rt:          rt,
		logger:      log.WithSubtaskID(subtaskID),
	}
}

// SubtaskID implements Worker.
func (w *ContainerWorker) SubtaskID() string { return w.subtaskID }

// Deadline implements Worker.
func (w *ContainerWorker) Deadline() time.Time { return w.deadline }

// Start implements Worker: pulls the image if needed, creates the
// container, and starts its task. It does not wait for the task to exit.
func (w *ContainerWorker) Start(ctx context.Context) error {
	w.startedAt = time.Now()
	w.logger.Info().Str("image", w.image).Msg("pulling image")
	if err := w.rt.PullImage(ctx, w.image); err != nil {
		return fmt.Errorf("failed to pull image for subtask %s: %w", w.subtaskID, err)
	}

	containerID, err := w.rt.CreateContainer(ctx, w.subtaskID, w.image, w.resourceDir, w.workDir)
	if err != nil {
		return fmt.Errorf("failed to create container for subtask %s: %w", w.subtaskID, err)
	}
	w.containerID = containerID

	if err := w.rt.StartContainer(ctx, w.containerID, &w.stdout, &w.stderr); err != nil {
		return fmt.Errorf("failed to start container for subtask %s: %w", w.subtaskID, err)
	}

	w.logger.Info().Str("container_id", w.containerID).Msg("container started")
	return nil
}

// Wait implements Worker: blocks until the container task exits, then
// deletes the container and returns the outcome with the work directory as
// the result location.
func (w *ContainerWorker) Wait(ctx context.Context) (Outcome, error) {
	exitCode, waitErr := w.rt.WaitContainer(ctx, w.containerID)

	outcome := Outcome{
		SubtaskID:  w.subtaskID,
		ResultDir:  w.workDir,
		StartedAt:  w.startedAt,
		FinishedAt: time.Now(),
		Stdout:     w.stdout.Bytes(),
		Stderr:     w.stderr.Bytes(),
	}

	if delErr := w.rt.DeleteContainer(context.Background(), w.containerID); delErr != nil {
		w.logger.Warn().Err(delErr).Msg("failed to delete container after completion")
	}

	if waitErr != nil {
		outcome.Success = false
		outcome.Err = fmt.Errorf("container wait failed: %w", waitErr)
		return outcome, outcome.Err
	}

	if exitCode != 0 {
		outcome.Success = false
		outcome.Err = fmt.Errorf("container exited with status %d", exitCode)
		return outcome, nil
	}

	outcome.Success = true
	outcome.Result, outcome.ResultValid = readResultFile(w.workDir)
	outcome.Result.Stdout = string(outcome.Stdout)
	outcome.Result.Stderr = string(outcome.Stderr)
	return outcome, nil
}

// Progress implements Worker.
func (w *ContainerWorker) Progress() float64 {
	return elapsedFraction(w.startedAt, w.deadline)
}

// Kill implements Worker: stops and removes the container without waiting
// for the task to exit cleanly. Used by the supervisor when a deadline has
// already passed.
func (w *ContainerWorker) Kill(ctx context.Context) error {
	if w.containerID == "" {
		return nil
	}
	w.logger.Warn().Msg("killing container worker past deadline")
	return w.rt.DeleteContainer(ctx, w.containerID)
}
