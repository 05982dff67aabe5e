package taskcomputer

import (
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/taskcomputer/pkg/events"
	"github.com/cuemby/taskcomputer/pkg/metrics"
	"github.com/cuemby/taskcomputer/pkg/types"
	"github.com/cuemby/taskcomputer/pkg/worker"
)

// TaskComputed implements the Outcome Dispatcher (spec.md §4.5): the six
// steps that run exactly once per worker completion, classifying the
// result and posting exactly one terminal outbound call to the task
// server. It is the one place worker goroutines and the supervisor's
// synthesized timeouts both funnel through, so the exactly-one-outcome
// invariant (spec.md §3 invariant 5) holds regardless of which path a
// subtask's ending came from.
func (c *Computer) TaskComputed(outcome worker.Outcome) {
	if outcome.FinishedAt.IsZero() {
		outcome.FinishedAt = time.Now()
	}

	c.mu.Lock()
	delete(c.currentComputations, outcome.SubtaskID)
	c.mu.Unlock()

	workWallClock := outcome.FinishedAt.Sub(outcome.StartedAt)

	d, ok := c.registry.popBySubtask(outcome.SubtaskID)
	if !ok {
		c.logger.Error().Str("subtask_id", outcome.SubtaskID).Msg("worker completion for unknown subtask, ignoring")
		return
	}

	paidTime := workWallClock
	if header, err := c.taskKeeper.TaskHeader(d.TaskID); err == nil && header.SubtaskTimeout > 0 {
		paidTime = header.SubtaskTimeout
	}

	success := false
	switch {
	case outcome.Err != nil && (outcome.TimedOut || strings.Contains(outcome.Err.Error(), timeoutSubstring)):
		c.stats.TaskWithTimeout()
		c.reportFailure(d, outcome.Err.Error(), paidTime)
		c.publishEvent(events.EventSubtaskTimedOut, d.SubtaskID, map[string]string{"task_id": d.TaskID})

	case outcome.Err != nil:
		c.stats.TaskWithError()
		c.reportFailure(d, outcome.Err.Error(), paidTime)

	case outcome.ResultValid:
		c.stats.ComputedTask()
		c.reportSuccess(d, outcome.Result, paidTime)
		success = true

	default:
		c.stats.TaskWithError()
		c.reportFailure(d, malformedResultReason, paidTime)
	}

	c.publishEvent(events.EventSubtaskFinished, d.SubtaskID, map[string]string{
		"task_id": d.TaskID,
		"success": strconv.FormatBool(success),
	})
	if c.events != nil {
		c.events.Publish(events.NewComputationTimeSpentEvent(d.SubtaskID, success, paidTime.Seconds()))
	}

	c.mu.Lock()
	c.countingTask = ""
	c.mu.Unlock()
}

func (c *Computer) reportSuccess(d types.SubtaskDescriptor, result types.Result, paidTime time.Duration) {
	if err := c.taskServer.SendResults(c.runCtx, d.SubtaskID, d.TaskID, result, paidTime, d.Envelope, c.nodeName); err != nil {
		c.logger.Error().Err(err).Str("subtask_id", d.SubtaskID).Msg("failed to report successful result")
	}
	metrics.ComputationTimeSpent.WithLabelValues("success").Observe(paidTime.Seconds())
}

func (c *Computer) reportFailure(d types.SubtaskDescriptor, reason string, paidTime time.Duration) {
	if err := c.taskServer.SendTaskFailed(c.runCtx, d.SubtaskID, d.TaskID, reason, d.Envelope, c.nodeName); err != nil {
		c.logger.Error().Err(err).Str("subtask_id", d.SubtaskID).Msg("failed to report task failure")
	}
	metrics.ComputationTimeSpent.WithLabelValues("failure").Observe(paidTime.Seconds())
}
