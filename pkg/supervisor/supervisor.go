// Package supervisor performs the per-tick timeout sweep over live
// container/direct workers, the Go analogue of golem's
// TaskThread.check_timeout() called from taskcomputer.py's run() whenever
// counting_task is set. It is deliberately narrower than warren's
// reconciler: there is no node health or replica count to reconcile on a
// single node, only "has this attempt overrun its deadline".
package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/taskcomputer/pkg/log"
	"github.com/cuemby/taskcomputer/pkg/metrics"
	"github.com/cuemby/taskcomputer/pkg/worker"
)

// Supervisor kills workers whose deadline has passed.
type Supervisor struct {
	logger zerolog.Logger
}

// New creates a Supervisor.
func New() *Supervisor {
	return &Supervisor{logger: log.WithComponent("supervisor")}
}

// Sweep checks every worker's deadline against now and kills the ones that
// have overrun. It returns the subtask IDs of workers it killed, so the
// caller can route them to the outcome dispatcher as timeouts.
func (s *Supervisor) Sweep(ctx context.Context, workers []worker.Worker) []string {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.SupervisorSweepDuration)
		metrics.SupervisorSweepsTotal.Inc()
	}()

	now := time.Now()
	var timedOut []string

	for _, w := range workers {
		if w.Deadline().IsZero() || now.Before(w.Deadline()) {
			continue
		}

		s.logger.Warn().
			Str("subtask_id", w.SubtaskID()).
			Time("deadline", w.Deadline()).
			Msg("subtask attempt exceeded deadline")

		if err := w.Kill(ctx); err != nil {
			s.logger.Error().Err(err).Str("subtask_id", w.SubtaskID()).Msg("failed to kill timed-out worker")
		}

		timedOut = append(timedOut, w.SubtaskID())
	}

	return timedOut
}
