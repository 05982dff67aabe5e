// Package tickloop drives a cadenced callback the way warren's scheduler
// drives its 5-second reconciliation cycle, generalized from "schedule
// cluster services" to "call Runner.Run(ctx) on an interval". The Task
// Computer uses one Driver to advance its own state machine (resource
// waiting TTLs, subtask deadlines) at a cadence much shorter than
// task_request_frequency, per spec.md §9's tick-loop design note.
package tickloop

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/taskcomputer/pkg/log"
)

// Runner is called once per tick. Implementations should return quickly;
// a Runner that blocks past the next tick delays, but does not skip, the
// following call.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a plain function to Runner.
type RunnerFunc func(ctx context.Context) error

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// Driver ticks a Runner on a fixed interval until Stop is called.
type Driver struct {
	runner   Runner
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
}

// NewDriver creates a tick loop that calls runner.Run every interval.
func NewDriver(runner Runner, interval time.Duration) *Driver {
	return &Driver{
		runner:   runner,
		interval: interval,
		logger:   log.WithComponent("tickloop"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the tick loop in its own goroutine.
func (d *Driver) Start(ctx context.Context) {
	go d.run(ctx)
}

// Stop ends the tick loop. It does not wait for an in-flight tick to
// finish.
func (d *Driver) Stop() {
	close(d.stopCh)
}

func (d *Driver) run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := d.runner.Run(ctx); err != nil {
				d.logger.Error().Err(err).Msg("tick failed")
			}
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		}
	}
}
