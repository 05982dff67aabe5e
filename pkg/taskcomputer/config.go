package taskcomputer

import (
	"context"
	"time"

	"github.com/cuemby/taskcomputer/pkg/config"
	"github.com/cuemby/taskcomputer/pkg/events"
)

// quiescencePollInterval is how often waitForQuiescence re-checks
// counting_task while container reconfiguration is in progress. It plays
// the role of the status_callback poll in golem's DockerMachineManager,
// generalized here to a plain ticker since Manager.UpdateConfig is
// synchronous rather than callback-driven.
const quiescencePollInterval = 50 * time.Millisecond

// Bootstrap applies the computer's current configuration for the first
// time, running benchmarks first if the benchmark manager says they're
// needed — the same decision golem's constructor makes before its first
// change_config call.
func (c *Computer) Bootstrap(ctx context.Context) error {
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()
	return c.ChangeConfig(ctx, cfg, false, c.benchmarks.BenchmarksNeeded())
}

// ChangeConfig implements change_config (spec.md §4.6): applies the
// scalar timing options and the accept_tasks switch, then delegates
// container reconfiguration to changeDockerConfig. Rebuilding the
// directory/resource manager, which the original does here, has no
// analogue in this module — both are injected external collaborators
// (pkg/taskserver), not owned by Computer.
func (c *Computer) ChangeConfig(ctx context.Context, desc config.ConfigDesc, inBackground, runBenchmarks bool) error {
	c.mu.Lock()
	c.cfg = desc
	c.computeTasks = desc.AcceptTasks
	c.mu.Unlock()

	c.publishEvent(events.EventConfigChanged, "", nil)

	return c.changeDockerConfig(ctx, runBenchmarks, inBackground)
}

// changeDockerConfig implements change_docker_config. If no container VM
// backs this node, benchmarks (if requested) run immediately with no
// config lock needed at all. Otherwise the full lock-quiesce-reconfigure-
// unlock sequence runs, synchronously or on a background goroutine
// depending on inBackground.
func (c *Computer) changeDockerConfig(ctx context.Context, runBenchmarks, inBackground bool) error {
	if !c.containers.DockerMachine() {
		if runBenchmarks {
			return c.benchmarks.RunAllBenchmarks(ctx)
		}
		return nil
	}

	reconfigure := func() {
		c.LockConfig(true)
		c.mu.Lock()
		c.runnable = false
		c.mu.Unlock()

		c.waitForQuiescence(ctx)

		if err := c.containers.UpdateConfig(); err != nil {
			c.logger.Error().Err(err).Msg("container reconfiguration failed")
		}

		if runBenchmarks {
			if err := c.benchmarks.RunAllBenchmarks(ctx); err != nil {
				c.logger.Error().Err(err).Msg("benchmark run failed after reconfiguration")
			}
		}

		c.logger.Debug().Msg("resuming new task computation")
		c.LockConfig(false)
		c.mu.Lock()
		c.runnable = true
		c.mu.Unlock()
	}

	if inBackground {
		go reconfigure()
		return nil
	}

	reconfigure()
	return nil
}

// waitForQuiescence blocks until counting_task clears or ctx is done,
// the Go equivalent of change_docker_config's status_callback-driven
// wait inside Manager.UpdateConfig.
func (c *Computer) waitForQuiescence(ctx context.Context) {
	ticker := time.NewTicker(quiescencePollInterval)
	defer ticker.Stop()

	for {
		c.mu.Lock()
		counting := c.countingTask
		c.mu.Unlock()
		if counting == "" {
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
