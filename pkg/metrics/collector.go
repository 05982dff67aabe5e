package metrics

import "time"

// StateSource is the minimal view of the Task Computer the collector needs.
// pkg/taskcomputer.Computer satisfies it without pkg/metrics importing that
// package back.
type StateSource interface {
	CurrentComputations() int
	StateName() string
}

// Collector periodically samples a StateSource into the gauge metrics.
// Counters (ComputedTasksTotal, TasksRequestedTotal, ...) are incremented
// directly at the call site instead, since they only ever move forward.
type Collector struct {
	source StateSource
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(source StateSource) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	CurrentComputationsGauge.Set(float64(c.source.CurrentComputations()))

	states := []string{"idle", "requesting_task", "waiting_for_resources", "computing", "quiescing"}
	current := c.source.StateName()
	for _, state := range states {
		if state == current {
			StateGauge.WithLabelValues(state).Set(1)
		} else {
			StateGauge.WithLabelValues(state).Set(0)
		}
	}
}
