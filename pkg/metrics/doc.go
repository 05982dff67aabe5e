/*
Package metrics provides Prometheus metrics collection and exposition for
the Task Computer.

It registers the Stats Counter tallies (computed_tasks, tasks_with_errors,
tasks_with_timeout, tasks_requested) as Prometheus counters alongside gauges
for the current state and live computation count, and histograms for
resource-wait, container, supervisor-sweep, and computation durations. A
Collector samples the live StateSource on a 15s tick; counters are
incremented directly by the components that own them.

Handler exposes the registry over HTTP for scraping. HealthHandler,
ReadyHandler, and LivenessHandler provide the /health, /ready, and /live
admin API endpoints, independent of Prometheus scraping.
*/
package metrics
