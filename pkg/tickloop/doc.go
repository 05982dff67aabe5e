/*
Package tickloop provides the single external timer that drives the Task
Computer's control thread, per spec.md §9: "Tick loop should be driven by
an external timer... at a cadence ≪ task_request_frequency." cmd/taskcomputer
wires one Driver around *taskcomputer.Computer so state transitions
(TTL countdowns, deadline checks) advance on a steady cadence without a
goroutine per timer.
*/
package tickloop
