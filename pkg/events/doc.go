/*
Package events provides an in-memory pub/sub broker used as the Task
Computer's monitor. The outcome dispatcher publishes a
computation.time_spent event after every finished subtask (success flag
plus the paid-time seconds: the task header's subtask timeout, or the
attempt's wall-clock time when no header is known); the state machine
publishes the surrounding lifecycle events. No package in this module
subscribes; the broker is there for external observers.

Publish queues the event for the distribution loop and blocks only while
that queue (100 events) is full. Distribution to subscribers is
non-blocking: a full subscriber buffer skips that subscriber rather than
stalling the broker. There is no persistence or replay; a
subscriber only sees events published after it subscribed.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(events.NewComputationTimeSpentEvent(subtaskID, true, 12.4))
*/
package events
