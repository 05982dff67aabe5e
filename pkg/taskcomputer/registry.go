package taskcomputer

import (
	"sync"

	"github.com/cuemby/taskcomputer/pkg/types"
)

// registry is the Assigned-Subtask Registry (spec.md §4.2): two mappings
// kept in lockstep, assigned (by subtask id) and taskToSubtask (by task
// id). All pop operations remove from both maps atomically with respect
// to the registry's own lock — this lock is distinct from Computer's
// control lock so unit tests can exercise the registry in isolation.
// Computer holds its own lock around most registry calls; TaskComputed
// pops its entry under the registry lock alone.
type registry struct {
	mu            sync.Mutex
	assigned      map[string]types.SubtaskDescriptor // subtask_id -> descriptor
	taskToSubtask map[string]string                  // task_id -> subtask_id
}

func newRegistry() *registry {
	return &registry{
		assigned:      make(map[string]types.SubtaskDescriptor),
		taskToSubtask: make(map[string]string),
	}
}

// insert adds descriptor under both maps. Returns false without mutating
// anything if the subtask id is already present (spec.md §4.1's
// idempotent-rejection tie-break).
func (r *registry) insert(d types.SubtaskDescriptor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.assigned[d.SubtaskID]; exists {
		return false
	}
	r.assigned[d.SubtaskID] = d
	r.taskToSubtask[d.TaskID] = d.SubtaskID
	return true
}

// popBySubtask removes and returns the descriptor for subtaskID, if any.
func (r *registry) popBySubtask(subtaskID string) (types.SubtaskDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.assigned[subtaskID]
	if !ok {
		return types.SubtaskDescriptor{}, false
	}
	delete(r.assigned, subtaskID)
	delete(r.taskToSubtask, d.TaskID)
	return d, true
}

// popByTask removes and returns the descriptor whose task_id is taskID.
func (r *registry) popByTask(taskID string) (types.SubtaskDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subtaskID, ok := r.taskToSubtask[taskID]
	if !ok {
		return types.SubtaskDescriptor{}, false
	}
	d := r.assigned[subtaskID]
	delete(r.assigned, subtaskID)
	delete(r.taskToSubtask, taskID)
	return d, true
}

// lookupSubtask returns the descriptor for subtaskID without removing it.
func (r *registry) lookupSubtask(subtaskID string) (types.SubtaskDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.assigned[subtaskID]
	return d, ok
}

// lookupByTask returns the descriptor whose task_id is taskID without
// removing it, for callbacks (resource_given, task_resource_collected,
// wait_for_resources) that must not retire the registry entry themselves.
func (r *registry) lookupByTask(taskID string) (types.SubtaskDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subtaskID, ok := r.taskToSubtask[taskID]
	if !ok {
		return types.SubtaskDescriptor{}, false
	}
	return r.assigned[subtaskID], true
}

// len reports how many subtasks are currently assigned, used by
// Computer's state derivation and by tests.
func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.assigned)
}
