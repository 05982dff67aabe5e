/*
Package taskserver holds nothing but interfaces and test fakes. Every
type here is an external collaborator spec.md §1 scopes out of the core:
the protocol peer that offers subtasks, the resource/directory managers,
the task keeper, and the benchmark manager. pkg/taskcomputer depends on
these interfaces only; production wiring of a real task server lives
outside this module's Non-goals.
*/
package taskserver
