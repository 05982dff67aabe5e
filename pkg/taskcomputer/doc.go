/*
Package taskcomputer is the Task Computer: the per-node execution manager
of the compute grid. Computer drives the Request/Wait State Machine (idle
-> requesting -> waiting-for-resources -> computing -> idle), holds the
Assigned-Subtask Registry, spawns Worker Threads, and runs the Outcome
Dispatcher when one finishes.

Everything Computer talks to outside of itself is an interface from
pkg/taskserver or a concrete collaborator passed in at construction time
(pkg/containermanager.Manager, pkg/worker.WorkDirManager, pkg/stats.Counter).
This package owns no network transport, no container runtime, and no
persistence; it only sequences calls to those things correctly.
*/
package taskcomputer
