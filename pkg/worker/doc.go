/*
Package worker runs exactly one subtask attempt at a time, from the
moment the Task Computer decides to compute to the moment an Outcome is
ready for the outcome dispatcher.

# Tagged sum, not inheritance

The Worker interface has three constructors instead of a class
hierarchy: NewContainerWorker for the normal container-resource
computation path, NewDirectWorker/NewTestDirectWorker for
support_direct_computation. Which one gets built is decided once, when
the subtask's resources are ready, on whether docker_images is non-empty:

	┌────────────────────────── pkg/taskcomputer ─────────────────────────┐
	│                                                                      │
	│   ResourceGiven ──▶ docker_images non-empty? ──▶ ContainerWorker     │
	│                           │                                         │
	│                           └── empty, direct allowed ──▶ DirectWorker │
	│                                                                      │
	└──────────────────────────────┬───────────────────────────────────────┘
	                                │ Start / Wait / Kill
	                                ▼
	                     ┌──────────────────────┐
	                     │   worker.Worker       │
	                     └──────────┬───────────┘
	                                │
	            ┌───────────────────┼────────────────────┐
	            ▼                   ▼                     ▼
	   ContainerWorker        DirectWorker          (TestDirectWorker
	   (pkg/runtime)        (pkg/worker/sandbox)      swaps in TestVM)

A Worker is constructed once per attempt and discarded after Wait
returns; retries build a new Worker against a fresh WorkDirManager
directory rather than reusing state.

# Container workers

ContainerWorker pulls the subtask's image, bind-mounts the resource
directory read-only and the work directory read-write, starts the
container's task, and waits for it to exit. Stdout/stderr are piped
straight into in-memory buffers at task-creation time rather than
fetched after the fact.

# Direct workers

DirectWorker and TestDirectWorker run a CapabilityRecord in-process via
a VM (ProcVM for the real thing, TestVM for the task-owner's "can this
node run my task" probe), skipping containerd entirely. The capability
record itself — {RunOneBatch, Net, GetModelHash}, with the kwargs handed
to RunOneBatch alongside it — is payload concern; this package only
knows how to drive one.

# Work directories

WorkDirManager allocates a fresh, uuid-suffixed directory per attempt
under a base path, so a retried subtask never inherits a previous
attempt's partial output. CleanupWorkDir removes an attempt's directory;
the outcome dispatcher does not call it, so finished attempts'
directories stay on disk.
*/
package worker
