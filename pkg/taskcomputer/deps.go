package taskcomputer

import (
	"context"

	"github.com/cuemby/taskcomputer/pkg/types"
	"github.com/cuemby/taskcomputer/pkg/worker"
)

// Listener observes container-reconfiguration config-lock transitions,
// the Go analogue of golem's listener.lock_config(on) broadcast.
type Listener interface {
	LockConfig(on bool)
}

// ContainerManager is the subset of pkg/containermanager.Manager the
// config lock needs: whether containers run inside a VM, and how to push
// a fresh config.toml to the backend. Defined here, consumer-side, the
// way pkg/taskserver's interfaces are, so tests can fake it without
// standing up a real containerd/Lima backend.
type ContainerManager interface {
	DockerMachine() bool
	UpdateConfig() error
}

// PayloadLoader resolves a subtask descriptor's opaque source_code and
// extra_data into a runnable capability record for the direct-computation
// path. It is an external collaborator: the payload itself (what
// source_code actually contains) is out of scope for this module, the
// same way the task server and resource manager are.
type PayloadLoader interface {
	Load(ctx context.Context, d types.SubtaskDescriptor) (worker.CapabilityRecord, map[string]any, error)
}
