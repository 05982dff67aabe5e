package runtime

import (
	"context"
	"fmt"
	"io"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

const (
	// DefaultNamespace is the containerd namespace the Task Computer's
	// container workers run in.
	DefaultNamespace = "taskcomputer"

	// DefaultSocketPath is the default containerd socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"

	resourceMountPoint = "/golem/resources"
	workMountPoint     = "/golem/work"
)

// ContainerStatus mirrors the worker states the outcome dispatcher cares
// about: whether the container is still runnable, still running, or has
// exited (cleanly or not).
type ContainerStatus string

const (
	ContainerStatusPending  ContainerStatus = "pending"
	ContainerStatusRunning  ContainerStatus = "running"
	ContainerStatusComplete ContainerStatus = "complete"
	ContainerStatusFailed   ContainerStatus = "failed"
)

// ContainerdRuntime implements the container worker's runtime backend
// using containerd directly, bypassing CRI.
type ContainerdRuntime struct {
	client    *containerd.Client
	namespace string
}

// NewContainerdRuntime creates a new containerd runtime client.
func NewContainerdRuntime(socketPath string) (*ContainerdRuntime, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	return &ContainerdRuntime{
		client:    client,
		namespace: DefaultNamespace,
	}, nil
}

// Close closes the containerd client connection.
func (r *ContainerdRuntime) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// PullImage pulls a worker image from a registry.
func (r *ContainerdRuntime) PullImage(ctx context.Context, imageRef string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	_, err := r.client.Pull(ctx, imageRef, containerd.WithPullUnpack)
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageRef, err)
	}

	return nil
}

// CreateContainer creates a container for one subtask's payload. resourceDir
// is bind-mounted read-only (the subtask's source code and input data);
// workDir is bind-mounted read-write (scratch space and results), matching
// the Task Computer's resource-dir-versus-temp-dir split.
func (r *ContainerdRuntime) CreateContainer(ctx context.Context, subtaskID, image, resourceDir, workDir string) (string, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	img, err := r.client.GetImage(ctx, image)
	if err != nil {
		return "", fmt.Errorf("failed to get image %s: %w", image, err)
	}

	mounts := []specs.Mount{
		{
			Source:      resourceDir,
			Destination: resourceMountPoint,
			Type:        "bind",
			Options:     []string{"ro", "bind"},
		},
		{
			Source:      workDir,
			Destination: workMountPoint,
			Type:        "bind",
			Options:     []string{"rw", "bind"},
		},
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(img),
		oci.WithEnv([]string{
			"GOLEM_RESOURCE_DIR=" + resourceMountPoint,
			"GOLEM_WORK_DIR=" + workMountPoint,
		}),
		oci.WithMounts(mounts),
	}

	ctrdContainer, err := r.client.NewContainer(
		ctx,
		subtaskID,
		containerd.WithImage(img),
		containerd.WithNewSnapshot(subtaskID+"-snapshot", img),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	return ctrdContainer.ID(), nil
}

// StartContainer starts a created container's task, piping its stdout and
// stderr to the given writers so the container worker can capture output
// without a separate log-fetch round trip. Either writer may be nil to
// discard that stream.
func (r *ContainerdRuntime) StartContainer(ctx context.Context, containerID string, stdout, stderr io.Writer) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("failed to load container %s: %w", containerID, err)
	}

	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	task, err := container.NewTask(ctx, cio.NewCreator(cio.WithStreams(nil, stdout, stderr)))
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task: %w", err)
	}

	return nil
}

// WaitContainer blocks until the container's task exits and returns its
// exit code.
func (r *ContainerdRuntime) WaitContainer(ctx context.Context, containerID string) (uint32, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return 0, fmt.Errorf("failed to load container %s: %w", containerID, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get task for container %s: %w", containerID, err)
	}

	statusC, err := task.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to wait for task: %w", err)
	}

	status := <-statusC
	return status.ExitCode(), status.Error()
}

// StopContainer stops a running container, preferring a graceful SIGTERM
// and falling back to SIGKILL once the timeout elapses.
func (r *ContainerdRuntime) StopContainer(ctx context.Context, containerID string, timeout time.Duration) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("failed to load container %s: %w", containerID, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		// No task: container was never started.
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to kill task: %w", err)
	}

	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return fmt.Errorf("failed to wait for task: %w", err)
	}

	select {
	case <-statusC:
	case <-stopCtx.Done():
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return fmt.Errorf("failed to force kill task: %w", err)
		}
	}

	if _, err := task.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	return nil
}

// DeleteContainer stops (if needed) and removes a container and its
// snapshot.
func (r *ContainerdRuntime) DeleteContainer(ctx context.Context, containerID string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		// Already gone.
		return nil
	}

	if err := r.StopContainer(ctx, containerID, 10*time.Second); err != nil {
		return fmt.Errorf("failed to stop container before delete: %w", err)
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("failed to delete container: %w", err)
	}

	return nil
}

// GetContainerStatus returns the current status of a container.
func (r *ContainerdRuntime) GetContainerStatus(ctx context.Context, containerID string) (ContainerStatus, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return ContainerStatusFailed, fmt.Errorf("failed to load container %s: %w", containerID, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return ContainerStatusPending, nil
	}

	status, err := task.Status(ctx)
	if err != nil {
		return ContainerStatusFailed, fmt.Errorf("failed to get task status: %w", err)
	}

	switch status.Status {
	case containerd.Running, containerd.Paused:
		return ContainerStatusRunning, nil
	case containerd.Stopped:
		if status.ExitStatus == 0 {
			return ContainerStatusComplete, nil
		}
		return ContainerStatusFailed, nil
	default:
		return ContainerStatusPending, nil
	}
}

// IsRunning checks if a container is currently running.
func (r *ContainerdRuntime) IsRunning(ctx context.Context, containerID string) bool {
	status, err := r.GetContainerStatus(ctx, containerID)
	if err != nil {
		return false
	}
	return status == ContainerStatusRunning
}

// GetContainerLogs streams container logs. Left unimplemented: the worker
// pipes stdout/stderr itself via cio at task-creation time rather than
// re-reading them after the fact.
func (r *ContainerdRuntime) GetContainerLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("logs not implemented: attach cio streams at task creation instead")
}

// ListContainers returns all container IDs in the task computer namespace.
func (r *ContainerdRuntime) ListContainers(ctx context.Context) ([]string, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	containers, err := r.client.Containers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	ids := make([]string, 0, len(containers))
	for _, c := range containers {
		ids = append(ids, c.ID())
	}

	return ids, nil
}
