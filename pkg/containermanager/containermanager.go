// Package containermanager installs and supervises the local container
// backend the container worker talks to. It is the Go-native analogue of
// golem's DockerManager.install(): on Linux it manages a containerd
// process directly; on macOS, where containers cannot run natively, it
// provisions a Lima VM and runs containerd inside it. DockerMachine
// reports which of the two is in effect, mirroring the original's
// docker_machine attribute.
package containermanager

import (
	"context"
	"embed"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

//go:embed binaries/*
var binaries embed.FS

const (
	// DefaultDataDir is where the manager stores extracted binaries and state.
	DefaultDataDir = "/var/lib/taskcomputer"

	// DefaultSocketPath is the socket path for an embedded containerd.
	DefaultSocketPath = "/run/taskcomputer-containerd/containerd.sock"

	// DefaultConfigPath is the generated containerd config file path.
	DefaultConfigPath = "/etc/taskcomputer-containerd/config.toml"
)

// Manager installs and supervises the container backend (embedded
// containerd on Linux, a Lima VM on macOS) and reports its socket path to
// callers building a runtime.ContainerdRuntime.
type Manager struct {
	dataDir       string
	socketPath    string
	configPath    string
	binaryPath    string
	cmd           *exec.Cmd
	useExternal   bool
	dockerMachine bool
	stopFunc      func() error
	logger        zerolog.Logger
}

// NewManager creates a new container backend manager. useExternal skips
// provisioning entirely and assumes a containerd socket is already
// reachable at the system default location.
func NewManager(dataDir string, useExternal bool) *Manager {
	if dataDir == "" {
		dataDir = DefaultDataDir
	}

	return &Manager{
		dataDir:     dataDir,
		socketPath:  DefaultSocketPath,
		configPath:  DefaultConfigPath,
		useExternal: useExternal,
		logger: zerolog.New(os.Stdout).With().
			Str("component", "containermanager").
			Timestamp().
			Logger(),
	}
}

// Install provisions and starts the container backend for the current
// platform. It is safe to call once at node startup, before the first
// ResourceGiven/task_given cycle begins.
func (m *Manager) Install(ctx context.Context) error {
	if m.useExternal {
		m.logger.Info().Msg("using external containerd, skipping provisioning")
		m.socketPath = "/run/containerd/containerd.sock"
		return nil
	}

	return m.installBackend(ctx)
}

// CheckEnvironment verifies the container backend is reachable, the way
// golem's change_config calls into DockerManager before accepting new
// config values.
func (m *Manager) CheckEnvironment() error {
	if _, err := os.Stat(m.socketPath); err != nil {
		return fmt.Errorf("containerd socket not reachable at %s: %w", m.socketPath, err)
	}
	return nil
}

// SocketPath returns the containerd socket the runtime should dial.
func (m *Manager) SocketPath() string {
	return m.socketPath
}

// DockerMachine reports whether containers run inside a VM rather than
// natively on this host.
func (m *Manager) DockerMachine() bool {
	return m.dockerMachine
}

// Stop tears down whatever backend Install started.
func (m *Manager) Stop() error {
	if m.stopFunc == nil {
		return nil
	}
	return m.stopFunc()
}

// BuildConfig renders the containerd config.toml used by an embedded
// daemon. Exposed separately from Install so the admin API's reconfigure
// path can regenerate it without restarting the process.
func (m *Manager) BuildConfig() string {
	return `version = 2

[plugins]
  [plugins."io.containerd.grpc.v1.cri"]
    sandbox_image = "registry.k8s.io/pause:3.9"

    [plugins."io.containerd.grpc.v1.cri".containerd]
      snapshotter = "overlayfs"

      [plugins."io.containerd.grpc.v1.cri".containerd.runtimes]
        [plugins."io.containerd.grpc.v1.cri".containerd.runtimes.runc]
          runtime_type = "io.containerd.runc.v2"

          [plugins."io.containerd.grpc.v1.cri".containerd.runtimes.runc.options]
            SystemdCgroup = true
`
}

// UpdateConfig writes a fresh config.toml to disk. Callers are expected to
// hold the Task Computer's config lock while the backend picks up the new
// file, matching change_docker_config's lock-reconfigure-unlock sequence.
func (m *Manager) UpdateConfig() error {
	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(m.configPath, []byte(m.BuildConfig()), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (m *Manager) extractBinary() error {
	binaryName := fmt.Sprintf("containerd-%s-%s", runtime.GOOS, runtime.GOARCH)

	binDir := filepath.Join(m.dataDir, "bin")
	m.binaryPath = filepath.Join(binDir, "containerd")

	if info, err := os.Stat(m.binaryPath); err == nil {
		if time.Since(info.ModTime()) < 24*time.Hour {
			m.logger.Info().Msg("using existing containerd binary")
			return nil
		}
	}

	data, err := binaries.ReadFile(filepath.Join("binaries", binaryName))
	if err != nil {
		return fmt.Errorf("failed to read embedded binary %s: %w (binary may not be bundled)", binaryName, err)
	}

	if err := os.MkdirAll(binDir, 0755); err != nil {
		return fmt.Errorf("failed to create bin directory: %w", err)
	}

	if err := os.WriteFile(m.binaryPath, data, 0755); err != nil {
		return fmt.Errorf("failed to write binary: %w", err)
	}

	m.logger.Info().Str("path", m.binaryPath).Msg("extracted containerd binary")
	return nil
}

func (m *Manager) startEmbedded(ctx context.Context) error {
	if err := m.extractBinary(); err != nil {
		return fmt.Errorf("failed to extract containerd binary: %w", err)
	}

	if err := m.UpdateConfig(); err != nil {
		return fmt.Errorf("failed to create containerd config: %w", err)
	}

	socketDir := filepath.Dir(m.socketPath)
	if err := os.MkdirAll(socketDir, 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	m.logger.Info().Str("socket", m.socketPath).Msg("starting embedded containerd")

	m.cmd = exec.CommandContext(ctx, m.binaryPath,
		"--config", m.configPath,
		"--address", m.socketPath,
		"--root", filepath.Join(m.dataDir, "containerd"),
		"--state", filepath.Join(m.dataDir, "containerd-state"),
	)
	m.cmd.Stdout = &logWriter{logger: m.logger, level: "info"}
	m.cmd.Stderr = &logWriter{logger: m.logger, level: "error"}

	if err := m.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start containerd: %w", err)
	}

	if err := m.waitForSocket(ctx, 30*time.Second); err != nil {
		m.stopEmbedded()
		return fmt.Errorf("containerd failed to become ready: %w", err)
	}

	m.stopFunc = m.stopEmbedded
	m.logger.Info().Msg("embedded containerd started")

	go m.monitor(ctx)
	return nil
}

func (m *Manager) stopEmbedded() error {
	if m.cmd == nil || m.cmd.Process == nil {
		return nil
	}

	m.logger.Info().Msg("stopping embedded containerd")

	if err := m.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		m.logger.Error().Err(err).Msg("failed to send SIGTERM")
	}

	done := make(chan error, 1)
	go func() { done <- m.cmd.Wait() }()

	select {
	case <-time.After(10 * time.Second):
		m.logger.Warn().Msg("containerd did not stop gracefully, force killing")
		if err := m.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill containerd: %w", err)
		}
		<-done
	case err := <-done:
		if err != nil && err.Error() != "signal: terminated" {
			m.logger.Error().Err(err).Msg("containerd exited with error")
		}
	}

	m.logger.Info().Msg("embedded containerd stopped")
	return nil
}

func (m *Manager) waitForSocket(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for containerd socket")
		case <-ticker.C:
			if _, err := os.Stat(m.socketPath); err == nil {
				return nil
			}
		}
	}
}

func (m *Manager) monitor(ctx context.Context) {
	if m.cmd == nil || m.cmd.Process == nil {
		return
	}

	err := m.cmd.Wait()

	select {
	case <-ctx.Done():
		m.logger.Info().Msg("containerd monitor exiting, context cancelled")
		return
	default:
	}

	if err != nil {
		m.logger.Error().Err(err).Msg("containerd process exited unexpectedly")
	} else {
		m.logger.Warn().Msg("containerd process exited unexpectedly with no error")
	}
}

// logWriter adapts a subprocess's stdout/stderr to the structured logger.
type logWriter struct {
	logger zerolog.Logger
	level  string
}

func (lw *logWriter) Write(p []byte) (n int, err error) {
	if lw.level == "error" {
		lw.logger.Error().Msg(string(p))
	} else {
		lw.logger.Info().Msg(string(p))
	}
	return len(p), nil
}

var _ io.Writer = (*logWriter)(nil)
