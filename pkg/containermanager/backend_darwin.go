//go:build darwin

package containermanager

import (
	"context"
	"fmt"
)

// installBackend provisions and starts a Lima VM running containerd, since
// containers cannot run natively on macOS. This mirrors golem's
// docker_machine path, where Docker itself runs inside a VM on non-Linux
// hosts.
func (m *Manager) installBackend(ctx context.Context) error {
	m.dockerMachine = true

	lima, err := NewLimaManager(m.dataDir)
	if err != nil {
		return fmt.Errorf("failed to create lima manager: %w", err)
	}

	if err := lima.Start(ctx); err != nil {
		return fmt.Errorf("failed to start lima VM: %w", err)
	}

	socketPath := lima.GetSocketPath()
	if socketPath == "" {
		return fmt.Errorf("failed to get containerd socket path from lima VM")
	}

	m.socketPath = socketPath
	m.stopFunc = func() error { return lima.Stop(context.Background()) }

	m.logger.Info().Str("socket", socketPath).Msg("using containerd inside lima VM")
	return nil
}
