//go:build linux

package containermanager

import "context"

// installBackend starts the embedded containerd binary directly; no VM is
// needed on Linux.
func (m *Manager) installBackend(ctx context.Context) error {
	m.dockerMachine = false
	return m.startEmbedded(ctx)
}
