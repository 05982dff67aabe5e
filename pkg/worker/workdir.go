package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// DefaultWorkBasePath is the directory under which per-subtask scratch
// directories are created, mirroring taskcomputer.py's resource_manager
// temporary-directory root.
const DefaultWorkBasePath = "/var/lib/taskcomputer/work"

// WorkDirManager creates and tears down the per-subtask work directory that
// gets bind-mounted read-write into a container worker. Every attempt at a
// subtask gets its own uuid-suffixed directory rather than reusing one by
// subtask ID, so a retried attempt never inherits a previous attempt's
// partial output.
type WorkDirManager struct {
	basePath string

	mu   sync.Mutex
	dirs map[string]string // subtaskID -> current work dir
}

// NewWorkDirManager creates a work directory manager rooted at basePath. An
// empty basePath falls back to DefaultWorkBasePath.
func NewWorkDirManager(basePath string) *WorkDirManager {
	if basePath == "" {
		basePath = DefaultWorkBasePath
	}
	return &WorkDirManager{
		basePath: basePath,
		dirs:     make(map[string]string),
	}
}

// PrepareWorkDir creates a fresh, empty directory for one subtask attempt
// and records it so CleanupWorkDir can find it later.
func (m *WorkDirManager) PrepareWorkDir(subtaskID string) (string, error) {
	if err := os.MkdirAll(m.basePath, 0755); err != nil {
		return "", fmt.Errorf("failed to create work base dir: %w", err)
	}

	dir := filepath.Join(m.basePath, subtaskID+"-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create work dir for subtask %s: %w", subtaskID, err)
	}

	m.mu.Lock()
	m.dirs[subtaskID] = dir
	m.mu.Unlock()

	return dir, nil
}

// CleanupWorkDir removes the work directory associated with a subtask, if
// any. It is not an error to clean up a subtask that was never prepared or
// already cleaned up.
func (m *WorkDirManager) CleanupWorkDir(subtaskID string) error {
	m.mu.Lock()
	dir, ok := m.dirs[subtaskID]
	if ok {
		delete(m.dirs, subtaskID)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clean up work dir for subtask %s: %w", subtaskID, err)
	}
	return nil
}

// WorkDir returns the currently prepared work directory for a subtask, if
// one exists.
func (m *WorkDirManager) WorkDir(subtaskID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir, ok := m.dirs[subtaskID]
	return dir, ok
}
