package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileMergesOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := "max_assigned_tasks: 16\naccept_tasks: false\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.MaxAssignedTasks)
	assert.False(t, cfg.AcceptTasks)
	assert.Equal(t, Default().TaskRequestInterval, cfg.TaskRequestInterval)
}

func TestLoadFileRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_assigned_tasks: 0\n"), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestValidateRejectsZeroDurations(t *testing.T) {
	cfg := Default()
	cfg.TaskRequestInterval = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptySocket(t *testing.T) {
	cfg := Default()
	cfg.ContainerdSocket = ""
	assert.Error(t, cfg.Validate())
}

func TestDefaultMatchesDocumentedValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 5*time.Second, cfg.TaskRequestInterval)
	assert.Equal(t, 8, cfg.MaxAssignedTasks)
	assert.True(t, cfg.AcceptTasks)
	assert.False(t, cfg.SupportDirectComputation)
}
