package worker

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkDirManagerDefaultBasePath(t *testing.T) {
	m := NewWorkDirManager("")
	assert.Equal(t, DefaultWorkBasePath, m.basePath)
}

func TestPrepareWorkDirCreatesUniqueDirs(t *testing.T) {
	base := t.TempDir()
	m := NewWorkDirManager(base)

	dir1, err := m.PrepareWorkDir("subtask-1")
	require.NoError(t, err)
	dir2, err := m.PrepareWorkDir("subtask-1")
	require.NoError(t, err)

	assert.NotEqual(t, dir1, dir2, "each attempt should get its own directory")
	assert.DirExists(t, dir1)
	assert.DirExists(t, dir2)
	assert.True(t, strings.HasPrefix(dir1, base))
}

func TestWorkDirTracksLatestPrepared(t *testing.T) {
	base := t.TempDir()
	m := NewWorkDirManager(base)

	_, err := m.PrepareWorkDir("subtask-1")
	require.NoError(t, err)
	latest, err := m.PrepareWorkDir("subtask-1")
	require.NoError(t, err)

	got, ok := m.WorkDir("subtask-1")
	require.True(t, ok)
	assert.Equal(t, latest, got)
}

func TestCleanupWorkDirRemovesDirectory(t *testing.T) {
	base := t.TempDir()
	m := NewWorkDirManager(base)

	dir, err := m.PrepareWorkDir("subtask-1")
	require.NoError(t, err)

	err = m.CleanupWorkDir("subtask-1")
	require.NoError(t, err)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))

	_, ok := m.WorkDir("subtask-1")
	assert.False(t, ok)
}

func TestCleanupWorkDirUnknownSubtaskIsNoop(t *testing.T) {
	m := NewWorkDirManager(t.TempDir())
	err := m.CleanupWorkDir("never-prepared")
	assert.NoError(t, err)
}
