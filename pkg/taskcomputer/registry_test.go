package taskcomputer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/taskcomputer/pkg/types"
)

func TestRegistryInsertIsIdempotent(t *testing.T) {
	r := newRegistry()
	d := types.SubtaskDescriptor{SubtaskID: "s1", TaskID: "t1"}

	assert.True(t, r.insert(d))
	assert.False(t, r.insert(d))
	assert.Equal(t, 1, r.len())
}

func TestRegistryMapsStayInLockstep(t *testing.T) {
	r := newRegistry()
	require.True(t, r.insert(types.SubtaskDescriptor{SubtaskID: "s1", TaskID: "t1"}))

	_, subtaskOK := r.lookupSubtask("s1")
	assert.True(t, subtaskOK)

	d, taskOK := r.popByTask("t1")
	assert.True(t, taskOK)
	assert.Equal(t, "s1", d.SubtaskID)

	_, subtaskOK = r.lookupSubtask("s1")
	assert.False(t, subtaskOK, "popByTask must remove from both maps")
	assert.Equal(t, 0, r.len())
}

func TestRegistryPopBySubtaskRemovesBothEntries(t *testing.T) {
	r := newRegistry()
	require.True(t, r.insert(types.SubtaskDescriptor{SubtaskID: "s1", TaskID: "t1"}))

	d, ok := r.popBySubtask("s1")
	assert.True(t, ok)
	assert.Equal(t, "t1", d.TaskID)

	_, ok = r.popByTask("t1")
	assert.False(t, ok)
}

func TestRegistryPopUnknownIsNoop(t *testing.T) {
	r := newRegistry()
	_, ok := r.popBySubtask("missing")
	assert.False(t, ok)
	_, ok = r.popByTask("missing")
	assert.False(t, ok)
}
