package adapter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSavepointStack_PushBuildsStackName(t *testing.T) {
	var stack SavepointStack

	sp, err := stack.Push("checkpoint")
	require.NoError(t, err)

	assert.Equal(t, "checkpoint", sp.UserName)
	assert.True(t, strings.HasPrefix(sp.StackName, "checkpoint_"))
	assert.Equal(t, 1, stack.Len())
}

func TestSavepointStack_PushRejectsInvalidName(t *testing.T) {
	var stack SavepointStack

	_, err := stack.Push("bad name; DROP TABLE")
	require.Error(t, err)
	assert.Equal(t, CodeTransactionFailed, CodeOf(err))
	assert.Equal(t, 0, stack.Len())
}

func TestSavepointStack_ResolvePicksMostRecentMatch(t *testing.T) {
	var stack SavepointStack

	first, err := stack.Push("x")
	require.NoError(t, err)
	_, err = stack.Push("other")
	require.NoError(t, err)
	second, err := stack.Push("x")
	require.NoError(t, err)

	got, index, ok := stack.Resolve("x")
	require.True(t, ok)
	assert.Equal(t, 2, index)
	assert.Equal(t, second.StackName, got.StackName)
	assert.NotEqual(t, first.StackName, got.StackName)
}

func TestSavepointStack_ResolveMiss(t *testing.T) {
	var stack SavepointStack
	_, err := stack.Push("x")
	require.NoError(t, err)

	_, _, ok := stack.Resolve("missing")
	assert.False(t, ok)
}

func TestSavepointStack_TruncateThroughDropsTargetAndLater(t *testing.T) {
	var stack SavepointStack
	for _, name := range []string{"a", "x", "b", "x", "c"} {
		_, err := stack.Push(name)
		require.NoError(t, err)
	}

	// Rollback to the most recent "x": it and everything after it go away.
	_, index, ok := stack.Resolve("x")
	require.True(t, ok)
	stack.TruncateThrough(index)

	assert.Equal(t, 3, stack.Len())
	_, index, ok = stack.Resolve("x")
	require.True(t, ok)
	assert.Equal(t, 1, index)
}

func TestSavepointStack_RemoveAtDropsExactlyOne(t *testing.T) {
	var stack SavepointStack
	for _, name := range []string{"a", "x", "b"} {
		_, err := stack.Push(name)
		require.NoError(t, err)
	}

	_, index, ok := stack.Resolve("x")
	require.True(t, ok)
	stack.RemoveAt(index)

	assert.Equal(t, 2, stack.Len())
	_, _, ok = stack.Resolve("x")
	assert.False(t, ok)
	_, _, ok = stack.Resolve("b")
	assert.True(t, ok)
}

func TestSavepointStack_CloneIsIndependent(t *testing.T) {
	var stack SavepointStack
	_, err := stack.Push("a")
	require.NoError(t, err)

	clone := stack.Clone()
	_, err = clone.Push("b")
	require.NoError(t, err)

	assert.Equal(t, 1, stack.Len())
	assert.Equal(t, 2, clone.Len())
}
