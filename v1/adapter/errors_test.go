package adapter

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_KindFromCode(t *testing.T) {
	cases := []struct {
		code int
		kind ErrorKind
	}{
		{CodeConnectionFailed, KindConnection},
		{CodeNotConnected, KindConnection},
		{CodeQueryFailed, KindQuery},
		{CodeExecuteFailed, KindExecute},
		{CodeTransactionFailed, KindTransaction},
		{CodeSavepointsNotSupported, KindTransaction},
		{CodeSavepointNotFound, KindTransaction},
		{CodeTransactionsNotSupported, KindTransaction},
		{CodeInvalidConfig, KindConfig},
		{9999, KindUnknown},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d", tc.code), func(t *testing.T) {
			err := NewError(tc.code, "op", "", nil)
			assert.Equal(t, tc.kind, err.Kind())
		})
	}
}

func TestError_WrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(CodeConnectionFailed, "connect", "db1", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connect")
	assert.Contains(t, err.Error(), "db1")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewError(CodeQueryFailed, "query", "users", nil))
	assert.Equal(t, CodeQueryFailed, CodeOf(err))
	assert.Equal(t, 0, CodeOf(errors.New("plain")))
	assert.Equal(t, 0, CodeOf(nil))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindTransaction, KindOf(NewError(CodeSavepointNotFound, "rollback-savepoint", "", nil)))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestIsSavepointNotFound(t *testing.T) {
	err := NewError(CodeSavepointNotFound, "release-savepoint", "", nil)
	require.True(t, IsSavepointNotFound(err))
	assert.False(t, IsSavepointNotFound(NewError(CodeTransactionFailed, "begin", "", nil)))
}
