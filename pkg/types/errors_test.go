package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestError_Hierarchy 测试父子错误匹配
func TestError_Hierarchy(t *testing.T) {
	assert.ErrorIs(t, ErrMessageCanceledByPeer, ErrMessageCanceled)
	assert.ErrorIs(t, ErrRelayUnknownName, ErrMessageCanceled)
	assert.NotErrorIs(t, ErrMessageCanceled, ErrMessageCanceledByPeer)

	wrapped := fmt.Errorf("%w: broken pipe", ErrConnectionSocket)
	assert.ErrorIs(t, wrapped, ErrConnectionSocket)
	assert.True(t, IsConnectionError(wrapped))
	assert.False(t, IsMessageError(wrapped))

	t.Log("✅ 错误层级正确")
}

// TestError_Categories 测试错误分类
func TestError_Categories(t *testing.T) {
	assert.True(t, IsConnectionError(ErrConnectionInactivityTimeout))
	assert.True(t, IsMessageError(ErrMessageCanceledByPeer))
	assert.True(t, IsServiceError(ErrPoolFull))
	assert.Equal(t, ErrorCategory(0), CategoryOf(errors.New("plain")))
}

// TestError_Codes 测试错误码往返
func TestError_Codes(t *testing.T) {
	for _, e := range []*Error{ErrMessageCanceledByPeer, ErrRelayUnknownName, ErrMessageUnknownType, ErrConnectionKilled} {
		assert.Same(t, e, ErrorByCode(CodeOf(e)))
	}
	assert.Same(t, ErrMessageLost, ErrorByCode(9999))
	assert.Equal(t, ErrorCode(0), CodeOf(errors.New("plain")))
}
