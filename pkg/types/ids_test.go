package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMessageID_Token 测试消息句柄令牌往返
func TestMessageID_Token(t *testing.T) {
	id := MessageID{Index: 42, Generation: 7}

	parsed, err := ParseMessageToken(id.Token())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseMessageToken("0OIl")
	assert.ErrorIs(t, err, ErrInvalidToken)

	t.Log("✅ MessageID 令牌正确")
}

// TestRecipientID_Token 测试接收者句柄令牌往返
func TestRecipientID_Token(t *testing.T) {
	rid := RecipientID{
		Pool: PoolID{Index: 3, Generation: 1},
		Conn: ConnectionID{Index: 9, Generation: 12},
	}

	parsed, err := ParseRecipientToken(rid.Token())
	require.NoError(t, err)
	assert.Equal(t, rid, parsed)
	assert.True(t, parsed.IsValid())

	_, err = ParseRecipientToken(MessageID{Index: 1, Generation: 1}.Token())
	assert.ErrorIs(t, err, ErrInvalidToken)

	t.Log("✅ RecipientID 令牌正确")
}

// TestIDs_ZeroValue 测试零值句柄无效
func TestIDs_ZeroValue(t *testing.T) {
	assert.False(t, MessageID{}.IsValid())
	assert.False(t, ConnectionID{}.IsValid())
	assert.False(t, PoolID{}.IsValid())
	assert.False(t, RecipientID{}.IsValid())
	assert.Equal(t, "msg(-)", MessageID{}.String())
	assert.Equal(t, "msg(1:2)", MessageID{Index: 1, Generation: 2}.String())
}
