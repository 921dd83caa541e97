package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionState(t *testing.T) {
	tests := []struct {
		state    ConnectionState
		name     string
		send     bool
		terminal bool
	}{
		{StateConnecting, "connecting", true, false},
		{StateSecuringHandshake, "securing", true, false},
		{StateActive, "active", true, false},
		{StateDraining, "draining", false, false},
		{StateClosing, "closing", false, false},
		{StateClosed, "closed", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.state.String())
			assert.Equal(t, tt.send, tt.state.AcceptsSend())
			assert.Equal(t, tt.terminal, tt.state.IsTerminal())
		})
	}
	assert.Equal(t, "unknown", ConnectionState(99).String())
}

func TestDirection(t *testing.T) {
	assert.Equal(t, "outbound", DirOutbound.String())
	assert.Equal(t, "inbound", DirInbound.String())
}
