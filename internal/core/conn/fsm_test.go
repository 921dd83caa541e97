package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dep2p/go-msgrpc/pkg/types"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name   string
		from   types.ConnectionState
		ev     Event
		in     Input
		to     types.ConnectionState
		action Action
	}{
		{"明文建立直接激活", types.StateConnecting, EvConnected, Input{}, types.StateActive, ActEnterActive},
		{"安全建立先握手", types.StateConnecting, EvConnected, Input{Secure: true}, types.StateSecuringHandshake, ActStartHandshake},
		{"握手完成激活", types.StateSecuringHandshake, EvSecured, Input{}, types.StateActive, ActEnterActive},
		{"建立中关闭", types.StateConnecting, EvCloseRequested, Input{}, types.StateClosing, ActFailPending | ActCloseSocket},
		{"握手中关闭", types.StateSecuringHandshake, EvCloseRequested, Input{}, types.StateClosing, ActFailPending | ActCloseSocket},
		{"活跃且有在途消息进入排空", types.StateActive, EvCloseRequested, Input{Pending: true}, types.StateDraining, ActNone},
		{"活跃且空闲直接关闭", types.StateActive, EvCloseRequested, Input{}, types.StateClosing, ActCloseSocket},
		{"排空完成", types.StateDraining, EvDrained, Input{}, types.StateClosing, ActCloseSocket},
		{"排空中重复关闭", types.StateDraining, EvCloseRequested, Input{Pending: true}, types.StateDraining, ActNone},
		{"建立中失败", types.StateConnecting, EvFailure, Input{}, types.StateClosing, ActFailPending | ActCloseSocket},
		{"握手失败", types.StateSecuringHandshake, EvFailure, Input{}, types.StateClosing, ActFailPending | ActCloseSocket},
		{"活跃失败", types.StateActive, EvFailure, Input{}, types.StateClosing, ActFailPending | ActCloseSocket},
		{"排空中失败", types.StateDraining, EvFailure, Input{}, types.StateClosing, ActFailPending | ActCloseSocket},
		{"关闭中再失败", types.StateClosing, EvFailure, Input{}, types.StateClosing, ActNone},
		{"关闭中套接字关闭", types.StateClosing, EvSocketClosed, Input{}, types.StateClosed, ActNotifyClosed},
		{"活跃时套接字关闭", types.StateActive, EvSocketClosed, Input{}, types.StateClosed, ActFailPending | ActNotifyClosed},
		{"已关闭忽略一切", types.StateClosed, EvFailure, Input{}, types.StateClosed, ActNone},
		{"活跃时重复建立", types.StateActive, EvConnected, Input{}, types.StateActive, ActNone},
		{"未握手不能排空", types.StateConnecting, EvDrained, Input{}, types.StateConnecting, ActNone},
		{"明文状态收到握手完成", types.StateActive, EvSecured, Input{}, types.StateActive, ActNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			to, act := Transition(tt.from, tt.ev, tt.in)
			assert.Equal(t, tt.to, to)
			assert.Equal(t, tt.action, act)
		})
	}
}

func TestTransition_AlwaysReachesClosed(t *testing.T) {
	states := []types.ConnectionState{
		types.StateConnecting, types.StateSecuringHandshake, types.StateActive,
		types.StateDraining, types.StateClosing,
	}
	for _, s := range states {
		cur, act := Transition(s, EvFailure, Input{Pending: true})
		if act.Has(ActCloseSocket) || cur == types.StateClosing {
			cur, _ = Transition(cur, EvSocketClosed, Input{})
		}
		assert.Equal(t, types.StateClosed, cur, "from %s", s)
	}
	t.Log("✅ 任意非终止状态失败后都到达 Closed")
}
