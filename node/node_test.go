package node

import (
	"testing"

	"github.com/gozwave/core/message"
	"github.com/gozwave/core/queue"
	"github.com/gozwave/core/zwmsg"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	classID  uint8
	awake    bool
	incoming []uint8
}

func (h *fakeHandler) ClassID() uint8 { return h.classID }
func (h *fakeHandler) HandleIncoming(commandID uint8, data []uint8) {
	h.incoming = append([]uint8{commandID}, data...)
}
func (h *fakeHandler) RequestState(nodeID uint8) []*message.Message { return nil }
func (h *fakeHandler) AdvanceQuery(nodeID uint8, stage Stage) ([]*message.Message, bool) {
	if stage != StageVersions {
		return nil, false
	}
	return []*message.Message{message.NewControllerRequest(zwmsg.GetVersion)}, true
}
func (h *fakeHandler) Serialize() map[string]string  { return nil }
func (h *fakeHandler) Deserialize(map[string]string) {}
func (h *fakeHandler) IsAwake() bool                 { return h.awake }

func TestAdvanceQueriesMovesForwardAndEmitsIntrinsicMessages(t *testing.T) {
	n := New(5)
	require.Equal(t, StageProtocolInfo, n.Stage())

	stage, msgs := n.AdvanceQueries()
	require.Equal(t, StageNodeInfo, stage)
	require.Len(t, msgs, 1)
	require.Equal(t, zwmsg.RequestNodeInfo, msgs[0].Function)
}

func TestQueryStageCompleteRejectsStaleStage(t *testing.T) {
	n := New(5)
	n.AdvanceQueries() // now at NodeInfo
	require.True(t, n.QueryStageComplete(StageProtocolInfo), "already-passed stage should report complete")
	require.False(t, n.QueryStageComplete(StageNodeInfo))
}

func TestApplyNodeInfoSplitsAtMark(t *testing.T) {
	n := New(5)
	body := []uint8{zwmsg.CommandClassBasic, zwmsg.CommandClassWakeUp, zwmsg.CommandClassMark, zwmsg.CommandClassBasic}
	supported := n.ApplyNodeInfo(1, 2, 3, body)
	require.Equal(t, []uint8{zwmsg.CommandClassBasic, zwmsg.CommandClassWakeUp}, supported)
}

func TestRegisterCommandClassWiresWakeUpStatus(t *testing.T) {
	n := New(5)
	h := &fakeHandler{classID: zwmsg.CommandClassWakeUp, awake: false}
	n.RegisterCommandClass(h)

	require.True(t, n.IsAsleep() || n.Listening, "sleeping node with asleep wakeup handler reports asleep")
	h.awake = true
	n.Listening = false
	require.False(t, n.IsAsleep())
}

func TestHandleApplicationCommandRoutesToHandler(t *testing.T) {
	n := New(5)
	h := &fakeHandler{classID: zwmsg.CommandClassBasic}
	n.RegisterCommandClass(h)

	n.HandleApplicationCommand(zwmsg.CommandClassBasic, 0x03, []uint8{0x42})
	require.Equal(t, []uint8{0x03, 0x42}, h.incoming)
}

func TestBufferAppendDropsWakeUpNoMoreInformation(t *testing.T) {
	n := New(5)
	nmi := message.NewSendData(5, zwmsg.CommandClassWakeUp, []uint8{zwmsg.WakeUpCommandNoMoreInfo}, zwmsg.DefaultTransmitOptions, 1)
	n.BufferAppend(queue.Item{Message: nmi})
	require.Equal(t, 0, n.BufferLen())

	ordinary := message.NewSendData(5, zwmsg.CommandClassBasic, []uint8{0x01}, zwmsg.DefaultTransmitOptions, 2)
	n.BufferAppend(queue.Item{Message: ordinary})
	require.Equal(t, 1, n.BufferLen())
}

func TestDrainBufferReturnsInOrderAndClears(t *testing.T) {
	n := New(5)
	a := message.NewSendData(5, zwmsg.CommandClassBasic, []uint8{0x01}, zwmsg.DefaultTransmitOptions, 1)
	b := message.NewSendData(5, zwmsg.CommandClassBasic, []uint8{0x02}, zwmsg.DefaultTransmitOptions, 2)
	n.BufferAppend(queue.Item{Message: a})
	n.BufferAppend(queue.Item{Message: b})

	items := n.DrainBuffer()
	require.Len(t, items, 2)
	require.Equal(t, a, items[0].Message)
	require.Equal(t, b, items[1].Message)
	require.Equal(t, 0, n.BufferLen())
}

func TestQueryStageRetryExhaustion(t *testing.T) {
	n := New(5)
	require.False(t, n.QueryStageRetry(3))
	require.False(t, n.QueryStageRetry(3))
	require.True(t, n.QueryStageRetry(3))
}
