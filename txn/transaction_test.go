package txn

import (
	"testing"
	"time"

	"github.com/gozwave/core/frame"
	"github.com/gozwave/core/message"
	"github.com/gozwave/core/zwmsg"
	"github.com/stretchr/testify/require"
)

type fakeStats struct {
	retries, dropped, writes, acks, naks, cans int
}

func (f *fakeStats) IncRetries()  { f.retries++ }
func (f *fakeStats) IncDropped()  { f.dropped++ }
func (f *fakeStats) IncWriteCnt() { f.writes++ }
func (f *fakeStats) IncACKCnt()   { f.acks++ }
func (f *fakeStats) IncNAKCnt()   { f.naks++ }
func (f *fakeStats) IncCANCnt()   { f.cans++ }

func TestArmThenAckWithNoFurtherExpectationCloses(t *testing.T) {
	stats := &fakeStats{}
	e := New(stats)
	msg := message.NewControllerRequest(zwmsg.GetVersion)
	msg.ExpectedReplyFunction = 0 // pretend a bare ACK-only exchange

	var written [][]byte
	err := e.Arm(msg, time.Now(), func(b []byte) error {
		written = append(written, b)
		return nil
	})
	require.NoError(t, err)
	require.True(t, e.InFlight())

	done := e.OnAck()
	require.NotNil(t, done)
	require.False(t, e.InFlight())
	require.Equal(t, 1, stats.acks)
}

func TestArmWhileInFlightFails(t *testing.T) {
	e := New(&fakeStats{})
	msg := message.NewControllerRequest(zwmsg.GetVersion)
	require.NoError(t, e.Arm(msg, time.Now(), func([]byte) error { return nil }))

	err := e.Arm(message.NewControllerRequest(zwmsg.MemoryGetID), time.Now(), func([]byte) error { return nil })
	require.ErrorIs(t, err, ErrInFlight)
}

func TestRetryBudgetDropsAfterMaxTries(t *testing.T) {
	stats := &fakeStats{}
	e := New(stats)
	msg := message.NewSendData(5, zwmsg.CommandClassBasic, []uint8{0x02}, zwmsg.DefaultTransmitOptions, 9)

	now := time.Now()
	require.NoError(t, e.Arm(msg, now, func([]byte) error { return nil }))

	var result TimeoutResult
	var err error
	for i := 0; i < MaxTries; i++ {
		result, err = e.OnTimeout(now, func([]byte) error { return nil })
		require.NoError(t, err)
		now = now.Add(RetryTimeout)
	}

	require.True(t, result.Dropped)
	require.False(t, e.InFlight())
	require.Equal(t, 1, stats.dropped)
	// Two retries precede the drop (3 total attempts: initial Arm + 2 retries).
	require.Equal(t, 2, stats.retries)
}

func TestOnFrameClosesOnMatchingResponse(t *testing.T) {
	e := New(&fakeStats{})
	msg := message.NewControllerRequest(zwmsg.GetVersion)
	require.NoError(t, e.Arm(msg, time.Now(), func([]byte) error { return nil }))
	e.OnAck()
	require.True(t, e.InFlight(), "still waiting on the response after ACK")

	f := &frame.Frame{Type: frame.Response, Function: zwmsg.GetVersion}
	done := e.OnFrame(f, FrameSource{})
	require.NotNil(t, done)
	require.False(t, e.InFlight())
}

func TestOnFrameIgnoresMismatchedApplicationCommand(t *testing.T) {
	e := New(&fakeStats{})
	msg := message.NewSendData(5, zwmsg.CommandClassBasic, []uint8{0x02}, zwmsg.DefaultTransmitOptions, 0).
		WithApplicationCommandExpectation(5, zwmsg.CommandClassBasic)
	require.NoError(t, e.Arm(msg, time.Now(), func([]byte) error { return nil }))
	e.OnAck()

	f := &frame.Frame{Type: frame.Response, Function: zwmsg.ApplicationCommandHandler}
	// Wrong source node: must not close the transaction.
	done := e.OnFrame(f, FrameSource{SourceNodeID: 6, CommandClassID: zwmsg.CommandClassBasic})
	require.Nil(t, done)
	require.True(t, e.InFlight())

	done = e.OnFrame(f, FrameSource{SourceNodeID: 5, CommandClassID: zwmsg.CommandClassBasic})
	require.NotNil(t, done)
	require.False(t, e.InFlight())
}

func TestNakTriggersImmediateRetry(t *testing.T) {
	stats := &fakeStats{}
	e := New(stats)
	msg := message.NewControllerRequest(zwmsg.GetVersion)
	require.NoError(t, e.Arm(msg, time.Now(), func([]byte) error { return nil }))

	result, err := e.OnNakOrCan(false, time.Now(), func([]byte) error { return nil })
	require.NoError(t, err)
	require.True(t, result.Retried)
	require.Equal(t, 1, stats.naks)
	require.Equal(t, 2, msg.SendAttempts)
}
