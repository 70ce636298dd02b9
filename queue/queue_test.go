package queue

import (
	"testing"

	"github.com/gozwave/core/message"
	"github.com/stretchr/testify/require"
)

func signalSet(q *Queues, p Priority) bool {
	select {
	case v := <-q.Signal(p):
		q.signals[p] <- v // put it back, we only peeked
		return true
	default:
		return false
	}
}

func TestSignalTracksEmptiness(t *testing.T) {
	q := New()
	for p := Command; p < numPriorities; p++ {
		require.False(t, signalSet(q, p), "priority %s should start with a clear signal", p)
	}

	q.Push(Send, Item{Message: &message.Message{TargetNodeID: 3}})
	require.True(t, signalSet(q, Send))

	_, _, ok := q.Pop()
	require.True(t, ok)
	require.False(t, signalSet(q, Send), "signal should clear once the queue drains")
}

func TestPopRespectsPriorityOrder(t *testing.T) {
	q := New()
	q.Push(Poll, Item{Message: &message.Message{TargetNodeID: 1}})
	q.Push(Query, Item{Message: &message.Message{TargetNodeID: 2}})
	q.Push(Command, Item{Message: &message.Message{TargetNodeID: 3}})

	p, item, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, Command, p)
	require.EqualValues(t, 3, item.TargetNodeID())
}

func TestRemoveTargetSweepsAndRedirects(t *testing.T) {
	q := New()
	q.Push(Send, Item{Message: &message.Message{TargetNodeID: 7}})
	q.Push(Send, Item{Message: &message.Message{TargetNodeID: 9}})

	var redirected []Item
	q.RemoveTarget(Send, 7, func(it Item) { redirected = append(redirected, it) })

	require.Len(t, redirected, 1)
	require.Equal(t, 1, q.Len(Send))
	p, item, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, Send, p)
	require.EqualValues(t, 9, item.TargetNodeID())
}

func TestPushManyPreservesOrder(t *testing.T) {
	q := New()
	items := []Item{
		{Message: &message.Message{TargetNodeID: 7, Function: 1}},
		{Message: &message.Message{TargetNodeID: 7, Function: 2}},
		{IsQueryStageComplete: true, NodeID: 7, Stage: 3},
	}
	q.PushMany(WakeUp, items)

	for i, want := range items {
		_, got, ok := q.Pop()
		require.True(t, ok, "item %d", i)
		require.Equal(t, want, got)
	}
	require.True(t, q.Empty())
}
