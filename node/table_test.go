package node

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func bitmapFor(ids ...uint8) [29]byte {
	var b [29]byte
	for _, id := range ids {
		i := int(id) - 1
		b[i/8] |= 1 << uint(i%8)
	}
	return b
}

func hasEvent(events []Event, kind EventKind, id uint8) bool {
	for _, e := range events {
		if e.Kind == kind && e.NodeID == id {
			return true
		}
	}
	return false
}

func TestReconcileInitDataCreatesAndRemovesNodes(t *testing.T) {
	table := NewTable()
	table.nodes[2] = New(2)
	table.nodes[5] = New(5)
	table.nodes[7] = New(7)

	events := table.ReconcileInitData(bitmapFor(2, 5, 9))

	require.True(t, hasEvent(events, EventNodeAdded, 9))
	require.True(t, hasEvent(events, EventNodeNew, 9))
	require.True(t, hasEvent(events, EventNodeRemoved, 7))
	require.NotNil(t, table.Get(9))
	require.Nil(t, table.Get(7))
	require.NotNil(t, table.Get(2))
	require.NotNil(t, table.Get(5))
}

func TestReconcileInitDataResetsSnapshotLoadedNodes(t *testing.T) {
	table := NewTable()
	n, _ := table.LoadFromSnapshot(3)
	n.SetStage(StageComplete)

	table.ReconcileInitData(bitmapFor(3))

	require.Equal(t, StageAssociations, table.Get(3).Stage())
}

func TestLoadFromSnapshotEmitsNodeAddedNotNodeNew(t *testing.T) {
	table := NewTable()
	_, events := table.LoadFromSnapshot(11)

	require.True(t, hasEvent(events, EventNodeAdded, 11))
	require.False(t, hasEvent(events, EventNodeNew, 11))
}

func TestAwakeThenAllNodesQueriedFireOnceEach(t *testing.T) {
	table := NewTable()
	a, b, c := New(1), New(2), New(3)
	a.Listening, b.Listening, c.Listening = true, true, true
	sleeper := New(4)
	sleeper.Listening = false

	table.nodes[1] = a
	table.nodes[2] = b
	table.nodes[3] = c
	table.nodes[4] = sleeper

	events := table.CheckCompletion()
	require.Empty(t, events, "no node complete yet")

	a.SetStage(StageComplete)
	b.SetStage(StageComplete)
	c.SetStage(StageComplete)

	events = table.CheckCompletion()
	require.True(t, hasEvent(events, EventAwakeNodesQueried, 0))
	require.False(t, hasEvent(events, EventAllNodesQueried, 0))

	// Firing again must not re-emit AwakeNodesQueried.
	events = table.CheckCompletion()
	require.Empty(t, events)

	sleeper.SetStage(StageComplete)
	events = table.CheckCompletion()
	require.True(t, hasEvent(events, EventAllNodesQueried, 0))

	events = table.CheckCompletion()
	require.Empty(t, events, "all-nodes-queried fires exactly once")
}

func TestRemoveEmitsNodeRemovedAfterUnlink(t *testing.T) {
	table := NewTable()
	table.nodes[6] = New(6)

	events := table.Remove(6)
	require.True(t, hasEvent(events, EventNodeRemoved, 6))
	require.Nil(t, table.Get(6))
}

func TestRemoveUnknownIDIsNoop(t *testing.T) {
	table := NewTable()
	events := table.Remove(42)
	require.Nil(t, events)
}
