package notify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDrainDeliversInFIFOOrderToEveryWatcher(t *testing.T) {
	b := New()
	var a, c []Notification
	b.AddWatcher(func(n Notification) { a = append(a, n) })
	b.AddWatcher(func(n Notification) { c = append(c, n) })

	b.NodeAdded(3)
	b.NodeNew(3)
	b.NodeReady(3)

	require.Equal(t, 3, b.Pending())
	b.Drain()
	require.Equal(t, 0, b.Pending())

	require.Len(t, a, 3)
	require.Equal(t, NodeAdded, a[0].Kind)
	require.Equal(t, NodeNew, a[1].Kind)
	require.Equal(t, NodeReady, a[2].Kind)
	require.Equal(t, a, c)
}

func TestDrainClearsPendingEvenWithNoWatchers(t *testing.T) {
	b := New()
	b.AllNodesQueried()
	b.Drain()
	require.Equal(t, 0, b.Pending())
}

func TestWatchersRegisteredAfterPostStillSeeIt(t *testing.T) {
	b := New()
	b.DriverReady()

	var seen []Kind
	b.AddWatcher(func(n Notification) { seen = append(seen, n.Kind) })
	b.Drain()

	require.Equal(t, []Kind{DriverReady}, seen)
}
