package poll

import (
	"testing"
	"time"

	"github.com/gozwave/core/notify"
	"github.com/stretchr/testify/require"
)

func TestNextRotatesAndAmortizesInterval(t *testing.T) {
	l := New()
	l.SetInterval(300 * time.Millisecond)
	l.Start()

	a := notify.ValueID{NodeID: 1, CommandClassID: 0x80}
	b := notify.ValueID{NodeID: 2, CommandClassID: 0x80}
	l.Enable(a)
	l.Enable(b)

	id1, delay1, ok := l.Next()
	require.True(t, ok)
	require.Equal(t, a, id1)
	require.Equal(t, 150*time.Millisecond, delay1)

	id2, _, ok := l.Next()
	require.True(t, ok)
	require.Equal(t, b, id2)

	id3, _, ok := l.Next()
	require.True(t, ok)
	require.Equal(t, a, id3, "list rotates head to tail")
}

func TestNextFailsBeforeStart(t *testing.T) {
	l := New()
	l.Enable(notify.ValueID{NodeID: 1})
	_, _, ok := l.Next()
	require.False(t, ok)
}

func TestEnableIsIdempotent(t *testing.T) {
	l := New()
	id := notify.ValueID{NodeID: 1}
	l.Enable(id)
	l.Enable(id)
	require.Equal(t, 1, l.Len())
}

func TestDisableRemovesFromRotation(t *testing.T) {
	l := New()
	l.Start()
	a := notify.ValueID{NodeID: 1}
	b := notify.ValueID{NodeID: 2}
	l.Enable(a)
	l.Enable(b)
	l.Disable(a)

	require.Equal(t, 1, l.Len())
	id, _, ok := l.Next()
	require.True(t, ok)
	require.Equal(t, b, id)
}
