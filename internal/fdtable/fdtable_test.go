package fdtable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertAndLookup(t *testing.T) {
	tb := New(4)
	e := tb.Insert(3, "owner", 0)
	require.Same(t, e, tb.Lookup(3))
	require.Equal(t, "owner", e.Owner())
}

func TestLookupMissingReturnsNil(t *testing.T) {
	tb := New(0)
	require.Nil(t, tb.Lookup(7))
}

func TestReleaseMakesOwnerAccessPanic(t *testing.T) {
	tb := New(1)
	e := tb.Insert(0, "owner", 0)
	tb.Release(0)
	require.Nil(t, tb.Lookup(0))
	require.Panics(t, func() { e.Owner() })
}

func TestRequestUpdateAndDrain(t *testing.T) {
	tb := New(1)
	e := tb.Insert(0, "owner", 0)
	e.RequestUpdate(2, StateRecvActive, true)
	require.Equal(t, StateRecvActive, e.State())
	m := e.DrainUpdates()
	require.True(t, m.Has(2))
	empty := e.DrainUpdates()
	require.True(t, empty.IsEmpty())
}

func TestSetPollEventsDispatchesToPrimaryThread(t *testing.T) {
	tb := New(1)
	e := tb.Insert(0, "owner", 5)
	var gotTID uint
	var gotEv PollEvent
	e.SetIOCallback(func(tid uint, fd int, ev PollEvent) {
		gotTID, gotEv = tid, ev
	})
	e.SetPollEvents(EventIn | EventErr)
	require.Equal(t, uint(5), gotTID)
	require.Equal(t, EventIn|EventErr, gotEv)
}

func TestTakeoverMovesMasksToNewOwner(t *testing.T) {
	tb := New(1)
	e := tb.Insert(0, "owner", 0)
	var called bool
	err := e.Takeover(1, func() error { called = true; return nil })
	require.NoError(t, err)
	require.True(t, called)
	require.True(t, e.ThreadMask().Has(1))
	require.False(t, e.ThreadMask().Has(0))
}
