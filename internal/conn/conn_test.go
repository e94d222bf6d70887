package conn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haproxy-core/mincore/internal/fdtable"
)

type fakeTransport struct {
	takeoverCalled bool
	closed         bool
}

func (f *fakeTransport) RcvBuf(dst []byte) (int, error)            { return 0, nil }
func (f *fakeTransport) SndBuf(src []byte) (int, error)            { return 0, nil }
func (f *fakeTransport) Subscribe(ev Events, w Waiter) error       { return nil }
func (f *fakeTransport) Unsubscribe(ev Events) error               { return nil }
func (f *fakeTransport) ShutR() error                              { return nil }
func (f *fakeTransport) ShutW() error                              { return nil }
func (f *fakeTransport) Takeover(newOwner uint) error              { f.takeoverCalled = true; return nil }
func (f *fakeTransport) Close() error                              { f.closed = true; return nil }

func TestConnectionFlagRoundTrip(t *testing.T) {
	c := New(Target{Name: "front"}, &fakeTransport{}, 0)
	require.False(t, c.HasFlag(FlagError))
	c.SetFlag(FlagError | FlagSockRDShut)
	require.True(t, c.HasFlag(FlagError))
	require.True(t, c.HasFlag(FlagSockRDShut))
	c.ClearFlag(FlagError)
	require.False(t, c.HasFlag(FlagError))
	require.True(t, c.HasFlag(FlagSockRDShut))
}

func TestReleaseClosesTransportAndCallsDestroy(t *testing.T) {
	tr := &fakeTransport{}
	c := New(Target{Name: "front"}, tr, 0)
	var destroyed bool
	c.SetDestroy(func() { destroyed = true })
	c.Release()
	require.True(t, tr.closed)
	require.True(t, destroyed)
}

func TestTakeoverMovesOwnerAndInvokesTransport(t *testing.T) {
	tr := &fakeTransport{}
	c := New(Target{Name: "front"}, tr, 0)
	tbl := fdtable.New(1)
	entry := tbl.Insert(0, c, 0)

	var rearmed bool
	err := c.Takeover(entry, 1, func() error { rearmed = true; return nil })
	require.NoError(t, err)
	require.True(t, tr.takeoverCalled)
	require.True(t, rearmed)
	require.Equal(t, uint(1), c.Owner())
	require.True(t, entry.ThreadMask().Has(1))
}

func TestTakeoverSetsErrorFlagOnAfterTakeoverFailure(t *testing.T) {
	tr := &fakeTransport{}
	c := New(Target{Name: "front"}, tr, 0)
	tbl := fdtable.New(1)
	entry := tbl.Insert(0, c, 0)

	err := c.Takeover(entry, 1, func() error { return assertErr })
	require.Error(t, err)
	require.True(t, c.HasFlag(FlagError))
}

var assertErr = &takeoverErr{}

type takeoverErr struct{}

func (*takeoverErr) Error() string { return "takeover: simulated failure" }
