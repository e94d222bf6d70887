package htx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageBuildsOrderedBlockSequence(t *testing.T) {
	m := New()
	m.AddStartLine(BlockReqSL, StartLine{Method: "GET", Target: "/", Version: "HTTP/1.1"})
	m.AddHeader("host", "example.com")
	m.AddEOH()
	m.AddData([]byte("hello"))
	m.AddEOM()

	blocks := m.Blocks()
	require.Len(t, blocks, 5)
	require.Equal(t, BlockReqSL, blocks[0].Type)
	require.Equal(t, BlockEOM, blocks[4].Type)
	require.True(t, m.HasEOM())

	sl, ok := m.StartLine()
	require.True(t, ok)
	require.Equal(t, "GET", sl.Method)

	hdrs := m.Headers()
	require.Len(t, hdrs, 1)
	require.Equal(t, "host", hdrs[0].Name)
}

func TestAddDataSkipsEmptySlices(t *testing.T) {
	m := New()
	m.AddData(nil)
	m.AddData([]byte{})
	require.Equal(t, 0, m.Len())
}

func TestResetClearsBlocks(t *testing.T) {
	m := New()
	m.AddEOH()
	m.Reset()
	require.Equal(t, 0, m.Len())
	require.False(t, m.HasEOM())
}

func TestBlockTypeString(t *testing.T) {
	require.Equal(t, "DATA", BlockData.String())
	require.Equal(t, "UNUSED", BlockUnused.String())
}
