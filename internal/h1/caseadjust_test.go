package h1

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCaseMapAddAndLookup(t *testing.T) {
	cm := NewCaseMap()
	cm.Add("content-type", "Content-Type")
	require.Equal(t, "Content-Type", cm.Lookup("content-type"))
	require.Equal(t, "Content-Type", cm.Lookup("Content-Type"))
}

func TestCaseMapLookupPassesThroughUnknown(t *testing.T) {
	cm := NewCaseMap()
	require.Equal(t, "x-custom", cm.Lookup("x-custom"))
}

func TestCaseMapLoadFileParsesLines(t *testing.T) {
	cm := NewCaseMap()
	src := "# comment\ncontent-type Content-Type\n\nx-request-id X-Request-ID\n"
	err := cm.LoadFile(bufio.NewScanner(strings.NewReader(src)))
	require.NoError(t, err)
	require.Equal(t, 2, cm.Len())
	require.Equal(t, "X-Request-ID", cm.Lookup("x-request-id"))
}

func TestCaseMapLoadFileRejectsMalformedLine(t *testing.T) {
	cm := NewCaseMap()
	err := cm.LoadFile(bufio.NewScanner(strings.NewReader("only-one-field\n")))
	require.Error(t, err)
}
