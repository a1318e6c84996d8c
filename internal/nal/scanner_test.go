package nal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanRoundTrip(t *testing.T) {
	data := buildH264Stream(3)
	path, err := writeTempStream(t.TempDir(), "stream.h264", data)
	require.NoError(t, err)

	sc, err := Open(path)
	require.NoError(t, err)
	defer sc.Close()

	units, err := sc.Scan()
	require.NoError(t, err)
	require.NotEmpty(t, units)

	// Parse round-trip: concatenating FileOffset..FileOffset+Size
	// for every unit reconstructs the input exactly.
	var rebuilt []byte
	for _, u := range units {
		b, err := sc.ReadFull(u.FileOffset, u.Size)
		require.NoError(t, err)
		rebuilt = append(rebuilt, b...)
	}
	assert.Equal(t, data, rebuilt)
}

func TestScanEmptyFile(t *testing.T) {
	path, err := writeTempStream(t.TempDir(), "empty.h264", nil)
	require.NoError(t, err)

	sc, err := Open(path)
	require.NoError(t, err)
	defer sc.Close()

	units, err := sc.Scan()
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestScanNoStartCodes(t *testing.T) {
	path, err := writeTempStream(t.TempDir(), "garbage.h264", []byte{0x12, 0x34, 0x56, 0x78})
	require.NoError(t, err)

	sc, err := Open(path)
	require.NoError(t, err)
	defer sc.Close()

	units, err := sc.Scan()
	require.NoError(t, err) // not an error
	assert.Empty(t, units)
}

func TestScanStartCodeLengths(t *testing.T) {
	// 4-byte then 3-byte start code back to back.
	data := append([]byte{0, 0, 0, 1, 0x09, 0x10}, []byte{0, 0, 1, 0x09, 0x20}...)
	path, err := writeTempStream(t.TempDir(), "mixed.h264", data)
	require.NoError(t, err)

	sc, err := Open(path)
	require.NoError(t, err)
	defer sc.Close()

	units, err := sc.Scan()
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, 4, units[0].StartCodeLen)
	assert.Equal(t, 3, units[1].StartCodeLen)
	assert.Equal(t, int64(0), units[0].FileOffset)
	assert.Equal(t, int64(6), units[1].FileOffset)
}
