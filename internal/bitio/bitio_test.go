package bitio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadU(t *testing.T) {
	r := NewReader([]byte{0b10110010, 0b11110000})
	v, err := r.ReadU(4)
	require.NoError(t, err)
	assert.Equal(t, uint64(0b1011), v)

	v, err = r.ReadU(4)
	require.NoError(t, err)
	assert.Equal(t, uint64(0b0010), v)

	v, err = r.ReadU(8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0b11110000), v)
}

func TestReadUE(t *testing.T) {
	// 1 -> 0; 010 -> 1; 011 -> 2; 00100 -> 3
	r := NewReader([]byte{0b1_010_011_0, 0b0100_0000})
	v, err := r.ReadUE()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)

	v, err = r.ReadUE()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	v, err = r.ReadUE()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)

	v, err = r.ReadUE()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), v)
}

func TestReadSE(t *testing.T) {
	cases := []struct {
		bits []byte
		want int64
	}{
		{[]byte{0b1 << 7}, 0},
		{[]byte{0b010 << 5}, 1},
		{[]byte{0b011 << 5}, -1},
		{[]byte{0b00100 << 3}, 2},
		{[]byte{0b00101 << 3}, -2},
	}
	for _, c := range cases {
		r := NewReader(c.bits)
		v, err := r.ReadSE()
		require.NoError(t, err)
		assert.Equal(t, c.want, v)
	}
}

func TestEmulationPreventionSkipped(t *testing.T) {
	// 00 00 03 01 should read as 00 00 01 for bit purposes.
	r := NewReader([]byte{0x00, 0x00, 0x03, 0x01})
	v, err := r.ReadU(24)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x000001), v)
}

func TestReadPastEndIsBitstreamError(t *testing.T) {
	r := NewReader([]byte{0xFF})
	_, err := r.ReadU(16)
	require.Error(t, err)
}
