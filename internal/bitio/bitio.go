// Package bitio implements the bit-level reader used to parse NAL RBSPs:
// byte- and bit-aligned unsigned reads, and Exp-Golomb ue(v)/se(v)
// decoding, with transparent emulation-prevention-byte skipping.
package bitio

import (
	"fmt"

	"github.com/jmylchreest/smartcut/internal/core"
)

// Reader reads bits from a contiguous RBSP byte slice, skipping any
// 00 00 03 emulation-prevention sequence encountered along the way.
type Reader struct {
	data    []byte
	bytePos int
	bitPos  uint // 0-7, MSB first
	// zeroRun counts consecutive zero bytes consumed, to detect the
	// emulation-prevention byte (a 0x03 following two zero bytes).
	zeroRun int
}

// NewReader wraps data for bit-level reads starting at byte 0.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// nextByte returns the next raw byte, transparently consuming (but not
// returning) an emulation-prevention 0x03 byte when it follows two
// consecutive zero bytes.
func (r *Reader) nextByte() (byte, error) {
	if r.bytePos >= len(r.data) {
		return 0, fmt.Errorf("%w: %w", core.ErrBitstream, errReadPastEnd)
	}
	b := r.data[r.bytePos]
	if r.zeroRun >= 2 && b == 0x03 {
		r.bytePos++
		r.zeroRun = 0
		if r.bytePos >= len(r.data) {
			return 0, fmt.Errorf("%w: %w", core.ErrBitstream, errReadPastEnd)
		}
		b = r.data[r.bytePos]
	}
	if b == 0 {
		r.zeroRun++
	} else {
		r.zeroRun = 0
	}
	return b, nil
}

var errReadPastEnd = fmt.Errorf("read past end of buffer")

// ReadBit reads a single bit (0 or 1).
func (r *Reader) ReadBit() (uint64, error) {
	b, err := r.peekCurrentByte()
	if err != nil {
		return 0, err
	}
	bit := (uint64(b) >> (7 - r.bitPos)) & 1
	r.advance(1)
	return bit, nil
}

// peekCurrentByte returns the byte at bytePos, applying emulation
// prevention skipping only when bitPos == 0 (i.e. when we are about to
// start consuming a fresh byte). Mid-byte reads reuse the same raw byte.
func (r *Reader) peekCurrentByte() (byte, error) {
	if r.bitPos == 0 {
		return r.nextByte()
	}
	if r.bytePos >= len(r.data) {
		return 0, fmt.Errorf("%w: %w", core.ErrBitstream, errReadPastEnd)
	}
	return r.data[r.bytePos], nil
}

func (r *Reader) advance(n uint) {
	r.bitPos += n
	for r.bitPos >= 8 {
		r.bitPos -= 8
		r.bytePos++
	}
}

// ReadU reads an unsigned n-bit value, MSB first.
func (r *Reader) ReadU(n uint) (uint64, error) {
	var v uint64
	for i := uint(0); i < n; i++ {
		bit, err := r.ReadBit()
		if err != nil {
			return 0, err
		}
		v = (v << 1) | bit
	}
	return v, nil
}

// ReadUE reads an unsigned Exp-Golomb coded value: count leading zero
// bits k, then read k+1 bits, returning the decoded value minus the
// standard offset (value - 1 for the trailing bits block, per the
// itu-t h.264/h.265 spec's ue(v) definition).
func (r *Reader) ReadUE() (uint64, error) {
	leadingZeroBits := 0
	for {
		bit, err := r.ReadBit()
		if err != nil {
			return 0, err
		}
		if bit != 0 {
			break
		}
		leadingZeroBits++
		if leadingZeroBits > 63 {
			return 0, fmt.Errorf("%w: exp-golomb prefix too long", core.ErrBitstream)
		}
	}
	if leadingZeroBits == 0 {
		return 0, nil
	}
	suffix, err := r.ReadU(uint(leadingZeroBits))
	if err != nil {
		return 0, err
	}
	return (uint64(1)<<uint(leadingZeroBits) - 1) + suffix, nil
}

// ReadSE reads a signed Exp-Golomb coded value via zig-zag decoding of
// the unsigned code: codeNum k maps to (-1)^(k+1) * ceil(k/2).
func (r *Reader) ReadSE() (int64, error) {
	k, err := r.ReadUE()
	if err != nil {
		return 0, err
	}
	if k%2 == 0 {
		return -int64(k / 2), nil
	}
	return int64(k+1) / 2, nil
}

// BitsRemaining returns a conservative count of bits left in the buffer
// (used by callers that want to stop before an EOF-triggering read).
func (r *Reader) BitsRemaining() int {
	remaining := (len(r.data)-r.bytePos)*8 - int(r.bitPos)
	if remaining < 0 {
		return 0
	}
	return remaining
}
