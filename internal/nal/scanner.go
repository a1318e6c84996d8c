package nal

import (
	"fmt"
	"io"
	"os"

	"github.com/jmylchreest/smartcut/internal/core"
	"golang.org/x/exp/mmap"
)

// source is the minimal random-access surface the scanner needs, satisfied
// by both the mmap-backed reader and the SlidingReader fallback.
type source interface {
	Len() int64
	ReadAt(p []byte, off int64) (int, error)
	Close() error
}

// mmapSource adapts golang.org/x/exp/mmap.ReaderAt (whose Len() returns
// int) to the int64-based source interface used here.
type mmapSource struct {
	r *mmap.ReaderAt
}

func (m mmapSource) Len() int64                            { return int64(m.r.Len()) }
func (m mmapSource) ReadAt(p []byte, off int64) (int, error) { return m.r.ReadAt(p, off) }
func (m mmapSource) Close() error                            { return m.r.Close() }

// Scanner locates Annex-B start codes across a file and emits NalUnit
// records with offsets and sizes backfilled.
type Scanner struct {
	src     source
	usedMap bool
}

// Open opens path, preferring a memory map and falling back to a
// buffered sliding window when mapping is unavailable.
func Open(path string) (*Scanner, error) {
	if r, err := mmap.Open(path); err == nil {
		return &Scanner{src: mmapSource{r}, usedMap: true}, nil
	}
	sr, err := NewSlidingReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrIo, err)
	}
	return &Scanner{src: sr}, nil
}

// Close releases the underlying file handle/map.
func (s *Scanner) Close() error {
	if s.src == nil {
		return nil
	}
	return s.src.Close()
}

// UsedMemoryMap reports whether the scanner opened the file via mmap
// (false means the sliding-window fallback is in use).
func (s *Scanner) UsedMemoryMap() bool { return s.usedMap }

// startCode describes one Annex-B start code hit.
type startCode struct {
	pos int64
	len int // 3 or 4
}

// Scan sweeps the whole file for start codes and returns the ordered list
// of NAL units with Size/PayloadOffset backfilled. An empty file yields
// zero units without error; a file with no start codes also yields zero
// units.
func (s *Scanner) Scan() ([]NalUnit, error) {
	total := s.src.Len()
	if total == 0 {
		return nil, nil
	}

	codes, err := s.findStartCodes()
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, nil
	}

	units := make([]NalUnit, 0, len(codes))
	for i, c := range codes {
		var end int64
		if i+1 < len(codes) {
			end = codes[i+1].pos
		} else {
			end = total
		}
		units = append(units, NalUnit{
			FileOffset:    c.pos,
			PayloadOffset: c.pos + int64(c.len),
			Size:          end - c.pos,
			StartCodeLen:  c.len,
		})
	}
	return units, nil
}

// findStartCodes streams the file forward in fixed-size chunks (with a
// small overlap to catch start codes spanning a chunk boundary) looking
// for 00 00 01, widening to a 4-byte code when the preceding byte is also
// zero. Emission order equals scan order, i.e. file order.
func (s *Scanner) findStartCodes() ([]startCode, error) {
	const chunkSize = 1 << 20
	const overlap = 3

	total := s.src.Len()
	var codes []startCode

	buf := make([]byte, chunkSize+overlap)
	var pos int64

	// prevByte carries the last byte of the previous chunk's detection
	// window, so a start code whose leading zero byte falls right at a
	// chunk boundary is still found as a 4-byte code.
	prevByte := byte(0xFF)

	for pos < total {
		n := chunkSize
		if remaining := total - pos; remaining < int64(n) {
			n = int(remaining)
		}
		readLen := n + overlap
		if int64(readLen) > total-pos {
			readLen = int(total - pos)
		}
		nRead, err := s.src.ReadAt(buf[:readLen], pos)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("%w: %w", core.ErrIo, err)
		}
		chunk := buf[:nRead]

		// Detect only within [0, n) of this chunk; bytes [n, nRead) exist
		// solely to let the i+2 lookahead see across the boundary and are
		// re-scanned as part of the next chunk's own [0, n) window.
		limit := n
		if limit > len(chunk)-2 {
			limit = len(chunk) - 2
		}
		for i := 0; i < limit; i++ {
			if chunk[i] != 0 || chunk[i+1] != 0 || chunk[i+2] != 1 {
				continue
			}
			codePos := pos + int64(i)
			codeLen := 3
			switch {
			case i >= 1:
				if chunk[i-1] == 0 {
					codePos--
					codeLen = 4
				}
			case i == 0:
				if prevByte == 0 {
					codePos--
					codeLen = 4
				}
			}
			codes = append(codes, startCode{pos: codePos, len: codeLen})
		}

		if n == 0 {
			break
		}
		if n >= 1 {
			prevByte = chunk[n-1]
		}
		pos += int64(n)
	}

	return codes, nil
}

// ReadPayloadHead reads up to n bytes of a NAL's RBSP starting at
// PayloadOffset, used by the classifier to inspect the header bytes and
// opening slice-header bits without reading the whole NAL.
func (s *Scanner) ReadPayloadHead(n NalUnit, maxBytes int) ([]byte, error) {
	size := n.PayloadSize()
	if int64(maxBytes) > size {
		maxBytes = int(size)
	}
	if maxBytes <= 0 {
		return nil, nil
	}
	buf := make([]byte, maxBytes)
	read, err := s.src.ReadAt(buf, n.PayloadOffset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %w", core.ErrIo, err)
	}
	return buf[:read], nil
}

// ReadFull reads the complete byte range [off, off+size) verbatim, used by
// the output assembler for stream-copy spans and by round-trip tests.
func (s *Scanner) ReadFull(off, size int64) ([]byte, error) {
	buf := make([]byte, size)
	n, err := s.src.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %w", core.ErrIo, err)
	}
	return buf[:n], nil
}

// statFileSize is a small helper used by callers (e.g. the index cache)
// that want the file size without opening a Scanner.
func statFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
