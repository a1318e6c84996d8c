// Package assemble writes the final cut output from a planned sequence
// of stream-copy and re-encode spans, inserting parameter-set preambles
// and end-of-sequence NALs at segment boundaries.
package assemble

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmylchreest/smartcut/internal/core"
	"github.com/jmylchreest/smartcut/internal/cutplan"
	"github.com/jmylchreest/smartcut/internal/nal"
	"github.com/jmylchreest/smartcut/internal/stream"
)

// SegmentReencode supplies the re-encoded bytes for one CutPlanEntry's
// reencode span, keyed by its index in the plan. Entries with no
// reencode span are absent.
type SegmentReencode = map[int][]byte

// Assemble writes entries against idx into outputPath, producing a
// single Annex-B elementary stream. reencoded supplies the re-encoded
// bytes for any entry with HasReencode set. Output is written to a
// temp file in outputPath's directory and renamed into place on
// success, so a failed or aborted job never leaves a partial file at
// the final path.
func Assemble(scanner *nal.Scanner, idx *stream.Index, entries []cutplan.CutPlanEntry, reencoded SegmentReencode, outputPath string) (err error) {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp output: %w", core.ErrIo, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	for i, entry := range entries {
		if i > 0 {
			if _, werr := tmp.Write(nal.EndOfSequence(idx.Codec)); werr != nil {
				return fmt.Errorf("%w: writing end-of-sequence NAL: %w", core.ErrIo, werr)
			}
		}
		if werr := writeSegment(tmp, scanner, idx, entry, reencoded[i]); werr != nil {
			return core.NewSegmentError(i, "assemble", werr)
		}
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing temp output: %w", core.ErrIo, err)
	}
	if err = os.Rename(tmpPath, outputPath); err != nil {
		return fmt.Errorf("%w: renaming output into place: %w", core.ErrIo, err)
	}
	return nil
}

// writeSegment writes one CutPlanEntry's bytes per the four assembler
// cases: pure stream-copy, pure re-encode, reencode-then-streamcopy
// (mixed), or streamcopy-then-reencode (not produced by the planner but
// handled symmetrically).
func writeSegment(w *os.File, scanner *nal.Scanner, idx *stream.Index, entry cutplan.CutPlanEntry, reencodedBytes []byte) error {
	switch {
	case entry.HasStreamcopy && !entry.HasReencode:
		if err := writeParameterSetPreamble(w, scanner, idx); err != nil {
			return err
		}
		return writeStreamcopyRange(w, scanner, idx, entry.StreamcopyStart, entry.StreamcopyEnd)

	case entry.HasReencode && !entry.HasStreamcopy:
		if _, err := w.Write(reencodedBytes); err != nil {
			return fmt.Errorf("%w: %w", core.ErrIo, err)
		}
		return nil

	case entry.HasReencode && entry.HasStreamcopy:
		if _, err := w.Write(reencodedBytes); err != nil {
			return fmt.Errorf("%w: %w", core.ErrIo, err)
		}
		// Re-prime the decoder with the original parameter sets before
		// the upcoming stream-copied IDR, which references the
		// original SPS/PPS IDs rather than the encoder's.
		if err := writeParameterSetPreamble(w, scanner, idx); err != nil {
			return err
		}
		return writeStreamcopyRange(w, scanner, idx, entry.StreamcopyStart, entry.StreamcopyEnd)

	default:
		return fmt.Errorf("%w: plan entry has neither a reencode nor a streamcopy range", core.ErrPlanDegenerate)
	}
}

// writeParameterSetPreamble writes every VPS, SPS, and PPS NAL in
// discovery order.
func writeParameterSetPreamble(w *os.File, scanner *nal.Scanner, idx *stream.Index) error {
	for _, indices := range [][]int{idx.VPSIndices(), idx.SPSIndices(), idx.PPSIndices()} {
		for _, i := range indices {
			n, err := idx.NalAt(i)
			if err != nil {
				return err
			}
			raw, err := scanner.ReadFull(n.FileOffset, n.Size)
			if err != nil {
				return fmt.Errorf("%w: %w", core.ErrIo, err)
			}
			if _, err := w.Write(raw); err != nil {
				return fmt.Errorf("%w: %w", core.ErrIo, err)
			}
		}
	}
	return nil
}

// writeStreamcopyRange copies every NAL belonging to access units
// [start, end] verbatim, in file order.
func writeStreamcopyRange(w *os.File, scanner *nal.Scanner, idx *stream.Index, start, end int) error {
	for f := start; f <= end; f++ {
		au, err := idx.AccessUnitAt(f)
		if err != nil {
			return err
		}
		for _, ni := range au.NalIndices {
			n, err := idx.NalAt(ni)
			if err != nil {
				return err
			}
			raw, err := scanner.ReadFull(n.FileOffset, n.Size)
			if err != nil {
				return fmt.Errorf("%w: %w", core.ErrIo, err)
			}
			if _, err := w.Write(raw); err != nil {
				return fmt.Errorf("%w: %w", core.ErrIo, err)
			}
		}
	}
	return nil
}
