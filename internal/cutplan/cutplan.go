// Package cutplan turns a KeepList into an ordered CutPlanEntry sequence
// against a stream.Index, deciding per keep-pair whether the cut-in point
// lands on an existing keyframe (stream-copy) or needs a decode/re-encode
// bridge. The cut-out point is not checked against keyframe positions.
package cutplan

import (
	"fmt"

	"github.com/jmylchreest/smartcut/internal/core"
	"github.com/jmylchreest/smartcut/internal/stream"
)

// KeepPair is one (start_frame, end_frame) range in display order,
// inclusive on both ends.
type KeepPair struct {
	Start int
	End   int
}

// KeepList is an ordered, non-overlapping sequence of KeepPair in
// ascending order.
type KeepList []KeepPair

// Validate checks the KeepList invariant: 0 <= start_i <= end_i <
// frame_count and end_i < start_{i+1}.
func (kl KeepList) Validate(frameCount int) error {
	if len(kl) == 0 {
		return core.ErrEmptyKeepList
	}
	prevEnd := -1
	for i, p := range kl {
		if p.Start < 0 || p.End < p.Start || p.End >= frameCount {
			return fmt.Errorf("%w: pair %d (%d,%d) out of range [0,%d)", core.ErrInvalidKeepList, i, p.Start, p.End, frameCount)
		}
		if p.Start <= prevEnd {
			return fmt.Errorf("%w: pair %d starts at %d, overlapping previous end %d", core.ErrInvalidKeepList, i, p.Start, prevEnd)
		}
		prevEnd = p.End
	}
	return nil
}

// CutPlanEntry is a per-segment plan record.
// Exactly one of the reencode/streamcopy ranges may be absent; if both
// are present, StreamcopyStart must equal ReencodeEnd+1 and
// StreamcopyStart must land on a keyframe.
type CutPlanEntry struct {
	SegmentStart int
	SegmentEnd   int

	HasReencode   bool
	ReencodeStart int
	ReencodeEnd   int

	HasStreamcopy   bool
	StreamcopyStart int
	StreamcopyEnd   int

	CutInGop  int
	CutOutGop int

	NeedsReencodeAtStart bool
	NeedsReencodeAtEnd   bool
}

// Plan builds the ordered CutPlanEntry array for keepList against idx,
// resolving each keep-pair to a stream-copy span, a re-encode span, or
// both.
func Plan(keepList KeepList, idx *stream.Index) ([]CutPlanEntry, error) {
	frameCount := idx.FrameCount()
	if err := keepList.Validate(frameCount); err != nil {
		return nil, err
	}

	entries := make([]CutPlanEntry, 0, len(keepList))
	for i, pair := range keepList {
		entry, err := planOne(idx, pair, frameCount)
		if err != nil {
			return nil, fmt.Errorf("keep-pair %d: %w", i, err)
		}

		if i > 0 {
			spliceIntoPriorGop(idx, &entry, entries[i-1])
			applyOverlapAvoidance(&entry, entries[i-1])
		}

		entries = append(entries, entry)
	}
	return entries, nil
}

// spliceIntoPriorGop handles the case where S has no reachable keyframe
// ahead of it within the segment (so planOne fell back to "reencode the
// entire segment"), but S's own GOP start is a keyframe already being
// stream-copied by the previous entry (two keep-pairs landing in the
// same tail GOP). Rather than re-encode the whole
// span, splice onto the previous entry's stream-copy anchor; the
// resulting overlap is then resolved by applyOverlapAvoidance.
func spliceIntoPriorGop(idx *stream.Index, entry *CutPlanEntry, prev CutPlanEntry) {
	if entry.HasStreamcopy || !entry.HasReencode || entry.ReencodeStart != entry.SegmentStart {
		return
	}
	if !prev.HasStreamcopy {
		return
	}
	gopStart := idx.KeyframeAtOrBefore(entry.SegmentStart)
	if gopStart == -1 || gopStart == entry.SegmentStart {
		return
	}
	if gopStart < prev.StreamcopyStart || gopStart > prev.StreamcopyEnd {
		return
	}

	entry.HasStreamcopy = true
	entry.StreamcopyStart = gopStart
	entry.StreamcopyEnd = entry.SegmentEnd
	entry.HasReencode = false
	entry.ReencodeStart = 0
	entry.ReencodeEnd = 0
}

// applyOverlapAvoidance implements step 5: when two keep-pairs land in
// the same GOP region, the later entry's stream-copy start is pushed
// past the earlier entry's stream-copy end so no frame is written twice.
// Any resulting coverage gap between the segment's own start and the
// pushed-forward stream-copy start is backfilled with a re-encode range,
// since frame coverage must remain complete.
func applyOverlapAvoidance(entry *CutPlanEntry, prev CutPlanEntry) {
	if !entry.HasStreamcopy || !prev.HasStreamcopy {
		return
	}
	if entry.StreamcopyStart > prev.StreamcopyEnd {
		return
	}

	newStart := prev.StreamcopyEnd + 1
	if newStart > entry.StreamcopyEnd {
		// The whole stream-copy range was consumed by the overlap;
		// the segment must be re-encoded entirely.
		entry.HasStreamcopy = false
		entry.HasReencode = true
		entry.ReencodeStart = entry.SegmentStart
		entry.ReencodeEnd = entry.SegmentEnd
		entry.NeedsReencodeAtEnd = true
		return
	}

	gapStart := entry.SegmentStart
	gapEnd := newStart - 1
	if gapEnd >= gapStart && (!entry.HasReencode || entry.ReencodeEnd < entry.ReencodeStart) {
		entry.HasReencode = true
		entry.ReencodeStart = gapStart
		entry.ReencodeEnd = gapEnd
		entry.NeedsReencodeAtEnd = true
	}
	entry.StreamcopyStart = newStart
}

// planOne implements the cut-in/cut-out classification and tie-break rule
// for a single keep-pair.
func planOne(idx *stream.Index, pair KeepPair, frameCount int) (CutPlanEntry, error) {
	s, e := pair.Start, pair.End
	if s < 0 {
		s = 0
	}
	if e >= frameCount {
		e = frameCount - 1
	}

	entry := CutPlanEntry{SegmentStart: s, SegmentEnd: e}

	startAU, err := idx.AccessUnitAt(s)
	if err != nil {
		return entry, err
	}
	cutInGop, err := idx.GopFor(s)
	if err != nil {
		return entry, err
	}
	entry.CutInGop = cutInGop.Index

	endGop, err := idx.GopFor(e)
	if err != nil {
		return entry, err
	}
	entry.CutOutGop = endGop.Index

	// Step 2: is S itself an aligned cut-in?
	// Tie-break: a keyframe-equivalent that is not a strict IDR (e.g. an
	// H.265 CRA/BLA) is not accepted as an aligned cut-in, since stream-
	// copying from it would require RASL handling that is out of scope.
	if startAU.IsKeyframe && startAU.IsIDR && idx.KeyframeAtOrBefore(s) == s {
		entry.HasStreamcopy = true
		entry.StreamcopyStart = s
		entry.StreamcopyEnd = e
		return entry, nil
	}

	entry.NeedsReencodeAtStart = true

	// Step 3: prefer an IDR at or after S+1, falling back to any
	// keyframe; either must land at or before E to be usable.
	kAfter := -1
	if s+1 <= e {
		if idrAfter := idx.IdrAtOrAfter(s + 1); idrAfter != -1 && idrAfter <= e {
			kAfter = idrAfter
		} else if anyAfter := idx.KeyframeAtOrAfter(s + 1); anyAfter != -1 && anyAfter <= e {
			kAfter = anyAfter
		}
	}

	if kAfter == -1 {
		// Fallback: no reachable keyframe inside the segment, so the
		// entire span must be re-encoded.
		entry.HasReencode = true
		entry.ReencodeStart = s
		entry.ReencodeEnd = e
		return entry, nil
	}

	// Step 4: the common case.
	entry.HasReencode = true
	entry.ReencodeStart = s
	entry.ReencodeEnd = kAfter - 1
	entry.HasStreamcopy = true
	entry.StreamcopyStart = kAfter
	entry.StreamcopyEnd = e
	return entry, nil
}
