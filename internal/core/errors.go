// Package core defines the shared error taxonomy used across the cut
// pipeline (scanner, classifier, planner, pipeline, assembler, muxer).
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for the cut pipeline's error taxonomy. Callers compare
// against these with errors.Is; per-NAL and per-segment context is
// attached via NalError/SegmentError below.
var (
	ErrIo                = errors.New("io failure")
	ErrBitstream         = errors.New("bitstream error")
	ErrUnsupportedCodec  = errors.New("unsupported codec")
	ErrNoStream          = errors.New("no access units in stream")
	ErrEmptyKeepList     = errors.New("keep list is empty")
	ErrInvalidKeepList   = errors.New("keep list is invalid")
	ErrPlanDegenerate    = errors.New("cut plan entry is degenerate")
	ErrDecoderInit       = errors.New("decoder initialization failed")
	ErrEncoderInit       = errors.New("encoder initialization failed")
	ErrDecoderStarved    = errors.New("decoder produced fewer frames than expected")
	ErrMuxFailed         = errors.New("external muxer failed")
	ErrMuxTimeout        = errors.New("external muxer timed out")
	ErrAborted           = errors.New("cut job aborted")
	ErrAudioTrimFailed   = errors.New("audio trim failed")
	ErrUnsupportedAudio  = errors.New("unsupported audio codec")
	ErrSubtitleParse     = errors.New("subtitle parse error")
)

// NalError wraps ErrBitstream with the offending NAL's index in the
// stream's NalUnit array, so a skipped NAL can be logged precisely.
type NalError struct {
	Index int
	Err   error
}

func (e *NalError) Error() string {
	return fmt.Sprintf("nal %d: %v", e.Index, e.Err)
}

func (e *NalError) Unwrap() error { return e.Err }

// NewNalError wraps err (typically ErrBitstream) with a NAL index.
func NewNalError(index int, err error) *NalError {
	return &NalError{Index: index, Err: err}
}

// SegmentError wraps a planning or pipeline error with the segment index
// it occurred in.
type SegmentError struct {
	Segment int
	Stage   string
	Err     error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d (%s): %v", e.Segment, e.Stage, e.Err)
}

func (e *SegmentError) Unwrap() error { return e.Err }

// NewSegmentError constructs a SegmentError.
func NewSegmentError(segment int, stage string, err error) *SegmentError {
	return &SegmentError{Segment: segment, Stage: stage, Err: err}
}
