// Package stream builds access units and GOPs from a classified NAL
// sequence and provides the random-access StreamIndex used by the cut
// planner and output assembler.
package stream

import "github.com/jmylchreest/smartcut/internal/nal"

// AccessUnit is one coded picture.
type AccessUnit struct {
	Index       int
	NalIndices  []int
	StartOffset int64
	EndOffset   int64
	IsKeyframe  bool
	IsIDR       bool
	SliceType   nal.SliceType
	GopIndex    int
}

// Gop is a run of access units beginning at a keyframe.
type Gop struct {
	Index       int
	StartAU     int
	EndAU       int
	KeyframeAU  int
	FrameCount  int
	IsClosed    bool
}
