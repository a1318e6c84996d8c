// Package nal implements the Annex-B NAL-unit scanner and classifier:
// locating start codes across a file and parsing NAL headers and opening
// slice-header bits for H.264/AVC and H.265/HEVC.
package nal

// Codec identifies the elementary stream's video codec.
type Codec int

const (
	CodecUnknown Codec = iota
	CodecH264
	CodecH265
)

func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecH265:
		return "h265"
	default:
		return "unknown"
	}
}

// SliceType buckets a slice NAL's coding type.
type SliceType int

const (
	SliceUnknown SliceType = iota
	SliceP
	SliceB
	SliceI
)

func (s SliceType) String() string {
	switch s {
	case SliceP:
		return "P"
	case SliceB:
		return "B"
	case SliceI:
		return "I"
	default:
		return "?"
	}
}

// NalUnit is a single parsed NAL unit.
//
// Invariant: PayloadOffset == FileOffset + StartCodeLen, StartCodeLen in {3,4}.
type NalUnit struct {
	FileOffset    int64
	PayloadOffset int64
	Size          int64 // bytes from FileOffset through end of RBSP, before the next start code
	StartCodeLen  int

	NalType    int
	LayerID    int
	RefIdc     int // H.264 nal_ref_idc
	TemporalID int // H.265 only; 0 for H.264

	IsSlice  bool
	IsSPS    bool
	IsPPS    bool
	IsVPS    bool
	IsSEI    bool
	IsAUD    bool
	IsFiller bool

	// Slice-specific fields, valid only when IsSlice.
	SliceType       SliceType
	FirstInPicture  bool
	PPSID           int
	IsKeyframe      bool // I-slice or IDR/CRA/BLA
	IsIDR           bool // strict: IDR only
}

// PayloadSize returns the RBSP length (Size minus the start code).
func (n NalUnit) PayloadSize() int64 {
	return n.Size - int64(n.StartCodeLen)
}

// EndOfSequence returns a complete Annex-B end-of-sequence NAL (H.264
// type 10, H.265 type 36) for the given codec, start code included.
// Writing one between segments forces a decoder DPB flush so reference
// frames from one segment can't leak into the next segment's output.
func EndOfSequence(codec Codec) []byte {
	if codec == CodecH265 {
		// 2-byte NAL header: forbidden_zero_bit=0, nal_unit_type=36,
		// nuh_layer_id=0, nuh_temporal_id_plus1=1.
		return []byte{0x00, 0x00, 0x00, 0x01, 0x48, 0x01}
	}
	// 1-byte NAL header: forbidden_zero_bit=0, nal_ref_idc=0, nal_unit_type=10.
	return []byte{0x00, 0x00, 0x00, 0x01, 0x0a}
}
