package nal

import (
	"github.com/jmylchreest/smartcut/internal/bitio"
)

// H.264 nal_unit_type values.
const (
	h264TypeSliceNonIDR = 1
	h264TypeSliceIDR    = 5
	h264TypeSEI         = 6
	h264TypeSPS         = 7
	h264TypePPS         = 8
	h264TypeAUD         = 9
	h264TypeEOS         = 10
	h264TypeFiller      = 12
)

// classifyH264 parses the 1-byte H.264 NAL header and, for slice NALs,
// the opening slice-header bits.
func classifyH264(n *NalUnit, head []byte) error {
	if len(head) < 1 {
		return errHeaderTooShort
	}
	b := head[0]
	// forbidden_zero_bit(1), nal_ref_idc(2), nal_unit_type(5)
	n.RefIdc = int((b >> 5) & 0x03)
	n.NalType = int(b & 0x1F)

	switch n.NalType {
	case h264TypeSliceNonIDR, h264TypeSliceIDR:
		n.IsSlice = true
		n.IsIDR = n.NalType == h264TypeSliceIDR
	case h264TypeSEI:
		n.IsSEI = true
	case h264TypeSPS:
		n.IsSPS = true
	case h264TypePPS:
		n.IsPPS = true
	case h264TypeAUD:
		n.IsAUD = true
	case h264TypeFiller:
		n.IsFiller = true
	}

	if !n.IsSlice {
		return nil
	}

	rbsp := head[1:]
	if len(rbsp) == 0 {
		return errHeaderTooShort
	}
	r := bitio.NewReader(rbsp)
	firstMB, err := r.ReadUE()
	if err != nil {
		return err
	}
	sliceTypeRaw, err := r.ReadUE()
	if err != nil {
		return err
	}
	n.FirstInPicture = firstMB == 0

	st := sliceTypeRaw % 5
	switch st {
	case 0, 3:
		n.SliceType = SliceP
	case 1:
		n.SliceType = SliceB
	case 2, 4:
		n.SliceType = SliceI
	default:
		n.SliceType = SliceUnknown
	}

	n.IsKeyframe = n.IsIDR || n.SliceType == SliceI
	return nil
}
