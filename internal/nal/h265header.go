package nal

import (
	"github.com/jmylchreest/smartcut/internal/bitio"
)

// H.265 nal_unit_type values.
const (
	h265TypeTrailN  = 0
	h265TypeTSAN    = 2
	h265TypeSTSAN   = 4
	h265TypeRADLN   = 6
	h265TypeRASLN   = 8
	h265TypeBLAWLP  = 16
	h265TypeBLAWRDL = 17
	h265TypeBLANLP  = 18
	h265TypeIDRWRDL = 19
	h265TypeIDRNLP  = 20
	h265TypeCRANUT  = 21
	h265TypeVPS     = 32
	h265TypeSPS     = 33
	h265TypePPS     = 34
	h265TypeAUD     = 35
	h265TypeEOS     = 36
	h265TypeFillerH = 38
	h265TypeSEIPre  = 39
	h265TypeSEISuf  = 40
)

func isH265VCL(nalType int) bool { return nalType <= 31 }

func isH265IDR(nalType int) bool {
	return nalType == h265TypeIDRWRDL || nalType == h265TypeIDRNLP
}

func isH265Keyframe(nalType int) bool {
	switch nalType {
	case h265TypeIDRWRDL, h265TypeIDRNLP, h265TypeCRANUT,
		h265TypeBLAWLP, h265TypeBLAWRDL, h265TypeBLANLP:
		return true
	default:
		return false
	}
}

// classifyH265 parses the 2-byte H.265 NAL header and, for slice NALs, the
// opening slice-header bits.
func classifyH265(n *NalUnit, head []byte) error {
	if len(head) < 2 {
		return errHeaderTooShort
	}
	// forbidden_zero_bit(1), nal_unit_type(6), nuh_layer_id(6), nuh_temporal_id_plus1(3)
	b0, b1 := head[0], head[1]
	nalType := int((b0 >> 1) & 0x3F)
	layerID := int((b0&0x01)<<5) | int((b1>>3)&0x1F)
	tidPlus1 := int(b1 & 0x07)

	n.NalType = nalType
	n.LayerID = layerID
	n.TemporalID = tidPlus1 - 1

	switch {
	case isH265VCL(nalType):
		n.IsSlice = true
		n.IsIDR = isH265IDR(nalType)
	case nalType == h265TypeVPS:
		n.IsVPS = true
	case nalType == h265TypeSPS:
		n.IsSPS = true
	case nalType == h265TypePPS:
		n.IsPPS = true
	case nalType == h265TypeAUD:
		n.IsAUD = true
	case nalType == h265TypeFillerH:
		n.IsFiller = true
	case nalType == h265TypeSEIPre || nalType == h265TypeSEISuf:
		n.IsSEI = true
	}

	if !n.IsSlice {
		return nil
	}

	rbsp := head[2:]
	if len(rbsp) == 0 {
		return errHeaderTooShort
	}
	r := bitio.NewReader(rbsp)

	firstSlice, err := r.ReadU(1)
	if err != nil {
		return err
	}
	n.FirstInPicture = firstSlice == 1

	isRAP := isH265Keyframe(nalType)
	if isRAP {
		if _, err := r.ReadU(1); err != nil { // no_output_of_prior_pics_flag
			return err
		}
	}
	ppsID, err := r.ReadUE()
	if err != nil {
		return err
	}
	n.PPSID = int(ppsID)

	n.IsKeyframe = isH265Keyframe(nalType)

	if n.FirstInPicture {
		// For the first slice of a picture, trust slice_type values 0-2
		// (B=0, P=1, I=2).
		st, err := r.ReadUE()
		if err == nil {
			switch st {
			case 0:
				n.SliceType = SliceB
			case 1:
				n.SliceType = SliceP
			case 2:
				n.SliceType = SliceI
			default:
				n.SliceType = SliceUnknown
			}
			return nil
		}
		// Fall through to the heuristic below if the header bits ran out.
	}

	// Dependent slice, or a truncated first-slice read: apply the
	// NAL-type heuristic below.
	switch {
	case isH265Keyframe(nalType):
		n.SliceType = SliceI
	case nalType == h265TypeRASLN || nalType == h265TypeRADLN ||
		nalType == h265TypeTrailN || nalType == h265TypeTSAN || nalType == h265TypeSTSAN:
		n.SliceType = SliceB
	default:
		n.SliceType = SliceP
	}
	return nil
}
