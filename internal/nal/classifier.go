package nal

import (
	"errors"
	"fmt"

	"github.com/jmylchreest/smartcut/internal/core"
)

var errHeaderTooShort = errors.New("nal header truncated")

// maxHeaderPeek bounds how many RBSP bytes we read per NAL for
// classification; slice headers never need more than a handful of bytes.
const maxHeaderPeek = 32

// Classify parses the NAL header (and, for slices, the opening
// slice-header bits) for every unit in units, in place. A NAL whose
// header cannot be parsed is wrapped in a *core.NalError and skipped
// (left with NalType == 0 / no category flags) so that a single
// corrupt unit does not abort the whole parse.
func Classify(scanner *Scanner, codec Codec, units []NalUnit) []error {
	var warnings []error
	for i := range units {
		head, err := scanner.ReadPayloadHead(units[i], maxHeaderPeek)
		if err != nil {
			warnings = append(warnings, core.NewNalError(i, err))
			continue
		}
		var classifyErr error
		switch codec {
		case CodecH264:
			classifyErr = classifyH264(&units[i], head)
		case CodecH265:
			classifyErr = classifyH265(&units[i], head)
		default:
			classifyErr = fmt.Errorf("%w: unknown codec", core.ErrUnsupportedCodec)
		}
		if classifyErr != nil {
			warnings = append(warnings, core.NewNalError(i, fmt.Errorf("%w: %w", core.ErrBitstream, classifyErr)))
		}
	}
	return warnings
}

// DetectCodec sniffs the codec from the first few NAL units. It tries an
// H.264 header interpretation and an H.265 header interpretation against
// the first handful of units and picks whichever yields plausible NAL
// types; returns ErrUnsupportedCodec if neither is plausible.
func DetectCodec(scanner *Scanner, units []NalUnit) (Codec, error) {
	limit := len(units)
	if limit > 8 {
		limit = 8
	}
	for i := 0; i < limit; i++ {
		head, err := scanner.ReadPayloadHead(units[i], 2)
		if err != nil || len(head) == 0 {
			continue
		}
		// H.264: forbidden_zero_bit must be 0.
		h264Plausible := head[0]&0x80 == 0 && int(head[0]&0x1F) <= 21
		// H.265: forbidden_zero_bit must be 0 and nal_unit_type <= 63 (always true for 6 bits).
		h265Plausible := len(head) >= 2 && head[0]&0x80 == 0

		h264Type := int(head[0] & 0x1F)
		if h264Plausible && (h264Type == h264TypeSPS || h264Type == h264TypeSliceIDR || h264Type == h264TypeSliceNonIDR) {
			return CodecH264, nil
		}
		if h265Plausible && len(head) >= 2 {
			h265Type := int((head[0] >> 1) & 0x3F)
			if h265Type == h265TypeVPS || h265Type == h265TypeSPS || isH265Keyframe(h265Type) || isH265VCL(h265Type) {
				return CodecH265, nil
			}
		}
	}
	return CodecUnknown, fmt.Errorf("%w: first NAL is neither recognisably H.264 nor H.265", core.ErrUnsupportedCodec)
}
