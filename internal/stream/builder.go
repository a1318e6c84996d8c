package stream

import "github.com/jmylchreest/smartcut/internal/nal"

// Builder groups a classified NalUnit array into access units and GOPs.
type Builder struct {
	Units []nal.NalUnit
}

// NewBuilder wraps an already-classified NAL array.
func NewBuilder(units []nal.NalUnit) *Builder {
	return &Builder{Units: units}
}

// BuildResult is the output of Build: access units, GOPs, and the
// discovery-order parameter-set index lists.
type BuildResult struct {
	AccessUnits []AccessUnit
	Gops        []Gop
	SPSIndices  []int
	PPSIndices  []int
	VPSIndices  []int
}

// Build walks the NAL array, declaring an AU boundary at an AUD NAL or at
// a slice NAL with FirstInPicture=true when the in-flight AU already has
// a slice. Parameter sets and SEI preceding a slice belong
// to the AU that follows.
func (b *Builder) Build() BuildResult {
	var result BuildResult
	var pending []int // NAL indices not yet assigned to an AU (param sets, SEI, AUD)
	var current *AccessUnit
	currentHasSlice := false

	flush := func() {
		if current == nil {
			return
		}
		result.AccessUnits = append(result.AccessUnits, *current)
		current = nil
		currentHasSlice = false
	}

	openAU := func() {
		au := AccessUnit{Index: len(result.AccessUnits), NalIndices: append([]int(nil), pending...)}
		pending = pending[:0]
		current = &au
	}

	for i, u := range b.Units {
		switch {
		case u.IsSPS:
			result.SPSIndices = append(result.SPSIndices, i)
			pending = append(pending, i)
		case u.IsPPS:
			result.PPSIndices = append(result.PPSIndices, i)
			pending = append(pending, i)
		case u.IsVPS:
			result.VPSIndices = append(result.VPSIndices, i)
			pending = append(pending, i)
		case u.IsSEI, u.IsFiller:
			pending = append(pending, i)
		case u.IsAUD:
			flush()
			pending = append(pending, i)
		case u.IsSlice:
			if current != nil && currentHasSlice && u.FirstInPicture {
				flush()
			}
			if current == nil {
				openAU()
			}
			current.NalIndices = append(current.NalIndices, i)
			currentHasSlice = true
			if u.IsKeyframe {
				current.IsKeyframe = true
			}
			if u.IsIDR {
				current.IsIDR = true
			}
			if u.FirstInPicture {
				current.SliceType = u.SliceType
			}
		default:
			// Unclassified NAL (e.g. one skipped during classification):
			// attach to whichever AU is open, or hold as pending.
			if current != nil {
				current.NalIndices = append(current.NalIndices, i)
			} else {
				pending = append(pending, i)
			}
		}
	}
	flush()

	// Trailing pending NALs with no following slice (e.g. a truncated
	// stream ending in SEI) form a final AU of their own so no NAL is lost.
	if len(pending) > 0 {
		result.AccessUnits = append(result.AccessUnits, AccessUnit{
			Index:      len(result.AccessUnits),
			NalIndices: append([]int(nil), pending...),
		})
	}

	for i := range result.AccessUnits {
		au := &result.AccessUnits[i]
		first := au.NalIndices[0]
		last := au.NalIndices[len(au.NalIndices)-1]
		au.StartOffset = b.Units[first].FileOffset
		au.EndOffset = b.Units[last].FileOffset + b.Units[last].Size
	}

	b.assignGops(&result)
	return result
}

// assignGops applies the GOP-start rule: a new GOP begins at every
// keyframe-equivalent AU, and the first AU of the file always starts a
// (possibly degenerate, open) GOP even if not a keyframe.
func (b *Builder) assignGops(result *BuildResult) {
	gopIdx := -1
	for i := range result.AccessUnits {
		au := &result.AccessUnits[i]
		startsGop := i == 0 || au.IsKeyframe
		if startsGop {
			gopIdx++
			result.Gops = append(result.Gops, Gop{
				Index:      gopIdx,
				StartAU:    i,
				KeyframeAU: i,
				IsClosed:   au.IsIDR,
			})
		}
		au.GopIndex = gopIdx
		g := &result.Gops[gopIdx]
		g.EndAU = i
		g.FrameCount = g.EndAU - g.StartAU + 1
	}
}
