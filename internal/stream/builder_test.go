package stream

import (
	"testing"

	"github.com/jmylchreest/smartcut/internal/nal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// synthUnits builds a minimal classified NAL array: SPS, PPS, then for
// each of keyframeAt a slice marked keyframe, else a P slice, each
// preceded by an AUD.
func synthUnits(frameIsKey []bool) []nal.NalUnit {
	units := []nal.NalUnit{
		{IsSPS: true},
		{IsPPS: true},
	}
	for _, key := range frameIsKey {
		units = append(units, nal.NalUnit{IsAUD: true})
		u := nal.NalUnit{IsSlice: true, FirstInPicture: true, IsKeyframe: key, IsIDR: key}
		if key {
			u.SliceType = nal.SliceI
		} else {
			u.SliceType = nal.SliceP
		}
		units = append(units, u)
	}
	// Backfill FileOffset/Size so EndOffset math is meaningful.
	var off int64
	for i := range units {
		units[i].FileOffset = off
		units[i].Size = 10
		units[i].StartCodeLen = 4
		off += 10
	}
	return units
}

func TestBuildAccessUnitsAndGops(t *testing.T) {
	units := synthUnits([]bool{true, false, false, true, false})
	result := NewBuilder(units).Build()

	require.Len(t, result.AccessUnits, 5)
	assert.True(t, result.AccessUnits[0].IsKeyframe)
	assert.False(t, result.AccessUnits[1].IsKeyframe)
	assert.True(t, result.AccessUnits[3].IsKeyframe)

	// GOP sanity: gop_index[i] in {gop_index[i-1], gop_index[i-1]+1},
	// transitions occur iff AU i is a keyframe.
	for i := 1; i < len(result.AccessUnits); i++ {
		prev := result.AccessUnits[i-1].GopIndex
		cur := result.AccessUnits[i].GopIndex
		assert.Contains(t, []int{prev, prev + 1}, cur)
		if cur == prev+1 {
			assert.True(t, result.AccessUnits[i].IsKeyframe)
		}
	}

	require.Len(t, result.Gops, 2)
	assert.Equal(t, 0, result.Gops[0].StartAU)
	assert.Equal(t, 2, result.Gops[0].EndAU)
	assert.Equal(t, 3, result.Gops[1].StartAU)
	assert.Equal(t, 4, result.Gops[1].EndAU)
}

func TestBuildFirstAUIsDegenerateGopWhenNotKeyframe(t *testing.T) {
	units := synthUnits([]bool{false, false, true})
	result := NewBuilder(units).Build()
	require.Len(t, result.Gops, 2)
	assert.Equal(t, 0, result.Gops[0].StartAU)
	assert.False(t, result.AccessUnits[0].IsKeyframe)
}

func TestAUCoverageNoOverlap(t *testing.T) {
	units := synthUnits([]bool{true, false, true, false})
	result := NewBuilder(units).Build()
	for i := 1; i < len(result.AccessUnits); i++ {
		assert.LessOrEqual(t, result.AccessUnits[i-1].EndOffset, result.AccessUnits[i].StartOffset)
	}
}
