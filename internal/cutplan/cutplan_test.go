package cutplan

import (
	"testing"

	"github.com/jmylchreest/smartcut/internal/core"
	"github.com/jmylchreest/smartcut/internal/nal"
	"github.com/jmylchreest/smartcut/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildIndex synthesizes a classified NAL array of frameCount frames,
// with a keyframe (and IDR) at every index in keyframes, and returns the
// resulting stream.Index.
func buildIndex(t *testing.T, frameCount int, keyframes []int) *stream.Index {
	t.Helper()
	isKey := make(map[int]bool, len(keyframes))
	for _, k := range keyframes {
		isKey[k] = true
	}

	units := []nal.NalUnit{{IsSPS: true}, {IsPPS: true}}
	for f := 0; f < frameCount; f++ {
		units = append(units, nal.NalUnit{IsAUD: true})
		u := nal.NalUnit{IsSlice: true, FirstInPicture: true}
		if isKey[f] {
			u.IsKeyframe = true
			u.IsIDR = true
			u.SliceType = nal.SliceI
		} else {
			u.SliceType = nal.SliceP
		}
		units = append(units, u)
	}
	var off int64
	for i := range units {
		units[i].FileOffset = off
		units[i].Size = 10
		units[i].StartCodeLen = 4
		off += 10
	}

	idx, err := stream.Build(units, nal.CodecH264, stream.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestPlanAlignedCutOnly(t *testing.T) {
	idx := buildIndex(t, 1000, []int{0, 250, 500, 750})
	entries, err := Plan(KeepList{{Start: 250, End: 499}}, idx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.False(t, e.HasReencode)
	require.True(t, e.HasStreamcopy)
	assert.Equal(t, 250, e.StreamcopyStart)
	assert.Equal(t, 499, e.StreamcopyEnd)
}

func TestPlanUnalignedCutInEntireSegmentReencoded(t *testing.T) {
	idx := buildIndex(t, 1000, []int{0, 250, 500, 750})
	entries, err := Plan(KeepList{{Start: 260, End: 499}}, idx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	require.True(t, e.HasReencode)
	assert.Equal(t, 260, e.ReencodeStart)
	assert.Equal(t, 499, e.ReencodeEnd)
	assert.False(t, e.HasStreamcopy)
}

func TestPlanUnalignedWithInternalKeyframe(t *testing.T) {
	idx := buildIndex(t, 1000, []int{0, 250, 500, 750})
	entries, err := Plan(KeepList{{Start: 260, End: 800}}, idx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	require.True(t, e.HasReencode)
	assert.Equal(t, 260, e.ReencodeStart)
	assert.Equal(t, 499, e.ReencodeEnd)
	require.True(t, e.HasStreamcopy)
	assert.Equal(t, 500, e.StreamcopyStart)
	assert.Equal(t, 800, e.StreamcopyEnd)
}

func TestPlanTwoSegmentsSameGop(t *testing.T) {
	idx := buildIndex(t, 1000, []int{0, 250, 500, 750})
	entries, err := Plan(KeepList{{Start: 100, End: 200}, {Start: 220, End: 300}}, idx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	seg1 := entries[0]
	require.True(t, seg1.HasReencode)
	assert.Equal(t, 100, seg1.ReencodeStart)
	assert.Equal(t, 200, seg1.ReencodeEnd)
	assert.False(t, seg1.HasStreamcopy)

	seg2 := entries[1]
	require.True(t, seg2.HasReencode)
	assert.Equal(t, 220, seg2.ReencodeStart)
	assert.Equal(t, 249, seg2.ReencodeEnd)
	require.True(t, seg2.HasStreamcopy)
	assert.Equal(t, 250, seg2.StreamcopyStart)
	assert.Equal(t, 300, seg2.StreamcopyEnd)
}

func TestPlanRejectsOverlappingKeepList(t *testing.T) {
	idx := buildIndex(t, 1000, []int{0, 250, 500, 750})
	_, err := Plan(KeepList{{Start: 100, End: 260}, {Start: 200, End: 300}}, idx)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidKeepList)
}

func TestPlanOverlapAvoidanceBackfillsGap(t *testing.T) {
	// Only keyframes at 0 and 250; nothing beyond, so any keep-pair
	// landing past 250 has no keyframe ahead to stream-copy from on its
	// own and must splice onto the previous entry's anchor instead.
	idx := buildIndex(t, 301, []int{0, 250})
	entries, err := Plan(KeepList{{Start: 100, End: 260}, {Start: 255, End: 300}}, idx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	seg1 := entries[0]
	require.True(t, seg1.HasStreamcopy)
	assert.Equal(t, 250, seg1.StreamcopyStart)
	assert.Equal(t, 260, seg1.StreamcopyEnd)

	seg2 := entries[1]
	require.True(t, seg2.HasReencode)
	assert.Equal(t, 255, seg2.ReencodeStart)
	assert.Equal(t, 260, seg2.ReencodeEnd)
	require.True(t, seg2.HasStreamcopy)
	assert.Equal(t, 261, seg2.StreamcopyStart)
	assert.Equal(t, 300, seg2.StreamcopyEnd)
}

func TestKeepListValidateEmptyRejected(t *testing.T) {
	err := KeepList{}.Validate(100)
	require.Error(t, err)
}
