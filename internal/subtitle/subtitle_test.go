package subtitle

import (
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/smartcut/internal/cutplan"
	"github.com/stretchr/testify/require"
)

const sampleSRT = `1
00:00:01,000 --> 00:00:04,000
Hello there

2
00:00:05,500 --> 00:00:08,250
General Kenobi
You are a bold one

3
00:00:20,000 --> 00:00:22,000
Too late for this range
`

func TestParseSRT(t *testing.T) {
	cues, err := ParseSRT(strings.NewReader(sampleSRT))
	require.NoError(t, err)
	require.Len(t, cues, 3)

	require.Equal(t, 1, cues[0].Index)
	require.Equal(t, time.Second, cues[0].Start)
	require.Equal(t, 4*time.Second, cues[0].End)
	require.Equal(t, []string{"Hello there"}, cues[0].Text)

	require.Equal(t, []string{"General Kenobi", "You are a bold one"}, cues[1].Text)
	require.Equal(t, 5*time.Second+500*time.Millisecond, cues[1].Start)
}

func TestParseSRTLatin1Fallback(t *testing.T) {
	// 0xE9 is Latin-1 'é', invalid as a standalone UTF-8 byte.
	raw := []byte("1\n00:00:00,000 --> 00:00:01,000\nCaf\xE9\n\n")
	cues, err := ParseSRT(strings.NewReader(string(raw)))
	require.NoError(t, err)
	require.Len(t, cues, 1)
	require.Equal(t, "Café", cues[0].Text[0])
}

func TestTrimRoundTripWhenKeepingWholeDuration(t *testing.T) {
	cues, err := ParseSRT(strings.NewReader(sampleSRT))
	require.NoError(t, err)

	trimmed := Trim(cues, []KeepRange{{Start: 0, End: 30 * time.Second}})
	require.Len(t, trimmed, 3)
	for i, c := range trimmed {
		require.Equal(t, i+1, c.Index)
		require.Equal(t, cues[i].Start, c.Start)
		require.Equal(t, cues[i].End, c.End)
	}
}

func TestTrimDropsCuesOutsideKeepRange(t *testing.T) {
	cues, err := ParseSRT(strings.NewReader(sampleSRT))
	require.NoError(t, err)

	// Keep only [0s, 10s): drops cue 3 (starts at 20s).
	trimmed := Trim(cues, []KeepRange{{Start: 0, End: 10 * time.Second}})
	require.Len(t, trimmed, 2)
	require.Equal(t, 1, trimmed[0].Index)
	require.Equal(t, 2, trimmed[1].Index)
}

func TestTrimClampsAndSplitsCueSpanningACut(t *testing.T) {
	cues := []Cue{
		{Index: 1, Start: 8 * time.Second, End: 12 * time.Second, Text: []string{"spans the cut"}},
	}
	// Two kept ranges: [0,10) and [10,20) with a gap removed in between
	// would be represented as two adjacent KeepRanges in the output
	// timeline; here we keep [0,10) and [11,20) to simulate a genuine
	// cut inside the cue's span.
	ranges := []KeepRange{
		{Start: 0, End: 10 * time.Second},
		{Start: 11 * time.Second, End: 20 * time.Second},
	}
	out := Trim(cues, ranges)
	require.Len(t, out, 2)

	require.Equal(t, 1, out[0].Index)
	require.Equal(t, 8*time.Second, out[0].Start)
	require.Equal(t, 10*time.Second, out[0].End)

	// Second fragment rebased: clamped start = max(8s,11s)=11s, minus
	// kr.Start(11s) = 0, plus priorDuration (10s from first range) = 10s.
	require.Equal(t, 2, out[1].Index)
	require.Equal(t, 10*time.Second, out[1].Start)
	// Clamped end = min(12s,20s)=12s, minus kr.Start(11s) = 1s, plus
	// priorDuration 10s = 11s.
	require.Equal(t, 11*time.Second, out[1].End)
}

func TestWriteSRTRoundTrip(t *testing.T) {
	cues, err := ParseSRT(strings.NewReader(sampleSRT))
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, WriteSRT(&buf, cues))

	reparsed, err := ParseSRT(strings.NewReader(buf.String()))
	require.NoError(t, err)
	require.Equal(t, cues, reparsed)
}

func TestKeepRangesFromFrames(t *testing.T) {
	kl := cutplan.KeepList{{Start: 0, End: 24}, {Start: 50, End: 74}}
	ranges := KeepRangesFromFrames(kl, 25.0)
	require.Len(t, ranges, 2)
	require.Equal(t, time.Duration(0), ranges[0].Start)
	require.Equal(t, time.Second, ranges[0].End)
	require.Equal(t, 2*time.Second, ranges[1].Start)
	require.Equal(t, 3*time.Second, ranges[1].End)
}
