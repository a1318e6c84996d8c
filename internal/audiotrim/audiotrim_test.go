package audiotrim

import (
	"context"
	"testing"

	"github.com/jmylchreest/smartcut/internal/cutplan"
	"github.com/stretchr/testify/assert"
)

func TestCodecFromExt(t *testing.T) {
	assert.Equal(t, CodecAC3, CodecFromExt(".ac3"))
	assert.Equal(t, CodecMP2, CodecFromExt("mp2"))
	assert.Equal(t, CodecMP2, CodecFromExt(".mpa"))
	assert.Equal(t, CodecMP3, CodecFromExt(".MP3"))
	assert.Equal(t, CodecAAC, CodecFromExt(".aac"))
	assert.Equal(t, CodecUnknown, CodecFromExt(".wav"))
}

func TestCodecBitrates(t *testing.T) {
	assert.Equal(t, "384k", CodecAC3.bitrate())
	assert.Equal(t, "384k", CodecMP2.bitrate())
	assert.Equal(t, "256k", CodecMP3.bitrate())
	assert.Equal(t, "256k", CodecAAC.bitrate())
	assert.Equal(t, "ac3", CodecAC3.ffmpegName())
	assert.Equal(t, "libmp3lame", CodecMP3.ffmpegName())
}

func TestKeepRangeSecondsFloorsCutOut(t *testing.T) {
	// 25fps, frames 0..24 (one second exactly) -> end should floor to
	// 1.000, not overshoot past the 25th frame's boundary.
	start, end := keepRangeSeconds(cutplan.KeepPair{Start: 0, End: 24}, 25.0)
	assert.Equal(t, 0.0, start)
	assert.InDelta(t, 1.0, end, 1e-9)

	// 23.976fps: (10+1)/23.976 floored to ms precision must not exceed
	// the true boundary.
	_, end2 := keepRangeSeconds(cutplan.KeepPair{Start: 5, End: 10}, 23.976)
	exact := float64(11) / 23.976
	assert.LessOrEqual(t, end2, exact)
}

func TestBuildFilterGraphSingleRange(t *testing.T) {
	kl := cutplan.KeepList{{Start: 0, End: 24}}
	graph := buildFilterGraph(kl, 25.0)
	assert.Contains(t, graph, "atrim=start=0.000:end=1.000")
	assert.Contains(t, graph, "concat=n=1:v=0:a=1[outa]")
}

func TestBuildFilterGraphMultipleRangesConcatInOrder(t *testing.T) {
	kl := cutplan.KeepList{{Start: 0, End: 24}, {Start: 50, End: 74}}
	graph := buildFilterGraph(kl, 25.0)
	assert.Contains(t, graph, "[a0]")
	assert.Contains(t, graph, "[a1]")
	assert.Contains(t, graph, "[a0][a1]concat=n=2:v=0:a=1[outa]")
}

func TestTrimRejectsUnknownCodec(t *testing.T) {
	err := Trim(context.Background(), Options{InputPath: "x.wav", Codec: CodecUnknown}, "out.ac3")
	assert.Error(t, err)
}

func TestTrimRejectsEmptyKeepList(t *testing.T) {
	err := Trim(context.Background(), Options{InputPath: "x.ac3", Codec: CodecAC3}, "out.ac3")
	assert.Error(t, err)
}
