package sidecar

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleInfo = `# generated by vdr
[info]
frame_rate=25.0
av_offset_ms=-40
audio_0_file=Show_deu.ac3
audio_0_codec=ac3
audio_1_file=Show_eng.ac3
audio_1_codec=ac3

unknown_key=kept but unused
`

func TestParseRecognisedKeys(t *testing.T) {
	info, err := Parse(strings.NewReader(sampleInfo))
	require.NoError(t, err)

	require.Equal(t, 25.0, info.FrameRate)
	require.Equal(t, -40, info.AVOffsetMs)
	require.Len(t, info.AudioStreams, 2)
	require.Equal(t, AudioStream{Index: 0, File: "Show_deu.ac3", Codec: "ac3"}, info.AudioStreams[0])
	require.Equal(t, AudioStream{Index: 1, File: "Show_eng.ac3", Codec: "ac3"}, info.AudioStreams[1])
}

func TestParsePreservesUnknownKeys(t *testing.T) {
	info, err := Parse(strings.NewReader(sampleInfo))
	require.NoError(t, err)
	require.Equal(t, "kept but unused", info.Raw["unknown_key"])
}

func TestParseIgnoresCommentAndSectionLines(t *testing.T) {
	info, err := Parse(strings.NewReader("# comment\n[section]\nframe_rate=30\n"))
	require.NoError(t, err)
	require.Equal(t, 30.0, info.FrameRate)
	_, hasComment := info.Raw["# comment"]
	require.False(t, hasComment)
}

func TestParseStopsAudioNumberingAtFirstGap(t *testing.T) {
	// audio_2_* present but audio_1_* missing: only index 0 is
	// contiguous from N=0, so the stream list stops there.
	in := "audio_0_file=a.ac3\naudio_0_codec=ac3\naudio_2_file=c.ac3\naudio_2_codec=ac3\n"
	info, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, info.AudioStreams, 1)
	require.Equal(t, 0, info.AudioStreams[0].Index)
}

func TestPathForStripsVideoSuffix(t *testing.T) {
	require.Equal(t, "/tmp/Show.info", PathFor("/tmp/Show_video.264"))
	require.Equal(t, "/tmp/Show.info", PathFor("/tmp/Show.264"))
}
