package job

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/smartcut/internal/config"
	"github.com/jmylchreest/smartcut/internal/core"
	"github.com/jmylchreest/smartcut/internal/cutplan"
)

// sliceRBSP packs first_mb_in_slice=0 and the given slice_type as
// Exp-Golomb ue(v) bits into a single RBSP byte.
func sliceRBSP(sliceType byte) byte {
	if sliceType == 2 {
		return 0b1011_0000
	}
	return 0b1100_0000
}

func h264NAL(nalType byte, refIdc byte, sliceType byte) []byte {
	header := (refIdc << 5) | (nalType & 0x1F)
	payload := []byte{header}
	if nalType == 1 || nalType == 5 {
		payload = append(payload, sliceRBSP(sliceType))
	} else {
		payload = append(payload, 0x00)
	}
	return append([]byte{0, 0, 0, 1}, payload...)
}

// buildTwoGopStream builds SPS, PPS, then two GOPs of one IDR each
// followed by one P slice: four frames total, all on keyframe
// boundaries so a full-range keep list resolves to pure stream-copy.
func buildTwoGopStream() []byte {
	var out []byte
	out = append(out, h264NAL(7, 3, 0)...)
	out = append(out, h264NAL(8, 3, 0)...)
	out = append(out, h264NAL(9, 0, 0)...)
	out = append(out, h264NAL(5, 3, 2)...)
	out = append(out, h264NAL(9, 0, 0)...)
	out = append(out, h264NAL(1, 2, 0)...)
	out = append(out, h264NAL(9, 0, 0)...)
	out = append(out, h264NAL(5, 3, 2)...)
	out = append(out, h264NAL(9, 0, 0)...)
	out = append(out, h264NAL(1, 2, 0)...)
	return out
}

func baseRequest(t *testing.T, dir string) Request {
	t.Helper()
	videoPath := filepath.Join(dir, "in.h264")
	require.NoError(t, os.WriteFile(videoPath, buildTwoGopStream(), 0o644))

	return Request{
		VideoPath:  videoPath,
		OutputPath: filepath.Join(dir, "out.mkv"),
		KeepList:   cutplan.KeepList{{Start: 0, End: 3}},
		Config: config.SessionConfig{
			FrameRate:     25.0,
			MuxBinaryPath: "mkvmerge",
			CRFH264:       20,
			CRFH265:       24,
		},
	}
}

func TestRunRejectsEmptyKeepList(t *testing.T) {
	dir := t.TempDir()
	req := baseRequest(t, dir)
	req.KeepList = nil

	j := New(req)
	_, err := j.Run(context.Background())
	require.Error(t, err)
}

func TestRunRejectsOutOfRangeKeepList(t *testing.T) {
	dir := t.TempDir()
	req := baseRequest(t, dir)
	req.KeepList = cutplan.KeepList{{Start: 0, End: 100}}

	j := New(req)
	_, err := j.Run(context.Background())
	require.Error(t, err)
}

func TestRunAbortedBeforeStartReturnsErrAborted(t *testing.T) {
	dir := t.TempDir()
	req := baseRequest(t, dir)

	j := New(req)
	j.Abort()

	_, err := j.Run(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, core.ErrAborted)
}

func TestTempPathUsesBasenamePurposeConvention(t *testing.T) {
	got := tempPath("", "/videos/Movie_video.264", "cut", "es")
	require.Equal(t, "/videos/.Movie_video_cut.es", got)
}

func TestTempPathHonoursExplicitTempDir(t *testing.T) {
	got := tempPath("/tmp/workspace", "/videos/Movie_video.264", "audio0", "mka")
	require.Equal(t, "/tmp/workspace/.Movie_video_audio0.mka", got)
}

func TestRunEndToEndProducesContainer(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed, skipping end-to-end job test")
	}
	if _, err := exec.LookPath("mkvmerge"); err != nil {
		t.Skip("mkvmerge not installed, skipping end-to-end job test")
	}

	dir := t.TempDir()
	req := baseRequest(t, dir)
	req.Config.FFmpegBinaryPath = "ffmpeg"

	var progress []Progress
	req.ProgressFunc = func(p Progress) { progress = append(progress, p) }

	j := New(req)
	result, err := j.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, req.OutputPath, result.OutputPath)
	require.NotEmpty(t, progress)

	_, statErr := os.Stat(req.OutputPath)
	require.NoError(t, statErr)
}
