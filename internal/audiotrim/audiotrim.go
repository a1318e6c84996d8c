// Package audiotrim builds the kept-range audio for one elementary
// audio stream by trimming and concatenating it with FFmpeg, re-encoding
// the result to guarantee sample-accurate boundaries and monotonic
// timestamps. Stream-copy is never used here: common audio codecs lack
// sample-accurate seek without decoding, so a boundary that lands
// mid-frame would drift.
package audiotrim

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jmylchreest/smartcut/internal/core"
	"github.com/jmylchreest/smartcut/internal/cutplan"
	"github.com/jmylchreest/smartcut/internal/ffmpeg"
)

// Codec identifies the input audio elementary stream's codec, which
// fixes the re-encode target (codec and bitrate both carry over).
type Codec int

const (
	CodecUnknown Codec = iota
	CodecAC3
	CodecMP2
	CodecMP3
	CodecAAC
)

// CodecFromExt maps an input file extension (".ac3", ".mp2", ".mpa",
// ".mp3", ".aac") to a Codec, case-insensitively.
func CodecFromExt(ext string) Codec {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "ac3":
		return CodecAC3
	case "mp2", "mpa":
		return CodecMP2
	case "mp3":
		return CodecMP3
	case "aac":
		return CodecAAC
	default:
		return CodecUnknown
	}
}

// ffmpegName is the -c:a encoder name for the codec.
func (c Codec) ffmpegName() string {
	switch c {
	case CodecAC3:
		return "ac3"
	case CodecMP2:
		return "mp2"
	case CodecMP3:
		return "libmp3lame"
	case CodecAAC:
		return "aac"
	default:
		return ""
	}
}

// bitrate is the codec-matched re-encode bitrate.
func (c Codec) bitrate() string {
	switch c {
	case CodecAC3:
		return "384k"
	case CodecMP2:
		return "384k"
	case CodecMP3:
		return "256k"
	case CodecAAC:
		return "256k"
	default:
		return ""
	}
}

// Options configures one audio track's trim.
type Options struct {
	FFmpegPath string
	InputPath  string
	Codec      Codec
	FrameRate  float64
	KeepList   cutplan.KeepList
}

// Trim writes the trimmed, re-encoded, concatenated audio for
// opts.KeepList against opts.InputPath to outputPath. Output is written
// to a temp file and renamed into place on success.
func Trim(ctx context.Context, opts Options, outputPath string) (err error) {
	if opts.Codec == CodecUnknown {
		return fmt.Errorf("%w: %s", core.ErrUnsupportedAudio, opts.InputPath)
	}
	if len(opts.KeepList) == 0 {
		return core.ErrEmptyKeepList
	}
	if opts.FrameRate <= 0 {
		return fmt.Errorf("%w: frame rate must be positive", core.ErrAudioTrimFailed)
	}

	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp output: %w", core.ErrIo, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	filter := buildFilterGraph(opts.KeepList, opts.FrameRate)

	cmd := ffmpeg.NewCommandBuilder(opts.FFmpegPath).
		LogLevel("error").HideBanner().Overwrite().
		Input(opts.InputPath).
		AudioCodec(opts.Codec.ffmpegName()).
		AudioBitrate(opts.Codec.bitrate()).
		OutputArgs("-filter_complex", filter, "-map", "[outa]", "-vn").
		Output(tmpPath).
		Build()

	var stderr bytes.Buffer
	run := exec.CommandContext(ctx, cmd.Binary, cmd.Args...)
	run.Stderr = &stderr
	if runErr := run.Run(); runErr != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrAudioTrimFailed, stderr.String(), runErr)
	}

	if err = os.Rename(tmpPath, outputPath); err != nil {
		return fmt.Errorf("%w: renaming output into place: %w", core.ErrIo, err)
	}
	return nil
}

// buildFilterGraph builds an ffmpeg -filter_complex graph that trims
// each keep range from input 0, resets its timestamps to start at zero,
// and concatenates the results in order into a single labelled output
// stream "[outa]".
func buildFilterGraph(keepList cutplan.KeepList, frameRate float64) string {
	var spans []string
	var labels []string
	for i, pair := range keepList {
		start, end := keepRangeSeconds(pair, frameRate)
		label := fmt.Sprintf("a%d", i)
		spans = append(spans, fmt.Sprintf(
			"[0:a]atrim=start=%s:end=%s,asetpts=PTS-STARTPTS[%s]",
			formatSeconds(start), formatSeconds(end), label,
		))
		labels = append(labels, "["+label+"]")
	}
	concat := fmt.Sprintf("%sconcat=n=%d:v=0:a=1[outa]", strings.Join(labels, ""), len(keepList))
	return strings.Join(spans, ";") + ";" + concat
}

// keepRangeSeconds converts a frame-indexed, inclusive KeepPair to
// second-denominated [start, end) trim bounds. The end bound is floored
// to millisecond precision so a cut-out never overshoots into the next
// kept frame.
func keepRangeSeconds(pair cutplan.KeepPair, frameRate float64) (start, end float64) {
	start = float64(pair.Start) / frameRate
	end = math.Floor(float64(pair.End+1)/frameRate*1000) / 1000
	return start, end
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
