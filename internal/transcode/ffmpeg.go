package transcode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/jmylchreest/smartcut/internal/ffmpeg"
	"github.com/jmylchreest/smartcut/internal/nal"
)

// buildDecodeCommand builds an ffmpeg invocation that reads an MPEG-TS
// stream from stdin and writes raw Annex-B video (still wrapped in
// MPEG-TS, one elementary track) to stdout in display order.
//
// Decode is the only stage offered hardware acceleration: it dominates
// the reencode span's wall time for long overshoot windows, while the
// actual re-encode stays on the software encoder so CRF and profile
// behave identically regardless of what decoded the source.
func buildDecodeCommand(opts Options) *ffmpeg.Command {
	b := ffmpeg.NewCommandBuilder(opts.FFmpegPath).
		LogLevel("error").
		HideBanner().
		InitHWDevice(decodeHWAccel(opts.HWAccelPriority), "").
		HWAccel(decodeHWAccel(opts.HWAccelPriority)).
		Input("pipe:0").
		InputArgs("-f", "mpegts").
		VideoCodec(decodeCodecName(opts.Codec)).
		OutputArgs("-an", "-copyts", "-start_at_zero").
		MpegtsArgs().
		Output("pipe:1")

	return b.Build()
}

// decodeHWAccel returns the first candidate in priority order, or "" to
// fall back to software decode.
func decodeHWAccel(priority []string) string {
	if len(priority) == 0 {
		return ""
	}
	return priority[0]
}

func decodeCodecName(codec nal.Codec) string {
	if codec == nal.CodecH265 {
		return "hevc"
	}
	return "h264"
}

// buildEncodeCommand builds an ffmpeg invocation that reads a raw MPEG-TS
// stream of uncompressed-equivalent frames from stdin and re-encodes them
// with a forced keyframe on the first output frame and B-frames disabled,
// so segments never drift onto each other's reference frames.
func buildEncodeCommand(opts Options) *ffmpeg.Command {
	b := ffmpeg.NewCommandBuilder(opts.FFmpegPath).
		LogLevel("error").
		HideBanner().
		Input("pipe:0").
		InputArgs("-f", "mpegts").
		VideoCodec(encodeCodecName(opts.Codec)).
		OutputArgs(
			"-an",
			"-forced-idr", "1",
			"-force_key_frames", "expr:eq(n,0)",
			"-g", "9999999",
		)

	if opts.CRF > 0 {
		b.OutputArgs("-crf", strconv.Itoa(opts.CRF))
	}
	if opts.Preset != "" {
		b.VideoPreset(opts.Preset)
	}
	if opts.Profile != "" {
		b.OutputArgs("-profile:v", opts.Profile)
	}
	b.OutputArgs("-x264-params", "bframes=0").
		OutputArgs("-x265-params", "bframes=0").
		MpegtsArgs().
		Output("pipe:1")

	return b.Build()
}

func encodeCodecName(codec nal.Codec) string {
	if codec == nal.CodecH265 {
		return "libx265"
	}
	return "libx264"
}

// runEncode muxes kept into an MPEG-TS stream, drives encodeCmd over it,
// and demuxes the re-encoded Annex-B bytes back out in file order.
func runEncode(ctx context.Context, encodeCmd *ffmpeg.Command, kept []videoSample, opts Options) ([]byte, error) {
	var out bytes.Buffer
	demux := newTSDemuxer(func(s videoSample) { out.Write(s.AnnexB) })

	feedR, feedW := io.Pipe()
	go func() {
		mux := newTSMuxer(feedW, opts.Codec)
		for i, s := range kept {
			pts := int64(i) * 3000
			if err := mux.writeAccessUnit(pts, pts, splitAnnexB(s.AnnexB)); err != nil {
				feedW.CloseWithError(fmt.Errorf("feeding encoder: %w", err))
				return
			}
		}
		feedW.Close()
	}()

	if err := encodeCmd.StreamBidirectional(ctx, feedR, demuxPipeWriter{demux}); err != nil {
		return nil, err
	}
	demux.Close()
	return out.Bytes(), nil
}
