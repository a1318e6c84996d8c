package transcode

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/jmylchreest/smartcut/internal/core"
	"github.com/jmylchreest/smartcut/internal/ffmpeg"
	"github.com/jmylchreest/smartcut/internal/nal"
	"github.com/jmylchreest/smartcut/internal/stream"
)

// decodeOvershoot is the number of extra access units fed past R_end to
// absorb B-frame forward references and frame-threaded decoder delay.
const decodeOvershoot = 20

// Options configures one Reencode call.
type Options struct {
	FFmpegPath      string
	Codec           nal.Codec
	CRF             int
	Preset          string
	Profile         string
	FrameRate       float64
	HWAccelPriority []string // decode-side hwaccel candidates in preference order, e.g. vaapi, cuda, qsv
}

// Result is the output of a reencode span: the Annex-B bytes to splice
// into the assembled output, and the decoder's reported reorder delay.
type Result struct {
	AnnexB       []byte
	ReorderDelay int
}

// Reencode decodes access units [D, min(REnd+overshoot, frameCount-1)]
// (D = keyframe_at_or_before(RStart)) through ffmpeg, keeps the display-
// order output frames [RStart, REnd], and re-encodes them with a forced
// keyframe on the first frame and B-frames disabled.
func Reencode(ctx context.Context, scanner *nal.Scanner, idx *stream.Index, rStart, rEnd int, opts Options) (*Result, error) {
	d := idx.KeyframeAtOrBefore(rStart)
	if d == -1 {
		d = 0
	}
	feedEnd := rEnd + decodeOvershoot
	if feedEnd > idx.FrameCount()-1 {
		feedEnd = idx.FrameCount() - 1
	}

	paramNALs, err := collectParameterSets(scanner, idx)
	if err != nil {
		return nil, err
	}

	decodeCmd := buildDecodeCommand(opts)
	encodeCmd := buildEncodeCommand(opts)

	demuxedFrames := make(chan videoSample, 64)
	demux := newTSDemuxer(func(s videoSample) { demuxedFrames <- s })

	feedPipeR, feedPipeW := io.Pipe()
	go func() {
		err := feedAccessUnits(scanner, idx, d, feedEnd, paramNALs, opts.Codec, feedPipeW)
		feedPipeW.CloseWithError(err)
	}()

	decodeErrCh := make(chan error, 1)
	go func() {
		decodeErrCh <- decodeCmd.StreamBidirectional(ctx, feedPipeR, demuxPipeWriter{demux})
	}()

	var decoded []videoSample
	collectDone := make(chan struct{})
	go func() {
		defer close(collectDone)
		for s := range demuxedFrames {
			decoded = append(decoded, s)
		}
	}()

	if err := <-decodeErrCh; err != nil {
		return nil, fmt.Errorf("%w: decode stage: %w", core.ErrDecoderInit, err)
	}
	demux.Close()
	close(demuxedFrames)
	<-collectDone

	skip := rStart - d
	if skip < 0 {
		skip = 0
	}
	keep := rEnd - rStart + 1
	if skip+keep > len(decoded) {
		return nil, fmt.Errorf("%w: decoder produced %d frames, needed %d", core.ErrDecoderStarved, len(decoded), skip+keep)
	}
	kept := decoded[skip : skip+keep]

	reencoded, err := runEncode(ctx, encodeCmd, kept, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: encode stage: %w", core.ErrEncoderInit, err)
	}

	// has_b_frames is informational; without a library-level decoder
	// handle to query directly, infer it from the largest DTS/PTS gap
	// observed across the decoded run, clamped to a sane range.
	reorderDelay := estimateReorderDelay(decoded)

	return &Result{AnnexB: reencoded, ReorderDelay: reorderDelay}, nil
}

// collectParameterSets concatenates every VPS, SPS, and PPS NAL payload
// in discovery order.
func collectParameterSets(scanner *nal.Scanner, idx *stream.Index) ([]byte, error) {
	var buf bytes.Buffer
	write := func(indices []int) error {
		for _, i := range indices {
			n, err := idx.NalAt(i)
			if err != nil {
				return err
			}
			raw, err := scanner.ReadFull(n.FileOffset, n.Size)
			if err != nil {
				return fmt.Errorf("%w: %w", core.ErrIo, err)
			}
			buf.Write(raw)
		}
		return nil
	}
	if err := write(idx.VPSIndices()); err != nil {
		return nil, err
	}
	if err := write(idx.SPSIndices()); err != nil {
		return nil, err
	}
	if err := write(idx.PPSIndices()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// feedAccessUnits writes access units [from, to] (decode/file order) into
// a tsMuxer backed by w, prepending paramNALs to the first access unit.
func feedAccessUnits(scanner *nal.Scanner, idx *stream.Index, from, to int, paramNALs []byte, codec nal.Codec, w io.Writer) error {
	mux := newTSMuxer(w, codec)
	for f := from; f <= to; f++ {
		au, err := idx.AccessUnitAt(f)
		if err != nil {
			return err
		}
		var payload bytes.Buffer
		if f == from {
			payload.Write(paramNALs)
		}
		for _, ni := range au.NalIndices {
			n, err := idx.NalAt(ni)
			if err != nil {
				return err
			}
			raw, err := scanner.ReadFull(n.FileOffset, n.Size)
			if err != nil {
				return fmt.Errorf("%w: %w", core.ErrIo, err)
			}
			payload.Write(raw)
		}
		pts := int64(f-from) * 3000 // arbitrary 90kHz-tick spacing; only relative order matters to ffmpeg here
		if err := mux.writeAccessUnit(pts, pts, splitAnnexB(payload.Bytes())); err != nil {
			return fmt.Errorf("%w: %w", core.ErrMuxFailed, err)
		}
	}
	return nil
}

// demuxPipeWriter adapts tsDemuxer's Write method to an io.Writer so it
// can be passed as StreamBidirectional's stdout sink.
type demuxPipeWriter struct{ d *tsDemuxer }

func (w demuxPipeWriter) Write(p []byte) (int, error) { return w.d.Write(p) }

func estimateReorderDelay(frames []videoSample) int {
	if len(frames) < 2 {
		return 0
	}
	maxGap := int64(0)
	for i := 1; i < len(frames); i++ {
		gap := frames[i].PTS - frames[i-1].DTS
		if gap > maxGap {
			maxGap = gap
		}
	}
	delay := int(maxGap / 3000)
	if delay < 0 {
		delay = 0
	}
	if delay > 16 {
		delay = 16
	}
	return delay
}
