package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
)

// videoSample is one decoded-and-re-encoded access unit, as produced by
// ffmpeg and read back off its stdout MPEG-TS stream.
type videoSample struct {
	PTS        int64
	DTS        int64
	AnnexB     []byte
	IsKeyframe bool
}

// tsDemuxer reads ffmpeg's MPEG-TS stdout and emits the decoded video
// track as Annex-B access units.
type tsDemuxer struct {
	reader *mpegts.Reader

	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter

	onSample func(videoSample)

	initOnce sync.Once
	initErr  error
	initDone chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

func newTSDemuxer(onSample func(videoSample)) *tsDemuxer {
	ctx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()
	d := &tsDemuxer{
		pipeReader: pr,
		pipeWriter: pw,
		onSample:   onSample,
		initDone:   make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	go d.run()
	return d
}

func (d *tsDemuxer) run() {
	defer func() {
		d.pipeReader.Close()
		close(d.initDone)
	}()

	d.reader = &mpegts.Reader{R: d.pipeReader}
	if err := d.reader.Initialize(); err != nil {
		d.initOnce.Do(func() { d.initErr = fmt.Errorf("initializing mpegts reader: %w", err) })
		return
	}

	for _, track := range d.reader.Tracks() {
		switch track.Codec.(type) {
		case *mpegts.CodecH264:
			d.reader.OnDataH264(track, func(pts, dts int64, au [][]byte) error {
				return d.handle(pts, dts, au, false)
			})
		case *mpegts.CodecH265:
			d.reader.OnDataH265(track, func(pts, dts int64, au [][]byte) error {
				return d.handle(pts, dts, au, true)
			})
		}
	}
	d.initOnce.Do(func() {})

	for {
		select {
		case <-d.ctx.Done():
			return
		default:
			if err := d.reader.Read(); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
					return
				}
				return
			}
		}
	}
}

func (d *tsDemuxer) handle(pts, dts int64, au [][]byte, isH265 bool) error {
	if len(au) == 0 {
		return nil
	}
	var isKey bool
	if isH265 {
		isKey = h265.IsRandomAccess(au)
	} else {
		isKey = h264.IsRandomAccess(au)
	}
	annexB, err := h264.AnnexB(au).Marshal()
	if err != nil || len(annexB) == 0 {
		return nil
	}
	if d.onSample != nil {
		d.onSample(videoSample{PTS: pts, DTS: dts, AnnexB: annexB, IsKeyframe: isKey})
	}
	return nil
}

func (d *tsDemuxer) Write(p []byte) (int, error) { return d.pipeWriter.Write(p) }

func (d *tsDemuxer) Close() {
	d.pipeWriter.Close()
	<-d.initDone
	d.cancel()
}
