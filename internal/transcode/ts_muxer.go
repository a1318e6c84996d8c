// Package transcode bridges a span of Annex-B access units through an
// ffmpeg subprocess for decode/re-encode, using MPEG-TS as the transfer
// container on both sides of the pipe.
package transcode

import (
	"fmt"
	"io"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
	"github.com/jmylchreest/smartcut/internal/nal"
)

// PID constants for the single-video-track MPEG-TS streams this package
// produces; there is never an audio track, since the decode/encode
// pipeline is video-only (audio trimming is a separate ffmpeg filter-graph
// pass, internal/audiotrim).
const tsVideoPID = 0x0100

// tsMuxer wraps a mediacommon mpegts.Writer configured with a single
// video track, feeding an ffmpeg subprocess's stdin.
type tsMuxer struct {
	mu          sync.Mutex
	writer      io.Writer
	codec       nal.Codec
	muxer       *mpegts.Writer
	track       *mpegts.Track
	initialized bool
}

func newTSMuxer(w io.Writer, codec nal.Codec) *tsMuxer {
	return &tsMuxer{writer: w, codec: codec}
}

func (m *tsMuxer) initialize() error {
	if m.initialized {
		return nil
	}
	var c mpegts.Codec
	if m.codec == nal.CodecH265 {
		c = &mpegts.CodecH265{}
	} else {
		c = &mpegts.CodecH264{}
	}
	m.track = &mpegts.Track{PID: tsVideoPID, Codec: c}
	m.muxer = &mpegts.Writer{W: m.writer, Tracks: []*mpegts.Track{m.track}}
	if err := m.muxer.Initialize(); err != nil {
		return fmt.Errorf("initializing mpegts writer: %w", err)
	}
	if _, err := m.muxer.WriteTables(); err != nil {
		return fmt.Errorf("writing PAT/PMT tables: %w", err)
	}
	m.initialized = true
	return nil
}

// writeAccessUnit writes one access unit's NAL payloads (already split,
// without Annex-B start codes) at the given 90kHz PTS/DTS.
func (m *tsMuxer) writeAccessUnit(pts, dts int64, nalus [][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		if err := m.initialize(); err != nil {
			return err
		}
	}
	if len(nalus) == 0 {
		return nil
	}
	if m.codec == nal.CodecH265 {
		return m.muxer.WriteH265(m.track, pts, dts, nalus)
	}
	return m.muxer.WriteH264(m.track, pts, dts, nalus)
}

// splitAnnexB splits a run of concatenated Annex-B NALs (start codes and
// all) into bare NAL payloads as mediacommon's mpegts writer expects.
func splitAnnexB(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	var au h264.AnnexB
	if err := au.Unmarshal(data); err != nil {
		return [][]byte{data}
	}
	return au
}
