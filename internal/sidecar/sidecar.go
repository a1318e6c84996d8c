// Package sidecar reads the .info text file co-located with an input
// elementary stream: frame rate, audio/video sync offset, and the
// paths/codecs of any accompanying audio elementary streams.
package sidecar

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/jmylchreest/smartcut/internal/core"
)

// AudioStream is one audio_N_file/audio_N_codec pair discovered in the
// sidecar.
type AudioStream struct {
	Index int
	File  string
	Codec string
}

// Info is the parsed contents of a .info sidecar file.
type Info struct {
	FrameRate   float64
	AVOffsetMs  int
	AudioStreams []AudioStream

	// Raw holds every key=value pair as read, including unrecognised
	// keys, which are preserved but not interpreted.
	Raw map[string]string
}

var audioFileKey = regexp.MustCompile(`^audio_(\d+)_file$`)
var audioCodecKey = regexp.MustCompile(`^audio_(\d+)_codec$`)

// PathFor derives a sidecar path from a video elementary stream path:
// the basename with any "_video" suffix removed, extension ".info".
func PathFor(videoPath string) string {
	dir := filepath.Dir(videoPath)
	base := filepath.Base(videoPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	stem = strings.TrimSuffix(stem, "_video")
	return filepath.Join(dir, stem+".info")
}

// Read loads and parses the sidecar file at path.
func Read(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening sidecar: %w", core.ErrIo, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads key=value lines from r, ignoring blank lines and lines
// starting with '#' or '['.
func Parse(r io.Reader) (*Info, error) {
	info := &Info{Raw: make(map[string]string)}
	audioFiles := make(map[int]string)
	audioCodecs := make(map[int]string)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "[") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		info.Raw[key] = value

		switch {
		case key == "frame_rate":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				info.FrameRate = v
			}
		case key == "av_offset_ms":
			if v, err := strconv.Atoi(value); err == nil {
				info.AVOffsetMs = v
			}
		case audioFileKey.MatchString(key):
			n := audioIndex(audioFileKey, key)
			audioFiles[n] = value
		case audioCodecKey.MatchString(key):
			n := audioIndex(audioCodecKey, key)
			audioCodecs[n] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrIo, err)
	}

	info.AudioStreams = buildAudioStreams(audioFiles, audioCodecs)
	return info, nil
}

func audioIndex(re *regexp.Regexp, key string) int {
	m := re.FindStringSubmatch(key)
	n, _ := strconv.Atoi(m[1])
	return n
}

func buildAudioStreams(files, codecs map[int]string) []AudioStream {
	var streams []AudioStream
	for n := 0; ; n++ {
		_, hasFile := files[n]
		_, hasCodec := codecs[n]
		if !hasFile && !hasCodec {
			break
		}
		streams = append(streams, AudioStream{Index: n, File: files[n], Codec: codecs[n]})
	}
	return streams
}
