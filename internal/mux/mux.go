// Package mux drives mkvmerge as an external process to produce the
// final Matroska container: one video track, one audio track per
// trimmed audio file, optional subtitle tracks, and an optional
// uniformly spaced chapter file.
package mux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/smartcut/internal/core"
)

// muxTimeout bounds how long a mkvmerge invocation may run before the
// job gives up on it.
const muxTimeout = 10 * time.Minute

// langRe extracts an ISO-639-2/B-looking language tag from a filename's
// base name, e.g. "Show_deu.ac3" -> "deu", "Show_deu_2.ac3" -> "deu".
var langRe = regexp.MustCompile(`_([a-z]{3})(?:_\d+)?$`)

// Track is one audio or subtitle track to mux in, in the order it
// should appear in the output.
type Track struct {
	Path     string
	Language string // overrides the filename-derived language when set
}

// Options configures one mux invocation.
type Options struct {
	MkvmergePath string
	OutputPath   string
	VideoPath    string
	FrameRate    float64 // for the video track's default-duration

	AudioTracks    []Track
	SubtitleTracks []Track

	AudioSyncOffsetMs int // semantic "audio is later than video by X ms"

	ChapterFile string // path to a pre-generated chapter file, if any
}

// Result reports how the mux invocation concluded.
type Result struct {
	HasWarnings bool
	Stdout      string
	Stderr      string
}

// Mux invokes mkvmerge per Options and waits up to muxTimeout for it to
// finish. Exit code 0 is success, 1 is success with warnings (reported
// via Result.HasWarnings), any other exit code is ErrMuxFailed.
func Mux(ctx context.Context, opts Options) (*Result, error) {
	if opts.VideoPath == "" {
		return nil, fmt.Errorf("%w: no video file supplied", core.ErrMuxFailed)
	}
	if _, err := os.Stat(opts.VideoPath); err != nil {
		return nil, fmt.Errorf("%w: video file not found: %w", core.ErrMuxFailed, err)
	}

	args := BuildArgs(opts)

	ctx, cancel := context.WithTimeout(ctx, muxTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, opts.MkvmergePath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: mkvmerge exceeded %s", core.ErrMuxTimeout, muxTimeout)
	}

	exitCode := exitCodeOf(cmd, runErr)
	switch exitCode {
	case 0:
		return &Result{Stdout: stdout.String(), Stderr: stderr.String()}, nil
	case 1:
		return &Result{HasWarnings: true, Stdout: stdout.String(), Stderr: stderr.String()}, nil
	default:
		return nil, fmt.Errorf("%w: exit code %d: %s", core.ErrMuxFailed, exitCode, stderr.String())
	}
}

func exitCodeOf(cmd *exec.Cmd, runErr error) int {
	if runErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// BuildArgs builds the mkvmerge argument list per Options, mirroring
// the title/video/audio/subtitle/chapter ordering mkvmerge expects.
func BuildArgs(opts Options) []string {
	var args []string

	args = append(args, "-o", opts.OutputPath)

	title := DecodeVDRTitle(baseNameNoExt(opts.VideoPath))
	if title != "" {
		args = append(args, "--title", title)
	}

	if opts.FrameRate > 0 {
		durationNs := int64(1e9/opts.FrameRate + 0.5)
		args = append(args, "--default-duration", fmt.Sprintf("0:%dns", durationNs))
	}
	args = append(args, opts.VideoPath)

	for i, track := range opts.AudioTracks {
		trackID := i + 1
		lang := resolveLanguage(track)
		if lang != "" {
			args = append(args, "--language", "0:"+lang)
		}
		if opts.AudioSyncOffsetMs != 0 {
			args = append(args, "--sync", fmt.Sprintf("%d:%d", trackID, -opts.AudioSyncOffsetMs))
		}
		args = append(args, track.Path)
	}

	for _, track := range opts.SubtitleTracks {
		lang := resolveLanguage(track)
		if lang != "" {
			args = append(args, "--language", "0:"+lang)
		}
		args = append(args, track.Path)
	}

	if opts.ChapterFile != "" {
		args = append(args, "--chapters", opts.ChapterFile)
	}

	return args
}

func resolveLanguage(t Track) string {
	if t.Language != "" {
		return t.Language
	}
	m := langRe.FindStringSubmatch(baseNameNoExt(t.Path))
	if m == nil {
		return ""
	}
	return m[1]
}

func baseNameNoExt(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// win1252HighRange maps Windows-1252 code points 0x80-0x9F (where
// Latin-1 has C1 control codes) to their Unicode equivalents.
var win1252HighRange = [32]rune{
	0x20AC, 0x0081, 0x201A, 0x0192, 0x201E, 0x2026, 0x2020, 0x2021,
	0x02C6, 0x2030, 0x0160, 0x2039, 0x0152, 0x008D, 0x017D, 0x008F,
	0x0090, 0x2018, 0x2019, 0x201C, 0x201D, 0x2022, 0x2013, 0x2014,
	0x02DC, 0x2122, 0x0161, 0x203A, 0x0153, 0x009D, 0x017E, 0x0178,
}

// DecodeVDRTitle decodes VDR's filename convention: "#XX" is a
// Windows-1252 hex-escaped byte and "_" stands in for a space.
func DecodeVDRTitle(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	runes := []rune(name)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '#' && i+2 < len(runes) {
			if val, err := strconv.ParseUint(string(runes[i+1:i+3]), 16, 8); err == nil && val >= 0x20 {
				b.WriteRune(win1252ToUnicode(byte(val)))
				i += 2
				continue
			}
		}
		if runes[i] == '_' {
			b.WriteRune(' ')
		} else {
			b.WriteRune(runes[i])
		}
	}
	return b.String()
}

func win1252ToUnicode(b byte) rune {
	if b >= 0x80 && b <= 0x9F {
		return win1252HighRange[b-0x80]
	}
	return rune(b)
}

// GenerateChapterFile writes a simple OGM-style chapter file with marks
// every intervalMinutes, up to durationMs. Returns the written path.
func GenerateChapterFile(durationMs int64, intervalMinutes int, outputDir string) (string, error) {
	if durationMs <= 0 || intervalMinutes <= 0 {
		return "", fmt.Errorf("%w: invalid chapter parameters", core.ErrMuxFailed)
	}

	path := filepath.Join(outputDir, "chapters.txt")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: creating chapter file: %w", core.ErrIo, err)
	}
	defer f.Close()

	intervalMs := int64(intervalMinutes) * 60 * 1000
	chapterNum := 1
	for current := int64(0); current < durationMs; current += intervalMs {
		if _, err := fmt.Fprintf(f, "CHAPTER%02d=%s\n", chapterNum, formatChapterTime(current)); err != nil {
			return "", fmt.Errorf("%w: %w", core.ErrIo, err)
		}
		if _, err := fmt.Fprintf(f, "CHAPTER%02dNAME=Chapter %d\n", chapterNum, chapterNum); err != nil {
			return "", fmt.Errorf("%w: %w", core.ErrIo, err)
		}
		chapterNum++
	}
	return path, nil
}

func formatChapterTime(ms int64) string {
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
