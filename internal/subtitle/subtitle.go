// Package subtitle parses SRT cue text and rebuilds it against a set of
// kept time ranges, clamping and splitting cues that straddle a cut and
// renumbering what remains from 1.
package subtitle

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/jmylchreest/smartcut/internal/core"
	"github.com/jmylchreest/smartcut/internal/cutplan"
)

// Cue is one parsed subtitle entry.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  []string
}

// KeepRange is a keep-list entry in the time domain, as used by the
// output assembler and audio trimmer alike.
type KeepRange struct {
	Start time.Duration
	End   time.Duration
}

// KeepRangesFromFrames converts a frame-indexed KeepList to time-domain
// KeepRanges using frameRate, matching the audio trimmer's
// frame-to-second convention (time = frame / frame_rate).
func KeepRangesFromFrames(keepList cutplan.KeepList, frameRate float64) []KeepRange {
	ranges := make([]KeepRange, len(keepList))
	for i, pair := range keepList {
		ranges[i] = KeepRange{
			Start: secondsToDuration(float64(pair.Start) / frameRate),
			End:   secondsToDuration(float64(pair.End+1) / frameRate),
		}
	}
	return ranges
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ParseSRT reads an SRT cue stream, decoding as UTF-8 when valid and
// falling back to Latin-1 (ISO-8859-1) otherwise.
func ParseSRT(r io.Reader) ([]Cue, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrIo, err)
	}
	if !utf8.Valid(raw) {
		decoded, decErr := charmap.ISO8859_1.NewDecoder().Bytes(raw)
		if decErr != nil {
			return nil, fmt.Errorf("%w: decoding Latin-1 fallback: %w", core.ErrSubtitleParse, decErr)
		}
		raw = decoded
	}

	var cues []Cue
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// line is the index; the timecode line follows immediately.
		if _, err := strconv.Atoi(line); err != nil {
			return nil, fmt.Errorf("%w: expected cue index, got %q", core.ErrSubtitleParse, line)
		}
		if !scanner.Scan() {
			return nil, fmt.Errorf("%w: cue missing timecode line", core.ErrSubtitleParse)
		}
		start, end, err := parseTimecodeLine(strings.TrimSpace(scanner.Text()))
		if err != nil {
			return nil, err
		}

		var text []string
		for scanner.Scan() {
			t := scanner.Text()
			if strings.TrimSpace(t) == "" {
				break
			}
			text = append(text, t)
		}

		cues = append(cues, Cue{
			Index: len(cues) + 1,
			Start: start,
			End:   end,
			Text:  text,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrIo, err)
	}
	return cues, nil
}

func parseTimecodeLine(line string) (start, end time.Duration, err error) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: malformed timecode line %q", core.ErrSubtitleParse, line)
	}
	start, err = parseTimecode(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	end, err = parseTimecode(strings.TrimSpace(strings.Fields(parts[1])[0]))
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseTimecode(s string) (time.Duration, error) {
	// HH:MM:SS,mmm (comma per SRT convention; a period is tolerated).
	s = strings.Replace(s, ".", ",", 1)
	var h, m, sec, ms int
	if _, err := fmt.Sscanf(s, "%d:%d:%d,%d", &h, &m, &sec, &ms); err != nil {
		return 0, fmt.Errorf("%w: bad timecode %q: %w", core.ErrSubtitleParse, s, err)
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second + time.Duration(ms)*time.Millisecond
	return d, nil
}

// Trim clamps and splits cues against keepRanges in order, rebasing
// each kept fragment's timestamps onto the contiguous output timeline
// and renumbering from 1. A cue spanning a cut is emitted once per
// keep-range it overlaps, clamped to that range.
func Trim(cues []Cue, keepRanges []KeepRange) []Cue {
	var out []Cue
	var priorDuration time.Duration
	nextIndex := 1

	for _, kr := range keepRanges {
		for _, c := range cues {
			if c.End <= kr.Start || c.Start >= kr.End {
				continue
			}
			clampedStart := maxDuration(c.Start, kr.Start)
			clampedEnd := minDuration(c.End, kr.End)
			out = append(out, Cue{
				Index: nextIndex,
				Start: clampedStart - kr.Start + priorDuration,
				End:   clampedEnd - kr.Start + priorDuration,
				Text:  c.Text,
			})
			nextIndex++
		}
		priorDuration += kr.End - kr.Start
	}
	return out
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// WriteSRT serialises cues in standard SRT layout.
func WriteSRT(w io.Writer, cues []Cue) error {
	for _, c := range cues {
		if _, err := fmt.Fprintf(w, "%d\n%s --> %s\n", c.Index, formatTimecode(c.Start), formatTimecode(c.End)); err != nil {
			return fmt.Errorf("%w: %w", core.ErrIo, err)
		}
		for _, line := range c.Text {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return fmt.Errorf("%w: %w", core.ErrIo, err)
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return fmt.Errorf("%w: %w", core.ErrIo, err)
		}
	}
	return nil
}

func formatTimecode(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
