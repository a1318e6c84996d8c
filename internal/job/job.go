// Package job orchestrates one Smart Cut from a submitted request through
// to a muxed output file: scan and index the input elementary stream,
// plan the cut against the keep list, re-encode bridge segments and
// assemble the kept video, trim accompanying audio and subtitle streams
// in parallel, then hand everything to the muxer.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/jmylchreest/smartcut/internal/assemble"
	"github.com/jmylchreest/smartcut/internal/audiotrim"
	"github.com/jmylchreest/smartcut/internal/config"
	"github.com/jmylchreest/smartcut/internal/core"
	"github.com/jmylchreest/smartcut/internal/cutplan"
	"github.com/jmylchreest/smartcut/internal/mux"
	"github.com/jmylchreest/smartcut/internal/nal"
	"github.com/jmylchreest/smartcut/internal/observability"
	"github.com/jmylchreest/smartcut/internal/sidecar"
	"github.com/jmylchreest/smartcut/internal/stream"
	"github.com/jmylchreest/smartcut/internal/subtitle"
	"github.com/jmylchreest/smartcut/internal/transcode"
)

// AudioInput describes one accompanying audio elementary stream to trim
// and mux alongside the video.
type AudioInput struct {
	Path     string
	Language string
}

// SubtitleInput describes one accompanying SRT subtitle file to trim and
// mux alongside the video.
type SubtitleInput struct {
	Path     string
	Language string
}

// Stage names reported through Progress.
const (
	StagePlanning   = "planning"
	StageReencoding = "reencoding"
	StageAssembling = "assembling"
	StageTrimming   = "trimming"
	StageMuxing     = "muxing"
)

// Progress is reported when each pipeline stage begins and as each
// segment completes.
type Progress struct {
	Stage        string
	SegmentIndex int
	SegmentCount int
}

// Request is everything needed to run one cut job.
type Request struct {
	VideoPath  string
	OutputPath string
	KeepList   cutplan.KeepList

	AudioInputs    []AudioInput
	SubtitleInputs []SubtitleInput

	// GenerateChapters, if true, overrides Config.GenerateChapters for
	// this job only.
	GenerateChapters bool

	Config config.SessionConfig

	// ProgressFunc, if non-nil, is called synchronously when each
	// pipeline stage begins and as each segment completes. It must not
	// block.
	ProgressFunc func(Progress)
}

// Result is the outcome of a successful cut job.
type Result struct {
	OutputPath  string
	Segments    int
	HasWarnings bool
}

// Job runs one Request. The zero value is not usable; construct with New.
type Job struct {
	req     Request
	log     *slog.Logger
	aborted atomic.Bool
}

// New constructs a Job for req.
func New(req Request) *Job {
	return &Job{
		req: req,
		log: observability.WithComponent(slog.Default(), "job"),
	}
}

// Abort requests cooperative cancellation. The job checks this flag at
// segment boundaries; it does not interrupt work already in flight.
func (j *Job) Abort() {
	j.aborted.Store(true)
}

func (j *Job) checkAborted() error {
	if j.aborted.Load() {
		return core.ErrAborted
	}
	return nil
}

func (j *Job) report(p Progress) {
	if j.req.ProgressFunc != nil {
		j.req.ProgressFunc(p)
	}
}

// Run executes the full pipeline: scan, plan, reencode, assemble, trim
// audio and subtitles, and mux. It returns *Result on success or a
// wrapped core error otherwise. Temp files created along the way are
// removed before Run returns, whether it succeeds or fails.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	log := observability.WithOperation(j.log, "run")
	defer observability.TimedOperation(ctx, log, "cut_job")()

	scanner, err := nal.Open(j.req.VideoPath)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	defer scanner.Close()

	units, err := scanner.Scan()
	if err != nil {
		return nil, fmt.Errorf("scanning input: %w", err)
	}

	codec, err := nal.DetectCodec(scanner, units)
	if err != nil {
		return nil, fmt.Errorf("detecting codec: %w", err)
	}
	if errs := nal.Classify(scanner, codec, units); len(errs) > 0 {
		log.Warn("classification produced errors", "count", len(errs), "first", errs[0])
	}

	idx, err := stream.Build(units, codec, stream.Options{TempDir: j.req.Config.TempDir})
	if err != nil {
		return nil, fmt.Errorf("building stream index: %w", err)
	}
	defer idx.Close()

	if err := j.req.KeepList.Validate(idx.FrameCount()); err != nil {
		return nil, fmt.Errorf("validating keep list: %w", err)
	}

	j.report(Progress{Stage: StagePlanning})
	entries, err := cutplan.Plan(j.req.KeepList, idx)
	if err != nil {
		return nil, fmt.Errorf("planning cut: %w", err)
	}

	frameRate := j.req.Config.FrameRate
	if sc, serr := sidecar.Read(sidecar.PathFor(j.req.VideoPath)); serr == nil {
		if sc.FrameRate > 0 {
			frameRate = sc.FrameRate
		}
	}

	var tempFiles []string
	defer func() {
		for _, f := range tempFiles {
			os.Remove(f)
		}
	}()

	videoOut, err := j.reencodeAndAssemble(ctx, scanner, idx, entries, codec, frameRate, &tempFiles)
	if err != nil {
		return nil, err
	}

	if err := j.checkAborted(); err != nil {
		return nil, err
	}

	audioTracks, subtitleTracks, err := j.trimAncillary(ctx, &tempFiles)
	if err != nil {
		return nil, err
	}

	j.report(Progress{Stage: StageMuxing})
	result, err := j.muxOutput(ctx, videoOut, frameRate, audioTracks, subtitleTracks, &tempFiles)
	if err != nil {
		return nil, err
	}

	return &Result{
		OutputPath:  j.req.OutputPath,
		Segments:    len(entries),
		HasWarnings: result.HasWarnings,
	}, nil
}

func (j *Job) reencodeAndAssemble(ctx context.Context, scanner *nal.Scanner, idx *stream.Index, entries []cutplan.CutPlanEntry, codec nal.Codec, frameRate float64, tempFiles *[]string) (string, error) {
	reencoded := make(assemble.SegmentReencode)

	for i, entry := range entries {
		if err := j.checkAborted(); err != nil {
			return "", err
		}
		if entry.HasReencode {
			j.report(Progress{Stage: StageReencoding, SegmentIndex: i, SegmentCount: len(entries)})
			res, err := transcode.Reencode(ctx, scanner, idx, entry.ReencodeStart, entry.ReencodeEnd, transcode.Options{
				FFmpegPath:      j.req.Config.FFmpegBinaryPath,
				Codec:           codec,
				CRF:             crfFor(codec, j.req.Config),
				FrameRate:       frameRate,
				HWAccelPriority: j.req.Config.HWAccelPriority,
			})
			if err != nil {
				return "", core.NewSegmentError(i, "reencode", err)
			}
			reencoded[i] = res.AnnexB
		}
		j.report(Progress{Stage: StageReencoding, SegmentIndex: i + 1, SegmentCount: len(entries)})
	}

	j.report(Progress{Stage: StageAssembling})
	videoOut := tempPath(j.req.Config.TempDir, j.req.VideoPath, "cut", "es")
	*tempFiles = append(*tempFiles, videoOut)
	if err := assemble.Assemble(scanner, idx, entries, reencoded, videoOut); err != nil {
		return "", fmt.Errorf("assembling output: %w", err)
	}
	return videoOut, nil
}

func crfFor(codec nal.Codec, cfg config.SessionConfig) int {
	if codec == nal.CodecH265 {
		return cfg.CRFH265
	}
	return cfg.CRFH264
}

type trimmedAudio struct {
	path     string
	language string
	err      error
}

type trimmedSubtitle struct {
	path     string
	language string
	err      error
}

func (j *Job) trimAncillary(ctx context.Context, tempFiles *[]string) ([]mux.Track, []mux.Track, error) {
	j.report(Progress{Stage: StageTrimming})

	audioResults := make([]trimmedAudio, len(j.req.AudioInputs))
	subtitleResults := make([]trimmedSubtitle, len(j.req.SubtitleInputs))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var paths []string

	for i, in := range j.req.AudioInputs {
		wg.Add(1)
		go func(i int, in AudioInput) {
			defer wg.Done()
			out := tempPath(j.req.Config.TempDir, in.Path, fmt.Sprintf("audio%d", i), "mka")
			mu.Lock()
			paths = append(paths, out)
			mu.Unlock()

			err := audiotrim.Trim(ctx, audiotrim.Options{
				FFmpegPath: j.req.Config.FFmpegBinaryPath,
				InputPath:  in.Path,
				Codec:      audiotrim.CodecFromExt(filepath.Ext(in.Path)),
				FrameRate:  j.req.Config.FrameRate,
				KeepList:   j.req.KeepList,
			}, out)
			audioResults[i] = trimmedAudio{path: out, language: in.Language, err: err}
		}(i, in)
	}

	for i, in := range j.req.SubtitleInputs {
		wg.Add(1)
		go func(i int, in SubtitleInput) {
			defer wg.Done()
			out := tempPath(j.req.Config.TempDir, in.Path, fmt.Sprintf("subtitle%d", i), "srt")
			mu.Lock()
			paths = append(paths, out)
			mu.Unlock()

			err := j.trimOneSubtitle(in, out)
			subtitleResults[i] = trimmedSubtitle{path: out, language: in.Language, err: err}
		}(i, in)
	}

	wg.Wait()
	*tempFiles = append(*tempFiles, paths...)

	var audioTracks, subtitleTracks []mux.Track
	for _, r := range audioResults {
		if r.err != nil {
			return nil, nil, fmt.Errorf("trimming audio: %w", r.err)
		}
		audioTracks = append(audioTracks, mux.Track{Path: r.path, Language: r.language})
	}
	for _, r := range subtitleResults {
		if r.err != nil {
			return nil, nil, fmt.Errorf("trimming subtitle: %w", r.err)
		}
		subtitleTracks = append(subtitleTracks, mux.Track{Path: r.path, Language: r.language})
	}
	return audioTracks, subtitleTracks, nil
}

func (j *Job) trimOneSubtitle(in SubtitleInput, out string) error {
	f, err := os.Open(in.Path)
	if err != nil {
		return fmt.Errorf("%w: opening subtitle: %w", core.ErrIo, err)
	}
	defer f.Close()

	cues, err := subtitle.ParseSRT(f)
	if err != nil {
		return err
	}

	keepRanges := subtitle.KeepRangesFromFrames(j.req.KeepList, j.req.Config.FrameRate)
	trimmed := subtitle.Trim(cues, keepRanges)

	dir := filepath.Dir(out)
	base := filepath.Base(out)
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp subtitle output: %w", core.ErrIo, err)
	}
	tmpPath := tmp.Name()
	if err := subtitle.WriteSRT(tmp, trimmed); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %w", core.ErrIo, err)
	}
	if err := os.Rename(tmpPath, out); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: renaming subtitle output into place: %w", core.ErrIo, err)
	}
	return nil
}

func (j *Job) muxOutput(ctx context.Context, videoPath string, frameRate float64, audioTracks, subtitleTracks []mux.Track, tempFiles *[]string) (*mux.Result, error) {
	sc, serr := sidecar.Read(sidecar.PathFor(j.req.VideoPath))
	avOffsetMs := 0
	if serr == nil {
		avOffsetMs = sc.AVOffsetMs
	}

	var chapterFile string
	if j.req.GenerateChapters || j.req.Config.GenerateChapters {
		totalFrames := 0
		for _, p := range j.req.KeepList {
			totalFrames += p.End - p.Start + 1
		}
		totalMs := int64(float64(totalFrames) / frameRate * 1000)
		cf, err := mux.GenerateChapterFile(totalMs, int(j.req.Config.ChapterInterval.Minutes()), filepath.Dir(videoPath))
		if err != nil {
			return nil, fmt.Errorf("generating chapters: %w", err)
		}
		chapterFile = cf
		*tempFiles = append(*tempFiles, cf)
	}

	result, err := mux.Mux(ctx, mux.Options{
		MkvmergePath:      j.req.Config.MuxBinaryPath,
		OutputPath:        j.req.OutputPath,
		VideoPath:         videoPath,
		FrameRate:         frameRate,
		AudioTracks:       audioTracks,
		SubtitleTracks:    subtitleTracks,
		AudioSyncOffsetMs: avOffsetMs,
		ChapterFile:       chapterFile,
	})
	if err != nil {
		return nil, fmt.Errorf("muxing output: %w", err)
	}
	return result, nil
}

// tempPath builds a workspace temp file path named
// .{basename}_{purpose}.{ext}, co-located with src unless tempDir is set.
func tempPath(tempDir, src, purpose, ext string) string {
	dir := tempDir
	if dir == "" {
		dir = filepath.Dir(src)
	}
	base := filepath.Base(src)
	stem := base[:len(base)-len(filepath.Ext(base))]
	return filepath.Join(dir, fmt.Sprintf(".%s_%s.%s", stem, purpose, ext))
}
