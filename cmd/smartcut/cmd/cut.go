package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/smartcut/internal/config"
	"github.com/jmylchreest/smartcut/internal/cutplan"
	"github.com/jmylchreest/smartcut/internal/job"
)

var cutCmd = &cobra.Command{
	Use:   "cut",
	Short: "Run one Smart Cut job synchronously",
	Long: `Run one frame-accurate Smart Cut against a raw H.264/AVC or H.265/HEVC
elementary stream and block until it finishes.

Frame ranges given to --keep are inclusive and 0-indexed display-order
frame numbers. Segments that already start on a keyframe are copied
through untouched; the frames spanning each cut boundary are
re-encoded to land exactly on the requested range.

Example:
  smartcut cut --in movie.h264 --keep 1000-5200,8000-12000 \
    --audio movie_eng.ac3 --out movie.mkv`,
	RunE: runCut,
}

func init() {
	rootCmd.AddCommand(cutCmd)

	cutCmd.Flags().String("in", "", "path to the input video elementary stream (required)")
	cutCmd.Flags().String("keep", "", "comma-separated inclusive frame ranges to keep, e.g. 1000-5200,8000-12000 (required)")
	cutCmd.Flags().String("out", "", "path to the output Matroska file (required)")
	cutCmd.Flags().StringSlice("audio", nil, "accompanying audio elementary stream(s) to trim and mux, optionally name:lang")
	cutCmd.Flags().StringSlice("subtitle", nil, "accompanying SRT subtitle file(s) to trim and mux, optionally name:lang")
	cutCmd.Flags().Bool("chapters", false, "generate uniformly spaced chapter markers at the configured chapter interval")
	cutCmd.Flags().Float64("frame-rate", 0, "override the detected frame rate (frames/sec)")

	_ = cutCmd.MarkFlagRequired("in")
	_ = cutCmd.MarkFlagRequired("keep")
	_ = cutCmd.MarkFlagRequired("out")
}

func runCut(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()

	videoPath, _ := cmd.Flags().GetString("in")
	outputPath, _ := cmd.Flags().GetString("out")
	keepStr, _ := cmd.Flags().GetString("keep")
	audioFlags, _ := cmd.Flags().GetStringSlice("audio")
	subtitleFlags, _ := cmd.Flags().GetStringSlice("subtitle")
	generateChapters, _ := cmd.Flags().GetBool("chapters")
	frameRate, _ := cmd.Flags().GetFloat64("frame-rate")

	keepList, err := parseKeepRanges(keepStr)
	if err != nil {
		return fmt.Errorf("parsing --keep: %w", err)
	}

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshaling config: %w", err)
	}

	sessionCfg := config.NewSessionConfig(&cfg)
	if frameRate > 0 {
		sessionCfg.FrameRate = frameRate
	}

	req := job.Request{
		VideoPath:        videoPath,
		OutputPath:       outputPath,
		KeepList:         keepList,
		AudioInputs:      parseAudioInputs(audioFlags),
		SubtitleInputs:   parseSubtitleInputs(subtitleFlags),
		GenerateChapters: generateChapters,
		Config:           sessionCfg,
		ProgressFunc: func(p job.Progress) {
			logger.Info("cut progress",
				slog.String("stage", p.Stage),
				slog.Int("segment", p.SegmentIndex),
				slog.Int("segment_count", p.SegmentCount),
			)
		},
	}

	j := job.New(req)
	result, err := j.Run(context.Background())
	if err != nil {
		return fmt.Errorf("running cut job: %w", err)
	}

	logger.Info("cut complete",
		slog.String("output", result.OutputPath),
		slog.Int("segments", result.Segments),
		slog.Bool("has_warnings", result.HasWarnings),
	)
	return nil
}

// parseKeepRanges parses a comma-separated list of inclusive "start-end"
// frame ranges into a cutplan.KeepList.
func parseKeepRanges(s string) (cutplan.KeepList, error) {
	if s == "" {
		return nil, fmt.Errorf("no ranges given")
	}

	var keepList cutplan.KeepList
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bounds := strings.SplitN(part, "-", 2)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("invalid range %q, expected start-end", part)
		}
		start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid start frame in %q: %w", part, err)
		}
		end, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid end frame in %q: %w", part, err)
		}
		keepList = append(keepList, cutplan.KeepPair{Start: start, End: end})
	}

	if len(keepList) == 0 {
		return nil, fmt.Errorf("no ranges given")
	}
	return keepList, nil
}

// parseAudioInputs parses "path" or "path:language" flag values.
func parseAudioInputs(flags []string) []job.AudioInput {
	inputs := make([]job.AudioInput, 0, len(flags))
	for _, f := range flags {
		path, lang := splitPathLanguage(f)
		inputs = append(inputs, job.AudioInput{Path: path, Language: lang})
	}
	return inputs
}

// parseSubtitleInputs parses "path" or "path:language" flag values.
func parseSubtitleInputs(flags []string) []job.SubtitleInput {
	inputs := make([]job.SubtitleInput, 0, len(flags))
	for _, f := range flags {
		path, lang := splitPathLanguage(f)
		inputs = append(inputs, job.SubtitleInput{Path: path, Language: lang})
	}
	return inputs
}

func splitPathLanguage(f string) (path, lang string) {
	if idx := strings.LastIndex(f, ":"); idx > 0 {
		return f[:idx], f[idx+1:]
	}
	return f, ""
}
