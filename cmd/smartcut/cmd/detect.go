package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/smartcut/internal/ffmpeg"
	"github.com/jmylchreest/smartcut/internal/hwdetect"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect FFmpeg and hardware capabilities",
	Long: `Detect the FFmpeg installation, hardware acceleration methods, and
host resource limits available for Smart Cut re-encode work.

This command runs capability detection and outputs the results as
JSON. Use it to verify what codecs and hardware decoders are available
before running "smartcut cut" or "smartcut serve".

Examples:
  # Basic detection (JSON output)
  smartcut detect

  # Pretty-printed JSON
  smartcut detect --pretty`,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().Bool("pretty", false, "pretty-print JSON output")
	detectCmd.Flags().Duration("timeout", 30*time.Second, "detection timeout")
}

// DetectionResult is the full detection output.
type DetectionResult struct {
	FFmpeg    FFmpegInfo       `json:"ffmpeg"`
	HWAccels  HWAccelReport    `json:"hwaccels"`
	Resources ResourcesReport  `json:"resources"`
}

// FFmpegInfo describes the resolved FFmpeg/FFprobe binaries.
type FFmpegInfo struct {
	Version     string   `json:"version"`
	FFmpegPath  string   `json:"ffmpeg_path"`
	FFprobePath string   `json:"ffprobe_path"`
	Decoders    []string `json:"decoders,omitempty"`
	Encoders    []string `json:"encoders,omitempty"`
}

// HWAccelMethod is one detected hardware acceleration method.
type HWAccelMethod struct {
	Type              string   `json:"type"`
	DevicePath        string   `json:"device_path,omitempty"`
	DeviceName        string   `json:"device_name,omitempty"`
	SupportedDecoders []string `json:"supported_decoders,omitempty"`
}

// HWAccelReport is the full hardware acceleration detection result.
type HWAccelReport struct {
	Methods     []HWAccelMethod `json:"methods"`
	Recommended string          `json:"recommended,omitempty"`
}

// ResourcesReport is the host resource snapshot used to size the
// concurrent re-encode worker pool.
type ResourcesReport struct {
	CPUCores          int     `json:"cpu_cores"`
	CPUPercent        float64 `json:"cpu_percent"`
	LoadAvg1m         float64 `json:"load_avg_1m"`
	MemoryTotalMB     float64 `json:"memory_total_mb"`
	MemoryAvailableMB float64 `json:"memory_available_mb"`
	RecommendedWorkers int    `json:"recommended_workers"`
}

func runDetect(cmd *cobra.Command, _ []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	pretty, _ := cmd.Flags().GetBool("pretty")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ffmpegPath := viper.GetString("ffmpeg.binary_path")

	binDetector := ffmpeg.NewBinaryDetector()
	binInfo, err := binDetector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("detecting ffmpeg binary: %w", err)
	}
	if ffmpegPath == "" {
		ffmpegPath = binInfo.FFmpegPath
	}

	hwDetector := hwdetect.NewDetector(ffmpegPath)
	caps, err := hwDetector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("detecting hardware acceleration: %w", err)
	}

	resources, err := hwdetect.ProbeSystemResources(ctx)
	if err != nil {
		return fmt.Errorf("probing system resources: %w", err)
	}

	result := DetectionResult{
		FFmpeg: FFmpegInfo{
			Version:     binInfo.Version,
			FFmpegPath:  binInfo.FFmpegPath,
			FFprobePath: binInfo.FFprobePath,
			Decoders:    binInfo.Decoders,
			Encoders:    binInfo.Encoders,
		},
		Resources: ResourcesReport{
			CPUCores:           resources.CPUCores,
			CPUPercent:         resources.CPUPercent,
			LoadAvg1m:          resources.LoadAvg1m,
			MemoryTotalMB:      float64(resources.MemoryTotal) / 1024 / 1024,
			MemoryAvailableMB:  float64(resources.MemoryAvailable) / 1024 / 1024,
			RecommendedWorkers: hwdetect.RecommendedWorkerCount(resources),
		},
	}

	for _, m := range caps.Methods {
		result.HWAccels.Methods = append(result.HWAccels.Methods, HWAccelMethod{
			Type:              string(m.Type),
			DevicePath:        m.DevicePath,
			DeviceName:        m.DeviceName,
			SupportedDecoders: m.SupportedDecoders,
		})
	}
	if caps.Recommended != nil {
		result.HWAccels.Recommended = string(caps.Recommended.Type)
	}

	var output []byte
	if pretty {
		output, err = json.MarshalIndent(result, "", "  ")
	} else {
		output, err = json.Marshal(result)
	}
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	fmt.Fprintln(os.Stdout, string(output))
	return nil
}
