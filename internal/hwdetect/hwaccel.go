// Package hwdetect probes the FFmpeg binary and host system for hardware
// acceleration capabilities and resource limits used to size the job
// orchestrator's concurrency and pick a decode-side hwaccel.
package hwdetect

import (
	"context"
	"log/slog"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// AccelType identifies a hardware acceleration method.
type AccelType string

const (
	AccelNone         AccelType = "none"
	AccelCUDA         AccelType = "cuda"
	AccelNVDEC        AccelType = "nvdec"
	AccelQSV          AccelType = "qsv"
	AccelVAAPI        AccelType = "vaapi"
	AccelVideoToolbox AccelType = "videotoolbox"
	AccelDXVA2        AccelType = "dxva2"
	AccelD3D11VA      AccelType = "d3d11va"
	AccelVulkan       AccelType = "vulkan"
)

// Capability is one detected hardware acceleration method and the
// decoders FFmpeg can use it with. Smart Cut never uses a hardware
// encoder for the re-encode stage — only a hardware decoder speeds up
// the overshoot decode pass without touching the frame-exact output.
type Capability struct {
	Type              AccelType
	Name              string
	DevicePath        string
	DeviceName        string
	SupportedDecoders []string
	DetectedAt        time.Time
}

// Capabilities is the full result of one Detect call.
type Capabilities struct {
	Methods     []Capability
	Recommended *Capability
	DetectedAt  time.Time
}

// Detector probes an FFmpeg binary for hwaccel and hardware decoder
// support and caches the result.
type Detector struct {
	ffmpegPath string

	mu   sync.RWMutex
	caps *Capabilities
}

// NewDetector creates a Detector against the given ffmpeg binary.
func NewDetector(ffmpegPath string) *Detector {
	return &Detector{ffmpegPath: ffmpegPath}
}

// Detect probes ffmpeg -hwaccels/-decoders and caches the result.
func (d *Detector) Detect(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps := &Capabilities{DetectedAt: time.Now()}

	accels := d.detectHWAccels(ctx)
	decoders := d.detectHardwareDecoders(ctx)

	for _, accel := range accels {
		cap := Capability{
			Type:       AccelType(accel),
			Name:       displayName(accel),
			DetectedAt: time.Now(),
		}
		for _, dec := range decoders {
			if matchesAccel(dec, accel) {
				cap.SupportedDecoders = append(cap.SupportedDecoders, dec)
			}
		}
		if accel == "vaapi" {
			cap.DevicePath = detectVAAPIDevice()
		}
		if accel == "cuda" || accel == "nvdec" {
			cap.DeviceName = detectNVIDIAGPU(ctx)
		}
		caps.Methods = append(caps.Methods, cap)
	}

	caps.Recommended = selectRecommended(caps.Methods)
	d.caps = caps

	slog.InfoContext(ctx, "hardware capabilities detected",
		slog.Int("count", len(caps.Methods)))

	return caps, nil
}

// Cached returns the last detected capabilities, or nil if Detect has
// never been called.
func (d *Detector) Cached() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.caps
}

func (d *Detector) detectHWAccels(ctx context.Context) []string {
	cmd := exec.CommandContext(ctx, d.ffmpegPath, "-hide_banner", "-hwaccels")
	output, err := cmd.Output()
	if err != nil {
		slog.WarnContext(ctx, "failed to detect hwaccels", slog.Any("error", err))
		return nil
	}

	var accels []string
	inList := false
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "Hardware acceleration methods:") {
			inList = true
			continue
		}
		if inList && !strings.Contains(line, ":") {
			accels = append(accels, line)
		}
	}
	return accels
}

var decoderLineRe = regexp.MustCompile(`^\s*V\.{5}\s+(\S+)\s+`)

func (d *Detector) detectHardwareDecoders(ctx context.Context) []string {
	cmd := exec.CommandContext(ctx, d.ffmpegPath, "-hide_banner", "-decoders")
	output, err := cmd.Output()
	if err != nil {
		slog.WarnContext(ctx, "failed to detect decoders", slog.Any("error", err))
		return nil
	}

	var decoders []string
	hwSuffixes := []string{"_cuvid", "_qsv", "_vaapi", "_videotoolbox", "_mf", "_v4l2m2m"}

	for _, line := range strings.Split(string(output), "\n") {
		matches := decoderLineRe.FindStringSubmatch(line)
		if len(matches) < 2 {
			continue
		}
		decoder := matches[1]
		for _, suffix := range hwSuffixes {
			if strings.HasSuffix(decoder, suffix) {
				decoders = append(decoders, decoder)
				break
			}
		}
	}
	return decoders
}

func detectVAAPIDevice() string {
	for _, path := range []string{"/dev/dri/renderD128", "/dev/dri/renderD129", "/dev/dri/renderD130"} {
		if matches, _ := filepath.Glob(path); len(matches) > 0 {
			return matches[0]
		}
	}
	if matches, _ := filepath.Glob("/dev/dri/renderD*"); len(matches) > 0 {
		return matches[0]
	}
	return ""
}

func detectNVIDIAGPU(ctx context.Context) string {
	cmd := exec.CommandContext(ctx, "nvidia-smi", "--query-gpu=name", "--format=csv,noheader,nounits")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[0])
}

func matchesAccel(codec, accel string) bool {
	codec = strings.ToLower(codec)
	switch strings.ToLower(accel) {
	case "cuda", "nvdec":
		return strings.Contains(codec, "cuvid")
	case "qsv":
		return strings.HasSuffix(codec, "_qsv")
	case "vaapi":
		return strings.HasSuffix(codec, "_vaapi")
	case "videotoolbox":
		return strings.HasSuffix(codec, "_videotoolbox")
	case "dxva2", "d3d11va":
		return strings.Contains(codec, "_dxva") || strings.Contains(codec, "_d3d11")
	case "vulkan":
		return strings.HasSuffix(codec, "_vulkan")
	}
	return false
}

func displayName(accel string) string {
	names := map[string]string{
		"cuda":         "NVIDIA CUDA",
		"nvdec":        "NVIDIA NVDEC",
		"qsv":          "Intel Quick Sync Video",
		"vaapi":        "Video Acceleration API (Linux)",
		"videotoolbox": "Apple VideoToolbox",
		"dxva2":        "DirectX Video Acceleration 2",
		"d3d11va":      "Direct3D 11 Video Acceleration",
		"vulkan":       "Vulkan Video",
	}
	if name, ok := names[accel]; ok {
		return name
	}
	return accel
}

// selectRecommended prioritizes NVIDIA, then Intel QSV, then VAAPI —
// the decoders most likely to be available and stable in a server
// deployment.
func selectRecommended(caps []Capability) *Capability {
	priority := []AccelType{AccelCUDA, AccelNVDEC, AccelQSV, AccelVAAPI, AccelVideoToolbox}
	for _, t := range priority {
		for i := range caps {
			if caps[i].Type == t && len(caps[i].SupportedDecoders) > 0 {
				return &caps[i]
			}
		}
	}
	return nil
}
