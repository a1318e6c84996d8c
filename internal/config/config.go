// Package config provides configuration management for smartcut using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmylchreest/smartcut/pkg/bytesize"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort        = 8088
	defaultServerTimeout     = 30 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultMaxOpenConns      = 25
	defaultMaxIdleConns      = 10
	defaultConnMaxIdleTime   = 30 * time.Minute
	defaultMuxTimeout        = 10 * time.Minute
	defaultChapterInterval   = 5 * time.Minute
	defaultDecodeOvershoot   = 20
	defaultFrameRate         = 25.0
	defaultCRFH264           = 20
	defaultCRFH265           = 24
	defaultIndexCacheMaxSize = 2 * 1024 * 1024 * 1024 // 2GB
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
	Cut       CutConfig       `mapstructure:"cut"`
	Mux       MuxConfig       `mapstructure:"mux"`
}

// ServerConfig holds HTTP control API configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds job-history database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// WorkspaceConfig holds temp/output directory configuration.
type WorkspaceConfig struct {
	TempDir          string        `mapstructure:"temp_dir"`
	OutputDir        string        `mapstructure:"output_dir"`
	IndexCacheDir    string        `mapstructure:"index_cache_dir"`
	IndexCacheMaxSze bytesize.Size `mapstructure:"index_cache_max_size"`
	CleanupInterval  string        `mapstructure:"cleanup_cron"` // robfig/cron 6-field expression
	CleanupMaxAge    time.Duration `mapstructure:"cleanup_max_age"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// FFmpegConfig holds FFmpeg/FFprobe binary configuration.
type FFmpegConfig struct {
	BinaryPath      string   `mapstructure:"binary_path"`      // Path to ffmpeg binary (empty = auto-detect)
	ProbePath       string   `mapstructure:"probe_path"`       // Path to ffprobe binary (empty = auto-detect)
	HWAccelPriority []string `mapstructure:"hwaccel_priority"` // Priority order: vaapi, cuda, qsv, videotoolbox
}

// CutConfig holds Smart Cut planning and re-encode defaults.
type CutConfig struct {
	CRFH264            int  `mapstructure:"crf_h264"`
	CRFH265            int  `mapstructure:"crf_h265"`
	DecodeOvershoot    int  `mapstructure:"decode_overshoot"`    // frames past R_end fed to the decoder
	DefaultFrameRate   float64 `mapstructure:"default_frame_rate"`
	DiscoverReorderDly bool `mapstructure:"discover_reorder_delay"`
}

// MuxConfig holds the external Matroska muxer driver configuration.
type MuxConfig struct {
	BinaryPath       string        `mapstructure:"binary_path"` // path to mkvmerge (empty = auto-detect)
	Timeout          time.Duration `mapstructure:"timeout"`
	ChapterInterval  time.Duration `mapstructure:"chapter_interval"`
	GenerateChapters bool          `mapstructure:"generate_chapters"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with SMARTCUT_ and use underscores for nesting.
// Example: SMARTCUT_SERVER_PORT=8088.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/smartcut")
		v.AddConfigPath("$HOME/.smartcut")
	}

	v.SetEnvPrefix("SMARTCUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "smartcut.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("workspace.temp_dir", "")
	v.SetDefault("workspace.output_dir", "./output")
	v.SetDefault("workspace.index_cache_dir", "")
	v.SetDefault("workspace.index_cache_max_size", defaultIndexCacheMaxSize)
	v.SetDefault("workspace.cleanup_cron", "0 */30 * * * *")
	v.SetDefault("workspace.cleanup_max_age", time.Hour)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.hwaccel_priority", []string{"vaapi", "cuda", "qsv", "videotoolbox"})

	v.SetDefault("cut.crf_h264", defaultCRFH264)
	v.SetDefault("cut.crf_h265", defaultCRFH265)
	v.SetDefault("cut.decode_overshoot", defaultDecodeOvershoot)
	v.SetDefault("cut.default_frame_rate", defaultFrameRate)
	v.SetDefault("cut.discover_reorder_delay", true)

	v.SetDefault("mux.binary_path", "")
	v.SetDefault("mux.timeout", defaultMuxTimeout)
	v.SetDefault("mux.chapter_interval", defaultChapterInterval)
	v.SetDefault("mux.generate_chapters", false)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Workspace.OutputDir == "" {
		return fmt.Errorf("workspace.output_dir is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	const maxCRF = 51
	if c.Cut.CRFH264 < 0 || c.Cut.CRFH264 > maxCRF {
		return fmt.Errorf("cut.crf_h264 must be between 0 and %d", maxCRF)
	}
	if c.Cut.CRFH265 < 0 || c.Cut.CRFH265 > maxCRF {
		return fmt.Errorf("cut.crf_h265 must be between 0 and %d", maxCRF)
	}
	if c.Cut.DefaultFrameRate <= 0 {
		return fmt.Errorf("cut.default_frame_rate must be positive")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SessionConfig is the copy-on-write configuration threaded through one cut
// job. It is built once from *Config
// plus per-job overrides and never mutated after the job starts.
type SessionConfig struct {
	FFmpegBinaryPath   string
	CRFH264            int
	CRFH265            int
	DecodeOvershoot    int
	FrameRate          float64
	DiscoverReorderDly bool
	HWAccelPriority    []string
	MuxBinaryPath      string
	MuxTimeout         time.Duration
	GenerateChapters   bool
	ChapterInterval    time.Duration
	TempDir            string
	OutputDir          string
}

// NewSessionConfig builds a SessionConfig snapshot from the application
// configuration. Per-job overrides (e.g. a CLI-provided frame rate or CRF)
// are applied by the caller against the returned value, which is then
// passed by value for the remainder of the job.
func NewSessionConfig(cfg *Config) SessionConfig {
	return SessionConfig{
		FFmpegBinaryPath:   cfg.FFmpeg.BinaryPath,
		CRFH264:            cfg.Cut.CRFH264,
		CRFH265:            cfg.Cut.CRFH265,
		DecodeOvershoot:    cfg.Cut.DecodeOvershoot,
		FrameRate:          cfg.Cut.DefaultFrameRate,
		DiscoverReorderDly: cfg.Cut.DiscoverReorderDly,
		HWAccelPriority:    append([]string(nil), cfg.FFmpeg.HWAccelPriority...),
		MuxBinaryPath:      cfg.Mux.BinaryPath,
		MuxTimeout:         cfg.Mux.Timeout,
		GenerateChapters:   cfg.Mux.GenerateChapters,
		ChapterInterval:    cfg.Mux.ChapterInterval,
		TempDir:            cfg.Workspace.TempDir,
		OutputDir:          cfg.Workspace.OutputDir,
	}
}
