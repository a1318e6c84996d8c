package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/smartcut/internal/config"
	"github.com/jmylchreest/smartcut/pkg/bytesize"
	"github.com/jmylchreest/smartcut/pkg/duration"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing smartcut configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows all available configuration options with their default values.
You can redirect this output to a file to create a configuration template:

  smartcut config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml, .smartcut.yaml, /etc/smartcut/config.yaml)
  - Environment variables (SMARTCUT_SERVER_PORT, SMARTCUT_CUT_CRF_H264, etc.)
  - Command-line flags (for some options)

Environment variables use the SMARTCUT_ prefix and underscores for nesting.
Example: server.port -> SMARTCUT_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a struct to a map, formatting durations and sizes for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Tag.Get("yaml")
		}
		if key == "" {
			key = fieldType.Name
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = duration.Format(v)
		case bytesize.Size:
			result[key] = bytesize.Format(v)
		case int64:
			if contains(key, "size", "bytes") {
				result[key] = bytesize.Format(bytesize.Size(v))
			} else {
				result[key] = v
			}
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func contains(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if len(s) >= len(sub) {
			for i := 0; i <= len(s)-len(sub); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfgMap := toMap(cfg)

	yamlData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# smartcut Configuration File")
	fmt.Println("# ===========================")
	fmt.Println("#")
	fmt.Println("# All values shown below are defaults.")
	fmt.Println("# Duration format: 30s, 5m, 1h, 30d")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides:")
	fmt.Println("#   SMARTCUT_SERVER_HOST, SMARTCUT_SERVER_PORT")
	fmt.Println("#   SMARTCUT_DATABASE_DRIVER, SMARTCUT_DATABASE_DSN")
	fmt.Println("#   SMARTCUT_WORKSPACE_TEMP_DIR")
	fmt.Println("#   SMARTCUT_FFMPEG_BINARY_PATH, SMARTCUT_MUX_BINARY_PATH")
	fmt.Println("#   SMARTCUT_CUT_CRF_H264, SMARTCUT_CUT_CRF_H265")
	fmt.Println("#   SMARTCUT_LOGGING_LEVEL, SMARTCUT_LOGGING_FORMAT")
	fmt.Println("#   etc.")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
