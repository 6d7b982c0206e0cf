// Package config handles loading, validating, and writing the timeclock
// configuration from ~/.timeclock/config.yaml.
//
// The config defines:
//   - Where the hash-chained time log lives, and whether it is indexed
//   - The default report format and output file
//   - The log level for diagnostics on stderr
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level timeclock configuration.
// Loaded from config.yaml, with defaults for fields that are not set.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Report  ReportConfig  `yaml:"report"`
	Logging LoggingConfig `yaml:"logging"`
}

// LogConfig locates the time log.
//
// Path may be relative; it is resolved against the config directory.
// Index enables the SQLite query index kept next to the log file.
type LogConfig struct {
	Path  string `yaml:"path"`
	Index bool   `yaml:"index"`
}

// ReportConfig sets defaults for `timeclock report`.
// An empty Output writes to stdout.
type ReportConfig struct {
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// LoggingConfig controls diagnostic output.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads and parses config.yaml from the given path.
// If the file doesn't exist, returns defaults (not an error).
// Invalid YAML or validation failures return an error.
func Load(path string) (*Config, error) {
	cfg := applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// WriteDefault writes a default config.yaml with all fields populated
// and a comment header.
func WriteDefault(path string) error {
	cfg := applyDefaults()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling default config: %w", err)
	}

	header := `# timeclock configuration
#
# log:
#   path: Time log file; relative paths are resolved against this directory
#   index: Keep a SQLite query index next to the log (rebuilt from the log)
#
# report:
#   format: csv or json
#   output: File to write reports to (empty = stdout)
#
# logging:
#   level: debug, info, warn, or error

`
	return os.WriteFile(path, []byte(header+string(data)), 0o644)
}

// LogPath returns the time log location, resolving a relative Log.Path
// against dir.
func (c *Config) LogPath(dir string) string {
	if filepath.IsAbs(c.Log.Path) {
		return c.Log.Path
	}
	return filepath.Join(dir, c.Log.Path)
}

// SlogLevel maps Logging.Level to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// applyDefaults returns a Config with all fields set to their default values.
func applyDefaults() *Config {
	return &Config{
		Log: LogConfig{
			Path:  "time_log.json",
			Index: true,
		},
		Report: ReportConfig{
			Format: "csv",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// validate checks the config for logical errors after parsing.
func validate(cfg *Config) error {
	if cfg.Log.Path == "" {
		return fmt.Errorf("log.path must not be empty")
	}

	switch cfg.Report.Format {
	case "csv", "json":
	default:
		return fmt.Errorf("report.format %q is not supported (use csv or json)", cfg.Report.Format)
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported (use debug, info, warn, or error)", cfg.Logging.Level)
	}

	return nil
}
