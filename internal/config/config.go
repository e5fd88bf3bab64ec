// Package config provides configuration loading for projectkit.
//
// Configuration is assembled from defaults, an optional YAML file, and
// PROJECTKIT_* environment variables, in that order of precedence (lowest
// first). See LoadWithFile.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/flate"
)

// Config holds the complete projectkit configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Projects  ProjectsConfig  `koanf:"projects"`
	Archive   ArchiveConfig   `koanf:"archive"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// DownloadRate is the sustained number of download requests per second
	// allowed per client. Zero disables rate limiting.
	DownloadRate  float64 `koanf:"download_rate"`
	DownloadBurst int     `koanf:"download_burst"`
}

// ProjectsConfig controls where and how projects are materialized.
type ProjectsConfig struct {
	// Workspace is the directory project names are resolved against.
	Workspace string `koanf:"workspace"`
	// DefaultName is used when a request omits the project name.
	DefaultName string `koanf:"default_name"`
	// Staging writes brand-new projects into a hidden sibling directory and
	// renames it into place once every file has been written.
	Staging bool `koanf:"staging"`
}

// ArchiveConfig controls zip archive construction.
type ArchiveConfig struct {
	// CompressionLevel is a flate level: -2 (Huffman only) through 9.
	CompressionLevel int `koanf:"compression_level"`
	// MaxFiles caps the number of archived files. Zero means no limit.
	MaxFiles int `koanf:"max_files"`
	// MaxBytes caps the total uncompressed bytes archived. Zero means no limit.
	MaxBytes int64 `koanf:"max_bytes"`
}

// LoggingConfig holds the subset of logging settings exposed to operators.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry exporter settings.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// NewDefaultConfig returns the built-in defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            5000,
			ShutdownTimeout: Duration(10 * time.Second),
			DownloadRate:    5,
			DownloadBurst:   10,
		},
		Projects: ProjectsConfig{
			Workspace:   ".",
			DefaultName: "testProject",
			Staging:     true,
		},
		Archive: ArchiveConfig{
			CompressionLevel: flate.DefaultCompression,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			ServiceName: "projectkit",
			SampleRate:  1.0,
		},
	}
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - The workspace or default project name is empty
//   - The compression level is outside the flate range
//   - Archive limits are negative
//   - The log format is unknown
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Server.DownloadRate < 0 {
		return errors.New("download rate cannot be negative")
	}

	if c.Projects.Workspace == "" {
		return errors.New("projects workspace is required")
	}

	if c.Projects.DefaultName == "" {
		return errors.New("projects default_name is required")
	}

	if c.Archive.CompressionLevel < flate.HuffmanOnly || c.Archive.CompressionLevel > flate.BestCompression {
		return fmt.Errorf("invalid archive compression level: %d (must be %d-%d)",
			c.Archive.CompressionLevel, flate.HuffmanOnly, flate.BestCompression)
	}

	if c.Archive.MaxFiles < 0 || c.Archive.MaxBytes < 0 {
		return errors.New("archive limits cannot be negative")
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	return nil
}
