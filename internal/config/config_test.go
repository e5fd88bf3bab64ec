package config

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewDefaultConfig_Valid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should be valid, got: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "port too low",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "port too high",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "zero shutdown timeout",
			mutate:  func(c *Config) { c.Server.ShutdownTimeout = 0 },
			wantErr: "shutdown timeout",
		},
		{
			name:    "negative download rate",
			mutate:  func(c *Config) { c.Server.DownloadRate = -1 },
			wantErr: "download rate",
		},
		{
			name:    "empty workspace",
			mutate:  func(c *Config) { c.Projects.Workspace = "" },
			wantErr: "workspace",
		},
		{
			name:    "empty default name",
			mutate:  func(c *Config) { c.Projects.DefaultName = "" },
			wantErr: "default_name",
		},
		{
			name:    "compression level out of range",
			mutate:  func(c *Config) { c.Archive.CompressionLevel = 12 },
			wantErr: "compression level",
		},
		{
			name:    "negative max files",
			mutate:  func(c *Config) { c.Archive.MaxFiles = -1 },
			wantErr: "archive limits",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging format",
		},
		{
			name: "telemetry without service name",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.ServiceName = ""
			},
			wantErr: "service name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if d.Duration() != 90*time.Second {
		t.Errorf("Duration() = %v, want 1m30s", d.Duration())
	}

	if err := d.UnmarshalText([]byte("-5s")); err == nil {
		t.Error("UnmarshalText() should reject negative durations")
	}

	out, err := json.Marshal(Duration(2 * time.Second))
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(out) != `"2s"` {
		t.Errorf("MarshalJSON() = %s, want \"2s\"", out)
	}
}
