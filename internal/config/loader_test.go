package config

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// setupTestHome points HOME at a temp dir and returns the projectkit config dir inside it.
func setupTestHome(t *testing.T) string {
	t.Helper()

	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "projectkit")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	return configDir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), perm); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath
}

// TestLoadWithFile_ValidYAML tests loading configuration from a valid YAML file.
func TestLoadWithFile_ValidYAML(t *testing.T) {
	configDir := setupTestHome(t)

	configPath := writeConfig(t, configDir, `server:
  port: 8081
  host: 127.0.0.1
  shutdown_timeout: 3s

projects:
  workspace: /srv/projects
  default_name: demo

archive:
  compression_level: 9
  max_files: 500
`, 0600)

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}

	if cfg.Server.Port != 8081 {
		t.Errorf("Server.Port = %d, want 8081", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.ShutdownTimeout.Duration() != 3*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 3s", cfg.Server.ShutdownTimeout.Duration())
	}
	if cfg.Projects.Workspace != "/srv/projects" {
		t.Errorf("Projects.Workspace = %q, want /srv/projects", cfg.Projects.Workspace)
	}
	if cfg.Projects.DefaultName != "demo" {
		t.Errorf("Projects.DefaultName = %q, want demo", cfg.Projects.DefaultName)
	}
	if cfg.Archive.CompressionLevel != 9 {
		t.Errorf("Archive.CompressionLevel = %d, want 9", cfg.Archive.CompressionLevel)
	}
	if cfg.Archive.MaxFiles != 500 {
		t.Errorf("Archive.MaxFiles = %d, want 500", cfg.Archive.MaxFiles)
	}

	// Keys absent from the file keep their defaults
	if !cfg.Projects.Staging {
		t.Error("Projects.Staging = false, want default true")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want default json", cfg.Logging.Format)
	}
}

// TestLoadWithFile_EnvironmentOverride tests that environment variables override YAML.
func TestLoadWithFile_EnvironmentOverride(t *testing.T) {
	configDir := setupTestHome(t)

	configPath := writeConfig(t, configDir, `server:
  port: 8081
projects:
  default_name: yaml-project
`, 0600)

	t.Setenv("PROJECTKIT_SERVER_PORT", "7777")
	t.Setenv("PROJECTKIT_PROJECTS_DEFAULT_NAME", "env-project")
	t.Setenv("PROJECTKIT_PROJECTS_STAGING", "false")

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want 7777 (from env override)", cfg.Server.Port)
	}
	if cfg.Projects.DefaultName != "env-project" {
		t.Errorf("Projects.DefaultName = %q, want env-project (from env override)", cfg.Projects.DefaultName)
	}
	if cfg.Projects.Staging {
		t.Error("Projects.Staging = true, want false (from env override)")
	}
}

// TestLoadWithFile_MissingFile tests handling of missing config file.
func TestLoadWithFile_MissingFile(t *testing.T) {
	configDir := setupTestHome(t)

	cfg, err := LoadWithFile(filepath.Join(configDir, "config.yaml"))
	if err != nil {
		t.Fatalf("LoadWithFile() should not error on missing file, got: %v", err)
	}

	want := NewDefaultConfig()
	if cfg.Server.Port != want.Server.Port {
		t.Errorf("Server.Port = %d, want default %d", cfg.Server.Port, want.Server.Port)
	}
	if cfg.Projects.DefaultName != "testProject" {
		t.Errorf("Projects.DefaultName = %q, want testProject", cfg.Projects.DefaultName)
	}
}

// TestLoadWithFile_DefaultPath tests that an empty path resolves under HOME.
func TestLoadWithFile_DefaultPath(t *testing.T) {
	configDir := setupTestHome(t)
	writeConfig(t, configDir, "server:\n  port: 6060\n", 0600)

	cfg, err := LoadWithFile("")
	if err != nil {
		t.Fatalf("LoadWithFile(\"\") error = %v, want nil", err)
	}
	if cfg.Server.Port != 6060 {
		t.Errorf("Server.Port = %d, want 6060", cfg.Server.Port)
	}
}

// TestLoadWithFile_InvalidYAML tests handling of malformed YAML.
func TestLoadWithFile_InvalidYAML(t *testing.T) {
	configDir := setupTestHome(t)

	configPath := writeConfig(t, configDir, `server:
  port: not-a-number
  invalid syntax here
`, 0600)

	_, err := LoadWithFile(configPath)
	if err == nil {
		t.Error("LoadWithFile() should error on invalid YAML, got nil")
	}
}

// TestLoadWithFile_Validation tests configuration validation.
func TestLoadWithFile_Validation(t *testing.T) {
	configDir := setupTestHome(t)

	configPath := writeConfig(t, configDir, "server:\n  port: 99999\n", 0600)

	_, err := LoadWithFile(configPath)
	if err == nil {
		t.Error("LoadWithFile() should error on invalid port, got nil")
	}
}

// TestLoadWithFile_PathTraversal tests path traversal attack prevention.
func TestLoadWithFile_PathTraversal(t *testing.T) {
	setupTestHome(t)

	_, err := LoadWithFile("../../../../etc/passwd")
	if err == nil {
		t.Fatal("Expected error for path traversal, got nil")
	}
	if !strings.Contains(err.Error(), "must be in ~/.config/projectkit/ or /etc/projectkit/") {
		t.Errorf("Expected path validation error, got: %v", err)
	}
}

// TestLoadWithFile_InsecurePermissions tests file permission enforcement.
func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Skipping permission test on Windows")
	}

	configDir := setupTestHome(t)
	configPath := writeConfig(t, configDir, "server:\n  port: 8081\n", 0644)
	// umask may have trimmed the mode; force it
	if err := os.Chmod(configPath, 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadWithFile(configPath)
	if err == nil {
		t.Fatal("Expected error for insecure permissions, got nil")
	}
	if !strings.Contains(err.Error(), "insecure") {
		t.Errorf("Expected 'insecure permissions' error, got: %v", err)
	}
}

// TestLoadWithFile_FileTooLarge tests file size limit enforcement.
func TestLoadWithFile_FileTooLarge(t *testing.T) {
	configDir := setupTestHome(t)

	largeContent := bytes.Repeat([]byte("# comment line\n"), 150000)
	configPath := writeConfig(t, configDir, string(largeContent), 0600)

	_, err := LoadWithFile(configPath)
	if err == nil {
		t.Fatal("Expected error for large file, got nil")
	}
	if !strings.Contains(err.Error(), "too large") {
		t.Errorf("Expected 'too large' error, got: %v", err)
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"PROJECTKIT_SERVER_PORT":           "server.port",
		"PROJECTKIT_PROJECTS_DEFAULT_NAME": "projects.default_name",
		"PROJECTKIT_ARCHIVE_MAX_BYTES":     "archive.max_bytes",
		"PROJECTKIT_DEBUG":                 "debug",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}
