package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_NonexistentFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Load with nonexistent file should not error: %v", err)
	}

	// Verify defaults.
	if cfg.Log.Path != "time_log.json" {
		t.Errorf("default log path: expected time_log.json, got %q", cfg.Log.Path)
	}
	if !cfg.Log.Index {
		t.Error("default index: expected true")
	}
	if cfg.Report.Format != "csv" {
		t.Errorf("default report format: expected csv, got %q", cfg.Report.Format)
	}
	if cfg.Report.Output != "" {
		t.Errorf("default report output: expected stdout, got %q", cfg.Report.Output)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default level: expected info, got %q", cfg.Logging.Level)
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
log:
  path: "/var/lib/timeclock/punches.json"
  index: false
report:
  format: json
  output: "report.json"
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Log.Path != "/var/lib/timeclock/punches.json" {
		t.Errorf("log path: got %q", cfg.Log.Path)
	}
	if cfg.Log.Index {
		t.Error("index: expected false")
	}
	if cfg.Report.Format != "json" {
		t.Errorf("report format: expected json, got %q", cfg.Report.Format)
	}
	if cfg.Report.Output != "report.json" {
		t.Errorf("report output: got %q", cfg.Report.Output)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("level: expected debug, got %v", cfg.SlogLevel())
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(`{{{invalid yaml`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoad_PartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
report:
  format: json
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Report.Format != "json" {
		t.Errorf("format: expected json, got %q", cfg.Report.Format)
	}
	// Log section should retain defaults.
	if cfg.Log.Path != "time_log.json" || !cfg.Log.Index {
		t.Errorf("log should keep defaults, got %+v", cfg.Log)
	}
}

func TestValidate(t *testing.T) {
	valid := *applyDefaults()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"empty log path", func(c *Config) { c.Log.Path = "" }, true},
		{"json format", func(c *Config) { c.Report.Format = "json" }, false},
		{"unknown format", func(c *Config) { c.Report.Format = "xlsx" }, true},
		{"upper-case level", func(c *Config) { c.Logging.Level = "WARN" }, false},
		{"unknown level", func(c *Config) { c.Logging.Level = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := validate(&cfg)
			if tt.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLogPath(t *testing.T) {
	cfg := applyDefaults()
	if got := cfg.LogPath("/home/me/.timeclock"); got != filepath.Join("/home/me/.timeclock", "time_log.json") {
		t.Errorf("relative path: got %q", got)
	}

	cfg.Log.Path = "/srv/log.json"
	if got := cfg.LogPath("/home/me/.timeclock"); got != "/srv/log.json" {
		t.Errorf("absolute path: got %q", got)
	}
}

func TestWriteDefault_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load after WriteDefault: %v", err)
	}

	if cfg.Log.Path != "time_log.json" {
		t.Errorf("roundtrip log path: got %q", cfg.Log.Path)
	}
	if !cfg.Log.Index {
		t.Error("roundtrip index: expected true")
	}
}

func TestWatcher_FiresOnLogWrite(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "time_log.json")

	changed := make(chan struct{}, 8)
	w, err := NewWatcher(logPath, "", WatchTargets{
		OnLogChange: func() { changed <- struct{}{} },
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(logPath, []byte(`{"log": []}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("OnLogChange did not fire")
	}

	if err := w.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close should be a no-op: %v", err)
	}
}
