package cel

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
}

func TestParseConfigOverridesDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
width: 1920
height: 1080
resolution: 0.5
synchronous: true
log_level: debug
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 1920 || cfg.Height != 1080 {
		t.Errorf("canvas = %dx%d, want 1920x1080", cfg.Width, cfg.Height)
	}
	if cfg.Resolution != 0.5 || !cfg.Synchronous {
		t.Errorf("resolution/synchronous = %v/%v", cfg.Resolution, cfg.Synchronous)
	}
	// Unset keys keep their defaults.
	if cfg.LastFrame != 99 || !cfg.EffectsVisible || cfg.FrameCacheMB != 64 {
		t.Errorf("defaults lost: %+v", cfg)
	}
	lvl, err := cfg.Level()
	if err != nil || lvl != slog.LevelDebug {
		t.Errorf("Level = %v, %v, want debug", lvl, err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"zero width", func(c *Config) { c.Width = 0 }, "canvas"},
		{"resolution too high", func(c *Config) { c.Resolution = 9 }, "resolution"},
		{"resolution zero", func(c *Config) { c.Resolution = 0 }, "resolution"},
		{"negative workers", func(c *Config) { c.Workers = -1 }, "workers"},
		{"negative cache", func(c *Config) { c.FrameCacheMB = -1 }, "frame_cache_mb"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestConfigValidateFrames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FirstFrame, cfg.LastFrame = 10, 5
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("Validate() = %v, want ErrInvalidRange", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cel.yaml")
	if err := os.WriteFile(path, []byte("workers: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.WorkerCount() != 3 {
		t.Errorf("WorkerCount = %d, want 3", cfg.WorkerCount())
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadConfig of a missing file should fail")
	}
}

func TestParseConfigRejectsBadYAML(t *testing.T) {
	if _, err := ParseConfig([]byte("width: [")); err == nil {
		t.Error("ParseConfig should reject malformed YAML")
	}
}

func TestWorkerCountDetectsCores(t *testing.T) {
	if n := DefaultConfig().WorkerCount(); n < 1 {
		t.Errorf("WorkerCount = %d, want >= 1", n)
	}
}

func TestConfigNewLoggerUsesLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "warn"
	var buf bytes.Buffer
	l, err := cfg.NewLogger(&buf)
	if err != nil {
		t.Fatal(err)
	}
	l.Info("dropped")
	l.Warn("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Errorf("output = %q, want only the warning", out)
	}

	// Installed through SetLogger, the level gates cel's own records.
	SetLogger(l)
	t.Cleanup(func() { SetLogger(nil) })
	if Logger().Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info enabled under log_level warn")
	}

	cfg.LogLevel = "loud"
	if _, err := cfg.NewLogger(&buf); err == nil {
		t.Error("unknown level accepted")
	}
}
