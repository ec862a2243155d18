package cel

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"gopkg.in/yaml.v3"
)

// Config holds the settings of a Scene.
type Config struct {
	// Canvas size in scene units. It is also the max-bounds rectangle used
	// when ClipToBounds is set.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// FirstFrame and LastFrame bound ExportRange when it is called without
	// an explicit range.
	FirstFrame int `yaml:"first_frame"`
	LastFrame  int `yaml:"last_frame"`

	// Resolution scales scene units to bitmap pixels. 0.5 renders previews
	// at half size.
	Resolution float64 `yaml:"resolution"`

	// Workers is the render pool size. 0 uses the number of physical cores.
	Workers int `yaml:"workers"`
	// Synchronous executes jobs inline during ProcessAll.
	Synchronous bool `yaml:"synchronous"`

	EffectsVisible bool `yaml:"effects_visible"`
	ClipToBounds   bool `yaml:"clip_to_bounds"`

	// FrameCacheMB is the memory budget of exported frames kept by
	// RenderFrame. 0 disables the cache.
	FrameCacheMB int `yaml:"frame_cache_mb"`

	Debug    bool   `yaml:"debug"`
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the settings used when no configuration file is given.
func DefaultConfig() Config {
	return Config{
		Width:          640,
		Height:         480,
		FirstFrame:     0,
		LastFrame:      99,
		Resolution:     1,
		EffectsVisible: true,
		FrameCacheMB:   64,
		LogLevel:       "info",
	}
}

// ParseConfig decodes YAML over DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("cel: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses the YAML file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cel: load config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w (%s)", err, path)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("cel: config: canvas %dx%d must be positive", c.Width, c.Height)
	case c.Resolution <= 0 || c.Resolution > 8:
		return fmt.Errorf("cel: config: resolution %v out of (0, 8]", c.Resolution)
	case c.FirstFrame > c.LastFrame:
		return fmt.Errorf("cel: config: frames [%d, %d]: %w", c.FirstFrame, c.LastFrame, ErrInvalidRange)
	case c.Workers < 0:
		return fmt.Errorf("cel: config: workers %d must not be negative", c.Workers)
	case c.FrameCacheMB < 0:
		return fmt.Errorf("cel: config: frame_cache_mb %d must not be negative", c.FrameCacheMB)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the parsed LogLevel.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("cel: config: log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// NewLogger returns a text logger writing to w at the configured level, for
// use with SetLogger.
func (c Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	lvl, err := c.Level()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// WorkerCount returns Workers, or the number of physical cores when Workers
// is 0.
func (c Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	n, err := cpu.Counts(false)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// MaxBounds returns the canvas rectangle in scene units.
func (c Config) MaxBounds() Rect {
	return Rect{Width: float64(c.Width), Height: float64(c.Height)}
}
