// Package config loads stage settings: built-in defaults, then an optional
// YAML file, then STAGESYNC_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	StageWidth  float64 `yaml:"stage_width" env:"STAGESYNC_STAGE_WIDTH"`
	StageHeight float64 `yaml:"stage_height" env:"STAGESYNC_STAGE_HEIGHT"`
	TPS         int     `yaml:"tps" env:"STAGESYNC_TPS"`

	Catalog string `yaml:"catalog" env:"STAGESYNC_CATALOG"`
	Watch   bool   `yaml:"watch" env:"STAGESYNC_WATCH"`

	BPM             float64 `yaml:"bpm" env:"STAGESYNC_BPM"`
	BeatsPerMeasure int     `yaml:"beats_per_measure" env:"STAGESYNC_BEATS_PER_MEASURE"`
	MetronomeClick  bool    `yaml:"metronome_click" env:"STAGESYNC_METRONOME_CLICK"`

	SyncTolerance time.Duration `yaml:"sync_tolerance" env:"STAGESYNC_SYNC_TOLERANCE"`
	SyncInterval  time.Duration `yaml:"sync_interval" env:"STAGESYNC_SYNC_INTERVAL"`

	MinFPS        float64       `yaml:"min_fps" env:"STAGESYNC_MIN_FPS"`
	MaxRenderTime time.Duration `yaml:"max_render_time" env:"STAGESYNC_MAX_RENDER_TIME"`
	WarnSustain   time.Duration `yaml:"warn_sustain" env:"STAGESYNC_WARN_SUSTAIN"`

	GeometryCacheSize int     `yaml:"geometry_cache_size" env:"STAGESYNC_GEOMETRY_CACHE_SIZE"`
	Volume            float64 `yaml:"volume" env:"STAGESYNC_VOLUME"`
	Muted             bool    `yaml:"muted" env:"STAGESYNC_MUTED"`
	Debug             bool    `yaml:"debug" env:"STAGESYNC_DEBUG"`
}

func Default() Config {
	return Config{
		StageWidth:        800,
		StageHeight:       600,
		TPS:               60,
		Catalog:           "demo.yaml",
		BPM:               120,
		BeatsPerMeasure:   4,
		SyncTolerance:     10 * time.Millisecond,
		SyncInterval:      500 * time.Millisecond,
		MinFPS:            30,
		MaxRenderTime:     12 * time.Millisecond,
		WarnSustain:       2 * time.Second,
		GeometryCacheSize: 128,
		Volume:            0.8,
	}
}

// Load reads path over the defaults and applies the environment. An empty
// path or a missing file leaves the defaults in place.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := Parse(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: %s: %w", path, err)
			}
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over cfg. Keys the document omits keep their values.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	switch {
	case c.StageWidth <= 0 || c.StageHeight <= 0:
		return fmt.Errorf("%w: stage size %.0fx%.0f", ErrInvalid, c.StageWidth, c.StageHeight)
	case c.TPS <= 0:
		return fmt.Errorf("%w: tps %d", ErrInvalid, c.TPS)
	case c.BPM < 0:
		return fmt.Errorf("%w: bpm %.1f", ErrInvalid, c.BPM)
	case c.BeatsPerMeasure <= 0:
		return fmt.Errorf("%w: beats per measure %d", ErrInvalid, c.BeatsPerMeasure)
	case c.SyncTolerance < 0 || c.SyncInterval < 0:
		return fmt.Errorf("%w: negative sync setting", ErrInvalid)
	case c.Volume < 0 || c.Volume > 1:
		return fmt.Errorf("%w: volume %.2f outside [0,1]", ErrInvalid, c.Volume)
	case c.GeometryCacheSize < 0:
		return fmt.Errorf("%w: geometry cache size %d", ErrInvalid, c.GeometryCacheSize)
	}
	return nil
}
