package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"rotoscope/internal/logger"
	"rotoscope/internal/processing"
	"rotoscope/internal/processing/methods"
	"rotoscope/internal/segmentation"

	"gopkg.in/yaml.v3"
)

// Config is the file-backed configuration. Command-line flags override it.
type Config struct {
	Method        string                    `yaml:"method"`
	Params        processing.Params         `yaml:"params"`
	Methods       map[string]ParamsOverride `yaml:"methods"`
	Workers       int                       `yaml:"workers"`
	MemoryLimitMB int64                     `yaml:"memory_limit_mb"`
	Log           LogConfig                 `yaml:"log"`
	Output        OutputConfig              `yaml:"output"`
	Segmentation  SegmentationConfig        `yaml:"segmentation"`
}

// ParamsOverride replaces only the fields it sets.
type ParamsOverride struct {
	Size  *int `yaml:"size"`
	Depth *int `yaml:"depth"`
}

type LogConfig struct {
	Level  string        `yaml:"level"`
	Format logger.Format `yaml:"format"`
}

type OutputConfig struct {
	JPEGQuality int     `yaml:"jpeg_quality"`
	WebPQuality float32 `yaml:"webp_quality"`
	VideoCodec  string  `yaml:"video_codec"`
}

type SegmentationConfig struct {
	Enabled       bool                    `yaml:"enabled"`
	Threshold     float32                 `yaml:"threshold"`
	FeatherRadius float64                 `yaml:"feather_radius"`
	Model         segmentation.ONNXConfig `yaml:"model"`
}

func Default() Config {
	return Config{
		Method:        methods.DefaultMethod,
		Params:        processing.DefaultParams(),
		Methods:       map[string]ParamsOverride{},
		Workers:       runtime.NumCPU(),
		MemoryLimitMB: 2048,
		Log: LogConfig{
			Level:  "info",
			Format: logger.FormatConsole,
		},
		Output: OutputConfig{
			JPEGQuality: 95,
			WebPQuality: 90,
		},
		Segmentation: SegmentationConfig{
			Threshold:     segmentation.DefaultThreshold,
			FeatherRadius: 3,
			Model:         segmentation.DefaultONNXConfig(),
		},
	}
}

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Parse(data []byte) (Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Methods == nil {
		cfg.Methods = map[string]ParamsOverride{}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	manager := methods.NewManager()

	if _, err := manager.Get(c.Method); err != nil {
		return fmt.Errorf("method: %w", err)
	}
	if err := c.Params.Validate(); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	for name := range c.Methods {
		if _, err := manager.Get(name); err != nil {
			return fmt.Errorf("methods: %w", err)
		}
		if err := c.ParamsFor(name).Validate(); err != nil {
			return fmt.Errorf("methods.%s: %w", name, err)
		}
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.MemoryLimitMB < 1 {
		return fmt.Errorf("memory_limit_mb must be positive, got %d", c.MemoryLimitMB)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case logger.FormatConsole, logger.FormatJSON:
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}

	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("output.jpeg_quality must be 1-100, got %d", c.Output.JPEGQuality)
	}
	if c.Output.WebPQuality <= 0 || c.Output.WebPQuality > 100 {
		return fmt.Errorf("output.webp_quality must be in (0, 100], got %v", c.Output.WebPQuality)
	}
	if c.Output.VideoCodec != "" && len(c.Output.VideoCodec) != 4 {
		return fmt.Errorf("output.video_codec must be a FourCC, got %q", c.Output.VideoCodec)
	}

	if c.Segmentation.Threshold <= 0 || c.Segmentation.Threshold > 1 {
		return fmt.Errorf("segmentation.threshold must be in (0, 1], got %v", c.Segmentation.Threshold)
	}
	if c.Segmentation.FeatherRadius < 0 {
		return fmt.Errorf("segmentation.feather_radius must not be negative")
	}
	if c.Segmentation.Enabled {
		if err := c.Segmentation.Model.Validate(); err != nil {
			return fmt.Errorf("segmentation.model: %w", err)
		}
	}

	return nil
}

// ParamsFor returns the global params with any per-method override applied.
func (c Config) ParamsFor(method string) processing.Params {
	params := c.Params
	override, ok := c.Methods[method]
	if !ok {
		return params
	}
	if override.Size != nil {
		params.Size = *override.Size
	}
	if override.Depth != nil {
		params.Depth = *override.Depth
	}
	return params
}

// MemoryLimitBytes converts MemoryLimitMB for the memory manager.
func (c Config) MemoryLimitBytes() int64 {
	return c.MemoryLimitMB * 1024 * 1024
}
