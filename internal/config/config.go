// Package config loads recorder settings from a YAML file with
// RECORDER_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-recorder/pkg/audioio"
)

// Defaults.
const (
	DefaultAddr         = "127.0.0.1:8089"
	DefaultExportDir    = "."
	DefaultEncoder      = "mp3"
	DefaultBitrateKbps  = 128
	DefaultPumpInterval = 50 * time.Millisecond
)

// Config is the complete recorder configuration.
type Config struct {
	Audio  audioio.Config `yaml:"audio"`
	Server ServerConfig   `yaml:"server"`
	Export ExportConfig   `yaml:"export"`
	Log    LogConfig      `yaml:"log"`

	// PumpInterval is how often captured blocks are moved into the
	// recording buffer and metrics are published.
	PumpInterval time.Duration `yaml:"pump_interval"`
}

// ServerConfig configures the control server.
type ServerConfig struct {
	// Addr is the listen address. Empty disables the server.
	Addr string `yaml:"addr"`

	// AllowedOrigins is a comma-separated list of origins granted CORS
	// access. Empty sends no CORS headers.
	AllowedOrigins string `yaml:"allowed_origins"`
}

// ExportConfig configures file export.
type ExportConfig struct {
	Dir         string `yaml:"dir"`
	Encoder     string `yaml:"encoder"`
	FFmpegPath  string `yaml:"ffmpeg_path"`
	BitrateKbps int    `yaml:"bitrate_kbps"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Audio:  audioio.DefaultConfig(),
		Server: ServerConfig{Addr: DefaultAddr},
		Export: ExportConfig{
			Dir:         DefaultExportDir,
			Encoder:     DefaultEncoder,
			BitrateKbps: DefaultBitrateKbps,
		},
		Log:          LogConfig{Level: "info"},
		PumpInterval: DefaultPumpInterval,
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from RECORDER_* variables looked up with getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	var backend string
	str("RECORDER_BACKEND", &backend)
	if backend != "" {
		c.Audio.Backend = audioio.Backend(backend)
	}
	str("RECORDER_ADDR", &c.Server.Addr)
	str("RECORDER_ALLOWED_ORIGINS", &c.Server.AllowedOrigins)
	str("RECORDER_EXPORT_DIR", &c.Export.Dir)
	str("RECORDER_ENCODER", &c.Export.Encoder)
	str("RECORDER_FFMPEG", &c.Export.FFmpegPath)
	str("RECORDER_LOG_LEVEL", &c.Log.Level)
	str("RECORDER_LOG_FILE", &c.Log.File)

	for key, dst := range map[string]*int{
		"RECORDER_DEVICE":      &c.Audio.DeviceIndex,
		"RECORDER_SAMPLE_RATE": &c.Audio.SampleRate,
		"RECORDER_CHANNELS":    &c.Audio.Channels,
		"RECORDER_BLOCK_SIZE":  &c.Audio.BlockSize,
		"RECORDER_BITRATE":     &c.Export.BitrateKbps,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	if v := getenv("RECORDER_PUMP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("RECORDER_PUMP_INTERVAL: %w", err)
		}
		c.PumpInterval = d
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if c.PumpInterval <= 0 {
		return fmt.Errorf("pump_interval must be positive, got %s", c.PumpInterval)
	}
	if c.Export.BitrateKbps < 0 {
		return fmt.Errorf("export.bitrate_kbps must not be negative, got %d", c.Export.BitrateKbps)
	}
	return nil
}
