package audioio

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.SampleRate != 44100 {
		t.Errorf("expected sample rate 44100, got %d", cfg.SampleRate)
	}
	if cfg.Channels != 1 {
		t.Errorf("expected 1 channel, got %d", cfg.Channels)
	}
	if cfg.BlockSize != 1024 {
		t.Errorf("expected block size 1024, got %d", cfg.BlockSize)
	}
	if cfg.DeviceIndex != DefaultDevice {
		t.Errorf("expected default device, got %d", cfg.DeviceIndex)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }, true},
		{"negative channels", func(c *Config) { c.Channels = -1 }, true},
		{"zero block size", func(c *Config) { c.BlockSize = 0 }, true},
		{"device below default", func(c *Config) { c.DeviceIndex = -2 }, true},
		{"explicit device", func(c *Config) { c.DeviceIndex = 3 }, false},
		{"unknown backend", func(c *Config) { c.Backend = "alsa" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_BlockDuration(t *testing.T) {
	cfg := Config{SampleRate: 48000, Channels: 2, BlockSize: 960}

	if d := cfg.BlockDuration(); d != 20*time.Millisecond {
		t.Errorf("expected 20ms, got %v", d)
	}
	if n := cfg.BlockSamples(); n != 1920 {
		t.Errorf("expected 1920 samples, got %d", n)
	}
}

func TestNewSource_Mock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock

	src, err := NewSource(cfg, nil)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	if src.Name() != "mock" {
		t.Errorf("expected mock source, got %s", src.Name())
	}
}

func TestNewSource_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampleRate = 0

	if _, err := NewSource(cfg, nil); err == nil {
		t.Error("expected error for invalid config")
	}
}

func TestAvailableBackends_IncludesMock(t *testing.T) {
	found := false
	for _, b := range AvailableBackends() {
		if b == BackendMock {
			found = true
		}
	}
	if !found {
		t.Error("mock backend should always be available")
	}
}
