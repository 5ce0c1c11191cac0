package audioio

import (
	"fmt"
	"log/slog"
)

// The mock backend plays a test tone so the recorder is usable without hardware.
const (
	mockToneHz        = 440
	mockToneAmplitude = 0.25
)

// NewSource creates a new audio source with the given configuration.
// If cfg.Backend is BackendAuto, the best available backend is selected.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto || backend == "" {
		backend = detectBestBackend()
		if backend == BackendMock {
			logger.Warn("no native audio backend compiled in, falling back to mock source")
		}
	}
	cfg.Backend = backend

	logger.Info("creating audio source",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"block_size", cfg.BlockSize,
		"device", cfg.DeviceIndex,
	)

	switch backend {
	case BackendMock:
		return NewMockSource(cfg, logger, WithSineWave(mockToneHz, mockToneAmplitude)), nil
	case BackendMiniaudio:
		return newMalgoSource(cfg, logger)
	case BackendPortAudio:
		return newPortAudioSource(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// detectBestBackend returns the best backend compiled into this binary.
func detectBestBackend() Backend {
	switch {
	case malgoAvailable:
		return BackendMiniaudio
	case portAudioAvailable:
		return BackendPortAudio
	default:
		return BackendMock
	}
}

// AvailableBackends returns the list of backends compiled into this binary.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock}

	if malgoAvailable {
		backends = append(backends, BackendMiniaudio)
	}
	if portAudioAvailable {
		backends = append(backends, BackendPortAudio)
	}

	return backends
}
