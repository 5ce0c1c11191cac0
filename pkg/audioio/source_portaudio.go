//go:build portaudio

package audioio

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

const portAudioAvailable = true

// PortAudioSource captures audio through PortAudio.
// Build with -tags portaudio; requires libportaudio.
type PortAudioSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	running bool
	fn      atomic.Pointer[BlockFunc]

	// Stats
	blocks   atomic.Int64
	samples  atomic.Int64
	overruns atomic.Int64
}

// newPortAudioSource creates a new PortAudio source.
func newPortAudioSource(cfg Config, logger *slog.Logger) (Source, error) {
	return &PortAudioSource{cfg: cfg, logger: logger}, nil
}

// Open initializes PortAudio and opens an input-only stream on the
// configured device.
func (s *PortAudioSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: portaudio init: %v", ErrDeviceUnavailable, err)
	}

	dev, err := s.device()
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = s.cfg.Channels
	params.Output.Device = nil
	params.Output.Channels = 0
	params.SampleRate = float64(s.cfg.SampleRate)
	params.FramesPerBuffer = s.cfg.BlockSize

	stream, err := portaudio.OpenStream(params, s.callback)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: portaudio open stream on %q: %v", ErrDeviceUnavailable, dev.Name, err)
	}

	s.stream = stream
	s.logger.Info("portaudio device opened",
		"device", dev.Name,
		"sample_rate", s.cfg.SampleRate,
		"channels", s.cfg.Channels,
		"block_size", s.cfg.BlockSize,
	)
	return nil
}

func (s *PortAudioSource) device() (*portaudio.DeviceInfo, error) {
	if s.cfg.DeviceIndex == DefaultDevice {
		return portaudio.DefaultInputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio list devices: %w", err)
	}
	if s.cfg.DeviceIndex >= len(devices) {
		return nil, fmt.Errorf("device index %d out of range (%d devices)", s.cfg.DeviceIndex, len(devices))
	}
	dev := devices[s.cfg.DeviceIndex]
	if dev.MaxInputChannels < s.cfg.Channels {
		return nil, fmt.Errorf("device %q has %d input channels, need %d", dev.Name, dev.MaxInputChannels, s.cfg.Channels)
	}
	return dev, nil
}

// callback runs on PortAudio's real-time thread.
func (s *PortAudioSource) callback(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	if flags&(portaudio.InputOverflow|portaudio.InputUnderflow) != 0 {
		s.overruns.Add(1)
	}

	fn := s.fn.Load()
	if fn == nil {
		return
	}
	(*fn)(Block{Samples: in, Channels: s.cfg.Channels, SampleRate: s.cfg.SampleRate})
	s.blocks.Add(1)
	s.samples.Add(int64(len(in)))
}

// Start begins capture.
func (s *PortAudioSource) Start(fn BlockFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return fmt.Errorf("%w: stream not open", ErrDeviceUnavailable)
	}
	if s.running {
		return nil
	}

	s.fn.Store(&fn)
	if err := s.stream.Start(); err != nil {
		s.fn.Store(nil)
		return fmt.Errorf("%w: portaudio start stream: %v", ErrDeviceUnavailable, err)
	}
	s.running = true
	return nil
}

// Stop halts capture. Pa_StopStream returns after pending callbacks finish.
func (s *PortAudioSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	err := s.stream.Stop()
	s.fn.Store(nil)
	if err != nil {
		return fmt.Errorf("portaudio stop stream: %w", err)
	}
	return nil
}

// Config returns the audio configuration.
func (s *PortAudioSource) Config() Config {
	return s.cfg
}

// Name returns "portaudio".
func (s *PortAudioSource) Name() string {
	return string(BackendPortAudio)
}

// Close stops capture, closes the stream and terminates PortAudio.
func (s *PortAudioSource) Close() error {
	stopErr := s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return stopErr
	}
	err := s.stream.Close()
	s.stream = nil
	portaudio.Terminate()
	if err != nil {
		return fmt.Errorf("portaudio close stream: %w", err)
	}
	return stopErr
}

// Stats returns source statistics.
func (s *PortAudioSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		BlocksDelivered:  s.blocks.Load(),
		SamplesDelivered: s.samples.Load(),
		Overruns:         s.overruns.Load(),
		Running:          running,
		Backend:          string(BackendPortAudio),
	}
}

var _ SourceWithStats = (*PortAudioSource)(nil)
