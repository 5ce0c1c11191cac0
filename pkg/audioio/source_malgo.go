//go:build cgo

package audioio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

const malgoAvailable = true

// MalgoSource captures audio through miniaudio (malgo bindings).
type MalgoSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	running bool
	fn      atomic.Pointer[BlockFunc]

	// scratch is only touched on the device thread.
	scratch []float32

	// Stats
	blocks  atomic.Int64
	samples atomic.Int64
}

// newMalgoSource creates a new miniaudio source.
func newMalgoSource(cfg Config, logger *slog.Logger) (Source, error) {
	return &MalgoSource{cfg: cfg, logger: logger}, nil
}

// Open initializes a miniaudio context and a capture device in F32 format.
func (s *MalgoSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device != nil {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		s.logger.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return fmt.Errorf("%w: miniaudio init context: %v", ErrDeviceUnavailable, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(s.cfg.Channels)
	deviceConfig.SampleRate = uint32(s.cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(s.cfg.BlockSize)
	deviceConfig.Alsa.NoMMap = 1

	name := "default"
	if s.cfg.DeviceIndex != DefaultDevice {
		infos, err := ctx.Devices(malgo.Capture)
		if err != nil {
			freeContext(ctx)
			return fmt.Errorf("%w: miniaudio list capture devices: %v", ErrDeviceUnavailable, err)
		}
		if s.cfg.DeviceIndex >= len(infos) {
			freeContext(ctx)
			return fmt.Errorf("%w: device index %d out of range (%d devices)", ErrDeviceUnavailable, s.cfg.DeviceIndex, len(infos))
		}
		info := infos[s.cfg.DeviceIndex]
		deviceConfig.Capture.DeviceID = info.ID.Pointer()
		name = info.Name()
	}

	s.scratch = make([]float32, s.cfg.BlockSamples())

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: s.onData})
	if err != nil {
		freeContext(ctx)
		return fmt.Errorf("%w: miniaudio init device %q: %v", ErrDeviceUnavailable, name, err)
	}

	s.ctx = ctx
	s.device = device
	s.logger.Info("miniaudio device opened",
		"device", name,
		"sample_rate", s.cfg.SampleRate,
		"channels", s.cfg.Channels,
		"block_size", s.cfg.BlockSize,
	)
	return nil
}

func freeContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}

// onData runs on miniaudio's device thread.
func (s *MalgoSource) onData(_, input []byte, frameCount uint32) {
	fn := s.fn.Load()
	if fn == nil {
		return
	}

	n := int(frameCount) * s.cfg.Channels
	if n*4 > len(input) {
		n = len(input) / 4
	}
	if n > cap(s.scratch) {
		s.scratch = make([]float32, n)
	}
	buf := s.scratch[:n]
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[i*4:]))
	}

	(*fn)(Block{Samples: buf, Channels: s.cfg.Channels, SampleRate: s.cfg.SampleRate})
	s.blocks.Add(1)
	s.samples.Add(int64(n))
}

// Start begins capture.
func (s *MalgoSource) Start(fn BlockFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return fmt.Errorf("%w: device not open", ErrDeviceUnavailable)
	}
	if s.running {
		return nil
	}

	s.fn.Store(&fn)
	if err := s.device.Start(); err != nil {
		s.fn.Store(nil)
		return fmt.Errorf("%w: miniaudio start device: %v", ErrDeviceUnavailable, err)
	}
	s.running = true
	return nil
}

// Stop halts capture. ma_device_stop blocks until the device thread has
// left the data callback.
func (s *MalgoSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	err := s.device.Stop()
	s.fn.Store(nil)
	if err != nil {
		return fmt.Errorf("miniaudio stop device: %w", err)
	}
	return nil
}

// Config returns the audio configuration.
func (s *MalgoSource) Config() Config {
	return s.cfg
}

// Name returns "miniaudio".
func (s *MalgoSource) Name() string {
	return string(BackendMiniaudio)
}

// Close stops capture and releases the device and context.
func (s *MalgoSource) Close() error {
	err := s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	if s.ctx != nil {
		freeContext(s.ctx)
		s.ctx = nil
	}
	return err
}

// Stats returns source statistics. miniaudio does not report overflows
// to capture callbacks, so Overruns stays zero.
func (s *MalgoSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		BlocksDelivered:  s.blocks.Load(),
		SamplesDelivered: s.samples.Load(),
		Running:          running,
		Backend:          string(BackendMiniaudio),
	}
}

var _ SourceWithStats = (*MalgoSource)(nil)
