package audioio

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a mock audio source for testing.
// Blocks are delivered either by calling Deliver, which runs the callback
// synchronously like a driver thread would, or by a generator goroutine
// producing a sine wave at the configured block cadence.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	opened  bool
	running bool
	fn      BlockFunc
	stopCh  chan struct{}
	wg      sync.WaitGroup
	openErr error

	// cbMu is held for the duration of every callback so Stop can wait
	// for an in-flight delivery to finish.
	cbMu sync.Mutex

	// Stats
	blocks   atomic.Int64
	samples  atomic.Int64
	overruns atomic.Int64

	// Synthetic audio generation
	generate  bool
	phase     float64
	frequency float64 // Hz
	amplitude float64 // 0.0 to 1.0
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave makes the mock generate a sine wave on its own goroutine
// every block period while started.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.generate = true
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithOpenError makes Open fail, simulating a missing or busy device.
func WithOpenError(err error) MockSourceOption {
	return func(m *MockSource) {
		m.openErr = err
	}
}

// NewMockSource creates a new mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:       cfg,
		logger:    logger,
		amplitude: 0.5,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Open marks the mock device as acquired.
func (m *MockSource) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.openErr != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, m.openErr)
	}
	m.opened = true
	return nil
}

// Start begins accepting deliveries and, if configured, generating audio.
func (m *MockSource) Start(fn BlockFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.opened {
		return errors.New("audioio: mock source not open")
	}
	if m.running {
		return nil
	}

	m.fn = fn
	m.running = true
	m.stopCh = make(chan struct{})

	if m.generate {
		m.wg.Add(1)
		go m.generateLoop(m.stopCh)
	}

	m.logger.Info("mock audio source started",
		"sample_rate", m.cfg.SampleRate,
		"frequency", m.frequency,
	)

	return nil
}

func (m *MockSource) generateLoop(stopCh <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.BlockDuration())
	defer ticker.Stop()

	buf := make([]float32, m.cfg.BlockSamples())
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.fillSine(buf)
			m.Deliver(buf)
		}
	}
}

func (m *MockSource) fillSine(buf []float32) {
	channels := m.cfg.Channels
	for i := 0; i < len(buf)/channels; i++ {
		v := float32(m.amplitude * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate)))
		for ch := 0; ch < channels; ch++ {
			buf[i*channels+ch] = v
		}
		m.phase++
		if m.phase >= float64(m.cfg.SampleRate) {
			m.phase = 0
		}
	}
}

// Deliver hands samples to the registered callback as one block, on the
// calling goroutine. It reports false if the source is not running.
func (m *MockSource) Deliver(samples []float32) bool {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()

	m.mu.Lock()
	running, fn := m.running, m.fn
	m.mu.Unlock()

	if !running || fn == nil {
		return false
	}

	fn(Block{Samples: samples, Channels: m.cfg.Channels, SampleRate: m.cfg.SampleRate})
	m.blocks.Add(1)
	m.samples.Add(int64(len(samples)))
	return true
}

// ReportOverrun records a simulated driver overflow.
func (m *MockSource) ReportOverrun() {
	m.overruns.Add(1)
}

// Stop halts deliveries and waits for any in-flight callback.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.fn = nil
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	m.cbMu.Lock()
	m.cbMu.Unlock() // in-flight Deliver has returned

	m.logger.Info("mock audio source stopped")

	return nil
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return "mock"
}

// Close stops the source and releases the mock device.
func (m *MockSource) Close() error {
	if err := m.Stop(); err != nil {
		return err
	}

	m.mu.Lock()
	m.opened = false
	m.mu.Unlock()
	return nil
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SourceStats{
		BlocksDelivered:  m.blocks.Load(),
		SamplesDelivered: m.samples.Load(),
		Overruns:         m.overruns.Load(),
		Running:          running,
		Backend:          "mock",
	}
}

// Ensure MockSource implements SourceWithStats.
var _ SourceWithStats = (*MockSource)(nil)
