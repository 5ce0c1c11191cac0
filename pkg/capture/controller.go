// Package capture implements the recorder core: a real-time safe hand-off
// from the audio callback into an in-memory recording buffer, governed by
// an idle/recording/paused/stopped state machine.
//
// Two execution contexts touch a Controller. The backend's audio thread
// only runs the block callback, which loads an atomic gate and pushes onto
// a lock-free Queue. Everything else (Start, Pause, Resume, Stop, Pump,
// Snapshot, Metrics) runs on consumer goroutines and is serialized by a
// mutex the audio thread never takes.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-recorder/pkg/audioio"
)

// DefaultPumpInterval is the consumer cadence used by Run when none is given.
const DefaultPumpInterval = 50 * time.Millisecond

// initialBufferSeconds sizes the first allocation of a new recording.
const initialBufferSeconds = 10

// Controller owns the capture state machine and the recording buffer.
type Controller struct {
	src    audioio.Source
	cfg    audioio.Config
	logger *slog.Logger
	now    func() time.Time

	// Shared with the audio thread.
	queue     *Queue
	accepting atomic.Bool
	dropped   atomic.Int64

	state atomic.Int32

	mu           sync.Mutex
	samples      []float32
	blocks       int
	meter        levelMeter
	startedAt    time.Time
	stoppedAt    time.Time
	baseOverruns int64
	seenOverruns int64
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the wall clock used for elapsed time.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// NewController creates a controller for src. The source is opened on
// Start and closed on Stop.
func NewController(src audioio.Source, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := src.Config()
	c := &Controller{
		src:    src,
		cfg:    cfg,
		logger: logger.With("component", "capture"),
		now:    time.Now,
		queue:  NewQueue(),
		meter:  newLevelMeter(cfg.BlockSamples()),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// onBlock is the source callback. It runs on the audio thread and must stay
// limited to the gate check and the queue push.
func (c *Controller) onBlock(b audioio.Block) {
	if !c.accepting.Load() {
		c.dropped.Add(1)
		return
	}
	c.queue.Push(b.Clone())
}

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Start begins a new recording, discarding the previous one.
// It fails with ErrAlreadyRecording while Recording or Paused, and with
// ErrDeviceUnavailable if the source cannot be opened or started; in both
// cases the existing buffer is left as it was.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st := c.State(); st.Active() {
		return fmt.Errorf("%w (state %s)", ErrAlreadyRecording, st)
	}

	if err := c.src.Open(); err != nil {
		return deviceError("open", err)
	}

	c.queue.Reset()
	c.dropped.Store(0)
	c.accepting.Store(true)

	if err := c.src.Start(c.onBlock); err != nil {
		c.accepting.Store(false)
		if cerr := c.src.Close(); cerr != nil {
			c.logger.Warn("close source after failed start", "error", cerr)
		}
		c.queue.Reset()
		return deviceError("start", err)
	}

	c.samples = make([]float32, 0, c.cfg.SampleRate*c.cfg.Channels*initialBufferSeconds)
	c.blocks = 0
	c.meter.reset()
	c.baseOverruns = c.sourceOverruns()
	c.seenOverruns = c.baseOverruns
	c.startedAt = c.now()
	c.stoppedAt = time.Time{}
	c.state.Store(int32(StateRecording))

	c.logger.Info("recording started",
		"backend", c.src.Name(),
		"sample_rate", c.cfg.SampleRate,
		"channels", c.cfg.Channels,
		"block_size", c.cfg.BlockSize,
	)
	return nil
}

func deviceError(op string, err error) error {
	if errors.Is(err, ErrDeviceUnavailable) {
		return fmt.Errorf("capture: %s source: %w", op, err)
	}
	return fmt.Errorf("capture: %s source: %w: %v", op, ErrDeviceUnavailable, err)
}

// Pause stops accepting blocks without touching the buffer. Blocks queued
// before the pause are kept. No-op unless Recording.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != StateRecording {
		return
	}

	c.accepting.Store(false)
	n := c.appendLocked(c.queue.DrainAll())
	c.state.Store(int32(StatePaused))

	c.logger.Info("recording paused", "flushed_samples", n, "total_samples", len(c.samples))
}

// Resume continues accumulating into the same buffer. No-op unless Paused.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != StatePaused {
		return
	}

	c.state.Store(int32(StateRecording))
	c.accepting.Store(true)

	c.logger.Info("recording resumed", "total_samples", len(c.samples))
}

// Stop ends the recording. It waits for the source's callback thread to
// quiesce, drains whatever is still queued into the buffer and moves to
// Stopped. Calling Stop while Idle or Stopped is a no-op.
//
// Teardown errors from the source are returned after the final drain; the
// controller is Stopped either way.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.State()
	if !prev.Active() {
		return nil
	}

	c.accepting.Store(false)

	var errs []error
	if err := c.src.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("capture: stop source: %w", err))
	}
	c.reportOverrunsLocked()
	if err := c.src.Close(); err != nil {
		errs = append(errs, fmt.Errorf("capture: close source: %w", err))
	}

	blocks := c.queue.DrainAll()
	if prev == StateRecording {
		c.appendLocked(blocks)
	} else if len(blocks) > 0 {
		c.logger.Debug("discarding blocks queued while paused", "blocks", len(blocks))
	}

	c.stoppedAt = c.now()
	c.state.Store(int32(StateStopped))

	c.logger.Info("recording stopped",
		"samples", len(c.samples),
		"blocks", c.blocks,
		"duration", c.recordingLocked().Duration(),
		"dropped_blocks", c.dropped.Load(),
	)
	return errors.Join(errs...)
}

// Pump drains the queue and appends the blocks to the buffer if Recording.
// It returns the number of samples appended. Call it periodically from a
// single consumer goroutine; it never blocks on I/O.
func (c *Controller) Pump() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	blocks := c.queue.DrainAll()
	if c.State().Active() {
		c.reportOverrunsLocked()
	}
	if len(blocks) == 0 {
		return 0
	}

	if c.State() != StateRecording {
		c.logger.Debug("discarding drained blocks", "state", c.State(), "blocks", len(blocks))
		return 0
	}
	return c.appendLocked(blocks)
}

// Run calls Pump every interval until ctx is done. onTick, if set, receives
// the number of samples appended and the metrics after each pump.
func (c *Controller) Run(ctx context.Context, interval time.Duration, onTick func(appended int, m Metrics)) error {
	if interval <= 0 {
		interval = DefaultPumpInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n := c.Pump()
			if onTick != nil {
				onTick(n, c.Metrics())
			}
		}
	}
}

func (c *Controller) appendLocked(blocks []audioio.Block) int {
	start := len(c.samples)
	for _, b := range blocks {
		if b.Channels != c.cfg.Channels {
			c.logger.Warn("dropping block with unexpected channel count",
				"channels", b.Channels,
				"want", c.cfg.Channels,
			)
			continue
		}
		c.samples = append(c.samples, b.Samples...)
		c.blocks++
	}

	appended := c.samples[start:]
	c.meter.update(appended)
	return len(appended)
}

func (c *Controller) sourceOverruns() int64 {
	if s, ok := c.src.(audioio.SourceWithStats); ok {
		return s.Stats().Overruns
	}
	return 0
}

// reportOverrunsLocked logs overflow/underflow counts the source recorded
// on its audio thread since the last check.
func (c *Controller) reportOverrunsLocked() {
	cur := c.sourceOverruns()
	if cur <= c.seenOverruns {
		return
	}
	c.logger.Warn("audio input overrun/underrun",
		"new", cur-c.seenOverruns,
		"total", cur-c.baseOverruns,
	)
	c.seenOverruns = cur
}

// Snapshot returns a copy of everything recorded so far. While Recording
// the copy is a best-effort partial recording as of the call. Later
// appends and writes to the returned samples do not affect each other.
func (c *Controller) Snapshot() Recording {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.recordingLocked()
	rec.Samples = slices.Clone(rec.Samples)
	return rec
}

func (c *Controller) recordingLocked() Recording {
	n := len(c.samples)
	return Recording{
		Samples:    c.samples[:n:n],
		SampleRate: c.cfg.SampleRate,
		Channels:   c.cfg.Channels,
		Blocks:     c.blocks,
	}
}

// Metrics returns the current status for metering and display.
// Elapsed is wall-clock time since Start, to Stop once stopped; pausing
// does not freeze it.
func (c *Controller) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.State()
	var elapsed time.Duration
	switch st {
	case StateRecording, StatePaused:
		elapsed = c.now().Sub(c.startedAt)
	case StateStopped:
		elapsed = c.stoppedAt.Sub(c.startedAt)
	}

	frames := 0
	if c.cfg.Channels > 0 {
		frames = len(c.samples) / c.cfg.Channels
	}

	return Metrics{
		State:         st,
		Elapsed:       elapsed,
		Level:         c.meter.level,
		Peak:          c.meter.peak,
		Samples:       len(c.samples),
		Frames:        frames,
		Blocks:        c.blocks,
		SampleRate:    c.cfg.SampleRate,
		Channels:      c.cfg.Channels,
		DroppedBlocks: c.dropped.Load(),
		Overruns:      c.seenOverruns - c.baseOverruns,
	}
}

// Config returns the capture format.
func (c *Controller) Config() audioio.Config {
	return c.cfg
}
