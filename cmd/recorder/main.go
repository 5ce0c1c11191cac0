// Recorder - captures microphone audio into memory and exports WAV or
// lossy files. Runs a local control server by default, or records
// headlessly for a fixed duration with -duration.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-recorder/internal/config"
	rlog "github.com/teslashibe/go-recorder/internal/log"
	"github.com/teslashibe/go-recorder/pkg/audioio"
	"github.com/teslashibe/go-recorder/pkg/capture"
	"github.com/teslashibe/go-recorder/pkg/export"
	"github.com/teslashibe/go-recorder/pkg/web"
)

type options struct {
	configPath string
	debug      bool
	duration   time.Duration
	out        string
	lossy      bool
	backends   bool

	// overrides, applied only when the flag is set
	set      map[string]bool
	backend  string
	device   int
	rate     int
	channels int
	addr     string
}

func main() {
	opts := parseFlags()

	if opts.backends {
		for _, b := range audioio.AvailableBackends() {
			fmt.Println(b)
		}
		return
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}
	opts.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	level := cfg.Log.Level
	if opts.debug {
		level = "debug"
	}
	if err := rlog.Setup(rlog.Options{
		Level:      level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	}); err != nil {
		log.Fatalf("❌ Logging setup failed: %v", err)
	}
	defer rlog.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, opts, rlog.L()); err != nil {
		rlog.Error("recorder failed", "error", err)
		rlog.Close()
		os.Exit(1)
	}
}

// parseFlags parses command line flags.
func parseFlags() options {
	var o options

	flag.StringVar(&o.configPath, "config", "", "Path to YAML config file")
	flag.BoolVar(&o.debug, "debug", false, "Enable verbose debug logging")
	flag.StringVar(&o.backend, "backend", "", "Audio backend: auto, miniaudio, portaudio, mock")
	flag.IntVar(&o.device, "device", audioio.DefaultDevice, "Input device index (-1 for system default)")
	flag.IntVar(&o.rate, "rate", 0, "Sample rate in Hz")
	flag.IntVar(&o.channels, "channels", 0, "Number of input channels")
	flag.StringVar(&o.addr, "addr", "", "Control server listen address")
	flag.DurationVar(&o.duration, "duration", 0, "Record headlessly for this long, then export and exit")
	flag.StringVar(&o.out, "out", "", "Output file for headless recording")
	flag.BoolVar(&o.lossy, "lossy", false, "Export headless recording with the lossy encoder")
	flag.BoolVar(&o.backends, "list-backends", false, "Print compiled-in audio backends and exit")
	flag.Parse()

	o.set = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o
}

// apply overrides cfg with explicitly set flags.
func (o options) apply(cfg *config.Config) {
	if o.set["backend"] {
		cfg.Audio.Backend = audioio.Backend(o.backend)
	}
	if o.set["device"] {
		cfg.Audio.DeviceIndex = o.device
	}
	if o.set["rate"] {
		cfg.Audio.SampleRate = o.rate
	}
	if o.set["channels"] {
		cfg.Audio.Channels = o.channels
	}
	if o.set["addr"] {
		cfg.Server.Addr = o.addr
	}
}

func run(ctx context.Context, cfg config.Config, opts options, logger *slog.Logger) error {
	src, err := audioio.NewSource(cfg.Audio, logger)
	if err != nil {
		return err
	}
	ctrl := capture.NewController(src, logger)

	enc, err := export.EncoderFor(cfg.Export.Encoder, cfg.Export.FFmpegPath)
	if err != nil {
		logger.Warn("lossy export disabled", "encoder", cfg.Export.Encoder, "error", err)
	}
	exp := export.New(enc, logger)

	if opts.duration > 0 {
		return recordFor(ctx, ctrl, exp, cfg, opts, logger)
	}
	if cfg.Server.Addr == "" {
		return fmt.Errorf("no control server address configured and no -duration given")
	}

	srv := web.NewServer(cfg.Server.Addr, ctrl, exp, logger,
		web.WithExportDir(cfg.Export.Dir),
		web.WithAllowedOrigins(cfg.Server.AllowedOrigins),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctrl.Run(gctx, cfg.PumpInterval, func(_ int, m capture.Metrics) {
			srv.PublishMetrics(m)
		})
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})

	err = g.Wait()
	if stopErr := ctrl.Stop(); stopErr != nil {
		logger.Warn("stop on shutdown", "error", stopErr)
	}
	return err
}

// recordFor records until d elapses or ctx is cancelled, then exports.
func recordFor(ctx context.Context, ctrl *capture.Controller, exp *export.Exporter, cfg config.Config, opts options, logger *slog.Logger) error {
	if err := ctrl.Start(); err != nil {
		return err
	}

	rctx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()

	lastLog := time.Now()
	ctrl.Run(rctx, cfg.PumpInterval, func(_ int, m capture.Metrics) {
		if time.Since(lastLog) >= time.Second {
			lastLog = time.Now()
			logger.Info("recording", "elapsed", m.Elapsed.Round(time.Second), "level", fmt.Sprintf("%.3f", m.Level))
		}
	})

	if err := ctrl.Stop(); err != nil {
		logger.Warn("stop reported errors", "error", err)
	}

	rec := ctrl.Snapshot()
	path := opts.out
	ext := ".wav"
	if opts.lossy && exp.Lossy() != nil {
		ext = "." + exp.Lossy().Name()
	}
	if path == "" {
		path = filepath.Join(cfg.Export.Dir, "recording-"+time.Now().Format("20060102-150405")+ext)
	}

	var (
		res export.Result
		err error
	)
	if opts.lossy {
		// Still export after Ctrl+C.
		res, err = exp.ExportLossy(context.WithoutCancel(ctx), rec, path, cfg.Export.BitrateKbps)
	} else {
		res, err = exp.ExportLossless(rec, path)
	}
	if err != nil {
		return err
	}

	fmt.Printf("✅ Saved %s (%s, %d bytes)\n", res.Path, res.Duration.Round(time.Millisecond), res.Bytes)
	return nil
}
