// Package export writes recordings to disk as 16-bit PCM WAV or through a
// lossy encoder. Output is deterministic for identical input and settings,
// and a failed export never leaves a partial file at the destination.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-recorder/pkg/audioio"
	"github.com/teslashibe/go-recorder/pkg/capture"
)

// DefaultBitrateKbps is used by ExportLossy when no bitrate is given.
const DefaultBitrateKbps = 128

// Format names an export container.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatOpus Format = "opus"
)

// Result describes a finished export.
type Result struct {
	ID       uuid.UUID     `json:"id"`
	Path     string        `json:"path"`
	Format   Format        `json:"format"`
	MimeType string        `json:"mime_type"`
	Bytes    int64         `json:"bytes"`
	Frames   int           `json:"frames"`
	Duration time.Duration `json:"duration_ns"`
}

// Exporter writes recordings to files.
type Exporter struct {
	lossy  Encoder
	logger *slog.Logger
}

// New creates an Exporter. lossy may be nil, in which case ExportLossy
// fails with ErrEncodeFailure.
func New(lossy Encoder, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		lossy:  lossy,
		logger: logger.With("component", "export"),
	}
}

// Lossy returns the configured lossy encoder, or nil.
func (e *Exporter) Lossy() Encoder {
	return e.lossy
}

// ExportLossless writes rec to path as a 16-bit PCM WAV file.
func (e *Exporter) ExportLossless(rec capture.Recording, path string) (Result, error) {
	if rec.IsEmpty() {
		return Result{}, ErrEmptyBuffer
	}

	pcm := audioio.Quantize(rec.Samples)
	n, err := writeAtomic(path, func(f *os.File) error {
		return writeWAV(f, pcm, rec.SampleRate, rec.Channels)
	})
	if err != nil {
		return Result{}, fmt.Errorf("export wav: %w", err)
	}

	res := e.result(rec, path, FormatWAV, "audio/wav", n)
	e.logger.Info("exported recording",
		"id", res.ID,
		"format", res.Format,
		"path", path,
		"bytes", n,
		"duration", res.Duration,
	)
	return res, nil
}

// ExportLossy encodes rec with the configured lossy encoder and writes the
// result to path. bitrateKbps <= 0 selects DefaultBitrateKbps.
func (e *Exporter) ExportLossy(ctx context.Context, rec capture.Recording, path string, bitrateKbps int) (Result, error) {
	if rec.IsEmpty() {
		return Result{}, ErrEmptyBuffer
	}
	if e.lossy == nil {
		return Result{}, fmt.Errorf("%w: no lossy encoder configured", ErrEncodeFailure)
	}
	if bitrateKbps <= 0 {
		bitrateKbps = DefaultBitrateKbps
	}

	params := Params{
		SampleRate:  rec.SampleRate,
		Channels:    rec.Channels,
		BitrateKbps: bitrateKbps,
	}

	start := time.Now()
	data, err := e.lossy.Encode(ctx, audioio.SamplesToBytes(audioio.Quantize(rec.Samples)), params)
	if err != nil {
		if !errors.Is(err, ErrEncodeFailure) {
			err = fmt.Errorf("%w: %v", ErrEncodeFailure, err)
		}
		e.logger.Error("lossy encode failed", "encoder", e.lossy.Name(), "error", err)
		return Result{}, err
	}
	if len(data) == 0 {
		return Result{}, fmt.Errorf("%w: %s produced no output", ErrEncodeFailure, e.lossy.Name())
	}

	n, err := writeAtomic(path, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("export %s: %w", e.lossy.Name(), err)
	}

	res := e.result(rec, path, Format(e.lossy.Name()), e.lossy.MimeType(), n)
	e.logger.Info("exported recording",
		"id", res.ID,
		"format", res.Format,
		"path", path,
		"bytes", n,
		"bitrate_kbps", bitrateKbps,
		"encode_time", time.Since(start),
	)
	return res, nil
}

func (e *Exporter) result(rec capture.Recording, path string, format Format, mime string, n int64) Result {
	return Result{
		ID:       uuid.New(),
		Path:     path,
		Format:   format,
		MimeType: mime,
		Bytes:    n,
		Frames:   rec.Frames(),
		Duration: rec.Duration(),
	}
}

// writeAtomic writes through a temporary file in the destination directory
// and renames it over path once write succeeds. It returns the file size.
func writeAtomic(path string, write func(f *os.File) error) (n int64, err error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return 0, err
	}
	if err = tmp.Sync(); err != nil {
		return 0, err
	}
	info, err := tmp.Stat()
	if err != nil {
		return 0, err
	}
	if err = tmp.Close(); err != nil {
		return 0, err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return 0, err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return 0, err
	}
	return info.Size(), nil
}
