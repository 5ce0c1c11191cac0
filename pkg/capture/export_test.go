package capture_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/teslashibe/go-recorder/pkg/audioio"
	"github.com/teslashibe/go-recorder/pkg/capture"
	"github.com/teslashibe/go-recorder/pkg/export"
)

type countingEncoder struct{ calls int }

func (*countingEncoder) Name() string     { return "mp3" }
func (*countingEncoder) MimeType() string { return "audio/mpeg" }

func (e *countingEncoder) Encode(context.Context, []byte, export.Params) ([]byte, error) {
	e.calls++
	return []byte("encoded"), nil
}

func TestStartStopWithoutAudioExportsNothing(t *testing.T) {
	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.BackendMock
	c := capture.NewController(audioio.NewMockSource(cfg, nil), nil)

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if c.State() != capture.StateStopped {
		t.Fatalf("State() = %s, want stopped", c.State())
	}

	enc := &countingEncoder{}
	exp := export.New(enc, nil)
	dir := t.TempDir()

	tests := []struct {
		name string
		run  func(rec capture.Recording) error
	}{
		{"lossless", func(rec capture.Recording) error {
			_, err := exp.ExportLossless(rec, filepath.Join(dir, "take.wav"))
			return err
		}},
		{"lossy", func(rec capture.Recording) error {
			_, err := exp.ExportLossy(context.Background(), rec, filepath.Join(dir, "take.mp3"), 128)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := c.Snapshot()
			if !rec.IsEmpty() {
				t.Fatalf("recording has %d samples, want none", rec.Len())
			}
			if err := tt.run(rec); !errors.Is(err, export.ErrEmptyBuffer) {
				t.Errorf("export error = %v, want ErrEmptyBuffer", err)
			}
		})
	}

	if enc.calls != 0 {
		t.Errorf("encoder called %d times for an empty recording", enc.calls)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("export dir has %d entries, want none", len(entries))
	}
}
