// Package log provides structured logging for the recorder.
// It wraps slog with sensible defaults for production use and can mirror
// output into a size-rotated log file.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.Mutex
	logger  *slog.Logger
	logFile *lumberjack.Logger
)

// Options configures the global logger.
type Options struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string

	// File, if set, receives a copy of every record, rotated by size.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// JSON forces the JSON handler. GO_ENV=production also selects it.
	JSON bool
}

// ParseLevel maps a level name to a slog level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init initializes the global logger with the specified level, writing
// to stdout only.
func Init(level string) {
	// Stdout-only setup cannot fail.
	_ = Setup(Options{Level: level})
}

// Setup (re)configures the global logger and installs it as slog's default.
func Setup(o Options) error {
	mu.Lock()
	defer mu.Unlock()

	var w io.Writer = os.Stdout
	var file *lumberjack.Logger
	if o.File != "" {
		if err := os.MkdirAll(filepath.Dir(o.File), 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		file = &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    orDefault(o.MaxSizeMB, 10),
			MaxBackups: orDefault(o.MaxBackups, 3),
			MaxAge:     orDefault(o.MaxAgeDays, 7),
		}
		w = io.MultiWriter(os.Stdout, file)
	}

	opts := &slog.HandlerOptions{
		Level: ParseLevel(o.Level),
	}

	// Use JSON in production, text in development
	var h slog.Handler
	if o.JSON || os.Getenv("GO_ENV") == "production" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	if logFile != nil {
		logFile.Close()
	}
	logFile = file
	logger = slog.New(h)
	slog.SetDefault(logger)
	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Close flushes and closes the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// L returns the global logger instance.
func L() *slog.Logger {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l == nil {
		Init("info")
		mu.Lock()
		l = logger
		mu.Unlock()
	}
	return l
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
