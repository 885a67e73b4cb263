package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultMaxSizeMB = 100

// Options configures the process logger.
type Options struct {
	Level  string // debug|info|warn|error
	Format string // json|text
	// File mirrors output to a size-rotated file. "-" or empty disables it.
	File      string
	MaxSizeMB int
	// MaxBackups and MaxAgeDays follow lumberjack: 0 keeps every rotated file.
	MaxBackups int
	MaxAgeDays int
	// Stdout overrides os.Stdout (tests).
	Stdout io.Writer
}

// New builds a slog.Logger per opts. The returned closer releases the log file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	handlerOptions := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var out io.Writer = os.Stdout
	if opts.Stdout != nil {
		out = opts.Stdout
	}
	var closer io.Closer = nopCloser{}

	path := strings.TrimSpace(opts.File)
	if path != "" && path != "-" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return slog.New(newHandler(opts.Format, out, handlerOptions)), closer, fmt.Errorf("logging: create log dir: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    orDefault(opts.MaxSizeMB, defaultMaxSizeMB),
			MaxBackups: max(opts.MaxBackups, 0),
			MaxAge:     max(opts.MaxAgeDays, 0),
			Compress:   true,
		}
		out = io.MultiWriter(out, file)
		closer = file
	}

	return slog.New(newHandler(opts.Format, out, handlerOptions)), closer, nil
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func newHandler(format string, out io.Writer, opts *slog.HandlerOptions) slog.Handler {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text":
		return slog.NewTextHandler(out, opts)
	default:
		return slog.NewJSONHandler(out, opts)
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
