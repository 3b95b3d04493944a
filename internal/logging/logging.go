// Package logging wires log/slog for the spacer CLI: a plain text
// handler on stderr for humans, fanned out via slog-multi to an optional
// JSON handler writing structured records to a log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// Options configures the fan-out logger.
type Options struct {
	// Verbose lowers the stderr handler's level to Debug.
	Verbose bool
	// LogFile, if non-empty, additionally receives JSON-formatted records
	// at Debug level regardless of Verbose.
	LogFile string
}

// New builds the process-wide logger per opts. The returned closer must be
// called before the process exits so the log file is flushed and closed.
func New(opts Options) (*slog.Logger, func() error, error) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}

	closer := func() error { return nil }

	if opts.LogFile != "" {
		file, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: opening log file %s: %w", opts.LogFile, err)
		}
		handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}))
		closer = file.Close
	}

	logger := slog.New(slogmulti.Fanout(handlers...))
	return logger, closer, nil
}

// Discard returns a logger that writes nowhere, for tests and library
// callers that don't care about diagnostics.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
