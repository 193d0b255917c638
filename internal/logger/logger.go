// Package logger provides structured logging functionality for the relay.
// It uses Go's slog package for logging with configurable levels and formats.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/edgard/ircrelay/internal/irc"
)

// ParseLevel maps a config level name to a slog level. Unknown names map to info.
func ParseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a new slog Logger with the specified level and format.
// If jsonOutput is true, logs will be formatted as JSON, otherwise as text.
// A nil writer logs to stdout.
func NewLogger(levelStr string, jsonOutput bool, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: ParseLevel(levelStr),
	}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// OpenOutput returns stdout, or stdout teed into the file at path when path is
// set. The returned close function is never nil.
func OpenOutput(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return io.MultiWriter(os.Stdout, f), f.Close, nil
}

// Middleware creates a logging middleware for the session event stream.
// Chat text is only previewed, and only at debug level.
func Middleware(log *slog.Logger) irc.Middleware {
	return func(next irc.HandlerFunc) irc.HandlerFunc {
		return func(ctx context.Context, ev irc.Event) {
			startTime := time.Now()

			logEntry := log.With("event", ev.Name())
			switch e := ev.(type) {
			case irc.TextMessage:
				logEntry = logEntry.With("sender", e.Sender, "target", e.Target)
				logEntry.DebugContext(ctx, "Processing event", "text_preview", truncateString(e.Text, 50))
			case irc.CTCPRequest:
				logEntry = logEntry.With("sender", e.Sender, "command", e.Command)
				logEntry.DebugContext(ctx, "Processing event")
			default:
				logEntry.DebugContext(ctx, "Processing event")
			}

			next(ctx, ev)

			logEntry.DebugContext(ctx, "Finished processing event", "duration", time.Since(startTime))
		}
	}
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}
