// Package logging provides a thin log/slog wrapper: handler-type selection
// and request-scoped child loggers carrying x-request-id.
package logging

import (
	"log/slog"
	"os"
)

// HandlerType selects the slog.Handler implementation.
type HandlerType int

const (
	// JSON emits newline-delimited JSON records, suitable for ingestion.
	JSON HandlerType = iota
	// Text emits human-readable key=value records, suitable for a terminal.
	Text
)

// Options configures New.
type Options struct {
	Handler HandlerType
	Level   slog.Level
}

// New builds a *slog.Logger writing to os.Stderr with the given handler
// type and level.
func New(opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	var handler slog.Handler
	switch opts.Handler {
	case Text:
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	default:
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	}

	return slog.New(handler)
}

// WithRequestID returns a child logger that always attaches the given
// request id.
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	if requestID == "" {
		return logger
	}
	return logger.With("x-request-id", requestID)
}
