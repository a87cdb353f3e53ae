//go:build !windows

package server

import (
	"context"
	"os/signal"
	"syscall"
)

// shutdownSignalContext returns a context cancelled on SIGINT or SIGTERM:
// SIGINT on all platforms, plus SIGTERM on Unix.
func shutdownSignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
