//go:build windows

package server

import (
	"context"
	"os"
	"os/signal"
)

// shutdownSignalContext returns a context cancelled on Ctrl+C; SIGTERM has
// no Windows equivalent.
func shutdownSignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt)
}
