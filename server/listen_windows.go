//go:build windows

package server

import "net"

// listenBacklog documents the intended backlog; Windows builds fall back to
// net.Listen, which has no portable way to request a specific backlog.
const listenBacklog = 1024

// platformListen degrades to a plain net.Listen on Windows: SO_REUSEPORT
// has no equivalent there, and SO_REUSEADDR has different (unsafe) socket
// semantics than on Unix, so it is intentionally not set.
func platformListen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
