package server

import "time"

// Config holds the tunables a deployer sets when constructing a Server,
// built via functional options.
type Config struct {
	BindAddress     string
	KeepAlive       bool
	ShutdownTimeout time.Duration
	MaxBodySize     int64
	AuthSecret      string
}

// Option mutates a Config during New.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		BindAddress:     ":8080",
		KeepAlive:       true,
		ShutdownTimeout: 10 * time.Second,
		MaxBodySize:     1 << 20, // 1 MiB
	}
}

// WithBindAddress sets the listen address (host:port).
func WithBindAddress(addr string) Option {
	return func(c *Config) { c.BindAddress = addr }
}

// WithKeepAlive toggles HTTP/1.1 keep-alive connections.
func WithKeepAlive(enabled bool) Option {
	return func(c *Config) { c.KeepAlive = enabled }
}

// WithShutdownTimeout bounds how long Serve waits for in-flight requests to
// drain before forcing shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) { c.ShutdownTimeout = d }
}

// WithMaxBodySize bounds the request body size enforced at the connection
// boundary.
func WithMaxBodySize(n int64) Option {
	return func(c *Config) { c.MaxBodySize = n }
}

// WithAuthSecret enables HS256 auth using secret. Routes with AuthRequired
// set return AuthMisconfigured unless a non-empty secret is set here or via
// Server.EnableAuth.
func WithAuthSecret(secret string) Option {
	return func(c *Config) { c.AuthSecret = secret }
}
