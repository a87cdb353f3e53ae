package middleware

import (
	"strings"

	"github.com/corviddev/corvid/request"
	"github.com/corviddev/corvid/response"
)

// CORSOptions configures statically-emitted CORS headers. Unlike a
// request-driven CORS implementation, this middleware's contract is
// unconditional: the configured headers are attached to every response, not
// only those carrying an Origin header.
type CORSOptions struct {
	AllowOrigin  string
	AllowMethods []string
	AllowHeaders []string
}

// DefaultCORSOptions mirrors the guest surface's
// enable_cors_middleware(allow_origin='*', ...) defaults.
func DefaultCORSOptions() CORSOptions {
	return CORSOptions{
		AllowOrigin:  "*",
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}
}

// CORS is the CORS built-in: Continue in Before, set headers in After.
type CORS struct {
	opts CORSOptions
}

// NewCORS returns a CORS middleware configured with opts.
func NewCORS(opts CORSOptions) *CORS {
	return &CORS{opts: opts}
}

func (c *CORS) Name() string { return "cors" }

func (c *CORS) Before(*request.Request) (Result, *response.Response) {
	return Continue, nil
}

func (c *CORS) After(_ *request.Request, resp *response.Response) {
	resp.SetHeader("Access-Control-Allow-Origin", c.opts.AllowOrigin)
	resp.SetHeader("Access-Control-Allow-Methods", strings.Join(c.opts.AllowMethods, ", "))
	resp.SetHeader("Access-Control-Allow-Headers", strings.Join(c.opts.AllowHeaders, ", "))
}
