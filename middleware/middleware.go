// Package middleware implements the ordered before/after middleware chain
// and four built-in middlewares: Logging, Timing, CORS, and RateLimit.
package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/corviddev/corvid/request"
	"github.com/corviddev/corvid/response"
)

// Result is what a Before hook returns: either let the pipeline continue to
// the next hook (and eventually the handler), or short-circuit with a
// Response.
type Result int

const (
	Continue Result = iota
	Respond
)

// Middleware is a single before/after pair.
type Middleware interface {
	// Name identifies the middleware for logging and diagnostics.
	Name() string
	// Before runs in registration order. Returning Respond short-circuits
	// the chain: later Before hooks and the handler are skipped.
	Before(req *request.Request) (Result, *response.Response)
	// After runs in reverse registration order, unconditionally — even the
	// after-hooks of middlewares whose Before never ran, because a
	// short-circuit occurred earlier in the chain.
	After(req *request.Request, resp *response.Response)
}

// Chain is an ordered sequence of Middleware. Before runs front-to-back and
// stops at the first Respond; After always runs every registered
// middleware's after-hook, back-to-front, regardless of where (or whether)
// Before short-circuited.
type Chain struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// NewChain returns an empty Chain. A nil logger falls back to slog's
// default logger for panic reporting.
func NewChain(logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{logger: logger}
}

// Use appends m to the chain.
func (c *Chain) Use(m Middleware) {
	c.middlewares = append(c.middlewares, m)
}

// Len returns the number of registered middlewares.
func (c *Chain) Len() int { return len(c.middlewares) }

// RunBefore runs every Before hook in registration order until one returns
// Respond. It returns the short-circuit response (nil if none) and whether
// a short-circuit occurred.
//
// Every hook invocation is guarded by recover(): a panicking middleware is
// logged and treated as Continue rather than crashing the connection task
// or ever reaching the guest adapter's own fault catcher (see DESIGN.md).
func (c *Chain) RunBefore(req *request.Request) (*response.Response, bool) {
	for _, m := range c.middlewares {
		result, resp := c.safeBefore(m, req)
		if result == Respond {
			return resp, true
		}
	}
	return nil, false
}

// RunAfter runs every registered middleware's After hook in reverse
// registration order. Errors and panics from After are absorbed (logged
// only) because the response is already committed.
func (c *Chain) RunAfter(req *request.Request, resp *response.Response) {
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		c.safeAfter(c.middlewares[i], req, resp)
	}
}

func (c *Chain) safeBefore(m Middleware, req *request.Request) (result Result, resp *response.Response) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("middleware panic recovered",
				"middleware", m.Name(), "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			result, resp = Continue, nil
		}
	}()
	return m.Before(req)
}

func (c *Chain) safeAfter(m Middleware, req *request.Request, resp *response.Response) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("middleware after-hook panic recovered",
				"middleware", m.Name(), "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	m.After(req, resp)
}
