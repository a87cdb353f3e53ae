// Package request implements the host-side view of an inbound HTTP
// request: parsed path, query, headers, body, and the values the pipeline
// attaches as it runs (typed path parameters, auth claims, request id,
// client ip).
package request

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/corviddev/corvid/paramtype"
)

// Headers is a case-insensitive multimap. Set is last-wins for Get, but
// Values enumerates keys in first-insertion order: case-insensitive names,
// last-wins internally but preserving insertion order for enumeration.
type Headers struct {
	order  []string
	values map[string]string
	// original preserves the first-seen casing for enumeration, since HTTP
	// header names are conventionally rendered in their original case.
	original map[string]string
}

// NewHeaders returns an empty Headers multimap.
func NewHeaders() *Headers {
	return &Headers{values: make(map[string]string), original: make(map[string]string)}
}

func canonical(name string) string { return strings.ToLower(name) }

// Set stores value under name, overwriting any prior value for the same
// case-insensitive name. The first-seen casing and position are retained
// for enumeration.
func (h *Headers) Set(name, value string) {
	key := canonical(name)
	if _, exists := h.values[key]; !exists {
		h.order = append(h.order, key)
		h.original[key] = name
	}
	h.values[key] = value
}

// Get returns the last value set for name, or "" if absent.
func (h *Headers) Get(name string) string {
	return h.values[canonical(name)]
}

// Has reports whether name has been set.
func (h *Headers) Has(name string) bool {
	_, ok := h.values[canonical(name)]
	return ok
}

// Pair is a single header in enumeration order.
type Pair struct {
	Name  string
	Value string
}

// Values enumerates headers in first-insertion order.
func (h *Headers) Values() []Pair {
	out := make([]Pair, 0, len(h.order))
	for _, key := range h.order {
		out = append(out, Pair{Name: h.original[key], Value: h.values[key]})
	}
	return out
}

// cancelKey is the private context key used to thread the cancellation
// handle through Request.Context.
type cancelKey struct{}

// Cancellation is the handle the guest adapter attaches to a request before
// invoking a handler. It is linked to the connection's lifetime: cancelled()
// reflects the connection's context.
type Cancellation struct {
	ctx context.Context
}

// Cancelled reports whether the underlying connection context has been
// cancelled (peer disconnect, shutdown, etc).
func (c *Cancellation) Cancelled() bool {
	if c == nil || c.ctx == nil {
		return false
	}
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// ErrConnectionAborted is returned by RaiseIfCancelled once the connection
// is gone.
type ErrConnectionAborted struct{}

func (ErrConnectionAborted) Error() string { return "ConnectionAborted" }

// RaiseIfCancelled returns ErrConnectionAborted if the connection has been
// cancelled, nil otherwise.
func (c *Cancellation) RaiseIfCancelled() error {
	if c.Cancelled() {
		return ErrConnectionAborted{}
	}
	return nil
}

// Request is the host-side, guest-facing view of an inbound HTTP request.
// Method, Path, RawQuery, Query, Headers, and Body are populated before any
// middleware runs. Params, Claims, and the x-request-id/x-client-ip headers
// are populated by the pipeline.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Query    map[string]string
	Headers  *Headers
	Body     []byte

	RawParams   map[string]string
	TypedParams map[string]paramtype.Value

	Claims any

	ctx context.Context
}

// New builds a Request from the wire-level method, full raw path (including
// any query string), headers, and body. Path and query are split on the
// first '?'; query pairs are split on '&' then '=' (a missing '=' yields an
// empty value); both key and value are URL-decoded supporting '+' -> space
// and '%HH' -> byte.
func New(method, rawPathAndQuery string, headers *Headers, body []byte) *Request {
	path, rawQuery, _ := strings.Cut(rawPathAndQuery, "?")

	return &Request{
		Method:   method,
		Path:     path,
		RawQuery: rawQuery,
		Query:    parseQuery(rawQuery),
		Headers:  headers,
		Body:     body,
		ctx:      context.Background(),
	}
}

func parseQuery(raw string) map[string]string {
	out := make(map[string]string)
	if raw == "" {
		return out
	}

	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		out[decodeQueryComponent(key)] = decodeQueryComponent(value)
	}

	return out
}

// decodeQueryComponent decodes a query string component: '+' becomes a
// space, '%HH' becomes the byte HH, everything else passes through
// unchanged. Malformed percent-escapes pass through verbatim rather than
// erroring — the router never rejects a request for this.
func decodeQueryComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '+':
			b.WriteByte(' ')
		case '%':
			if i+2 < len(s) {
				if hi, ok := hexDigit(s[i+1]); ok {
					if lo, ok := hexDigit(s[i+2]); ok {
						b.WriteByte(hi<<4 | lo)
						i += 2
						continue
					}
				}
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// Context returns the request's cancellation-bearing context, defaulting to
// context.Background if none was attached.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of r with ctx attached.
func (r *Request) WithContext(ctx context.Context) *Request {
	clone := *r
	clone.ctx = ctx
	return &clone
}

// Cancellation returns the cancellation handle bound to r's context, or nil
// if none has been attached.
func (r *Request) Cancellation() *Cancellation {
	if v, ok := r.Context().Value(cancelKey{}).(*Cancellation); ok {
		return v
	}
	return nil
}

// WithCancellation attaches a Cancellation handle linked to connCtx.
func (r *Request) WithCancellation(connCtx context.Context) *Request {
	handle := &Cancellation{ctx: connCtx}
	return r.WithContext(context.WithValue(r.Context(), cancelKey{}, handle))
}

// JSON decodes the request body into v.
func (r *Request) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Text returns the request body decoded as UTF-8 text.
func (r *Request) Text() string {
	return string(r.Body)
}

// RequestIDHeader is the canonical header name used for request
// correlation throughout the pipeline.
const RequestIDHeader = "x-request-id"

// ClientIPHeader is the canonical header name the connection server injects
// with the peer's address.
const ClientIPHeader = "x-client-ip"

// RequestID returns the x-request-id header value, or "" if unset.
func (r *Request) RequestID() string { return r.Headers.Get(RequestIDHeader) }

// ClientIP returns the x-client-ip header value, defaulting to "unknown"
// per the RateLimit middleware contract.
func (r *Request) ClientIP() string {
	if ip := r.Headers.Get(ClientIPHeader); ip != "" {
		return ip
	}
	return "unknown"
}
