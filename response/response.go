// Package response implements the mutable response builder used on both
// sides of the guest/host boundary.
package response

import (
	"encoding/json"

	"github.com/corviddev/corvid/request"
)

// Response holds a status, a body buffer, a primary content-type, and any
// extra headers. Invariant: the content-type header is authoritative via
// the ContentType field; a header literally named "content-type" set via
// WithHeader/SetHeader is redirected into ContentType instead of the
// extra-headers map.
type Response struct {
	Status      int
	Body        []byte
	ContentType string
	headers     *request.Headers
}

// New returns an empty 200 response with no body and no content-type set.
func New() *Response {
	return &Response{Status: 200, headers: request.NewHeaders()}
}

// JSON marshals body and returns a 200 application/json response.
func JSON(body any) *Response {
	return NewStatusJSON(200, body)
}

// NewStatusJSON marshals body and returns a response with the given status
// and content-type application/json. Marshal errors are rendered as a 500
// with the error text as the body — callers constructing a Response always
// get back a usable value, never an error.
func NewStatusJSON(status int, body any) *Response {
	data, err := json.Marshal(body)
	if err != nil {
		return &Response{
			Status:      500,
			Body:        []byte(err.Error()),
			ContentType: "text/plain",
			headers:     request.NewHeaders(),
		}
	}
	return &Response{Status: status, Body: data, ContentType: "application/json", headers: request.NewHeaders()}
}

// Text returns a 200 text/plain response with body as its content.
func Text(body string) *Response {
	return NewStatusText(200, body)
}

// NewStatusText returns a text/plain response with the given status.
func NewStatusText(status int, body string) *Response {
	return &Response{Status: status, Body: []byte(body), ContentType: "text/plain", headers: request.NewHeaders()}
}

// WithStatus sets the status and returns r for chaining.
func (r *Response) WithStatus(status int) *Response {
	r.Status = status
	return r
}

// WithHeader sets name/value and returns r for chaining. A name of
// "content-type" (case-insensitive) is redirected into ContentType instead
// of being stored as an extra header.
func (r *Response) WithHeader(name, value string) *Response {
	r.SetHeader(name, value)
	return r
}

// SetHeader sets name/value in place. A name of "content-type"
// (case-insensitive) is redirected into ContentType.
func (r *Response) SetHeader(name, value string) {
	if isContentType(name) {
		r.ContentType = value
		return
	}
	if r.headers == nil {
		r.headers = request.NewHeaders()
	}
	r.headers.Set(name, value)
}

// Header returns the extra-header value for name, or "" if unset. Looking
// up "content-type" here always returns "" — use r.ContentType instead.
func (r *Response) Header(name string) string {
	if isContentType(name) || r.headers == nil {
		return ""
	}
	return r.headers.Get(name)
}

// Headers enumerates the extra headers (never including content-type) in
// insertion order.
func (r *Response) Headers() []request.Pair {
	if r.headers == nil {
		return nil
	}
	return r.headers.Values()
}

func isContentType(name string) bool {
	if len(name) != len("content-type") {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != "content-type"[i] {
			return false
		}
	}
	return true
}

// Bytes returns the serialized body.
func (r *Response) Bytes() []byte { return r.Body }

// WireStatus returns the status to emit on the wire, defaulting to 500 if
// Status is out of the valid HTTP status range.
func (r *Response) WireStatus() int {
	if r.Status < 100 || r.Status > 599 {
		return 500
	}
	return r.Status
}
