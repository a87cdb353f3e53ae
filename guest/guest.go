// Package guest bridges a guest-language callable to the host pipeline: it
// discriminates sync vs cooperative-async handlers, materializes streaming
// bodies, translates guest faults into 500 responses, and injects a
// cancellation handle before invoking guest code.
//
// This package is guest-language-agnostic: it depends only on the Callable
// and Scheduler interfaces below, never on a specific guest language's C
// API. The concrete Lua realization lives in guest/luabridge.
package guest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/corviddev/corvid/cerr"
	"github.com/corviddev/corvid/observability"
	"github.com/corviddev/corvid/request"
	"github.com/corviddev/corvid/response"
)

// CallableKind discriminates a sync handler (returns immediately) from a
// cooperative-async handler (returns a suspendable task).
type CallableKind int

const (
	Sync CallableKind = iota
	Async
)

// Result carries whatever value the guest handler returned, in one of the
// shapes Coerce understands. Coerce turns it into a Response.
type Result struct {
	Value any
}

// Awaitable is an opaque handle to a suspended guest task, produced by
// InvokeAsync and resumed by Scheduler.Await. Its concrete type is owned by
// the Scheduler implementation.
type Awaitable any

// Callable is a single registered route handler living in the guest.
// Detection of Kind is performed once per registration where possible; a
// Callable that is always one kind simply returns a constant from Kind.
type Callable interface {
	Kind() CallableKind
	Invoke(ctx context.Context, req *request.Request) (Result, error)
	InvokeAsync(ctx context.Context, req *request.Request) (Awaitable, error)
}

// Scheduler is the bound guest event loop. Bind captures it and is
// idempotent; Adapter calls it once, on its first Invoke. Await resumes a
// suspended task until it yields a terminal value.
type Scheduler interface {
	Bind() error
	Await(Awaitable) (Result, error)
}

// DuckResponse is an object with status, body, content_type, and headers
// attributes. Guest bridges translate their native return value into this
// shape (or one of the other Result shapes) before handing it to Adapter.
type DuckResponse struct {
	Status      int
	Body        string
	ContentType string
	Headers     map[string]string
}

// StreamSource is a materializable guest iterator/async-iterator. Next
// returns the next chunk (string or []byte) and whether more chunks remain;
// the guest bridge is responsible for draining its native iterator into
// this shape.
type StreamSource interface {
	Next() (chunk any, more bool, err error)
}

// Streaming is the "collect-then-send" marker response: its body is fully
// materialized from Content before Coerce returns.
type Streaming struct {
	Status      int
	ContentType string
	Headers     map[string]string
	Content     StreamSource
}

// Adapter is the cross-boundary bridge: every entry into guest code goes
// through Invoke, which injects cancellation, enforces the fault catcher,
// and coerces the result.
type Adapter struct {
	Scheduler Scheduler
	Tracer    trace.Tracer
	Metrics   *observability.Metrics

	bindOnce sync.Once
	bindErr  error
}

// NewAdapter returns an Adapter bound to scheduler.
func NewAdapter(scheduler Scheduler, tracer trace.Tracer, metrics *observability.Metrics) *Adapter {
	return &Adapter{Scheduler: scheduler, Tracer: tracer, Metrics: metrics}
}

// ensureBound calls Scheduler.Bind exactly once, on the first Invoke; it is
// not called at route registration or server start. The first result,
// including a bind error, is kept for every later Invoke.
func (a *Adapter) ensureBound() error {
	a.bindOnce.Do(func() {
		a.bindErr = a.Scheduler.Bind()
	})
	return a.bindErr
}

// Invoke calls callable with req, honoring sync/async discrimination,
// cancellation injection, fault isolation, and response coercion. It never
// panics and never returns a raw guest error: any abnormal termination is
// mapped to a *cerr.GuestFault.
func (a *Adapter) Invoke(ctx context.Context, callable Callable, route string, baseReq *request.Request) (resp *response.Response, err error) {
	if bindErr := a.ensureBound(); bindErr != nil {
		return nil, &cerr.GuestFault{Message: "guest scheduler bind failed: " + bindErr.Error()}
	}

	req := baseReq.WithCancellation(ctx)

	var span trace.Span
	if a.Tracer != nil {
		ctx, span = observability.StartGuestSpan(ctx, a.Tracer, route)
		defer span.End()
	}

	defer func() {
		if r := recover(); r != nil {
			if span != nil {
				observability.RecordFault(span, r, true)
			}
			if a.Metrics != nil {
				a.Metrics.IncGuestFault()
			}
			resp = nil
			err = &cerr.GuestFault{Message: fmt.Sprint(r)}
		}
	}()

	result, invokeErr := a.call(ctx, callable, req)
	if invokeErr != nil {
		if span != nil {
			observability.RecordFault(span, invokeErr, false)
		}
		if a.Metrics != nil {
			a.Metrics.IncGuestFault()
		}
		return nil, &cerr.GuestFault{Message: invokeErr.Error()}
	}

	coerced, coerceErr := Coerce(result)
	if coerceErr != nil {
		if span != nil {
			observability.RecordFault(span, coerceErr, false)
		}
		if a.Metrics != nil {
			a.Metrics.IncGuestFault()
		}
		return nil, &cerr.GuestFault{Message: coerceErr.Error()}
	}

	return coerced, nil
}

func (a *Adapter) call(ctx context.Context, callable Callable, req *request.Request) (Result, error) {
	if callable.Kind() == Sync {
		return callable.Invoke(ctx, req)
	}

	awaitable, err := callable.InvokeAsync(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return a.Scheduler.Await(awaitable)
}

// Coerce maps a guest Result's Value into a Response. An unrecognized shape
// is itself a guest fault: any abnormal termination is mapped to a 500.
func Coerce(result Result) (*response.Response, error) {
	switch v := result.Value.(type) {
	case *response.Response:
		return v, nil
	case string:
		return response.Text(v), nil
	case DuckResponse:
		resp := &response.Response{Status: v.Status, Body: []byte(v.Body), ContentType: v.ContentType}
		if resp.ContentType == "" {
			resp.ContentType = "text/plain"
		}
		if resp.Status == 0 {
			resp.Status = 200
		}
		for name, value := range v.Headers {
			resp.WithHeader(name, value)
		}
		return resp, nil
	case map[string]any:
		return response.JSON(v), nil
	case Streaming:
		return materializeStream(v)
	default:
		return nil, fmt.Errorf("unrecognized guest return value of type %T", v)
	}
}

// materializeStream fully collects a Streaming response's chunks before
// returning. Byte chunks are decoded as UTF-8 lossily; string chunks are
// taken verbatim.
func materializeStream(s Streaming) (*response.Response, error) {
	var body strings.Builder

	for {
		chunk, more, err := s.Content.Next()
		if err != nil && err != io.EOF {
			return nil, err
		}

		switch c := chunk.(type) {
		case string:
			body.WriteString(c)
		case []byte:
			body.Write(toValidUTF8(c))
		case nil:
			// no chunk this iteration
		default:
			return nil, fmt.Errorf("unrecognized stream chunk type %T", c)
		}

		if !more || err == io.EOF {
			break
		}
	}

	status := s.Status
	if status == 0 {
		status = 200
	}
	contentType := s.ContentType
	if contentType == "" {
		contentType = "text/plain"
	}

	resp := &response.Response{Status: status, Body: []byte(body.String()), ContentType: contentType}
	for name, value := range s.Headers {
		resp.WithHeader(name, value)
	}
	return resp, nil
}

// toValidUTF8 replaces invalid byte sequences with the Unicode replacement
// character: bytes are decoded as UTF-8 lossily.
func toValidUTF8(b []byte) []byte {
	return []byte(strings.ToValidUTF8(string(b), "�"))
}
