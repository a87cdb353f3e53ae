package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corviddev/corvid/auth"
	"github.com/corviddev/corvid/guest"
	"github.com/corviddev/corvid/middleware"
	"github.com/corviddev/corvid/observability"
	"github.com/corviddev/corvid/request"
	"github.com/corviddev/corvid/response"
)

type fakeCallable struct {
	fn func(ctx context.Context, req *request.Request) (guest.Result, error)
}

func (f *fakeCallable) Kind() guest.CallableKind { return guest.Sync }

func (f *fakeCallable) Invoke(ctx context.Context, req *request.Request) (guest.Result, error) {
	return f.fn(ctx, req)
}

func (f *fakeCallable) InvokeAsync(ctx context.Context, req *request.Request) (guest.Awaitable, error) {
	panic("not used in these tests")
}

type noopScheduler struct{}

func (noopScheduler) Bind() error { return nil }

func (noopScheduler) Await(guest.Awaitable) (guest.Result, error) {
	return guest.Result{}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, nil))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func buildServer(t *testing.T, opts ...Option) *Server {
	t.Helper()

	adapter := guest.NewAdapter(noopScheduler{}, nil, nil)
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	s := New(adapter, testLogger(), metrics, opts...)

	err := s.Get("/widgets/{id:int}", &fakeCallable{fn: func(ctx context.Context, req *request.Request) (guest.Result, error) {
		return guest.Result{Value: map[string]any{"id": req.TypedParams["id"].I}}, nil
	}}, false)
	require.NoError(t, err)

	err = s.Get("/secure", &fakeCallable{fn: func(ctx context.Context, req *request.Request) (guest.Result, error) {
		return guest.Result{Value: "secured"}, nil
	}}, true)
	require.NoError(t, err)

	return s
}

func TestTestRequestMatchesTypedRoute(t *testing.T) {
	s := buildServer(t)

	resp := s.TestRequest("GET", "/widgets/42", nil, nil)
	assert.Equal(t, 200, resp.WireStatus())

	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Bytes(), &body))
	assert.Equal(t, float64(42), body["id"])
}

func TestTestRequestUnknownRouteIs404(t *testing.T) {
	s := buildServer(t)

	resp := s.TestRequest("GET", "/nope", nil, nil)
	assert.Equal(t, 404, resp.WireStatus())
	assert.Equal(t, "application/json", resp.ContentType)
	assert.JSONEq(t, `{"error":"Not Found"}`, string(resp.Bytes()))
}

func TestTestRequestAuthMisconfiguredWithoutSecret(t *testing.T) {
	s := buildServer(t)

	resp := s.TestRequest("GET", "/secure", nil, nil)
	assert.Equal(t, 500, resp.WireStatus())
	assert.JSONEq(t, `{"error":"Server misconfigured: Auth required but no secret set"}`, string(resp.Bytes()))
}

func TestTestRequestAuthMissingHeader(t *testing.T) {
	s := buildServer(t, WithAuthSecret("s3cret"))

	resp := s.TestRequest("GET", "/secure", nil, nil)
	assert.Equal(t, 401, resp.WireStatus())
	assert.JSONEq(t, `{"error":"Missing or invalid Authorization header"}`, string(resp.Bytes()))
}

func TestTestRequestAuthInvalidToken(t *testing.T) {
	s := buildServer(t, WithAuthSecret("s3cret"))

	headers := request.NewHeaders()
	headers.Set("authorization", "Bearer not-a-real-token")

	resp := s.TestRequest("GET", "/secure", headers, nil)
	assert.Equal(t, 401, resp.WireStatus())
	assert.JSONEq(t, `{"error":"Unauthorized"}`, string(resp.Bytes()))
}

func TestTestRequestAuthSucceedsWithValidBearerToken(t *testing.T) {
	s := buildServer(t, WithAuthSecret("s3cret"))

	svc := auth.NewTokenService("s3cret")
	token, err := svc.IssueToken("user-1", nil, time.Hour)
	require.NoError(t, err)

	headers := request.NewHeaders()
	headers.Set("authorization", "Bearer "+token)

	resp := s.TestRequest("GET", "/secure", headers, nil)
	assert.Equal(t, 200, resp.WireStatus())
}

func TestTestRequestPayloadTooLarge(t *testing.T) {
	s := buildServer(t, WithMaxBodySize(4))

	resp := s.TestRequest("GET", "/widgets/1", nil, []byte("way too big"))
	assert.Equal(t, 413, resp.WireStatus())
	assert.Equal(t, "text/plain", resp.ContentType)
	assert.Equal(t, "Payload Too Large", string(resp.Bytes()))
}

func TestTestRequestEchoesRequestID(t *testing.T) {
	s := buildServer(t)

	headers := request.NewHeaders()
	headers.Set(request.RequestIDHeader, "abc-123")

	resp := s.TestRequest("GET", "/widgets/1", headers, nil)
	assert.True(t, headerPresent(resp, request.RequestIDHeader, "abc-123"))
}

func TestTestRequestShortCircuitStillEchoesRequestID(t *testing.T) {
	s := buildServer(t)

	s.AddMiddleware(rejectingMiddleware{})

	headers := request.NewHeaders()
	headers.Set(request.RequestIDHeader, "rejected-1")

	resp := s.TestRequest("GET", "/widgets/1", headers, nil)
	assert.Equal(t, 429, resp.WireStatus())
	assert.True(t, headerPresent(resp, request.RequestIDHeader, "rejected-1"))
}

func headerPresent(resp *response.Response, name, value string) bool {
	for _, pair := range resp.Headers() {
		if pair.Name == name && pair.Value == value {
			return true
		}
	}
	return false
}

type rejectingMiddleware struct{}

func (rejectingMiddleware) Name() string { return "rejecting" }

func (rejectingMiddleware) Before(req *request.Request) (middleware.Result, *response.Response) {
	return middleware.Respond, response.NewStatusJSON(429, map[string]string{"error": "Rate limit exceeded"})
}

func (rejectingMiddleware) After(req *request.Request, resp *response.Response) {}

func TestNewTestClientServesRegisteredRoute(t *testing.T) {
	s := buildServer(t)
	client := s.NewTestClient()

	resp := client.Do("GET", "/widgets/7", nil, nil)
	assert.Equal(t, 200, resp.WireStatus())
}

func TestGetAfterFreezePanics(t *testing.T) {
	s := buildServer(t)
	s.NewTestClient() // freezes the route table

	handler := &fakeCallable{fn: func(ctx context.Context, req *request.Request) (guest.Result, error) {
		return guest.Result{Value: "late"}, nil
	}}

	assert.Panics(t, func() {
		_ = s.Get("/late", handler, false)
	})
}

func TestEnableAuthActivatesTokenService(t *testing.T) {
	s := buildServer(t)
	s.EnableAuth("s3cret")

	resp := s.TestRequest("GET", "/secure", nil, nil)
	assert.Equal(t, 401, resp.WireStatus(), "expected missing-token, not misconfigured")
}
