package guest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corviddev/corvid/cerr"
	"github.com/corviddev/corvid/request"
	"github.com/corviddev/corvid/response"
)

type fakeCallable struct {
	kind        CallableKind
	invokeFn    func(ctx context.Context, req *request.Request) (Result, error)
	asyncFn     func(ctx context.Context, req *request.Request) (Awaitable, error)
	panicOnCall bool
}

func (f *fakeCallable) Kind() CallableKind { return f.kind }

func (f *fakeCallable) Invoke(ctx context.Context, req *request.Request) (Result, error) {
	if f.panicOnCall {
		panic("guest exploded")
	}
	return f.invokeFn(ctx, req)
}

func (f *fakeCallable) InvokeAsync(ctx context.Context, req *request.Request) (Awaitable, error) {
	return f.asyncFn(ctx, req)
}

type fakeScheduler struct {
	bound   bool
	bindErr error
	result  Result
	err     error
}

func (s *fakeScheduler) Bind() error {
	s.bound = true
	return s.bindErr
}

func (s *fakeScheduler) Await(Awaitable) (Result, error) {
	return s.result, s.err
}

func newReq() *request.Request {
	return request.New("GET", "/widgets", request.NewHeaders(), nil)
}

func TestInvokeSyncCoercesStringToTextResponse(t *testing.T) {
	sched := &fakeScheduler{}
	adapter := NewAdapter(sched, nil, nil)
	callable := &fakeCallable{
		kind: Sync,
		invokeFn: func(ctx context.Context, req *request.Request) (Result, error) {
			return Result{Value: "hello"}, nil
		},
	}

	resp, err := adapter.Invoke(context.Background(), callable, "/widgets", newReq())
	require.NoError(t, err)
	assert.Equal(t, "text/plain", resp.ContentType)
	assert.Equal(t, "hello", string(resp.Body))
	assert.True(t, sched.bound)
}

func TestInvokeAsyncRunsThroughScheduler(t *testing.T) {
	sched := &fakeScheduler{result: Result{Value: map[string]any{"ok": true}}}
	adapter := NewAdapter(sched, nil, nil)
	called := false
	callable := &fakeCallable{
		kind: Async,
		asyncFn: func(ctx context.Context, req *request.Request) (Awaitable, error) {
			called = true
			return "task-handle", nil
		},
	}

	resp, err := adapter.Invoke(context.Background(), callable, "/widgets", newReq())
	require.NoError(t, err)
	assert.True(t, called, "expected InvokeAsync to be called")
	assert.Equal(t, "application/json", resp.ContentType)
}

func TestInvokeRecoversFromPanic(t *testing.T) {
	adapter := NewAdapter(&fakeScheduler{}, nil, nil)
	callable := &fakeCallable{kind: Sync, panicOnCall: true}

	resp, err := adapter.Invoke(context.Background(), callable, "/widgets", newReq())
	assert.Nil(t, resp)

	var fault *cerr.GuestFault
	assert.True(t, errors.As(err, &fault), "expected a *cerr.GuestFault, got %v (%T)", err, err)
}

func TestInvokePropagatesHandlerErrorAsGuestFault(t *testing.T) {
	adapter := NewAdapter(&fakeScheduler{}, nil, nil)
	callable := &fakeCallable{
		kind: Sync,
		invokeFn: func(ctx context.Context, req *request.Request) (Result, error) {
			return Result{}, errors.New("boom")
		},
	}

	_, err := adapter.Invoke(context.Background(), callable, "/widgets", newReq())
	assert.Error(t, err)
}

func TestCoerceResponsePassesThrough(t *testing.T) {
	want := response.Text("literal")
	resp, err := Coerce(Result{Value: want})
	require.NoError(t, err)
	assert.Same(t, want, resp)
}

func TestCoerceDuckResponseDefaults(t *testing.T) {
	resp, err := Coerce(Result{Value: DuckResponse{Body: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "text/plain", resp.ContentType)
	assert.Equal(t, "hi", string(resp.Body))
}

type sliceStream struct {
	chunks []any
	i      int
}

func (s *sliceStream) Next() (any, bool, error) {
	if s.i >= len(s.chunks) {
		return nil, false, nil
	}
	c := s.chunks[s.i]
	s.i++
	return c, s.i < len(s.chunks), nil
}

func TestCoerceStreamingMaterializesAllChunks(t *testing.T) {
	stream := &sliceStream{chunks: []any{"a", []byte("b"), "c"}}
	resp, err := Coerce(Result{Value: Streaming{ContentType: "text/event-stream", Content: stream}})
	require.NoError(t, err)
	assert.Equal(t, "abc", string(resp.Body))
	assert.Equal(t, "text/event-stream", resp.ContentType)
}

func TestCoerceUnrecognizedShapeErrors(t *testing.T) {
	_, err := Coerce(Result{Value: 42})
	assert.Error(t, err)
}
