package luabridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corviddev/corvid/guest"
	"github.com/corviddev/corvid/request"
)

func newTestRequest() *request.Request {
	return request.New("GET", "/widgets/42", request.NewHeaders(), nil)
}

func TestInvokeSyncStringReturn(t *testing.T) {
	bridge := NewBridge()
	defer bridge.Close()

	require.NoError(t, bridge.LoadScript(`function handle(req) return "hello " .. req.path end`))

	h := NewHandler(bridge, "handle", guest.Sync)
	result, err := h.Invoke(context.Background(), newTestRequest())
	require.NoError(t, err)
	assert.Equal(t, "hello /widgets/42", result.Value)
}

func TestInvokeSyncDuckResponseTable(t *testing.T) {
	bridge := NewBridge()
	defer bridge.Close()

	script := `
function handle(req)
  return {status = 201, body = "created", content_type = "text/plain"}
end`
	require.NoError(t, bridge.LoadScript(script))

	h := NewHandler(bridge, "handle", guest.Sync)
	result, err := h.Invoke(context.Background(), newTestRequest())
	require.NoError(t, err)

	resp, ok := result.Value.(guest.DuckResponse)
	require.True(t, ok, "expected DuckResponse, got %T", result.Value)
	assert.Equal(t, 201, resp.Status)
	assert.Equal(t, "created", resp.Body)
}

func TestInvokeSyncPlainTableBecomesMap(t *testing.T) {
	bridge := NewBridge()
	defer bridge.Close()

	require.NoError(t, bridge.LoadScript(`function handle(req) return {ok = true, id = req.params.id} end`))

	h := NewHandler(bridge, "handle", guest.Sync)
	result, err := h.Invoke(context.Background(), newTestRequest())
	require.NoError(t, err)

	m, ok := result.Value.(map[string]any)
	require.True(t, ok, "expected map[string]any, got %T", result.Value)
	assert.Equal(t, true, m["ok"])
}

func TestInvokeAsyncHandlerResolvesThroughScheduler(t *testing.T) {
	bridge := NewBridge()
	defer bridge.Close()

	script := `
function handle(req)
  coroutine.yield()
  return "done"
end`
	require.NoError(t, bridge.LoadScript(script))

	h := NewHandler(bridge, "handle", guest.Async)
	sched := NewScheduler(bridge)
	require.NoError(t, sched.Bind())

	awaitable, err := h.InvokeAsync(context.Background(), newTestRequest())
	require.NoError(t, err)

	result, err := sched.Await(awaitable)
	require.NoError(t, err)
	assert.Equal(t, "done", result.Value)
}

func TestInvokeMissingFunctionErrors(t *testing.T) {
	bridge := NewBridge()
	defer bridge.Close()

	h := NewHandler(bridge, "does_not_exist", guest.Sync)
	_, err := h.Invoke(context.Background(), newTestRequest())
	assert.Error(t, err)
}
