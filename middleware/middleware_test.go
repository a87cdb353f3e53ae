package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corviddev/corvid/request"
	"github.com/corviddev/corvid/response"
)

type recordingMiddleware struct {
	name      string
	log       *[]string
	respondAt bool
}

func (m *recordingMiddleware) Name() string { return m.name }

func (m *recordingMiddleware) Before(*request.Request) (Result, *response.Response) {
	*m.log = append(*m.log, m.name+".before")
	if m.respondAt {
		return Respond, response.New().WithStatus(200)
	}
	return Continue, nil
}

func (m *recordingMiddleware) After(*request.Request, *response.Response) {
	*m.log = append(*m.log, m.name+".after")
}

func TestChainOrderingNoShortCircuit(t *testing.T) {
	var log []string
	c := NewChain(nil)
	c.Use(&recordingMiddleware{name: "m1", log: &log})
	c.Use(&recordingMiddleware{name: "m2", log: &log})

	req := request.New("GET", "/", request.NewHeaders(), nil)
	resp, shortCircuit := c.RunBefore(req)
	assert.False(t, shortCircuit)
	assert.Nil(t, resp)

	log = append(log, "handler")
	c.RunAfter(req, response.New())

	want := []string{"m1.before", "m2.before", "handler", "m2.after", "m1.after"}
	assert.Equal(t, want, log)
}

func TestChainShortCircuitStillRunsAllAfterHooks(t *testing.T) {
	var log []string
	c := NewChain(nil)
	c.Use(&recordingMiddleware{name: "m1", log: &log})
	c.Use(&recordingMiddleware{name: "m2", log: &log, respondAt: true})
	c.Use(&recordingMiddleware{name: "m3", log: &log})

	req := request.New("GET", "/", request.NewHeaders(), nil)
	resp, shortCircuit := c.RunBefore(req)
	require.True(t, shortCircuit)
	require.NotNil(t, resp)
	c.RunAfter(req, resp)

	// m3.before never ran (short-circuited at m2), but every after hook
	// still runs.
	want := []string{"m1.before", "m2.before", "m3.after", "m2.after", "m1.after"}
	assert.Equal(t, want, log)
}

type panickingMiddleware struct{}

func (panickingMiddleware) Name() string { return "panicker" }
func (panickingMiddleware) Before(*request.Request) (Result, *response.Response) {
	panic("boom")
}
func (panickingMiddleware) After(*request.Request, *response.Response) {
	panic("boom-after")
}

func TestChainRecoversFromPanickingMiddleware(t *testing.T) {
	c := NewChain(nil)
	c.Use(panickingMiddleware{})

	req := request.New("GET", "/", request.NewHeaders(), nil)
	resp, shortCircuit := c.RunBefore(req)
	assert.False(t, shortCircuit)
	assert.Nil(t, resp)

	// Must not panic.
	c.RunAfter(req, response.New())
}

func TestCORSSetsHeadersUnconditionally(t *testing.T) {
	c := NewCORS(CORSOptions{AllowOrigin: "https://x.test", AllowMethods: []string{"GET"}, AllowHeaders: []string{"X-A"}})
	req := request.New("GET", "/", request.NewHeaders(), nil)
	resp := response.New()
	c.After(req, resp)

	assert.Equal(t, "https://x.test", resp.Header("Access-Control-Allow-Origin"))
}

func TestRateLimitExhaustsCapacityThenRejects(t *testing.T) {
	rl := NewRateLimit(2, 0)
	headers := request.NewHeaders()
	headers.Set(request.ClientIPHeader, "10.0.0.1")

	for i := 0; i < 2; i++ {
		req := request.New("GET", "/", headers, nil)
		result, _ := rl.Before(req)
		assert.Equalf(t, Continue, result, "request %d", i)
	}

	req := request.New("GET", "/", headers, nil)
	result, resp := rl.Before(req)
	assert.Equal(t, Respond, result)
	require.NotNil(t, resp)
	assert.Equal(t, 429, resp.WireStatus())
}
