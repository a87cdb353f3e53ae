package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corviddev/corvid/cerr"
	"github.com/corviddev/corvid/paramtype"
)

func TestAddRouteAndMatch(t *testing.T) {
	r := New()
	id, err := r.AddRoute(GET, "/users/{id:int}", false)
	require.NoError(t, err)

	m, err := r.MatchRoute(GET, "/users/21")
	require.NoError(t, err)
	assert.Equal(t, id, m.HandlerID)

	v := m.TypedParams["id"]
	assert.Equal(t, paramtype.Int, v.Type)
	assert.Equal(t, int64(21), v.I)
}

func TestMatchFallsBackToStringOnBadConversion(t *testing.T) {
	r := New()
	r.AddRoute(GET, "/users/{id:int}", false)

	m, err := r.MatchRoute(GET, "/users/abc")
	require.NoError(t, err, "tolerant binding must never fail match")

	v := m.TypedParams["id"]
	assert.Equal(t, paramtype.String, v.Type)
	assert.Equal(t, "abc", v.Raw)
}

func TestMethodAbsentIsRouteNotFoundNeverMethodNotAllowed(t *testing.T) {
	r := New()
	r.AddRoute(GET, "/users/{id:int}", false)

	_, err := r.MatchRoute(POST, "/users/21")
	assert.IsType(t, &cerr.RouteNotFound{}, err)
}

func TestDuplicatePatternFails(t *testing.T) {
	r := New()
	_, err := r.AddRoute(GET, "/users/{id:int}", false)
	require.NoError(t, err)

	_, err = r.AddRoute(GET, "/users/{other:string}", false)
	assert.IsType(t, &cerr.InvalidRoutePattern{}, err)
}

func TestWildcardCapturesRemainder(t *testing.T) {
	r := New()
	r.AddRoute(GET, "/static/*filepath", false)

	m, err := r.MatchRoute(GET, "/static/css/app.css")
	require.NoError(t, err)
	assert.Equal(t, "css/app.css", m.RawParams["filepath"])
}

func TestUnregisteredPathIsRouteNotFound(t *testing.T) {
	r := New()
	r.AddRoute(GET, "/users/{id:int}", false)

	_, err := r.MatchRoute(GET, "/other")
	assert.IsType(t, &cerr.RouteNotFound{}, err)
}

func TestDiagnosticsFireOnDuplicateRoute(t *testing.T) {
	var events []DiagnosticEvent
	r := New().WithDiagnostics(DiagnosticHandlerFunc(func(e DiagnosticEvent) {
		events = append(events, e)
	}))

	r.AddRoute(GET, "/users/{id:int}", false)
	_, err := r.AddRoute(GET, "/users/{other:string}", false)
	require.Error(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, DiagDuplicateRoute, events[0].Kind)
}

func TestRoutesSnapshot(t *testing.T) {
	r := New()
	r.AddRoute(GET, "/a", false)
	r.AddRoute(POST, "/b", true)

	routes := r.Routes()
	require.Len(t, routes, 2)
	assert.True(t, routes[1].AuthRequired)
}
