package luabridge

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/corviddev/corvid/guest"
	"github.com/corviddev/corvid/paramtype"
	"github.com/corviddev/corvid/request"
)

// requestToLuaTable builds the guest-facing argument table for one
// invocation: method, path, query, headers, body, and typed path params.
func requestToLuaTable(L *lua.LState, req *request.Request) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("method", lua.LString(req.Method))
	t.RawSetString("path", lua.LString(req.Path))
	t.RawSetString("body", lua.LString(string(req.Body)))

	query := L.NewTable()
	for k, v := range req.Query {
		query.RawSetString(k, lua.LString(v))
	}
	t.RawSetString("query", query)

	headers := L.NewTable()
	for _, pair := range req.Headers.Values() {
		headers.RawSetString(pair.Name, lua.LString(pair.Value))
	}
	t.RawSetString("headers", headers)

	params := L.NewTable()
	for name, v := range req.TypedParams {
		params.RawSetString(name, paramValueToLua(v))
	}
	t.RawSetString("params", params)

	return t
}

// paramValueToLua exposes the typed value itself rather than just Raw, so
// guest code comparing a numeric param against a number doesn't need to
// re-parse it.
func paramValueToLua(v paramtype.Value) lua.LValue {
	switch v.Type {
	case paramtype.Int:
		return lua.LNumber(v.I)
	case paramtype.Float:
		return lua.LNumber(v.F)
	case paramtype.Bool:
		return lua.LBool(v.B)
	default:
		return lua.LString(v.Raw)
	}
}

// luaValueToGuest converts a Lua return value into a Go value for
// guest.Coerce. Tables are disambiguated by convention: an
// "_is_streaming" truthy field marks a Streaming response, a "status" field
// marks a DuckResponse, anything else is treated as a plain JSON-able map.
// Strings stay strings and nil becomes "". Numbers and booleans become
// float64 and bool, which Coerce rejects as an unrecognized shape.
func luaValueToGuest(lv lua.LValue) (any, error) {
	switch v := lv.(type) {
	case lua.LString:
		return string(v), nil
	case *lua.LTable:
		return luaTableToGuest(v)
	case lua.LNumber:
		return float64(v), nil
	case lua.LBool:
		return bool(v), nil
	case *lua.LNilType:
		return "", nil
	default:
		return nil, fmt.Errorf("luabridge: unsupported guest return type %s", lv.Type().String())
	}
}

func luaTableToGuest(t *lua.LTable) (any, error) {
	if isTruthy(t.RawGetString("_is_streaming")) {
		return guest.Streaming{
			Status:      int(lua.LVAsNumber(t.RawGetString("status"))),
			ContentType: lua.LVAsString(t.RawGetString("content_type")),
			Headers:     tableToStringMap(t.RawGetString("headers")),
			Content:     newChunkSource(t.RawGetString("chunks")),
		}, nil
	}

	if status := t.RawGetString("status"); status != lua.LNil {
		return guest.DuckResponse{
			Status:      int(lua.LVAsNumber(status)),
			Body:        lua.LVAsString(t.RawGetString("body")),
			ContentType: lua.LVAsString(t.RawGetString("content_type")),
			Headers:     tableToStringMap(t.RawGetString("headers")),
		}, nil
	}

	return tableToGenericMap(t), nil
}

func isTruthy(v lua.LValue) bool {
	return v != lua.LNil && lua.LVAsBool(v)
}

func tableToStringMap(v lua.LValue) map[string]string {
	t, ok := v.(*lua.LTable)
	if !ok {
		return nil
	}
	out := make(map[string]string)
	t.ForEach(func(k, val lua.LValue) {
		out[lua.LVAsString(k)] = lua.LVAsString(val)
	})
	return out
}

// tableToGenericMap converts an arbitrary Lua table into a JSON-able Go map,
// recursing into nested tables. Array-shaped tables are not special-cased:
// their integer keys become string keys ("1", "2", ...), and an empty table
// becomes an empty object.
func tableToGenericMap(t *lua.LTable) map[string]any {
	out := make(map[string]any)
	t.ForEach(func(k, v lua.LValue) {
		out[lua.LVAsString(k)] = luaScalarOrNested(v)
	})
	return out
}

func luaScalarOrNested(v lua.LValue) any {
	switch tv := v.(type) {
	case *lua.LTable:
		return tableToGenericMap(tv)
	case lua.LString:
		return string(tv)
	case lua.LNumber:
		return float64(tv)
	case lua.LBool:
		return bool(tv)
	default:
		return nil
	}
}

// chunkSource materializes a Lua array table of string/number chunks into a
// guest.StreamSource, implementing the "collect-then-send" contract against
// a fully-enumerable guest value rather than a live Lua iterator, since a
// suspended Lua generator would require its own coroutine plumbing
// identical to the async handler path.
type chunkSource struct {
	chunks []lua.LValue
	i      int
}

func newChunkSource(v lua.LValue) *chunkSource {
	t, ok := v.(*lua.LTable)
	if !ok {
		return &chunkSource{}
	}
	cs := &chunkSource{}
	for i := 1; i <= t.Len(); i++ {
		cs.chunks = append(cs.chunks, t.RawGetInt(i))
	}
	return cs
}

func (c *chunkSource) Next() (any, bool, error) {
	if c.i >= len(c.chunks) {
		return nil, false, nil
	}
	chunk := c.chunks[c.i]
	c.i++

	more := c.i < len(c.chunks)
	switch v := chunk.(type) {
	case lua.LString:
		return string(v), more, nil
	default:
		return lua.LVAsString(v), more, nil
	}
}
