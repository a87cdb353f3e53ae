// Package luabridge is the concrete guest realization backed by
// github.com/yuin/gopher-lua: a single embedded *lua.LState stands in for
// an external dynamic-typing environment with a cooperative scheduler and
// an interpreter lock. All access to the interpreter is serialized through
// Bridge's mutex, mirroring a single-threaded GIL-style guest rather than a
// per-request interpreter.
package luabridge

import (
	"context"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/corviddev/corvid/guest"
	"github.com/corviddev/corvid/request"
)

// Bridge owns the single embedded Lua state. All entry points lock mu for
// the duration of interpreter access, since *lua.LState is not safe for
// concurrent use.
type Bridge struct {
	mu sync.Mutex
	L  *lua.LState
}

// NewBridge opens a fresh Lua state with the standard library loaded.
func NewBridge() *Bridge {
	return &Bridge{L: lua.NewState()}
}

// LoadScript executes source against the bridge's global state, making any
// top-level function it defines available to NewHandler by name.
func (b *Bridge) LoadScript(source string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.L.DoString(source)
}

// Close releases the interpreter.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.L.Close()
}

// Handler adapts one named Lua global function to guest.Callable. Kind is
// fixed at registration time: the route table, not runtime inspection,
// decides whether a handler is invoked synchronously or as a coroutine.
type Handler struct {
	bridge *Bridge
	fnName string
	kind   guest.CallableKind
}

// NewHandler returns a Handler bound to the global function fnName.
func NewHandler(bridge *Bridge, fnName string, kind guest.CallableKind) *Handler {
	return &Handler{bridge: bridge, fnName: fnName, kind: kind}
}

func (h *Handler) Kind() guest.CallableKind { return h.kind }

// Invoke calls the bound Lua function synchronously with req converted to a
// Lua table argument, then coerces its single return value.
func (h *Handler) Invoke(ctx context.Context, req *request.Request) (guest.Result, error) {
	h.bridge.mu.Lock()
	defer h.bridge.mu.Unlock()

	L := h.bridge.L
	fn := L.GetGlobal(h.fnName)
	if fn == lua.LNil {
		return guest.Result{}, fmt.Errorf("guest function %q is not defined", h.fnName)
	}

	arg := requestToLuaTable(L, req)

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, arg); err != nil {
		return guest.Result{}, err
	}

	ret := L.Get(-1)
	L.Pop(1)

	value, err := luaValueToGuest(ret)
	if err != nil {
		return guest.Result{}, err
	}
	return guest.Result{Value: value}, nil
}

// asyncTask is the Awaitable produced by InvokeAsync: a suspended Lua
// coroutine plus whichever fields let Scheduler.Await keep resuming it.
type asyncTask struct {
	thread *lua.LState
	parent *lua.LState
	fn     *lua.LFunction
	seed   lua.LValue
	first  bool
}

// InvokeAsync prepares a fresh coroutine for the bound Lua function and
// returns immediately without running it: the function starts on the
// Scheduler's first Await call, and a coroutine that never yields resolves
// on that same call.
func (h *Handler) InvokeAsync(ctx context.Context, req *request.Request) (guest.Awaitable, error) {
	h.bridge.mu.Lock()
	defer h.bridge.mu.Unlock()

	L := h.bridge.L
	fnVal := L.GetGlobal(h.fnName)
	fn, ok := fnVal.(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("guest function %q is not defined", h.fnName)
	}

	thread, _ := L.NewThread()
	arg := requestToLuaTable(L, req)

	task := &asyncTask{thread: thread, parent: L, fn: fn, seed: arg, first: true}
	return task, nil
}

// Scheduler drives asyncTask coroutines to completion. Bind is a no-op
// beyond validating the bridge is usable: the guest event loop here is the
// bridge's own interpreter, captured once at construction.
type Scheduler struct {
	bridge *Bridge
}

// NewScheduler returns a Scheduler bound to bridge.
func NewScheduler(bridge *Bridge) *Scheduler {
	return &Scheduler{bridge: bridge}
}

func (s *Scheduler) Bind() error {
	if s.bridge == nil || s.bridge.L == nil {
		return fmt.Errorf("luabridge: scheduler bound to a nil interpreter")
	}
	return nil
}

// Await resumes the coroutine until it yields a terminal value, serializing
// every resume through the bridge's mutex since the coroutine shares its
// parent *lua.LState.
func (s *Scheduler) Await(awaitable guest.Awaitable) (guest.Result, error) {
	task, ok := awaitable.(*asyncTask)
	if !ok {
		return guest.Result{}, fmt.Errorf("luabridge: unrecognized awaitable type %T", awaitable)
	}

	for {
		s.bridge.mu.Lock()
		var (
			status lua.ResumeState
			values []lua.LValue
			err    error
		)
		if task.first {
			status, values, err = task.parent.Resume(task.thread, task.fn, task.seed)
			task.first = false
		} else {
			status, values, err = task.parent.Resume(task.thread, task.fn)
		}
		s.bridge.mu.Unlock()

		if err != nil {
			return guest.Result{}, err
		}

		switch status {
		case lua.ResumeError:
			return guest.Result{}, fmt.Errorf("guest coroutine error")
		case lua.ResumeOK:
			var ret lua.LValue = lua.LNil
			if len(values) > 0 {
				ret = values[0]
			}
			value, convErr := luaValueToGuest(ret)
			if convErr != nil {
				return guest.Result{}, convErr
			}
			return guest.Result{Value: value}, nil
		case lua.ResumeYield:
			continue
		default:
			return guest.Result{}, fmt.Errorf("luabridge: unrecognized resume state %v", status)
		}
	}
}
