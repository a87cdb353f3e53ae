// Package router implements per-method radix tries mapping normalized
// route patterns to handler ids, with typed path-parameter extraction.
package router

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/corviddev/corvid/cerr"
	"github.com/corviddev/corvid/paramtype"
)

// Method is the closed set of HTTP methods the router dispatches on.
type Method string

const (
	GET     Method = "GET"
	POST    Method = "POST"
	PUT     Method = "PUT"
	DELETE  Method = "DELETE"
	PATCH   Method = "PATCH"
	HEAD    Method = "HEAD"
	OPTIONS Method = "OPTIONS"
)

// RouteInfo describes a registered route: its dense handler id, the
// original and normalized patterns, per-parameter declared types, and
// whether the route requires authentication.
type RouteInfo struct {
	HandlerID          int
	Method             Method
	Pattern            string
	NormalizedPattern  string
	ParamTypes         map[string]paramtype.Type
	AuthRequired       bool
}

// Match is the result of a successful route lookup: the handler id plus
// both raw and typed parameter views, carried together so the pipeline
// never needs to re-consult the router.
type Match struct {
	HandlerID    int
	Pattern      string
	RawParams    map[string]string
	TypedParams  map[string]paramtype.Value
	AuthRequired bool
}

// Router holds one radix trie per method plus the dense RouteInfo table
// shared across methods. Registration (AddRoute) must complete before
// Freeze is called; Match is safe for concurrent use only after Freeze.
type Router struct {
	mu          sync.Mutex
	trees       map[Method]*node
	routes      []RouteInfo
	frozen      atomic.Bool
	diagnostics DiagnosticHandler
}

// New returns an empty, unfrozen Router.
func New() *Router {
	return &Router{trees: make(map[Method]*node)}
}

// edge is a per-segment child, scanned linearly to avoid map hashing on the
// hot path.
type edge struct {
	label string
	node  *node
}

// paramChild is the single parameter child a node may have; a node cannot
// have more than one, which is the defining radix-trie property for typed
// segments.
type paramChild struct {
	name string
	typ  paramtype.Type
	node *node
}

// wildcardChild is a catch-all `*name` child that captures the remainder of
// the path verbatim.
type wildcardChild struct {
	name string
	node *node
}

type node struct {
	edges    []edge
	param    *paramChild
	wildcard *wildcardChild
	route    *RouteInfo
}

func (n *node) findChild(segment string) *node {
	for i := range n.edges {
		if n.edges[i].label == segment {
			return n.edges[i].node
		}
	}
	return nil
}

func (n *node) findOrCreateChild(segment string) *node {
	if child := n.findChild(segment); child != nil {
		return child
	}
	child := &node{}
	n.edges = append(n.edges, edge{label: segment, node: child})
	return child
}

func splitSegments(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// AddRoute registers pattern for method, returning the newly allocated
// handler id. Pattern normalization strips type specifiers (`{id:int}` ->
// `{id}`) to produce the trie key. A duplicate normalized pattern within
// the same method fails with InvalidRoutePattern.
func (r *Router) AddRoute(method Method, pattern string, authRequired bool) (int, error) {
	if r.frozen.Load() {
		panic("router: AddRoute called after Freeze")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	segments := splitSegments(pattern)
	paramTypes := make(map[string]paramtype.Type)
	normalizedSegments := make([]string, len(segments))

	tree := r.trees[method]
	if tree == nil {
		tree = &node{}
		r.trees[method] = tree
	}

	current := tree
	for i, seg := range segments {
		name, typ, isParam := paramtype.ParseSegment(seg)
		if !isParam {
			normalizedSegments[i] = seg
			current = current.findOrCreateChild(seg)
			continue
		}

		if strings.HasPrefix(seg, "*") {
			normalizedSegments[i] = seg
			paramTypes[name] = paramtype.String
			if current.wildcard == nil {
				current.wildcard = &wildcardChild{name: name, node: &node{}}
			} else if current.wildcard.name != name {
				r.emit(DiagnosticEvent{
					Kind:    DiagWildcardCollision,
					Message: "wildcard name mismatch on existing catch-all child",
					Fields:  map[string]any{"method": string(method), "existing": current.wildcard.name, "attempted": name},
				})
			}
			current = current.wildcard.node
			continue
		}

		normalizedSegments[i] = "{" + name + "}"
		paramTypes[name] = typ
		if current.param == nil {
			current.param = &paramChild{name: name, typ: typ, node: &node{}}
		}
		current = current.param.node
	}

	normalizedPattern := "/" + strings.Join(normalizedSegments, "/")
	if len(normalizedSegments) == 0 {
		normalizedPattern = "/"
	}

	if current.route != nil {
		r.emit(DiagnosticEvent{
			Kind:    DiagDuplicateRoute,
			Message: "duplicate route pattern rejected",
			Fields:  map[string]any{"method": string(method), "pattern": normalizedPattern},
		})
		return 0, &cerr.InvalidRoutePattern{
			Method:  string(method),
			Pattern: pattern,
			Reason:  "duplicate pattern " + normalizedPattern + " for method " + string(method),
		}
	}

	handlerID := len(r.routes)
	info := RouteInfo{
		HandlerID:         handlerID,
		Method:            method,
		Pattern:           pattern,
		NormalizedPattern: normalizedPattern,
		ParamTypes:        paramTypes,
		AuthRequired:      authRequired,
	}
	current.route = &info
	r.routes = append(r.routes, info)

	return handlerID, nil
}

// Freeze marks the router immutable. After Freeze, Match performs no
// locking; AddRoute panics.
func (r *Router) Freeze() {
	r.frozen.Store(true)
}

// Routes returns a snapshot of all registered routes, indexed by handler id.
func (r *Router) Routes() []RouteInfo {
	out := make([]RouteInfo, len(r.routes))
	copy(out, r.routes)
	return out
}

// MatchRoute resolves method and path to a Match. If the method has no
// trie entry at all, or no route matches, it returns RouteNotFound — never
// a "method not allowed" response: an absent method looks exactly like an
// absent route.
func (r *Router) MatchRoute(method Method, path string) (Match, error) {
	tree := r.trees[method]
	if tree == nil {
		return Match{}, &cerr.RouteNotFound{Method: string(method), Path: path}
	}

	segments := splitSegments(path)

	var rawParams map[string]string
	current := tree
	for i, seg := range segments {
		if next := current.findChild(seg); next != nil {
			current = next
			continue
		}
		if current.param != nil {
			if rawParams == nil {
				rawParams = make(map[string]string, 4)
			}
			rawParams[current.param.name] = seg
			current = current.param.node
			continue
		}
		if current.wildcard != nil {
			if rawParams == nil {
				rawParams = make(map[string]string, 4)
			}
			rawParams[current.wildcard.name] = strings.Join(segments[i:], "/")
			current = current.wildcard.node
			break
		}
		return Match{}, &cerr.RouteNotFound{Method: string(method), Path: path}
	}

	if current.route == nil {
		return Match{}, &cerr.RouteNotFound{Method: string(method), Path: path}
	}

	typedParams := make(map[string]paramtype.Value, len(rawParams))
	for name, raw := range rawParams {
		typ := current.route.ParamTypes[name]
		typedParams[name] = paramtype.ConvertTolerant(raw, typ)
	}

	return Match{
		HandlerID:    current.route.HandlerID,
		Pattern:      current.route.NormalizedPattern,
		RawParams:    rawParams,
		TypedParams:  typedParams,
		AuthRequired: current.route.AuthRequired,
	}, nil
}
