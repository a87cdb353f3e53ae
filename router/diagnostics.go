package router

// DiagnosticKind categorizes a non-fatal router anomaly.
type DiagnosticKind string

const (
	// DiagDuplicateRoute fires when AddRoute rejects a pattern that
	// normalizes to one already registered for the same method.
	DiagDuplicateRoute DiagnosticKind = "duplicate_route"
	// DiagWildcardCollision fires when a wildcard child is registered on a
	// node that already has one under a different name, silently keeping the
	// first registration's wildcard name.
	DiagWildcardCollision DiagnosticKind = "wildcard_collision"
)

// DiagnosticEvent is an optional, purely observational event describing a
// configuration-adjacent anomaly. The router's matching behavior is
// unaffected by whether a DiagnosticHandler is installed.
type DiagnosticEvent struct {
	Kind    DiagnosticKind
	Message string
	Fields  map[string]any
}

// DiagnosticHandler receives DiagnosticEvents as they occur during
// registration. A nil handler (the default) silently drops them.
type DiagnosticHandler interface {
	HandleDiagnostic(DiagnosticEvent)
}

// DiagnosticHandlerFunc adapts a function to DiagnosticHandler.
type DiagnosticHandlerFunc func(DiagnosticEvent)

func (f DiagnosticHandlerFunc) HandleDiagnostic(e DiagnosticEvent) { f(e) }

// WithDiagnostics installs h on r, to be called during subsequent AddRoute
// calls. Must be called before any AddRoute call to observe every event.
func (r *Router) WithDiagnostics(h DiagnosticHandler) *Router {
	r.diagnostics = h
	return r
}

func (r *Router) emit(e DiagnosticEvent) {
	if r.diagnostics != nil {
		r.diagnostics.HandleDiagnostic(e)
	}
}
