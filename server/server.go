// Package server implements the connection lifecycle: bind, accept,
// per-request pipeline, and graceful shutdown. HTTP/1.1 framing and
// keep-alive are delegated to net/http's server loop, while Bind constructs
// the listening socket by hand to apply SO_REUSEADDR/SO_REUSEPORT and a
// fixed backlog before handing it to http.Server.Serve.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corviddev/corvid/auth"
	"github.com/corviddev/corvid/cerr"
	"github.com/corviddev/corvid/guest"
	"github.com/corviddev/corvid/middleware"
	"github.com/corviddev/corvid/observability"
	"github.com/corviddev/corvid/request"
	"github.com/corviddev/corvid/response"
	"github.com/corviddev/corvid/router"
)

// Server is the corvid App: a route table under construction via
// Get/Post/..., a middleware Chain built up via the Enable*Middleware/
// AddMiddleware helpers, and the guest Adapter that dispatches matched
// routes to guest callables. It is unfrozen until the first call to Bind,
// Serve, NewTestClient, or TestRequest, which builds then serves.
type Server struct {
	cfg      Config
	router   *router.Router
	chain    *middleware.Chain
	adapter  *guest.Adapter
	handlers map[int]guest.Callable
	authSvc  *auth.TokenService
	logger   *slog.Logger
	metrics  *observability.Metrics

	ids       requestIDGenerator
	inFlight  atomic.Int64
	freezeOne sync.Once

	httpSrv  *http.Server
	listener net.Listener
}

// New builds an unfrozen Server. Register routes with Get/Post/Put/Delete/
// Patch/Head/Options and middlewares with the Enable*Middleware/
// AddMiddleware helpers before the first call to Bind, Serve,
// NewTestClient, or TestRequest.
func New(adapter *guest.Adapter, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Server {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if logger == nil {
		logger = slog.Default()
	}

	var authSvc *auth.TokenService
	if cfg.AuthSecret != "" {
		authSvc = auth.NewTokenService(cfg.AuthSecret)
	}

	s := &Server{
		cfg:      cfg,
		router:   router.New(),
		chain:    middleware.NewChain(logger),
		adapter:  adapter,
		handlers: make(map[int]guest.Callable),
		authSvc:  authSvc,
		logger:   logger,
		metrics:  metrics,
	}

	s.httpSrv = &http.Server{
		Addr:    cfg.BindAddress,
		Handler: s,
	}
	s.httpSrv.SetKeepAlivesEnabled(cfg.KeepAlive)

	return s
}

// WithDiagnostics installs a router.DiagnosticHandler, observing
// registration-time anomalies (duplicate routes, wildcard collisions).
// Returns s for chaining; call before registering routes to observe every
// event.
func (s *Server) WithDiagnostics(h router.DiagnosticHandler) *Server {
	s.router.WithDiagnostics(h)
	return s
}

// addRoute registers a route and its handler. It panics if called after the
// router has been frozen, matching router.AddRoute's own registration/
// serving phase split.
func (s *Server) addRoute(method router.Method, path string, handler guest.Callable, authRequired bool) error {
	id, err := s.router.AddRoute(method, path, authRequired)
	if err != nil {
		return err
	}
	s.handlers[id] = handler
	return nil
}

// Get registers a GET route.
func (s *Server) Get(path string, handler guest.Callable, auth bool) error {
	return s.addRoute(router.GET, path, handler, auth)
}

// Post registers a POST route.
func (s *Server) Post(path string, handler guest.Callable, auth bool) error {
	return s.addRoute(router.POST, path, handler, auth)
}

// Put registers a PUT route.
func (s *Server) Put(path string, handler guest.Callable, auth bool) error {
	return s.addRoute(router.PUT, path, handler, auth)
}

// Delete registers a DELETE route.
func (s *Server) Delete(path string, handler guest.Callable, auth bool) error {
	return s.addRoute(router.DELETE, path, handler, auth)
}

// Patch registers a PATCH route.
func (s *Server) Patch(path string, handler guest.Callable, auth bool) error {
	return s.addRoute(router.PATCH, path, handler, auth)
}

// Head registers a HEAD route.
func (s *Server) Head(path string, handler guest.Callable, auth bool) error {
	return s.addRoute(router.HEAD, path, handler, auth)
}

// Options registers an OPTIONS route.
func (s *Server) Options(path string, handler guest.Callable, auth bool) error {
	return s.addRoute(router.OPTIONS, path, handler, auth)
}

// EnableAuth configures the HS256 secret used to verify bearer tokens on
// routes registered with auth=true. Without a non-empty secret from either
// EnableAuth or WithAuthSecret, such routes fail closed with
// AuthMisconfigured.
func (s *Server) EnableAuth(secret string) {
	s.cfg.AuthSecret = secret
	if secret == "" {
		s.authSvc = nil
		return
	}
	s.authSvc = auth.NewTokenService(secret)
}

// EnableLoggingMiddleware appends the built-in Logging middleware.
func (s *Server) EnableLoggingMiddleware(logHeaders bool) {
	s.chain.Use(middleware.NewLogging(s.logger, logHeaders))
}

// EnableTimingMiddleware appends the built-in Timing middleware.
func (s *Server) EnableTimingMiddleware() {
	s.chain.Use(middleware.NewTiming(s.logger))
}

// EnableCORSMiddleware appends the built-in CORS middleware.
func (s *Server) EnableCORSMiddleware(opts middleware.CORSOptions) {
	s.chain.Use(middleware.NewCORS(opts))
}

// EnableRateLimitMiddleware appends the built-in token-bucket RateLimit
// middleware.
func (s *Server) EnableRateLimitMiddleware(capacity int, refillPerSec float64) {
	s.chain.Use(middleware.NewRateLimit(capacity, refillPerSec))
}

// AddMiddleware appends a caller-supplied middleware to the chain, in
// registration order alongside the built-ins.
func (s *Server) AddMiddleware(mw middleware.Middleware) {
	s.chain.Use(mw)
}

// SetBodyLimit overrides the request body size enforced at the connection
// boundary.
func (s *Server) SetBodyLimit(bytes int64) {
	s.cfg.MaxBodySize = bytes
}

// freeze finalizes route registration. Safe to call multiple times; only
// the first call takes effect.
func (s *Server) freeze() {
	s.freezeOne.Do(s.router.Freeze)
}

// Bind creates the listening socket. Serve calls it automatically if it has
// not already been called.
func (s *Server) Bind() error {
	s.freeze()
	listener, err := platformListen(s.cfg.BindAddress)
	if err != nil {
		return &cerr.Bind{Addr: s.cfg.BindAddress, Err: err}
	}
	s.listener = listener
	return nil
}

// ShutdownSignalContext returns a context cancelled by the platform's
// shutdown signals, suitable for passing to Serve.
func ShutdownSignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return shutdownSignalContext(parent)
}

// Serve runs the accept loop until ctx is cancelled, then closes the
// listener and drains in-flight requests (up to ShutdownTimeout). The
// parent ctx signals WHEN to stop; a fresh context built from
// context.Background bounds HOW LONG the drain may take.
func (s *Server) Serve(ctx context.Context) error {
	s.freeze()
	if s.listener == nil {
		if err := s.Bind(); err != nil {
			return err
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		err := s.httpSrv.Serve(s.listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		if s.logger != nil {
			s.logger.Info("server shutting down", "reason", ctx.Err())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	// Shutdown closes the listener first, so no new connections are accepted
	// while in-flight requests drain.
	shutdownErr := s.httpSrv.Shutdown(shutdownCtx)

	if err := s.drain(shutdownCtx); err != nil && s.logger != nil {
		s.logger.Warn("shutdown drain did not complete", "error", err)
	}

	if shutdownErr != nil {
		return shutdownErr
	}

	if s.logger != nil {
		s.logger.Info("server exited")
	}
	return nil
}

// drain blocks until the in-flight counter reaches zero or ctx expires.
func (s *Server) drain(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s.inFlight.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ServeHTTP is the per-connection/per-request entry point net/http drives.
// It builds the host Request (body-size gate, x-client-ip, x-request-id),
// runs the pipeline, and serializes the Response.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	if s.metrics != nil {
		s.metrics.InFlight.Inc()
		defer s.metrics.InFlight.Dec()
	}

	start := time.Now()

	if r.ContentLength > s.cfg.MaxBodySize {
		s.writeResponse(w, renderError(&cerr.PayloadTooLarge{Limit: s.cfg.MaxBodySize}))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBodySize+1))
	if err != nil {
		s.writeResponse(w, renderError(&cerr.HTTPError{Reason: err.Error()}))
		return
	}
	if int64(len(body)) > s.cfg.MaxBodySize {
		s.writeResponse(w, renderError(&cerr.PayloadTooLarge{Limit: s.cfg.MaxBodySize}))
		return
	}

	headers := request.NewHeaders()
	for name, values := range r.Header {
		for _, v := range values {
			headers.Set(name, v)
		}
	}

	if ip, _, splitErr := net.SplitHostPort(r.RemoteAddr); splitErr == nil {
		headers.Set(request.ClientIPHeader, ip)
	} else if r.RemoteAddr != "" {
		headers.Set(request.ClientIPHeader, r.RemoteAddr)
	}

	if headers.Get(request.RequestIDHeader) == "" {
		headers.Set(request.RequestIDHeader, s.ids.next())
	}

	req := request.New(r.Method, r.URL.RequestURI(), headers, body)

	resp := s.runPipeline(r.Context(), req)

	if s.metrics != nil {
		route := "unmatched"
		if m, matchErr := s.router.MatchRoute(router.Method(req.Method), req.Path); matchErr == nil {
			route = m.Pattern
		}
		s.metrics.ObserveRequest(r.Method, route, resp.WireStatus(), time.Since(start))
	}

	s.writeResponse(w, resp)
}

// TestClient issues requests directly against a Server's pipeline,
// bypassing the listener.
type TestClient struct {
	srv *Server
}

// NewTestClient freezes the route table and returns a TestClient bound to
// s. Call after all routes and middlewares have been registered.
func (s *Server) NewTestClient() *TestClient {
	s.freeze()
	return &TestClient{srv: s}
}

// Do issues method/path/body through the server's pipeline and returns the
// Response, exactly as a real connection would receive it.
func (c *TestClient) Do(method, path string, headers *request.Headers, body []byte) *response.Response {
	return c.srv.TestRequest(method, path, headers, body)
}

// TestRequest synthesizes a Request and feeds it directly through the
// pipeline, bypassing the listener.
// It applies the same body-size gate a real connection would.
func (s *Server) TestRequest(method, path string, headers *request.Headers, body []byte) *response.Response {
	s.freeze()
	if headers == nil {
		headers = request.NewHeaders()
	}
	if int64(len(body)) > s.cfg.MaxBodySize {
		return renderError(&cerr.PayloadTooLarge{Limit: s.cfg.MaxBodySize})
	}
	if headers.Get(request.RequestIDHeader) == "" {
		headers.Set(request.RequestIDHeader, s.ids.next())
	}
	if headers.Get(request.ClientIPHeader) == "" {
		headers.Set(request.ClientIPHeader, "test")
	}

	req := request.New(method, path, headers, body)
	return s.runPipeline(context.Background(), req)
}

// runPipeline runs the match, auth, middleware, and handler stages in order.
func (s *Server) runPipeline(ctx context.Context, req *request.Request) *response.Response {
	match, err := s.router.MatchRoute(router.Method(req.Method), req.Path)
	if err != nil {
		return renderError(err)
	}

	req.RawParams = match.RawParams
	req.TypedParams = match.TypedParams

	if match.AuthRequired {
		if resp := s.authenticate(req); resp != nil {
			return finalizeRequestID(req, resp)
		}
	}

	resp, shortCircuited := s.chain.RunBefore(req)
	if !shortCircuited {
		callable, ok := s.handlers[match.HandlerID]
		if !ok {
			resp = renderError(&cerr.RouteNotFound{Method: req.Method, Path: req.Path})
		} else if invoked, invokeErr := s.adapter.Invoke(ctx, callable, match.Pattern, req); invokeErr != nil {
			resp = renderError(invokeErr)
		} else {
			resp = invoked
		}
	}

	resp = finalizeRequestID(req, resp)
	s.chain.RunAfter(req, resp)
	return resp
}

// authenticate implements pipeline step 3. It returns nil when auth passes
// (claims attached to req), or the failure Response to short-circuit with.
func (s *Server) authenticate(req *request.Request) *response.Response {
	if s.authSvc == nil {
		return renderError(&cerr.AuthMisconfigured{})
	}

	token, ok := bearerToken(req.Headers.Get("authorization"))
	if !ok {
		return renderError(&cerr.AuthMissing{})
	}

	claims, err := s.authSvc.VerifyToken(token)
	if err != nil {
		return renderError(&cerr.AuthInvalid{Reason: err.Error()})
	}

	req.Claims = claims
	return nil
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimPrefix(header, prefix), true
}

// finalizeRequestID copies the request's x-request-id onto the response.
func finalizeRequestID(req *request.Request, resp *response.Response) *response.Response {
	if id := req.RequestID(); id != "" {
		resp.WithHeader(request.RequestIDHeader, id)
	}
	return resp
}

func renderError(err error) *response.Response {
	rendered := cerr.Format(err)
	return &response.Response{Status: rendered.Status, Body: rendered.Body, ContentType: rendered.ContentType}
}

func (s *Server) writeResponse(w http.ResponseWriter, resp *response.Response) {
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "text/plain"
	}
	w.Header().Set("Content-Type", contentType)
	for _, pair := range resp.Headers() {
		w.Header().Set(pair.Name, pair.Value)
	}
	w.WriteHeader(resp.WireStatus())
	_, _ = w.Write(resp.Bytes())
}
