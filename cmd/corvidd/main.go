// Command corvidd is a runnable example wiring every corvid package
// together: a router with a sync and an async Lua-backed route, the four
// built-in middlewares, Prometheus metrics, and graceful shutdown on
// SIGINT/SIGTERM. Auth is not enabled and no route requires it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/corviddev/corvid/guest"
	"github.com/corviddev/corvid/guest/luabridge"
	"github.com/corviddev/corvid/logging"
	"github.com/corviddev/corvid/middleware"
	"github.com/corviddev/corvid/observability"
	"github.com/corviddev/corvid/router"
	"github.com/corviddev/corvid/server"
)

const exampleScript = `
function greet(req)
  local name = req.params.name
  if name == nil or name == "" then
    name = "stranger"
  end
  return {status = 200, body = "hello, " .. name, content_type = "text/plain"}
end

function slow_greet(req)
  coroutine.yield()
  return {ok = true, greeted = req.params.name}
end
`

func main() {
	startupID := uuid.NewString()

	logger := logging.New(logging.Options{Handler: logging.JSON, Level: slog.LevelInfo})
	logger = logger.With("startup_id", startupID)

	bridge := luabridge.NewBridge()
	defer bridge.Close()
	if err := bridge.LoadScript(exampleScript); err != nil {
		logger.Error("failed to load guest script", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	tracer := otel.Tracer("corvid")

	adapter := guest.NewAdapter(luabridge.NewScheduler(bridge), tracer, metrics)

	srv := server.New(adapter, logger, metrics,
		server.WithBindAddress(":8080"),
		server.WithShutdownTimeout(15*time.Second),
		server.WithMaxBodySize(2<<20),
	).WithDiagnostics(router.DiagnosticHandlerFunc(func(e router.DiagnosticEvent) {
		logger.Warn(e.Message, "kind", e.Kind, "fields", e.Fields)
	}))

	if err := srv.Get("/greet/{name}", luabridge.NewHandler(bridge, "greet", guest.Sync), false); err != nil {
		logger.Error("failed to register route", "error", err)
		os.Exit(1)
	}
	if err := srv.Get("/greet-slow/{name}", luabridge.NewHandler(bridge, "slow_greet", guest.Async), false); err != nil {
		logger.Error("failed to register route", "error", err)
		os.Exit(1)
	}

	srv.EnableLoggingMiddleware(false)
	srv.EnableTimingMiddleware()
	srv.EnableCORSMiddleware(middleware.DefaultCORSOptions())
	srv.EnableRateLimitMiddleware(20, 5)

	go serveMetrics(logger, registry)

	ctx, cancel := server.ShutdownSignalContext(context.Background())
	defer cancel()

	logger.Info("starting corvid example server", "addr", ":8080")
	if err := srv.Serve(ctx); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func serveMetrics(logger *slog.Logger, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	addr := ":9090"
	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", "error", err, "message", fmt.Sprintf("metrics unavailable on %s", addr))
	}
}
