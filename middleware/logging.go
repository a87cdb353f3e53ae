package middleware

import (
	"log/slog"

	"github.com/corviddev/corvid/request"
	"github.com/corviddev/corvid/response"
)

// Logging emits a structured record before and after the handler runs,
// carrying method, path, and x-request-id. Before always Continues.
type Logging struct {
	Logger     *slog.Logger
	LogHeaders bool
}

// NewLogging returns a Logging middleware. logHeaders mirrors the guest
// surface's enable_logging_middleware(log_headers=false) flag.
func NewLogging(logger *slog.Logger, logHeaders bool) *Logging {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logging{Logger: logger, LogHeaders: logHeaders}
}

func (l *Logging) Name() string { return "logging" }

func (l *Logging) Before(req *request.Request) (Result, *response.Response) {
	args := []any{"method", req.Method, "path", req.Path, "x-request-id", req.RequestID()}
	if l.LogHeaders {
		for _, h := range req.Headers.Values() {
			args = append(args, "header."+h.Name, h.Value)
		}
	}
	l.Logger.Info("request received", args...)
	return Continue, nil
}

func (l *Logging) After(req *request.Request, resp *response.Response) {
	l.Logger.Info("request completed",
		"method", req.Method, "path", req.Path, "x-request-id", req.RequestID(), "status", resp.WireStatus())
}
