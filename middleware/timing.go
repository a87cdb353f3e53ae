package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/corviddev/corvid/request"
	"github.com/corviddev/corvid/response"
)

// Timing records a monotonic start time keyed by "method:path" in Before,
// and logs the elapsed duration at debug level in After. The key
// deliberately collides across concurrent requests to the same route: this
// is a diagnostic tool, not an SLO measurement.
type Timing struct {
	Logger *slog.Logger

	mu     sync.Mutex
	starts map[string]time.Time
}

// NewTiming returns a Timing middleware.
func NewTiming(logger *slog.Logger) *Timing {
	if logger == nil {
		logger = slog.Default()
	}
	return &Timing{Logger: logger, starts: make(map[string]time.Time)}
}

func (t *Timing) Name() string { return "timing" }

func (t *Timing) key(req *request.Request) string {
	return req.Method + ":" + req.Path
}

func (t *Timing) Before(req *request.Request) (Result, *response.Response) {
	t.mu.Lock()
	t.starts[t.key(req)] = time.Now()
	t.mu.Unlock()
	return Continue, nil
}

func (t *Timing) After(req *request.Request, _ *response.Response) {
	key := t.key(req)

	t.mu.Lock()
	start, ok := t.starts[key]
	delete(t.starts, key)
	t.mu.Unlock()

	if !ok {
		return
	}

	t.Logger.Debug("request timing", "method", req.Method, "path", req.Path, "elapsed", time.Since(start))
}
