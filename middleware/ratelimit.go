package middleware

import (
	"sync"
	"time"

	"github.com/corviddev/corvid/request"
	"github.com/corviddev/corvid/response"
)

// bucket is a single key's token-bucket state: tokens plus the monotonic
// instant of the last refill.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// RateLimit implements the token-bucket rate limiter keyed by x-client-ip.
// Buckets are created lazily at full capacity on first use and are never
// evicted within the lifetime of the middleware; Sweep lets an operator
// reclaim memory for an unbounded distinct-IP stream if they choose to call
// it periodically.
type RateLimit struct {
	capacity float64
	refill   float64 // tokens per second

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRateLimit returns a RateLimit middleware with the given bucket
// capacity and refill rate (tokens/second).
func NewRateLimit(capacity int, refillPerSec float64) *RateLimit {
	return &RateLimit{
		capacity: float64(capacity),
		refill:   refillPerSec,
		buckets:  make(map[string]*bucket),
	}
}

func (rl *RateLimit) Name() string { return "ratelimit" }

func (rl *RateLimit) bucketFor(key string) *bucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.capacity, lastRefill: time.Now()}
		rl.buckets[key] = b
	}
	return b
}

func (rl *RateLimit) Before(req *request.Request) (Result, *response.Response) {
	key := req.ClientIP()
	b := rl.bucketFor(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = min(rl.capacity, b.tokens+elapsed*rl.refill)
	b.lastRefill = now

	if b.tokens < 1 {
		return Respond, response.NewStatusJSON(429, map[string]string{"error": "Rate limit exceeded"})
	}

	b.tokens--
	return Continue, nil
}

func (rl *RateLimit) After(*request.Request, *response.Response) {}

// Sweep removes buckets that have not been touched since before cutoff.
// Nothing calls this automatically; it exists for operators who want to
// bound memory for an unbounded distinct-client-ip stream.
func (rl *RateLimit) Sweep(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, b := range rl.buckets {
		b.mu.Lock()
		stale := b.lastRefill.Before(cutoff)
		b.mu.Unlock()
		if stale {
			delete(rl.buckets, key)
		}
	}
}
