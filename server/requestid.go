package server

import (
	"strconv"
	"sync/atomic"
	"time"
)

// requestIDEpoch anchors the monotonic clock reading used in request ids.
var requestIDEpoch = time.Now()

// requestIDGenerator produces ids shaped "<monotonic-nanos-hex>-<counter-hex>",
// only used when an inbound request has no x-request-id of its own.
type requestIDGenerator struct {
	counter uint64
}

func (g *requestIDGenerator) next() string {
	n := atomic.AddUint64(&g.counter, 1)
	nanos := time.Since(requestIDEpoch).Nanoseconds()
	return strconv.FormatInt(nanos, 16) + "-" + strconv.FormatUint(n, 16)
}
