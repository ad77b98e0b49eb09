package http

import (
	"context"
	"sync/atomic"
	"time"
)

// InFlightTracker counts requests currently being served so shutdown can wait for them.
type InFlightTracker struct {
	count atomic.Int64
}

// Increment records a request start.
func (t *InFlightTracker) Increment() { t.count.Add(1) }

// Decrement records a request end.
func (t *InFlightTracker) Decrement() { t.count.Add(-1) }

// Count returns the number of requests in flight.
func (t *InFlightTracker) Count() int64 { return t.count.Load() }

// WaitForZero polls every checkInterval until no request is in flight or ctx is done.
func (t *InFlightTracker) WaitForZero(ctx context.Context, checkInterval time.Duration) error {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for t.Count() != 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

var inFlight = &InFlightTracker{}

// InFlightCount returns the process-wide in-flight count maintained by MetricsMiddleware.
func InFlightCount() int64 {
	return inFlight.Count()
}

// WaitForInFlight waits for the process-wide in-flight count to reach zero.
func WaitForInFlight(ctx context.Context, checkInterval time.Duration) error {
	return inFlight.WaitForZero(ctx, checkInterval)
}
