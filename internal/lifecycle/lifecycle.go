// Package lifecycle tracks the process phase reported by the health check.
package lifecycle

import "sync/atomic"

// Phase is where the process is in its lifetime.
type Phase int32

const (
	// PhaseStarting covers config load and the initial cache warm.
	PhaseStarting Phase = iota
	// PhaseServing means the process accepts traffic.
	PhaseServing
	// PhaseDraining starts on SIGINT/SIGTERM and never ends.
	PhaseDraining
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseServing:
		return "serving"
	case PhaseDraining:
		return "shutting-down"
	default:
		return "unknown"
	}
}

var phase atomic.Int32

// Current returns the current phase.
func Current() Phase {
	return Phase(phase.Load())
}

// MarkServing moves from starting to serving. It has no effect once draining.
func MarkServing() {
	phase.CompareAndSwap(int32(PhaseStarting), int32(PhaseServing))
}

// BeginDrain enters the draining phase. Health returns 503 from then on.
func BeginDrain() {
	phase.Store(int32(PhaseDraining))
}

// IsDraining reports whether shutdown has begun.
func IsDraining() bool {
	return Current() == PhaseDraining
}

// Reset returns to the starting phase. For tests only.
func Reset() {
	phase.Store(int32(PhaseStarting))
}
