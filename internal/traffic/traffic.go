// Package traffic keeps short sliding windows of weather lookup outcomes. The health
// check reads the error rate from it and /metrics exposes the window counts.
package traffic

import (
	"sync"
	"time"
)

// Outcome is the result of one weather lookup or rate-limited request.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeError
	OutcomeDenied
)

// retention bounds how far back any window can look.
const retention = 5 * time.Minute

var defaultTracker = NewTracker(time.Now)

// Record records an outcome on the process-wide tracker.
func Record(o Outcome) {
	defaultTracker.Record(o)
}

// RecordSuccess records a successful lookup.
func RecordSuccess() { Record(OutcomeSuccess) }

// RecordError records a failed lookup.
func RecordError() { Record(OutcomeError) }

// RecordDenied records a rate-limit denial (429).
func RecordDenied() { Record(OutcomeDenied) }

// RequestCount returns outcomes of any kind within the window.
func RequestCount(window time.Duration) int {
	return defaultTracker.RequestCount(window)
}

// DenialCount returns denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.DenialCount(window)
}

// ErrorRate returns (errors, successes+errors) within the window.
func ErrorRate(window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(window)
}

// Reset clears the process-wide tracker. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker holds timestamps per outcome.
type Tracker struct {
	mu    sync.Mutex
	now   func() time.Time
	times [3][]time.Time
}

// NewTracker returns a Tracker reading the clock from now.
func NewTracker(now func() time.Time) *Tracker {
	return &Tracker{now: now}
}

// Record appends the current time to o's window and prunes expired entries.
func (t *Tracker) Record(o Outcome) {
	if o < OutcomeSuccess || o > OutcomeDenied {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.times[o] = append(t.times[o], now)
	t.pruneLocked(now)
}

// RequestCount returns outcomes of any kind within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	n := 0
	for _, times := range t.times {
		n += countSince(times, cutoff)
	}
	return n
}

// DenialCount returns denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.times[OutcomeDenied], t.now().Add(-window))
}

// ErrorRate returns (errors, successes+errors) within the window. Denials are excluded.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	errors = countSince(t.times[OutcomeError], cutoff)
	return errors, errors + countSince(t.times[OutcomeSuccess], cutoff)
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.times = [3][]time.Time{}
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than retention. Slices are append-ordered.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	for o, times := range t.times {
		i := 0
		for i < len(times) && times[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			t.times[o] = append(times[:0], times[i:]...)
		}
	}
}
