package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrOpen is returned when the breaker rejects a call without running it.
var ErrOpen = errors.New("circuit breaker open")

// State represents the circuit breaker state.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// State is the circuit breaker state (Closed, Open, HalfOpen).
type State int

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Config holds circuit breaker parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of probe successes in half-open that close it.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before probing.
	Timeout   time.Duration
	Component string
	// IsFailure decides which errors count against the circuit. Nil counts every error.
	IsFailure     func(error) bool
	OnStateChange func(from, to State)
}

// CircuitBreaker protects upstream calls by opening after repeated failures
// and allowing probe requests in half-open state.
type CircuitBreaker struct {
	cb        *gobreaker.CircuitBreaker[struct{}]
	component string
}

// New creates a CircuitBreaker with the given config.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	threshold := uint32(cfg.FailureThreshold)
	settings := gobreaker.Settings{
		Name:        cfg.Component,
		MaxRequests: uint32(cfg.SuccessThreshold),
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return cfg.IsFailure != nil && !cfg.IsFailure(err)
		},
	}
	if cfg.OnStateChange != nil {
		onChange := cfg.OnStateChange
		settings.OnStateChange = func(_ string, from, to gobreaker.State) {
			onChange(fromGobreaker(from), fromGobreaker(to))
		}
	}
	return &CircuitBreaker{
		cb:        gobreaker.NewCircuitBreaker[struct{}](settings),
		component: cfg.Component,
	}
}

// Call runs fn when the circuit allows it. A rejected call returns ErrOpen; otherwise
// fn's error is returned unchanged.
func (b *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrOpen, b.component)
	}
	return err
}

// State returns the current state (for metrics).
func (b *CircuitBreaker) State() State {
	return fromGobreaker(b.cb.State())
}
