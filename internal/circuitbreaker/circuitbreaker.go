// Package circuitbreaker wraps sony/gobreaker with the settings and metrics
// used for upstream calls.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/FoerchByte/foerch-weather-station-sub000/internal/observability"
)

// ErrOpen is returned without calling fn while the circuit is open or the
// half-open probe budget is used up.
var ErrOpen = errors.New("circuit breaker open")

// State is the circuit breaker state. Values match the circuitBreakerState gauge.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

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

// Config holds circuit breaker parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of half-open probes that must succeed to close it.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before probing.
	Timeout   time.Duration
	Component string
	// IsFailure decides which errors count against the circuit. nil counts every error.
	IsFailure     func(error) bool
	OnStateChange func(from, to State)
}

// CircuitBreaker protects upstream calls by opening after repeated failures
// and allowing probe requests in half-open state.
type CircuitBreaker struct {
	cb        *gobreaker.CircuitBreaker
	component string
	isFailure func(error) bool
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
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(error) bool { return true }
	}
	threshold := uint32(cfg.FailureThreshold)
	onChange := cfg.OnStateChange
	component := cfg.Component

	observability.CircuitBreakerState.WithLabelValues(component).Set(float64(StateClosed))
	settings := gobreaker.Settings{
		Name:        component,
		MaxRequests: uint32(cfg.SuccessThreshold),
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			observability.CircuitBreakerState.WithLabelValues(component).Set(float64(fromGobreaker(to)))
			if onChange != nil {
				onChange(fromGobreaker(from), fromGobreaker(to))
			}
		},
	}
	return &CircuitBreaker{
		cb:        gobreaker.NewCircuitBreaker(settings),
		component: component,
		isFailure: cfg.IsFailure,
	}
}

// Call runs fn when the circuit allows it. Errors that IsFailure rejects are
// returned to the caller but recorded as successes.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := cb.cb.Execute(func() (interface{}, error) {
		err := fn()
		if err != nil && !cb.isFailure(err) {
			return err, nil
		}
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrOpen, cb.component)
	}
	if err != nil {
		return err
	}
	if passed, ok := res.(error); ok {
		return passed
	}
	return nil
}

// State returns the current state (for metrics and health).
func (cb *CircuitBreaker) State() State {
	return fromGobreaker(cb.cb.State())
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
