package agent

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerSettings configures the optional circuit breaker around a worker's
// task processing.
type BreakerSettings struct {
	Threshold uint32        // consecutive failures before the breaker opens; 0 disables it
	Timeout   time.Duration // how long the breaker stays open (default 30s)
}

// Enabled reports whether a breaker guards the worker.
func (s BreakerSettings) Enabled() bool { return s.Threshold > 0 }

func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}
	return s
}

// breakerRefused reports whether err means the breaker rejected the task
// without running it.
func breakerRefused(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func newBreaker(name string, s BreakerSettings, logger *zap.Logger) *gobreaker.CircuitBreaker {
	if !s.Enabled() {
		return nil
	}
	s = s.withDefaults()
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // one trial task while half-open
		Interval:    0,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.Threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("agent", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			// Cancellation is not the worker's fault
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
}
