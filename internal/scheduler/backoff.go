package scheduler

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy configures the delay before a failed task becomes assignable
// again. A zero InitialInterval disables the delay.
type RetryPolicy struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryPolicy returns the policy used when none is configured: retries
// are immediately eligible.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxInterval: 10 * time.Second,
		Multiplier:  2.0,
	}
}

// Delay returns the wait before the given retry (1-based).
func (p RetryPolicy) Delay(retry int) time.Duration {
	if p.InitialInterval <= 0 || retry <= 0 {
		return 0
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.RandomizationFactor = p.RandomizationFactor
	b.MaxElapsedTime = 0
	b.Reset()

	var d time.Duration
	for i := 0; i < retry; i++ {
		d = b.NextBackOff()
	}
	return d
}
