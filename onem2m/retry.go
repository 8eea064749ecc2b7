package onem2m

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy describes how often and how far apart an operation is tried.
// A Multiplier of 1 or less keeps the pause fixed at Interval.
type RetryPolicy struct {
	Attempts    int
	Interval    time.Duration
	Multiplier  float64
	MaxInterval time.Duration
}

// DefaultRetryPolicy tries three times, one second apart.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Interval: time.Second, Multiplier: 1}

// NoRetry tries once.
var NoRetry = RetryPolicy{Attempts: 1}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if p.Multiplier <= 1 {
		b = backoff.NewConstantBackOff(p.Interval)
	} else {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = p.Interval
		exp.Multiplier = p.Multiplier
		exp.RandomizationFactor = 0
		exp.MaxElapsedTime = 0
		if p.MaxInterval > 0 {
			exp.MaxInterval = p.MaxInterval
		}
		exp.Reset()
		b = exp
	}
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Do runs op until it succeeds, returns a permanent error, the attempts are
// used up or ctx ends. notify sees every failed attempt.
func (p RetryPolicy) Do(ctx context.Context, op func() error, notify func(attempt int, err error, next time.Duration)) error {
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		return op()
	}, p.backOff(ctx), func(err error, next time.Duration) {
		if notify != nil {
			notify(attempt, err, next)
		}
	})
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
