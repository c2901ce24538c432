package poller

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryPolicy yields the delay after each consecutive failure: the update
// interval first, doubling up to ceiling. It is not safe for concurrent use;
// only the poll loop touches it.
type retryPolicy struct {
	b *backoff.ExponentialBackOff
}

func newRetryPolicy(initial, ceiling time.Duration) *retryPolicy {
	if ceiling < initial {
		ceiling = initial
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         ceiling,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	return &retryPolicy{b: b}
}

// Next returns the delay before the next attempt.
func (r *retryPolicy) Next() time.Duration {
	d := r.b.NextBackOff()
	if d == backoff.Stop {
		return r.b.MaxInterval
	}
	return d
}

// Reset restarts the sequence after a success.
func (r *retryPolicy) Reset() {
	r.b.Reset()
}
