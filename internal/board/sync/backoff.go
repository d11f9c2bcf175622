package sync

import (
	"math/rand"
	"time"
)

// retryState tracks transient failures of one id at one revision.
type retryState struct {
	attempts int
	rev      int64
	next     time.Time
}

// backoff returns min(base·2^(attempt-1), max) stretched by up to jitter.
func backoff(attempt int, base, max time.Duration, jitter float64, rng *rand.Rand) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := max
	if shift := attempt - 1; shift < 32 {
		if d := base << uint(shift); d > 0 && d < max {
			delay = d
		}
	}
	if jitter > 0 && rng != nil {
		delay += time.Duration(rng.Float64() * jitter * float64(delay))
	}
	return delay
}
