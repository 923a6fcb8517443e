package tasks

import (
	"math/rand"
	"time"
)

// backoffDelay computes the delay armed before a Retryable task becomes
// schedulable again: base doubled per attempt, capped, with up to 25% jitter
// so a burst of conflicting tasks does not retry in lockstep. Derived from
// the persisted attempt count so it survives restarts.
func backoffDelay(p Policy, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BackoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= p.BackoffCap {
			delay = p.BackoffCap
			break
		}
	}
	if delay > p.BackoffCap {
		delay = p.BackoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}
