package alerts

import "time"

// Backoff computes the retry schedule for failed sends: Base doubled per
// attempt, capped at Max, with MaxAttempts as the total budget.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

// Delay returns the wait before the next attempt, given how many attempts
// have been made so far.
func (b Backoff) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	delay := b.Base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= b.Max || delay < 0 {
			return b.Max
		}
	}

	if delay > b.Max {
		return b.Max
	}
	return delay
}

// Exhausted reports whether the attempt budget is used up.
func (b Backoff) Exhausted(attempts int) bool {
	return attempts >= b.MaxAttempts
}
