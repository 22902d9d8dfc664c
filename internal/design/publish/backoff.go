package publish

import "time"

// Backoff computes bounded exponential retry delays. The orchestrator never
// sleeps; it reports the delay and trusts the caller to reissue the command.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// Delay returns the wait before retry number attempt (1-based): base doubling
// per attempt, capped.
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	cap := b.Cap
	if cap <= 0 {
		cap = 30 * time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}
