package syncer

import "time"

// Backoff computes the delay before the next retry of a transient failure:
// plain exponential growth from Base by Factor, capped at Cap.
type Backoff struct {
	Base   time.Duration
	Factor float64
	Cap    time.Duration
}

// DefaultBackoff is the retry policy for transient remote failures.
var DefaultBackoff = Backoff{
	Base:   500 * time.Millisecond,
	Factor: 2,
	Cap:    30 * time.Second,
}

// Delay returns the wait before the given attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.Base)
	for i := 1; i < attempt; i++ {
		d *= b.Factor
		if time.Duration(d) >= b.Cap {
			return b.Cap
		}
	}
	if time.Duration(d) > b.Cap {
		return b.Cap
	}
	return time.Duration(d)
}
