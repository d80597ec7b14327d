// Package retry computes backoff delays for transient failures.
package retry

import "time"

// Policy is capped exponential backoff: Delay(n) = min(Cap, Base * 2^n).
type Policy struct {
	Base time.Duration
	Cap  time.Duration
}

// Default mirrors the deployed pipeline: one minute doubling up to an hour.
func Default() Policy {
	return Policy{Base: time.Minute, Cap: time.Hour}
}

// Delay returns the wait before retry attempt n (0-based). Negative n is
// treated as 0.
func (p Policy) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	d := p.Base
	for i := 0; i < n; i++ {
		d *= 2
		if d >= p.Cap || d <= 0 {
			return p.Cap
		}
	}
	if d > p.Cap {
		return p.Cap
	}
	return d
}
