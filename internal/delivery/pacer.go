package delivery

import (
	"math/rand"
	"time"
)

const (
	DefaultBaseDelay     = 5 * time.Second
	DefaultJitter        = 5 * time.Second
	DefaultRateLimitWait = 60 * time.Second
)

// Pacer decides how long to wait after each attempt. Random jitter spreads
// sends out so they do not arrive at a fixed cadence.
type Pacer struct {
	Base          time.Duration
	Jitter        time.Duration // uniform in [0, Jitter); 0 disables
	RateLimitWait time.Duration

	// Int64N returns a value in [0, n). Defaults to math/rand/v2.Int64N.
	Int64N func(n int64) int64
}

// DefaultPacer returns the 5s + [0,5s) / 60s policy.
func DefaultPacer() Pacer {
	return Pacer{Base: DefaultBaseDelay, Jitter: DefaultJitter, RateLimitWait: DefaultRateLimitWait}
}

func (p Pacer) AfterSuccess() time.Duration {
	d := p.Base
	if p.Jitter > 0 {
		fn := p.Int64N
		if fn == nil {
			fn = rand.Int63n
		}
		d += time.Duration(fn(int64(p.Jitter)))
	}
	return d
}

// AfterFailure waits RateLimitWait after a rate limit and the plain base
// delay after any other failure.
func (p Pacer) AfterFailure(o Outcome) time.Duration {
	if o == RateLimited {
		return p.RateLimitWait
	}
	return p.Base
}
