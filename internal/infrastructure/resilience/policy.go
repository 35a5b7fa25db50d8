package resilience

import "time"

type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	// RetryJitter adds up to this fraction of the delay at random; 0 disables it.
	RetryJitter float64
	// RetryAfterCap bounds how long a server Retry-After hint may stretch a wait.
	RetryAfterCap time.Duration

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,
		RetryJitter:         0.25,
		RetryAfterCap:       5 * time.Second,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// normalize replaces out-of-range knobs with defaults, field by field.
func (c Config) normalize() Config {
	def := DefaultConfig()
	pick := func(ok bool, v, fallback time.Duration) time.Duration {
		if ok {
			return v
		}
		return fallback
	}

	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = def.RetryMaxAttempts
	}
	c.RetryInitialBackoff = pick(c.RetryInitialBackoff > 0, c.RetryInitialBackoff, def.RetryInitialBackoff)
	c.RetryMaxBackoff = pick(c.RetryMaxBackoff > 0, c.RetryMaxBackoff, def.RetryMaxBackoff)
	c.RetryMaxBackoff = max(c.RetryMaxBackoff, c.RetryInitialBackoff)
	c.RetryAfterCap = pick(c.RetryAfterCap > 0, c.RetryAfterCap, def.RetryAfterCap)
	if c.RetryMultiplier < 1.0 {
		c.RetryMultiplier = def.RetryMultiplier
	}
	if c.RetryJitter < 0 || c.RetryJitter > 1 {
		c.RetryJitter = def.RetryJitter
	}

	if c.BreakerMinRequests == 0 {
		c.BreakerMinRequests = def.BreakerMinRequests
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		c.BreakerFailureRatio = def.BreakerFailureRatio
	}
	c.BreakerOpenTimeout = pick(c.BreakerOpenTimeout > 0, c.BreakerOpenTimeout, def.BreakerOpenTimeout)
	if c.BreakerHalfOpenMaxCalls == 0 {
		c.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}
	return c
}

// schedule is the exponential backoff sequence of one Execute call.
type schedule struct {
	next       time.Duration
	ceiling    time.Duration
	multiplier float64
}

func (c Config) schedule() *schedule {
	return &schedule{next: c.RetryInitialBackoff, ceiling: c.RetryMaxBackoff, multiplier: c.RetryMultiplier}
}

// advance returns the current step and moves to the next one.
func (s *schedule) advance() time.Duration {
	current := s.next
	s.next = min(time.Duration(float64(s.next)*s.multiplier), s.ceiling)
	return current
}
