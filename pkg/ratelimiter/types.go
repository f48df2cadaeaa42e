package ratelimiter

import (
	"fmt"
	"time"
)

// Config defines the token bucket.
type Config struct {
	Capacity       int           `env:"RATE_LIMIT_CAPACITY" envDefault:"10"`       // burst size
	RefillRate     int           `env:"RATE_LIMIT_REFILL_RATE" envDefault:"1"`     // tokens per interval
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"6s"` // how often tokens are added
}

// Validate reports a non-positive field.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, c.Capacity)
	}
	if c.RefillRate <= 0 {
		return fmt.Errorf("%w: refill rate must be positive, got %d", ErrInvalidConfig, c.RefillRate)
	}
	if c.RefillInterval <= 0 {
		return fmt.Errorf("%w: refill interval must be positive, got %v", ErrInvalidConfig, c.RefillInterval)
	}
	return nil
}

// ttl is how long an idle bucket takes to refill completely, plus one interval.
func (c Config) ttl() time.Duration {
	steps := (c.Capacity + c.RefillRate - 1) / c.RefillRate
	return time.Duration(steps+1) * c.RefillInterval
}

// Result is the outcome of a take.
type Result struct {
	Limit     int
	Remaining int
	ResetAt   time.Time // when the next token is added
	Allowed   bool
}

// RetryAfter returns how long a denied caller should wait, rounded up to a second.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed || !r.ResetAt.After(now) {
		return 0
	}
	return (r.ResetAt.Sub(now) + time.Second - 1).Truncate(time.Second)
}

// refill adds the tokens earned since refilled. A full bucket restarts its
// clock at now so idle time is not banked.
func refill(tokens int, refilled, now time.Time, cfg Config) (int, time.Time) {
	if now.Before(refilled) {
		return tokens, refilled
	}
	if steps := int64(now.Sub(refilled) / cfg.RefillInterval); steps > 0 {
		capped := min(steps, int64(cfg.Capacity/cfg.RefillRate+1))
		tokens = min(cfg.Capacity, tokens+int(capped)*cfg.RefillRate)
		refilled = refilled.Add(time.Duration(steps) * cfg.RefillInterval)
	}
	if tokens >= cfg.Capacity {
		tokens = cfg.Capacity
		refilled = now
	}
	return tokens, refilled
}
