package loader

import (
	"fmt"
	"time"
)

const (
	DefaultMaxRetries = 3
	DefaultDelay      = 2 * time.Second
)

// Policy bounds a load sequence: a failed fetch is retried up to MaxRetries
// times with Delay between attempts.
type Policy struct {
	MaxRetries int
	Delay      time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		Delay:      DefaultDelay,
	}
}

// Attempts is the total number of fetches a sequence makes before failing.
func (p Policy) Attempts() int {
	return p.MaxRetries + 1
}

func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", p.MaxRetries)
	}
	if p.Delay < 0 {
		return fmt.Errorf("retry delay must not be negative, got %s", p.Delay)
	}
	return nil
}
