// Package ratelimit implements the per-identity sliding-window limiter that
// guards application submissions. An identity may make at most Limit accepted
// attempts within any trailing Window; attempts that are rejected are not
// recorded.
//
// Two backends are provided: Memory keeps the windows in process and Redis
// keeps them in a sorted set per identity so that several instances share one
// budget.
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Defaults for the submission window.
const (
	DefaultWindow = 60 * time.Second
	DefaultLimit  = 5
)

// Decision is the outcome of a single Check.
type Decision struct {
	Allowed bool
	// RetryAfter is the number of whole seconds until the oldest recorded
	// attempt leaves the window. It is zero when Allowed and at least one
	// otherwise.
	RetryAfter int
	// Remaining is how many more attempts the identity may make right now.
	Remaining int
}

// Limiter decides whether identity may make another attempt at now.
//
// A non-nil error reports a backend failure. Implementations then return an
// allowing Decision alongside it so callers can choose to fail open.
type Limiter interface {
	Check(ctx context.Context, identity string, now time.Time) (Decision, error)
}

// Sweeper is implemented by limiters holding in-process state that can be
// reclaimed periodically.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Config sets the window size and the number of attempts it allows.
type Config struct {
	Window time.Duration
	Limit  int
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	return c
}

// retryAfter returns the whole seconds until oldest leaves the window, never
// less than one.
func retryAfter(oldest, now time.Time, window time.Duration) int {
	wait := oldest.Add(window).Sub(now)
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
