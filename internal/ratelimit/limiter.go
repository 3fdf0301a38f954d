// Package ratelimit provides sliding-window request limiting for the API.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned when a limiter is built with a non-positive
// budget or window.
var ErrInvalidConfig = errors.New("invalid rate limit config")

// Result is the outcome of a single Allow call.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration // until the oldest counted request leaves the window
	RetryAfter time.Duration // zero when Allowed
}

// Limiter decides whether a caller may make another request.
type Limiter interface {
	Allow(ctx context.Context, identifier string) (*Result, error)
	Reset(ctx context.Context, identifier string) error
	Close() error
}

// Config is a budget of Requests per sliding Window.
type Config struct {
	Requests int
	Window   time.Duration
}

// DefaultConfig allows 100 requests per minute.
func DefaultConfig() Config {
	return Config{Requests: 100, Window: time.Minute}
}

// Validate reports whether the budget is usable.
func (c Config) Validate() error {
	if c.Requests <= 0 {
		return fmt.Errorf("%w: requests must be positive, got %d", ErrInvalidConfig, c.Requests)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be positive, got %s", ErrInvalidConfig, c.Window)
	}
	return nil
}

// decide builds a Result from the number of requests already in the window
// and the age of the oldest one.
func (c Config) decide(count int, oldest, now time.Time) *Result {
	var resetAfter time.Duration
	if count > 0 {
		if resetAfter = oldest.Add(c.Window).Sub(now); resetAfter < 0 {
			resetAfter = 0
		}
	}
	if count >= c.Requests {
		return &Result{Limit: c.Requests, ResetAfter: resetAfter, RetryAfter: resetAfter}
	}
	return &Result{
		Allowed:    true,
		Limit:      c.Requests,
		Remaining:  c.Requests - count - 1,
		ResetAfter: resetAfter,
	}
}
