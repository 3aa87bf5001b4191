// Package ratelimit implements a sliding-window request limiter keyed by caller.
package ratelimit

import (
	"context"
	"time"
)

const (
	DefaultMaxRequests = 5
	DefaultWindow      = 60 * time.Second
)

// Limiter admits at most Max requests per key within any Window-long interval.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Clock is injectable so tests can move time.
type Clock func() time.Time

type Config struct {
	MaxRequests int
	Window      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRequests <= 0 {
		c.MaxRequests = DefaultMaxRequests
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	return c
}
