package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryLimiter keeps request timestamps per key in process memory. Keys idle for a full
// window expire from the cache. Only correct when a single instance serves the key.
type MemoryLimiter struct {
	mu     sync.Mutex
	cfg    Config
	clock  Clock
	events *cache.Cache
}

func NewMemoryLimiter(cfg Config, clock Clock) *MemoryLimiter {
	cfg = cfg.withDefaults()
	if clock == nil {
		clock = time.Now
	}
	return &MemoryLimiter{
		cfg:    cfg,
		clock:  clock,
		events: cache.New(cfg.Window, 2*cfg.Window),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	var stamps []time.Time
	if x, found := l.events.Get(key); found {
		stamps = x.([]time.Time)
	}

	kept := stamps[:0]
	for _, t := range stamps {
		if now.Sub(t) < l.cfg.Window {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.cfg.MaxRequests {
		l.events.Set(key, kept, l.cfg.Window)
		return false, nil
	}

	kept = append(kept, now)
	l.events.Set(key, kept, l.cfg.Window)
	return true, nil
}
