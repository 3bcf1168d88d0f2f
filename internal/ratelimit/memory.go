package ratelimit

import (
	"context"
	"sync"
	"time"
)

const memorySweepThreshold = 10000

type memoryEntry struct {
	window int64
	count  int
	reset  time.Time
}

// MemoryLimiter is a process-local fixed-window limiter.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*memoryEntry
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memoryEntry),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	start := windowStart(now, window)
	reset := windowReset(start, window)

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.counters) > memorySweepThreshold {
		l.sweep(now)
	}

	entry := l.counters[key]
	if entry == nil {
		entry = &memoryEntry{window: start, reset: reset}
		l.counters[key] = entry
	}
	if entry.window != start {
		entry.window = start
		entry.reset = reset
		entry.count = 0
	}
	if entry.count >= limit {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	entry.count++
	return Result{Allowed: true, Remaining: limit - entry.count, Reset: reset}, nil
}

func (l *MemoryLimiter) sweep(now time.Time) {
	for key, entry := range l.counters {
		if !entry.reset.After(now) {
			delete(l.counters, key)
		}
	}
}
