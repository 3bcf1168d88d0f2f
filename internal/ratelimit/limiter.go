// Package ratelimit implements fixed-window request limiting keyed by an
// arbitrary string (the client IP for the auth routes).
package ratelimit

import (
	"context"
	"time"
)

type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}

// windowStart aligns now to the start of its fixed window.
func windowStart(now time.Time, window time.Duration) int64 {
	w := int64(window / time.Second)
	if w <= 0 {
		w = 1
	}
	sec := now.Unix()
	return sec - sec%w
}

func windowReset(start int64, window time.Duration) time.Time {
	w := int64(window / time.Second)
	if w <= 0 {
		w = 1
	}
	return time.Unix(start+w, 0).UTC()
}
