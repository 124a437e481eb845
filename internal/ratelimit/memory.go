package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepEvery bounds how often stale windows are dropped from memory.
const sweepEvery = time.Minute

type window struct {
	second int64
	hits   int
}

// MemoryLimiter is a process-local fixed one-second window counter.
type MemoryLimiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	lastSweep int64
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*window)}
}

// Allow records a hit for key and reports whether it fits within limit.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	sec := now.Unix()
	reset := time.Unix(sec+1, 0).UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(sec)
	w, ok := l.windows[key]
	if !ok || w.second != sec {
		w = &window{second: sec}
		l.windows[key] = w
	}
	if w.hits >= limit {
		return Result{Allowed: false, Reset: reset}, nil
	}
	w.hits++
	return Result{Allowed: true, Remaining: limit - w.hits, Reset: reset}, nil
}

func (l *MemoryLimiter) sweep(sec int64) {
	if sec-l.lastSweep < int64(sweepEvery/time.Second) {
		return
	}
	for key, w := range l.windows {
		if w.second < sec {
			delete(l.windows, key)
		}
	}
	l.lastSweep = sec
}
