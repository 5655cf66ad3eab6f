package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryRateLimiter implements RateLimiter with in-process sliding windows.
// Used in tests and single-node deployments without Redis. The sweeper
// goroutine is owned by the instance and stops with it; nothing here is
// process-global.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	stop    chan struct{}
	stopped sync.Once
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	l := &MemoryRateLimiter{
		entries: make(map[string][]time.Time),
		stop:    make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Stop terminates the sweeper goroutine. Safe to call more than once.
func (l *MemoryRateLimiter) Stop() {
	l.stopped.Do(func() {
		close(l.stop)
	})
}

func (l *MemoryRateLimiter) Allow(ctx context.Context, key string, config Config) (bool, error) {
	now := time.Now()

	windows := []struct {
		duration time.Duration
		limit    int
	}{
		{time.Minute, config.RequestsPerMinute},
		{time.Hour, config.RequestsPerHour},
		{24 * time.Hour, config.RequestsPerDay},
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, window := range windows {
		if window.limit <= 0 {
			continue
		}
		if l.countLocked(key, window.duration, now) >= int64(window.limit) {
			return false, nil
		}
	}

	for _, window := range windows {
		if window.limit <= 0 {
			continue
		}
		mapKey := l.getKey(key, window.duration)
		l.entries[mapKey] = append(l.entries[mapKey], now)
	}

	return true, nil
}

func (l *MemoryRateLimiter) GetRemaining(ctx context.Context, key string, window time.Duration) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.countLocked(key, window, time.Now()), nil
}

func (l *MemoryRateLimiter) Reset(ctx context.Context, key string) error {
	prefix := "ratelimit:" + key + ":"

	l.mu.Lock()
	defer l.mu.Unlock()
	for mapKey := range l.entries {
		if strings.HasPrefix(mapKey, prefix) {
			delete(l.entries, mapKey)
		}
	}

	return nil
}

func (l *MemoryRateLimiter) countLocked(key string, window time.Duration, now time.Time) int64 {
	mapKey := l.getKey(key, window)
	cutoff := now.Add(-window)

	var count int64
	for _, at := range l.entries[mapKey] {
		if at.After(cutoff) {
			count++
		}
	}
	return count
}

// sweep periodically drops timestamps older than the longest window so idle
// keys do not accumulate forever.
func (l *MemoryRateLimiter) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-24 * time.Hour)

			l.mu.Lock()
			for mapKey, stamps := range l.entries {
				kept := stamps[:0]
				for _, at := range stamps {
					if at.After(cutoff) {
						kept = append(kept, at)
					}
				}
				if len(kept) == 0 {
					delete(l.entries, mapKey)
				} else {
					l.entries[mapKey] = kept
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *MemoryRateLimiter) getKey(identifier string, window time.Duration) string {
	return "ratelimit:" + identifier + ":" + window.String()
}
