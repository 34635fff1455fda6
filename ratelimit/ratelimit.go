// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit provides per-endpoint ingress rate limiting for the
// bridge. Each source authority gets its own token bucket; endpoints
// that go quiet are evicted by a background cleanup loop.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// EndpointLimiter limits inbound message rates per endpoint authority.
type EndpointLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	rate     rate.Limit
	burst    int
	cleanup  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewEndpointLimiter creates a limiter allowing r messages per second
// with the given burst per authority. Idle entries are evicted every
// cleanupInterval.
func NewEndpointLimiter(r float64, burst int, cleanupInterval time.Duration) *EndpointLimiter {
	l := &EndpointLimiter{
		limiters: make(map[string]*entry),
		rate:     rate.Limit(r),
		burst:    burst,
		cleanup:  cleanupInterval,
		stopCh:   make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether one more inbound message from authority is
// within the configured rate.
func (l *EndpointLimiter) Allow(authority string) bool {
	l.mu.Lock()
	e, ok := l.limiters[authority]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[authority] = e
	}
	e.lastSeen = time.Now()
	limiter := e.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

func (l *EndpointLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictStale()
		case <-l.stopCh:
			return
		}
	}
}

func (l *EndpointLimiter) evictStale() {
	l.mu.Lock()
	defer l.mu.Unlock()

	threshold := time.Now().Add(-2 * l.cleanup)
	for authority, e := range l.limiters {
		if e.lastSeen.Before(threshold) {
			delete(l.limiters, authority)
		}
	}
}

// Stop terminates the cleanup goroutine.
func (l *EndpointLimiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
}
