// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package ratelimit bounds how many encryption or decryption calls one
// caller may make within a trailing time window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultMaxRequests = 10
	DefaultWindow      = 60 * time.Second
)

// Allower is implemented by every limiter in this package.
type Allower interface {
	Allow(ctx context.Context, id string) (bool, error)
}

// Limiter is an in-process sliding-log limiter. Each accepted call records
// a timestamp; timestamps older than the window are dropped the next time
// the same identifier is checked.
type Limiter struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time

	mu       sync.Mutex
	requests map[string][]time.Time
}

// New returns a limiter allowing maxRequests calls per window. Non-positive
// arguments select the defaults.
func New(maxRequests int, window time.Duration) *Limiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
		requests:    make(map[string][]time.Time),
	}
}

// WithClock replaces the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check reports whether id has made fewer than the maximum number of calls
// in the trailing window, and records the call if so.
func (l *Limiter) Check(id string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	valid := l.requests[id][:0]
	for _, t := range l.requests[id] {
		if now.Sub(t) < l.window {
			valid = append(valid, t)
		}
	}

	if len(valid) >= l.maxRequests {
		l.requests[id] = valid
		return false
	}

	l.requests[id] = append(valid, now)
	return true
}

// Allow implements Allower.
func (l *Limiter) Allow(_ context.Context, id string) (bool, error) {
	return l.Check(id), nil
}
