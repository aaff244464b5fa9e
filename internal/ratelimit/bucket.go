// Package ratelimit implements per-identity admission control with a token
// bucket whose state lives in a store shared by every server instance.
package ratelimit

import (
	"context"
	"time"
)

// Policy is a token bucket that holds at most Capacity tokens and refills
// Capacity tokens per Window, continuously.
type Policy struct {
	Capacity int
	Window   time.Duration
}

// DefaultPolicy admits 10 requests per minute per identity.
var DefaultPolicy = Policy{Capacity: 10, Window: time.Minute}

// Bucket is the persisted state of one identity's bucket.
type Bucket struct {
	Tokens     float64
	RefilledAt time.Time
}

// Take refills b up to now and tries to consume one token. A zero Bucket is
// treated as full.
func (p Policy) Take(b Bucket, now time.Time) (Bucket, bool) {
	capacity := float64(p.Capacity)
	if b.RefilledAt.IsZero() {
		b = Bucket{Tokens: capacity, RefilledAt: now}
	}

	if elapsed := now.Sub(b.RefilledAt); elapsed > 0 {
		b.Tokens += elapsed.Seconds() * capacity / p.Window.Seconds()
		if b.Tokens > capacity {
			b.Tokens = capacity
		}
		b.RefilledAt = now
	}

	if b.Tokens < 1 {
		return b, false
	}
	b.Tokens--
	return b, true
}

// Store applies Policy.Take atomically against shared state.
type Store interface {
	Take(ctx context.Context, key string, policy Policy, now time.Time) (bool, error)
}

// Limiter is the admission controller.
type Limiter struct {
	store  Store
	policy Policy
	now    func() time.Time
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func NewLimiter(store Store, policy Policy, opts ...Option) *Limiter {
	if policy.Capacity <= 0 || policy.Window <= 0 {
		policy = DefaultPolicy
	}
	l := &Limiter{store: store, policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow consumes one token from identity's bucket.
func (l *Limiter) Allow(ctx context.Context, identity string) (bool, error) {
	return l.store.Take(ctx, identity, l.policy, l.now().UTC())
}

// Policy returns the configured bucket policy.
func (l *Limiter) Policy() Policy {
	return l.policy
}
