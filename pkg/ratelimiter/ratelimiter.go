// Package ratelimiter throttles callers with a token bucket kept in memory or
// in Redis. It guards the routes that make payment processor calls.
package ratelimiter

import (
	"context"
	"fmt"
	"time"
)

// Limiter decides whether a keyed caller may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Store persists bucket state. Take refills the bucket as of now, then
// consumes n tokens only if all n are available.
type Store interface {
	Take(ctx context.Context, key string, n int, cfg Config, now time.Time) (Result, error)
	Reset(ctx context.Context, key string) error
}

// Bucket implements Limiter on top of a Store.
type Bucket struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// BucketOption configures a Bucket.
type BucketOption func(*Bucket)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) BucketOption {
	return func(b *Bucket) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBucket creates a token bucket limiter.
func NewBucket(store Store, cfg Config, opts ...BucketOption) (*Bucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Bucket{store: store, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Bucket) Allow(ctx context.Context, key string) (Result, error) {
	return b.AllowN(ctx, key, 1)
}

func (b *Bucket) AllowN(ctx context.Context, key string, n int) (Result, error) {
	if n <= 0 {
		return Result{}, fmt.Errorf("%w: must be positive, got %d", ErrInvalidTokenCount, n)
	}
	if n > b.cfg.Capacity {
		return Result{}, fmt.Errorf("%w: %d exceeds capacity %d", ErrInvalidTokenCount, n, b.cfg.Capacity)
	}
	return b.store.Take(ctx, key, n, b.cfg, b.now())
}

func (b *Bucket) Reset(ctx context.Context, key string) error {
	return b.store.Reset(ctx, key)
}
