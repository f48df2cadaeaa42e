package ratelimiter

import (
	"context"
	"sync"
	"time"
)

// pruneThreshold is the bucket count above which idle buckets are dropped.
const pruneThreshold = 10_000

type bucketState struct {
	tokens   int
	refilled time.Time
	expires  time.Time
}

// MemoryStore keeps buckets in process. Suitable for one instance or tests.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucketState
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*bucketState)}
}

func (ms *MemoryStore) Take(_ context.Context, key string, n int, cfg Config, now time.Time) (Result, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	b, ok := ms.buckets[key]
	if !ok || !now.Before(b.expires) {
		if len(ms.buckets) >= pruneThreshold {
			ms.prune(now)
		}
		b = &bucketState{tokens: cfg.Capacity, refilled: now}
		ms.buckets[key] = b
	}

	b.tokens, b.refilled = refill(b.tokens, b.refilled, now, cfg)
	res := Result{Limit: cfg.Capacity, ResetAt: b.refilled.Add(cfg.RefillInterval)}
	if b.tokens >= n {
		b.tokens -= n
		res.Allowed = true
	}
	res.Remaining = b.tokens
	b.expires = now.Add(cfg.ttl())
	return res, nil
}

func (ms *MemoryStore) Reset(_ context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.buckets, key)
	return nil
}

// Len returns the number of tracked buckets.
func (ms *MemoryStore) Len() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.buckets)
}

func (ms *MemoryStore) prune(now time.Time) {
	for k, b := range ms.buckets {
		if !now.Before(b.expires) {
			delete(ms.buckets, k)
		}
	}
}
