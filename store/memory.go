// Package store provides admission backends for github.com/choked/choked-go.
//
// Supported backends:
//   - MemoryStore: in-memory buckets for single-process applications and tests
//   - RedisStore: Redis-based buckets for distributed applications
//   - RemoteStore: stateless client delegating decisions to a managed quota
//     service
//
// All of them implement the choked.Store interface: one atomic
// read-refill-check-deduct-write cycle per acquire, all-or-nothing across
// the request and unit dimensions.
package store

import (
	"context"
	"sync"
	"time"

	choked "github.com/choked/choked-go"
)

// bucket is the mutable state of one key: current balances and the last
// refill stamp. Balances stay within [0, capacity] at all times.
type bucket struct {
	requests   float64
	units      float64
	lastRefill time.Time
}

// MemoryStore is an in-memory implementation of choked.Store.
//
// It is safe for concurrent use; a single mutex serializes all acquires, so
// the check-then-act cycle is atomic within the process. Its state is local:
// it does not enforce a global limit across replicas. Optionally it runs a
// background cleanup goroutine removing buckets that have gone stale.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewMemory creates a new MemoryStore.
//
// ctx bounds the lifetime of the background cleanup goroutine.
// cleanupInterval is how often stale buckets are evicted; pass 0 to disable
// cleanup.
func NewMemory(ctx context.Context, cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}

	if cleanupInterval > 0 {
		go s.runCleanup(ctx, cleanupInterval)
	}

	return s
}

// Acquire refills the bucket for key and, if both requested amounts fit,
// deducts them. A denied acquire persists the refill but deducts nothing.
func (s *MemoryStore) Acquire(ctx context.Context, key string, pol choked.Policy, requests, units int64) (choked.Decision, error) {
	if err := ctx.Err(); err != nil {
		return choked.Decision{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, ok := s.buckets[key]
	if !ok {
		// lazy init at full capacity; the map entry is the single logical
		// state all later acquires for this key converge on
		b = &bucket{
			requests:   float64(pol.RequestCapacity),
			units:      float64(pol.UnitCapacity),
			lastRefill: now,
		}
		s.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	b.requests = refill(b.requests, elapsed, pol.RequestRefill, pol.RequestCapacity)
	b.units = refill(b.units, elapsed, pol.UnitRefill, pol.UnitCapacity)
	b.lastRefill = now

	allowed := b.requests >= float64(requests) && b.units >= float64(units)
	if allowed {
		b.requests -= float64(requests)
		b.units -= float64(units)
	}

	return choked.Decision{
		Allowed:           allowed,
		RemainingRequests: b.requests,
		RemainingUnits:    b.units,
	}, nil
}

func refill(balance, elapsed, rate float64, capacity int64) float64 {
	balance += elapsed * rate
	if balance > float64(capacity) {
		balance = float64(capacity)
	}
	return balance
}

// runCleanup periodically removes buckets that have not been touched for
// 10 cleanup intervals.
func (s *MemoryStore) runCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	staleThreshold := interval * 10

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			now := s.now()
			for key, b := range s.buckets {
				if now.Sub(b.lastRefill) > staleThreshold {
					delete(s.buckets, key)
				}
			}
			s.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}
