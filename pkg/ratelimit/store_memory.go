// Copyright 2025 The Doclens Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"
)

// idleMultiplier determines when a bucket is considered idle: buckets not
// touched for idleMultiplier * sweep interval are evicted.
const idleMultiplier = 10

// bucket holds the per-key token state. Invariant: 0 <= tokens <= capacity,
// lastRefill monotonically non-decreasing.
type bucket struct {
	tokens     float64
	lastRefill time.Time
	lastAccess time.Time
	requests   int64
}

// MemoryBucketStore is the in-memory BucketStore implementation. Buckets are
// created lazily on first use and evicted by the sweep when idle.
//
// The store is process-local: it is suitable for a single-instance
// deployment only. Multi-instance deployments use RedisBucketStore.
type MemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// NewMemoryBucketStore creates an empty in-memory bucket store.
func NewMemoryBucketStore() *MemoryBucketStore {
	return &MemoryBucketStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Take refills the bucket for key and consumes one token if available.
// Refill and consume happen under one lock acquisition, so two concurrent
// requests cannot both read a stale token count.
func (s *MemoryBucketStore) Take(ctx context.Context, key string, policy Policy) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	capacity := policy.Capacity()

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{tokens: capacity, lastRefill: now}
		s.buckets[key] = b
	}
	b.lastAccess = now
	b.requests++

	// Refill by whole tokens only; lastRefill advances only when at least
	// one token was added, so fractional elapsed time keeps accumulating
	// instead of being discarded on every check.
	elapsed := now.Sub(b.lastRefill)
	if elapsed > 0 && policy.Window > 0 {
		refill := math.Floor(elapsed.Seconds() / policy.Window.Seconds() * float64(policy.Limit))
		if refill >= 1 {
			b.tokens = math.Min(b.tokens+refill, capacity)
			b.lastRefill = now
		}
	}

	d := Decision{Limit: policy.Limit}

	if b.tokens >= 1 {
		b.tokens--
		d.Allowed = true
	}
	d.Remaining = int(b.tokens)

	resetIn := b.lastRefill.Add(policy.Window).Sub(now)
	if resetIn < 0 {
		resetIn = 0
	}
	d.ResetIn = resetIn

	return d, nil
}

// Len returns the number of live buckets.
func (s *MemoryBucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// Sweep evicts idle buckets every interval until ctx is canceled. It runs
// independently of request handling; each pass holds the lock only briefly
// per phase (scan, then delete).
func (s *MemoryBucketStore) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := s.sweepOnce(interval * idleMultiplier)
			if evicted > 0 {
				slog.Debug("evicted idle rate limit buckets", "count", evicted)
			}
		}
	}
}

// sweepOnce evicts buckets idle longer than maxIdle and returns the count.
// Stale keys are collected first and deleted in a second pass so a large
// table never pins the lock for the full scan-and-delete.
func (s *MemoryBucketStore) sweepOnce(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	stale := make([]string, 0)
	for key, b := range s.buckets {
		if b.lastAccess.Before(cutoff) {
			stale = append(stale, key)
		}
	}
	s.mu.Unlock()

	if len(stale) == 0 {
		return 0
	}

	s.mu.Lock()
	evicted := 0
	for _, key := range stale {
		if b, ok := s.buckets[key]; ok && b.lastAccess.Before(cutoff) {
			delete(s.buckets, key)
			evicted++
		}
	}
	s.mu.Unlock()

	return evicted
}

// Close releases all buckets.
func (s *MemoryBucketStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = make(map[string]*bucket)
	return nil
}
