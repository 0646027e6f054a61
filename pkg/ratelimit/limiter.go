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
	"fmt"
	"log/slog"
)

// BucketStore is the persistence layer for token buckets.
//
// Implementations must apply refill-then-consume as one logical step per
// Take call and must be safe for concurrent use.
type BucketStore interface {
	// Take refills the bucket identified by key according to policy and
	// consumes one token if available. A deny is reported in the Decision,
	// not as an error; errors are reserved for store failures.
	Take(ctx context.Context, key string, policy Policy) (Decision, error)

	// Close releases store resources.
	Close() error
}

// RateLimiter gates requests per (identity, route) against a fixed policy
// table. It is cheap and local: Check never blocks on durable storage and
// never returns an error.
type RateLimiter struct {
	policies map[string]Policy
	store    BucketStore
}

// New creates a RateLimiter over the given policy table and store.
// The policy table is not copied and must not be mutated afterwards.
func New(policies map[string]Policy, store BucketStore) (*RateLimiter, error) {
	if store == nil {
		return nil, fmt.Errorf("bucket store is required")
	}
	for route, p := range policies {
		if p.Limit <= 0 {
			return nil, fmt.Errorf("route %q: limit must be positive", route)
		}
		if p.Window <= 0 {
			return nil, fmt.Errorf("route %q: window must be positive", route)
		}
		if p.Burst < 0 {
			return nil, fmt.Errorf("route %q: burst must not be negative", route)
		}
	}
	return &RateLimiter{policies: policies, store: store}, nil
}

// PolicyFor returns the policy declared for route, if any.
func (l *RateLimiter) PolicyFor(route string) (Policy, bool) {
	p, ok := l.policies[route]
	return p, ok
}

// Check applies the route's policy to the given identity. The second return
// value reports whether a policy exists for the route; routes with no
// declared policy are not rate-limited.
//
// Check fails open: an empty identity or a store failure yields an allow,
// with a warning logged for the latter.
func (l *RateLimiter) Check(ctx context.Context, identity, route string) (Decision, bool) {
	policy, ok := l.policies[route]
	if !ok {
		return Decision{Allowed: true}, false
	}

	if identity == "" {
		return Decision{Allowed: true, Limit: policy.Limit, Remaining: policy.Limit}, true
	}

	d, err := l.store.Take(ctx, identity+"|"+route, policy)
	if err != nil {
		slog.Warn("rate limit store failure, allowing request", "route", route, "error", err)
		return Decision{Allowed: true, Limit: policy.Limit, Remaining: policy.Limit}, true
	}

	return d, true
}

// CheckStrict is a convenience wrapper for callers that prefer error-style
// control flow: a deny is returned as a *RateLimitError carrying the reset
// hint. A route with no policy is an allow.
func (l *RateLimiter) CheckStrict(ctx context.Context, identity, route string) (Decision, error) {
	d, ok := l.Check(ctx, identity, route)
	if ok && !d.Allowed {
		return d, NewRateLimitError(d)
	}
	return d, nil
}
