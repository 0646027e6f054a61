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

// Package ratelimit implements per-identity, per-route token-bucket rate
// limiting.
//
// Features:
//   - Token buckets with configurable limit, window, and burst per route
//   - Refill-on-read semantics (no timers per bucket)
//   - Pluggable bucket stores: in-memory (default) and Redis
//   - Idle-bucket eviction via a periodic background sweep
//   - Client identity extraction from forwarded-address headers
//
// # Basic Usage
//
//	store := ratelimit.NewMemoryBucketStore()
//	limiter := ratelimit.New(map[string]ratelimit.Policy{
//	    "analyze": {Limit: 10, Window: time.Minute, Burst: 5},
//	}, store)
//
//	decision, ok := limiter.Check(ctx, clientIP, "analyze")
//	if ok && !decision.Allowed {
//	    // deny with decision.ResetIn as the retry hint
//	}
//
// A deny is a normal return value, never an error. Callers that prefer
// error-style control flow can use CheckStrict, which returns a typed
// *RateLimitError instead.
//
// The in-memory store is single-process; a multi-process deployment
// substitutes RedisBucketStore behind the same BucketStore interface without
// touching the limiter.
package ratelimit
