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
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed token_bucket.lua
var tokenBucketScript string

// keyPrefix namespaces bucket keys in a shared Redis instance.
const keyPrefix = "doclens:bucket:"

// RedisBucketStore is a BucketStore backed by Redis. Refill and consume run
// inside a Lua script, so the take is atomic across processes. It is the
// substitution point for multi-instance deployments; the limiter interface
// is unchanged.
type RedisBucketStore struct {
	client    *redis.Client
	scriptSHA string
}

// NewRedisBucketStore verifies connectivity and preloads the bucket script.
func NewRedisBucketStore(ctx context.Context, client *redis.Client) (*RedisBucketStore, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis unavailable: %w", err)
	}

	sha, err := client.ScriptLoad(pingCtx, tokenBucketScript).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load token bucket script: %w", err)
	}

	return &RedisBucketStore{client: client, scriptSHA: sha}, nil
}

// Take executes the token bucket script for key.
func (s *RedisBucketStore) Take(ctx context.Context, key string, policy Policy) (Decision, error) {
	now := float64(time.Now().UnixMicro()) / 1e6

	cmd := s.client.EvalSha(ctx, s.scriptSHA, []string{keyPrefix + key},
		policy.Limit,
		policy.Burst,
		policy.Window.Seconds(),
		now,
	)

	result, err := cmd.Result()
	if err != nil && redis.HasErrorPrefix(err, "NOSCRIPT") {
		// Script cache was flushed; fall back to a full eval.
		result, err = s.client.Eval(ctx, tokenBucketScript, []string{keyPrefix + key},
			policy.Limit, policy.Burst, policy.Window.Seconds(), now).Result()
	}
	if err != nil {
		return Decision{}, fmt.Errorf("token bucket eval failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return Decision{}, fmt.Errorf("unexpected token bucket script reply: %v", result)
	}

	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	resetSeconds := parseScriptFloat(values[2])

	return Decision{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		Limit:     policy.Limit,
		ResetIn:   time.Duration(resetSeconds * float64(time.Second)),
	}, nil
}

// Close releases the Redis client.
func (s *RedisBucketStore) Close() error {
	return s.client.Close()
}

// parseScriptFloat handles the value shapes Redis Lua replies use for
// numbers (integers stay int64, fractions come back as strings).
func parseScriptFloat(val interface{}) float64 {
	switch v := val.(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}
