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

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BucketBackend identifies where token buckets live.
type BucketBackend string

const (
	// BucketBackendMemory keeps buckets in process memory (single instance).
	BucketBackendMemory BucketBackend = "memory"

	// BucketBackendRedis keeps buckets in Redis (multi-instance).
	BucketBackendRedis BucketBackend = "redis"
)

// AdmissionConfig configures the admission guard: per-route rate limit
// policies, the credit cost of an analysis, and the guest allowance.
type AdmissionConfig struct {
	// Routes is the rate limit policy table, keyed by route name.
	// Routes absent from the table are not rate-limited.
	Routes map[string]RoutePolicy `yaml:"routes,omitempty"`

	// CreditCost is the number of credits one analysis debits from a
	// registered account. Default: 1.
	CreditCost int64 `yaml:"credit_cost,omitempty"`

	// Guest configures the anonymous allowance.
	Guest GuestQuotaConfig `yaml:"guest,omitempty"`

	// BucketBackend selects the token bucket store. Default: memory.
	BucketBackend BucketBackend `yaml:"bucket_backend,omitempty"`

	// Redis configures the bucket store when BucketBackend is redis.
	Redis *RedisConfig `yaml:"redis,omitempty"`

	// SweepInterval is how often idle in-memory buckets are evicted.
	// Default: 5m.
	SweepInterval Duration `yaml:"sweep_interval,omitempty"`
}

// RoutePolicy is one route's rate limit declaration.
type RoutePolicy struct {
	// Limit is the number of sustained requests per window.
	Limit int `yaml:"limit"`

	// Window is the refill window.
	Window Duration `yaml:"window"`

	// Burst is extra one-time headroom above Limit.
	Burst int `yaml:"burst,omitempty"`
}

// GuestQuotaConfig configures the free allowance for anonymous callers.
type GuestQuotaConfig struct {
	// Limit is the number of analyses per period. Default: 3.
	Limit int64 `yaml:"limit,omitempty"`

	// PeriodDays is the allowance period in days. Default: 30.
	PeriodDays int `yaml:"period_days,omitempty"`
}

// RedisConfig configures the Redis connection for the bucket store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// Period returns the guest allowance period as a duration.
func (c *GuestQuotaConfig) Period() time.Duration {
	return time.Duration(c.PeriodDays) * 24 * time.Hour
}

// SetDefaults applies default values.
func (c *AdmissionConfig) SetDefaults() {
	if c.Routes == nil {
		c.Routes = map[string]RoutePolicy{
			"analyze": {Limit: 10, Window: Duration(time.Minute), Burst: 5},
		}
	}
	if c.CreditCost == 0 {
		c.CreditCost = 1
	}
	if c.Guest.Limit == 0 {
		c.Guest.Limit = 3
	}
	if c.Guest.PeriodDays == 0 {
		c.Guest.PeriodDays = 30
	}
	if c.BucketBackend == "" {
		c.BucketBackend = BucketBackendMemory
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = Duration(5 * time.Minute)
	}
}

// Validate checks the admission configuration.
func (c *AdmissionConfig) Validate() error {
	for route, p := range c.Routes {
		if p.Limit <= 0 {
			return fmt.Errorf("route %q: limit must be positive", route)
		}
		if p.Window <= 0 {
			return fmt.Errorf("route %q: window must be positive", route)
		}
		if p.Burst < 0 {
			return fmt.Errorf("route %q: burst must be non-negative", route)
		}
	}

	if c.CreditCost <= 0 {
		return fmt.Errorf("credit_cost must be positive")
	}
	if c.Guest.Limit <= 0 {
		return fmt.Errorf("guest.limit must be positive")
	}
	if c.Guest.PeriodDays <= 0 {
		return fmt.Errorf("guest.period_days must be positive")
	}

	switch c.BucketBackend {
	case BucketBackendMemory:
	case BucketBackendRedis:
		if c.Redis == nil || c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when bucket_backend is redis")
		}
	default:
		return fmt.Errorf("invalid bucket_backend %q (valid: memory, redis)", c.BucketBackend)
	}

	if c.SweepInterval < 0 {
		return fmt.Errorf("sweep_interval must be non-negative")
	}

	return nil
}

// Env override variables: RATE_<ROUTE>_LIMIT and RATE_<ROUTE>_WINDOW_MS,
// with the route name uppercased. They let operators retune a policy
// without shipping a config file.
const (
	envOverridePrefix   = "RATE_"
	envOverrideLimit    = "_LIMIT"
	envOverrideWindowMS = "_WINDOW_MS"
)

// ApplyEnvOverrides rewrites route policies from RATE_* variables in
// environ (os.Environ() form). An override naming a route that is not in
// the policy table is a configuration error: a typo there would silently
// leave the intended route untouched.
func (c *AdmissionConfig) ApplyEnvOverrides(environ []string) error {
	for _, entry := range environ {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(name, envOverridePrefix) {
			continue
		}

		var route string
		var isLimit bool
		switch {
		case strings.HasSuffix(name, envOverrideLimit):
			route = strings.TrimSuffix(strings.TrimPrefix(name, envOverridePrefix), envOverrideLimit)
			isLimit = true
		case strings.HasSuffix(name, envOverrideWindowMS):
			route = strings.TrimSuffix(strings.TrimPrefix(name, envOverridePrefix), envOverrideWindowMS)
		default:
			continue
		}
		if route == "" {
			continue
		}

		policy, routeName, found := c.lookupRoute(route)
		if !found {
			return fmt.Errorf("env override %s names unknown route %q", name, strings.ToLower(route))
		}

		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("env override %s: value %q must be a positive integer", name, value)
		}

		if isLimit {
			policy.Limit = n
		} else {
			policy.Window = Duration(time.Duration(n) * time.Millisecond)
		}
		c.Routes[routeName] = policy
	}

	return nil
}

// lookupRoute resolves an uppercased env route name against the policy
// table, matching case-insensitively with underscores standing in for
// dashes.
func (c *AdmissionConfig) lookupRoute(envRoute string) (RoutePolicy, string, bool) {
	for name, p := range c.Routes {
		normalized := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		if normalized == envRoute {
			return p, name, true
		}
	}
	return RoutePolicy{}, "", false
}
