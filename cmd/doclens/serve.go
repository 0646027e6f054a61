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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/doclens/doclens/pkg/admission"
	"github.com/doclens/doclens/pkg/analyzer"
	"github.com/doclens/doclens/pkg/auth"
	"github.com/doclens/doclens/pkg/config"
	"github.com/doclens/doclens/pkg/credits"
	"github.com/doclens/doclens/pkg/guestquota"
	"github.com/doclens/doclens/pkg/observability"
	"github.com/doclens/doclens/pkg/ratelimit"
	"github.com/doclens/doclens/pkg/server"
)

// ServeCmd starts the analysis server.
type ServeCmd struct {
	Port int `help:"Port to listen on (overrides config)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	cfg, err := c.loadConfig(cli.Config)
	if err != nil {
		return err
	}

	// Override port if explicitly specified
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	// Credit and quota stores may share one database; the pool hands both
	// the same connection so SQLite never sees a second writer.
	dbPool := config.NewDBPool()
	defer dbPool.Close()

	accounts, quotas, err := buildAccountStores(cfg, dbPool)
	if err != nil {
		return err
	}

	bucketStore, bucketCount, err := buildBucketStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer bucketStore.Close()

	limiter, err := ratelimit.New(routePolicies(cfg), bucketStore)
	if err != nil {
		return fmt.Errorf("failed to create rate limiter: %w", err)
	}

	ledger, err := credits.NewLedger(accounts)
	if err != nil {
		return fmt.Errorf("failed to create credit ledger: %w", err)
	}

	tracker, err := guestquota.NewTracker(quotas, cfg.Admission.Guest.Limit, cfg.Admission.Guest.Period())
	if err != nil {
		return fmt.Errorf("failed to create guest quota tracker: %w", err)
	}

	guard, err := admission.NewGuard(limiter, ledger, tracker, cfg.Admission.CreditCost)
	if err != nil {
		return fmt.Errorf("failed to create admission guard: %w", err)
	}

	opts := []server.Option{}

	validator, err := buildValidator(ctx, cfg.Auth)
	if err != nil {
		return err
	}
	if validator != nil {
		opts = append(opts, server.WithValidator(validator))
	}

	metrics, err := observability.InitMetrics(bucketCount)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer metrics.Shutdown(context.Background())
	opts = append(opts, server.WithMetrics(metrics))

	srv, err := server.New(&cfg.Server, guard, analyzer.NewLocalAnalyzer(), opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	printStartupInfo(cfg)

	// Start server (blocks until context is cancelled)
	return srv.Start(ctx)
}

// loadConfig loads the configuration file, or falls back to the default
// in-memory setup when no file is given. Env policy overrides apply in
// both modes.
func (c *ServeCmd) loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		slog.Info("Loaded configuration", "path", configPath)
		return cfg, nil
	}

	cfg := config.DefaultConfig()
	if err := cfg.Admission.ApplyEnvOverrides(os.Environ()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	slog.Info("Using default configuration", "storage", "in-memory")
	return cfg, nil
}

// buildAccountStores creates the credit and guest quota stores: SQL over
// the shared pool when a database is configured, in-memory otherwise.
func buildAccountStores(cfg *config.Config, dbPool *config.DBPool) (credits.AccountStore, guestquota.QuotaStore, error) {
	if cfg.Database == nil {
		slog.Warn("No database configured; credits and quotas reset on restart")
		return credits.NewMemoryAccountStore(), guestquota.NewMemoryQuotaStore(), nil
	}

	db, err := dbPool.Get(cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	accounts, err := credits.NewSQLAccountStore(db, cfg.Database.Dialect())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create account store: %w", err)
	}

	quotas, err := guestquota.NewSQLQuotaStore(db, cfg.Database.Dialect())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create quota store: %w", err)
	}

	return accounts, quotas, nil
}

// buildBucketStore creates the token bucket store. The memory backend
// starts a background sweeper and exposes a live-bucket count for the
// metrics gauge; the redis backend reports no local count.
func buildBucketStore(ctx context.Context, cfg *config.Config) (ratelimit.BucketStore, func() int64, error) {
	switch cfg.Admission.BucketBackend {
	case config.BucketBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Admission.Redis.Addr,
			Password: cfg.Admission.Redis.Password,
			DB:       cfg.Admission.Redis.DB,
		})
		store, err := ratelimit.NewRedisBucketStore(ctx, client)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("Rate limit buckets in Redis", "addr", cfg.Admission.Redis.Addr)
		return store, nil, nil

	default:
		store := ratelimit.NewMemoryBucketStore()
		go store.Sweep(ctx, cfg.Admission.SweepInterval.Std())
		return store, func() int64 { return int64(store.Len()) }, nil
	}
}

// buildValidator creates the bearer token validator, or nil when auth is
// not configured and every caller is a guest.
func buildValidator(ctx context.Context, cfg *config.AuthConfig) (auth.TokenValidator, error) {
	if !cfg.IsEnabled() {
		slog.Info("Auth not configured; all callers are guests")
		return nil, nil
	}

	if len(cfg.StaticTokens) > 0 {
		slog.Warn("Using static token auth; do not use in production", "tokens", len(cfg.StaticTokens))
		return auth.NewStaticValidator(cfg.StaticTokens), nil
	}

	validator, err := auth.NewJWTValidator(ctx, cfg.JWKSURL, cfg.Issuer, cfg.Audience, cfg.RefreshInterval.Std())
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT validator: %w", err)
	}
	slog.Info("JWT auth enabled", "issuer", cfg.Issuer)
	return validator, nil
}

// routePolicies converts the config policy table to the limiter's form.
func routePolicies(cfg *config.Config) map[string]ratelimit.Policy {
	policies := make(map[string]ratelimit.Policy, len(cfg.Admission.Routes))
	for route, p := range cfg.Admission.Routes {
		policies[route] = ratelimit.Policy{
			Limit:  p.Limit,
			Window: p.Window.Std(),
			Burst:  p.Burst,
		}
	}
	return policies
}

func printStartupInfo(cfg *config.Config) {
	fmt.Printf("\ndoclens server ready\n")
	fmt.Printf("   API:      http://%s/v1/analyze\n", cfg.Server.Address())
	fmt.Printf("   Usage:    http://%s/v1/usage\n", cfg.Server.Address())
	fmt.Printf("   Health:   http://%s/healthz\n", cfg.Server.Address())
	fmt.Printf("   Metrics:  http://%s/metrics\n", cfg.Server.Address())

	if cfg.Database != nil {
		fmt.Printf("   Storage:  %s (%s)\n", cfg.Database.Driver, cfg.Database.Database)
	} else {
		fmt.Printf("   Storage:  in-memory (not persisted)\n")
	}

	for route, p := range cfg.Admission.Routes {
		fmt.Printf("   Rate:     %s: %d req / %s (burst %d)\n", route, p.Limit, p.Window, p.Burst)
	}
	fmt.Printf("   Guests:   %d analyses / %d days\n", cfg.Admission.Guest.Limit, cfg.Admission.Guest.PeriodDays)

	fmt.Println("\nPress Ctrl+C to stop")
}
