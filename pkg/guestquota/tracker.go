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

// Package guestquota tracks a time-boxed usage allowance for anonymous
// callers, keyed by a persisted guest identity.
//
// Each guest record moves through uninitialized -> active -> expired ->
// active (reset): records are created lazily on first access with a full
// period ahead of them, and an access that finds the period elapsed resets
// usage to zero atomically with the read that discovered it. Consumption is
// an atomic check-and-increment inside the store, so two simultaneous
// requests from one guest cannot both slip past the limit.
package guestquota

import (
	"context"
	"fmt"
	"time"
)

// Record is the durable per-guest usage row.
type Record struct {
	Used      int64
	ExpiresAt time.Time
}

// QuotaStore is the durable guest quota store.
//
// Both operations own their expiry handling: a missing record is created
// and an elapsed one is reset atomically with the read, so callers never
// observe a stale period.
type QuotaStore interface {
	// Status returns the current record, creating it (used=0, a full period
	// ahead) when absent. The second return reports whether this access
	// found the period elapsed and reset the record.
	Status(ctx context.Context, guestID string, period time.Duration) (*Record, bool, error)

	// Consume atomically increments usage if it is below limit, applying
	// the same create/reset handling first. Returns a *QuotaExceededError
	// without incrementing when the allowance is spent.
	Consume(ctx context.Context, guestID string, limit int64, period time.Duration) (*Record, error)
}

// Status is the caller-facing view of a guest's allowance.
type Status struct {
	Used      int64     `json:"used"`
	Remaining int64     `json:"remaining"`
	Limit     int64     `json:"limit"`
	Expired   bool      `json:"expired"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Tracker exposes guest quota checks and consumption over a QuotaStore.
type Tracker struct {
	store  QuotaStore
	limit  int64
	period time.Duration
}

// NewTracker creates a tracker allowing limit uses per period.
func NewTracker(store QuotaStore, limit int64, period time.Duration) (*Tracker, error) {
	if store == nil {
		return nil, fmt.Errorf("quota store is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("guest quota limit must be positive, got %d", limit)
	}
	if period <= 0 {
		return nil, fmt.Errorf("guest quota period must be positive, got %s", period)
	}
	return &Tracker{store: store, limit: limit, period: period}, nil
}

// Limit returns the configured allowance per period.
func (t *Tracker) Limit() int64 {
	return t.limit
}

// Status reports the guest's current usage, creating or resetting the
// record as a side effect when it is absent or expired.
func (t *Tracker) Status(ctx context.Context, guestID string) (*Status, error) {
	if guestID == "" {
		return nil, fmt.Errorf("guest id cannot be empty")
	}

	rec, expired, err := t.store.Status(ctx, guestID, t.period)
	if err != nil {
		return nil, err
	}

	return t.toStatus(rec, expired), nil
}

// Consume spends one use of the allowance. Fails with a
// *QuotaExceededError when none remain at call time.
func (t *Tracker) Consume(ctx context.Context, guestID string) (*Status, error) {
	if guestID == "" {
		return nil, fmt.Errorf("guest id cannot be empty")
	}

	rec, err := t.store.Consume(ctx, guestID, t.limit, t.period)
	if err != nil {
		return nil, err
	}

	return t.toStatus(rec, false), nil
}

func (t *Tracker) toStatus(rec *Record, expired bool) *Status {
	remaining := t.limit - rec.Used
	if remaining < 0 {
		remaining = 0
	}
	return &Status{
		Used:      rec.Used,
		Remaining: remaining,
		Limit:     t.limit,
		Expired:   expired,
		ExpiresAt: rec.ExpiresAt,
	}
}
