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

// Package admission decides whether a request may reach the metered
// document-analysis operation.
//
// The guard is the one component the rest of the application calls: it
// applies the rate limiter first (cheap, local, fails fast) and only then
// the credit or guest quota check, which may round-trip to durable storage.
// Denials are values with a stable machine-readable code, never errors;
// errors are reserved for infrastructure failures.
//
// Billing follows consume-on-success: Admit only checks. The debit happens
// after the gated operation completes, via ConsumeOnSuccess for registered
// callers and ConsumeGuest for anonymous ones.
package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/doclens/doclens/pkg/credits"
	"github.com/doclens/doclens/pkg/guestquota"
	"github.com/doclens/doclens/pkg/ratelimit"
)

// Request describes one inbound request to gate.
type Request struct {
	// ClientID is the network identity used for the rate limit bucket.
	// Empty means the identity could not be parsed; the limiter is skipped
	// (fail open).
	ClientID string

	// Route is the route name policies are declared under.
	Route string

	// Identity is the resolved caller identity.
	Identity Identity

	// ReadOnly marks requests that only inspect state, like a usage
	// lookup. The rate limit still applies, but the credit/quota balance
	// check is skipped: a caller with nothing left may always read their
	// own allowance.
	ReadOnly bool
}

// Decision is the single allow/deny outcome for a request.
type Decision struct {
	// Allowed reports whether the request may proceed to the gated
	// operation.
	Allowed bool

	// Code is the denial reason; empty when allowed.
	Code Code

	// RetryAfter is the client back-off hint for retryable denials.
	RetryAfter time.Duration

	// RateLimit carries the limiter decision when a policy applied to the
	// route, for response headers.
	RateLimit *ratelimit.Decision
}

// Guard orchestrates the rate limiter, credit ledger, and guest quota
// tracker into one admission decision.
type Guard struct {
	limiter *ratelimit.RateLimiter
	ledger  *credits.Ledger
	tracker *guestquota.Tracker
	cost    int64
}

// NewGuard creates a guard charging cost credits per gated operation.
func NewGuard(limiter *ratelimit.RateLimiter, ledger *credits.Ledger, tracker *guestquota.Tracker, cost int64) (*Guard, error) {
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("credit ledger is required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("guest quota tracker is required")
	}
	if cost <= 0 {
		return nil, fmt.Errorf("operation cost must be positive, got %d", cost)
	}
	return &Guard{limiter: limiter, ledger: ledger, tracker: tracker, cost: cost}, nil
}

// Cost returns the credit cost of one gated operation.
func (g *Guard) Cost() int64 {
	return g.cost
}

// Admit evaluates the request, short-circuiting on the first rejection.
// Order: rate limit, then identity class, then the matching balance check.
func (g *Guard) Admit(ctx context.Context, req Request) (Decision, error) {
	rl, hasPolicy := g.limiter.Check(ctx, req.ClientID, req.Route)

	var decision Decision
	if hasPolicy {
		decision.RateLimit = &rl
		if !rl.Allowed {
			decision.Code = CodeRateLimitExceeded
			decision.RetryAfter = rl.ResetIn
			return decision, nil
		}
	}

	switch req.Identity.Class {
	case ClassRegistered:
		if req.ReadOnly {
			break
		}
		err := g.ledger.RequireBalance(ctx, req.Identity.AccountID, g.cost)
		if credits.IsInsufficientCredits(err) {
			decision.Code = CodeInsufficientCredits
			return decision, nil
		}
		if err != nil {
			return decision, err
		}

	case ClassGuest:
		if req.ReadOnly {
			break
		}
		status, err := g.tracker.Status(ctx, req.Identity.GuestID)
		if err != nil {
			return decision, err
		}
		if status.Remaining <= 0 {
			decision.Code = CodeGuestQuotaExceeded
			decision.RetryAfter = time.Until(status.ExpiresAt)
			return decision, nil
		}

	default:
		decision.Code = CodeMissingIdentity
		return decision, nil
	}

	decision.Allowed = true
	return decision, nil
}

// ConsumeGuest spends one unit of a guest's allowance. Called by the
// gated handler after the operation succeeds.
func (g *Guard) ConsumeGuest(ctx context.Context, guestID string) (*guestquota.Status, error) {
	return g.tracker.Consume(ctx, guestID)
}

// GuestStatus reports a guest's current allowance.
func (g *Guard) GuestStatus(ctx context.Context, guestID string) (*guestquota.Status, error) {
	return g.tracker.Status(ctx, guestID)
}

// CreditBalance reports a registered account's current balance.
func (g *Guard) CreditBalance(ctx context.Context, accountID string) (int64, error) {
	return g.ledger.Balance(ctx, accountID)
}

// ConsumeOnSuccess runs op and bills the guard's cost only if it succeeds.
func ConsumeOnSuccess[T any](ctx context.Context, g *Guard, accountID string, op func(context.Context) (T, error)) (T, error) {
	return credits.ConsumeOnSuccess(ctx, g.ledger, accountID, g.cost, op)
}
