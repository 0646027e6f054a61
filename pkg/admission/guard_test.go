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

package admission

import (
	"context"
	"testing"
	"time"

	"github.com/doclens/doclens/pkg/credits"
	"github.com/doclens/doclens/pkg/guestquota"
	"github.com/doclens/doclens/pkg/ratelimit"
)

const testRoute = "analyze"

type guardFixture struct {
	guard    *Guard
	accounts *credits.MemoryAccountStore
	quotas   *guestquota.MemoryQuotaStore
}

func newGuardFixture(t *testing.T, rateLimit int, guestLimit int64, cost int64) *guardFixture {
	t.Helper()

	store := ratelimit.NewMemoryBucketStore()
	t.Cleanup(func() { store.Close() })

	limiter, err := ratelimit.New(map[string]ratelimit.Policy{
		testRoute: {Limit: rateLimit, Window: time.Minute},
	}, store)
	if err != nil {
		t.Fatalf("New limiter: %v", err)
	}

	accounts := credits.NewMemoryAccountStore()
	ledger, err := credits.NewLedger(accounts)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	quotas := guestquota.NewMemoryQuotaStore()
	tracker, err := guestquota.NewTracker(quotas, guestLimit, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	guard, err := NewGuard(limiter, ledger, tracker, cost)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}

	return &guardFixture{guard: guard, accounts: accounts, quotas: quotas}
}

func TestAdmitRegisteredWithBalance(t *testing.T) {
	fx := newGuardFixture(t, 10, 3, 5)
	fx.accounts.SetBalance("acct-1", 100)

	d, err := fx.guard.Admit(context.Background(), Request{
		ClientID: "1.2.3.4",
		Route:    testRoute,
		Identity: Registered("acct-1"),
	})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected allow, got code %s", d.Code)
	}
	if d.RateLimit == nil {
		t.Fatal("expected rate limit details on decision")
	}

	// Admit is a pure check: no debit yet.
	balance, err := fx.guard.CreditBalance(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("CreditBalance: %v", err)
	}
	if balance != 100 {
		t.Fatalf("Admit must not debit, balance = %d", balance)
	}
}

func TestAdmitInsufficientCredits(t *testing.T) {
	fx := newGuardFixture(t, 10, 3, 5)
	fx.accounts.SetBalance("acct-1", 4)

	d, err := fx.guard.Admit(context.Background(), Request{
		ClientID: "1.2.3.4",
		Route:    testRoute,
		Identity: Registered("acct-1"),
	})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected deny for short balance")
	}
	if d.Code != CodeInsufficientCredits {
		t.Fatalf("code = %s, want %s", d.Code, CodeInsufficientCredits)
	}
	if d.Code.HTTPStatus() != 402 {
		t.Fatalf("status = %d, want 402", d.Code.HTTPStatus())
	}
}

func TestAdmitRateLimitBeforeCredits(t *testing.T) {
	// One request per minute; the account is broke, but the second request
	// must still be denied for rate, not credits: the limiter runs first.
	fx := newGuardFixture(t, 1, 3, 5)
	fx.accounts.SetBalance("acct-1", 0)

	req := Request{ClientID: "1.2.3.4", Route: testRoute, Identity: Registered("acct-1")}

	d, err := fx.guard.Admit(context.Background(), req)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if d.Code != CodeInsufficientCredits {
		t.Fatalf("first request: code = %s, want %s", d.Code, CodeInsufficientCredits)
	}

	d, err = fx.guard.Admit(context.Background(), req)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if d.Code != CodeRateLimitExceeded {
		t.Fatalf("second request: code = %s, want %s", d.Code, CodeRateLimitExceeded)
	}
	if d.RetryAfter <= 0 {
		t.Fatal("rate limit denial must carry a retry hint")
	}
}

func TestAdmitGuestQuota(t *testing.T) {
	fx := newGuardFixture(t, 100, 2, 5)
	ctx := context.Background()
	req := Request{ClientID: "1.2.3.4", Route: testRoute, Identity: Guest("guest-1")}

	for i := 0; i < 2; i++ {
		d, err := fx.guard.Admit(ctx, req)
		if err != nil {
			t.Fatalf("Admit %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("Admit %d: expected allow, got %s", i, d.Code)
		}
		if _, err := fx.guard.ConsumeGuest(ctx, "guest-1"); err != nil {
			t.Fatalf("ConsumeGuest %d: %v", i, err)
		}
	}

	d, err := fx.guard.Admit(ctx, req)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected deny once the allowance is spent")
	}
	if d.Code != CodeGuestQuotaExceeded {
		t.Fatalf("code = %s, want %s", d.Code, CodeGuestQuotaExceeded)
	}
	if d.RetryAfter <= 0 {
		t.Fatal("quota denial must hint when the period resets")
	}
}

func TestAdmitMissingIdentity(t *testing.T) {
	fx := newGuardFixture(t, 10, 3, 5)

	d, err := fx.guard.Admit(context.Background(), Request{
		ClientID: "1.2.3.4",
		Route:    testRoute,
	})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected deny without identity")
	}
	if d.Code != CodeMissingIdentity {
		t.Fatalf("code = %s, want %s", d.Code, CodeMissingIdentity)
	}
	if d.Code.HTTPStatus() != 401 {
		t.Fatalf("status = %d, want 401", d.Code.HTTPStatus())
	}
}

func TestAdmitUnpolicedRouteSkipsLimiter(t *testing.T) {
	fx := newGuardFixture(t, 1, 3, 5)
	fx.accounts.SetBalance("acct-1", 100)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := fx.guard.Admit(ctx, Request{
			ClientID: "1.2.3.4",
			Route:    "usage",
			Identity: Registered("acct-1"),
		})
		if err != nil {
			t.Fatalf("Admit %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("Admit %d: route without a policy must not be limited, got %s", i, d.Code)
		}
		if d.RateLimit != nil {
			t.Fatal("no policy means no rate limit details")
		}
	}
}

func TestAdmitReadOnlySkipsBalanceCheck(t *testing.T) {
	// A caller with nothing left must still be able to read their own
	// allowance: read-only requests skip the credit/quota check.
	fx := newGuardFixture(t, 100, 2, 5)
	ctx := context.Background()

	fx.accounts.SetBalance("acct-1", 0)
	d, err := fx.guard.Admit(ctx, Request{
		ClientID: "1.2.3.4",
		Route:    testRoute,
		Identity: Registered("acct-1"),
		ReadOnly: true,
	})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("broke account must pass a read-only check, got %s", d.Code)
	}

	for i := 0; i < 2; i++ {
		if _, err := fx.guard.ConsumeGuest(ctx, "guest-1"); err != nil {
			t.Fatalf("ConsumeGuest %d: %v", i, err)
		}
	}
	d, err = fx.guard.Admit(ctx, Request{
		ClientID: "1.2.3.4",
		Route:    testRoute,
		Identity: Guest("guest-1"),
		ReadOnly: true,
	})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("exhausted guest must pass a read-only check, got %s", d.Code)
	}

	// Identity is still required.
	d, err = fx.guard.Admit(ctx, Request{ClientID: "1.2.3.4", Route: testRoute, ReadOnly: true})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if d.Code != CodeMissingIdentity {
		t.Fatalf("code = %s, want %s", d.Code, CodeMissingIdentity)
	}
}

func TestAdmitReadOnlyStillRateLimited(t *testing.T) {
	fx := newGuardFixture(t, 1, 3, 5)
	fx.accounts.SetBalance("acct-1", 100)
	ctx := context.Background()
	req := Request{ClientID: "1.2.3.4", Route: testRoute, Identity: Registered("acct-1"), ReadOnly: true}

	d, err := fx.guard.Admit(ctx, req)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected allow, got %s", d.Code)
	}

	d, err = fx.guard.Admit(ctx, req)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if d.Code != CodeRateLimitExceeded {
		t.Fatalf("code = %s, want %s", d.Code, CodeRateLimitExceeded)
	}
}

func TestConsumeOnSuccessDebitsGuardCost(t *testing.T) {
	fx := newGuardFixture(t, 10, 3, 5)
	fx.accounts.SetBalance("acct-1", 12)
	ctx := context.Background()

	result, err := ConsumeOnSuccess(ctx, fx.guard, "acct-1", func(ctx context.Context) (string, error) {
		return "summary", nil
	})
	if err != nil {
		t.Fatalf("ConsumeOnSuccess: %v", err)
	}
	if result != "summary" {
		t.Fatalf("result = %q", result)
	}

	balance, err := fx.guard.CreditBalance(ctx, "acct-1")
	if err != nil {
		t.Fatalf("CreditBalance: %v", err)
	}
	if balance != 7 {
		t.Fatalf("balance = %d, want 7", balance)
	}
}

func TestNewGuardValidation(t *testing.T) {
	store := ratelimit.NewMemoryBucketStore()
	defer store.Close()
	limiter, _ := ratelimit.New(nil, store)
	ledger, _ := credits.NewLedger(credits.NewMemoryAccountStore())
	tracker, _ := guestquota.NewTracker(guestquota.NewMemoryQuotaStore(), 3, time.Hour)

	if _, err := NewGuard(nil, ledger, tracker, 1); err == nil {
		t.Error("expected error for nil limiter")
	}
	if _, err := NewGuard(limiter, nil, tracker, 1); err == nil {
		t.Error("expected error for nil ledger")
	}
	if _, err := NewGuard(limiter, ledger, nil, 1); err == nil {
		t.Error("expected error for nil tracker")
	}
	if _, err := NewGuard(limiter, ledger, tracker, 0); err == nil {
		t.Error("expected error for non-positive cost")
	}
}
