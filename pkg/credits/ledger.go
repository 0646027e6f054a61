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

// Package credits implements the credit ledger for registered accounts.
//
// Balances live in an external account store; the ledger is the only code
// path allowed to decrement them, and the decrement is transactional: the
// balance is re-read inside the same transaction as the write so concurrent
// debits can never drive an account negative.
package credits

import (
	"context"
	"fmt"
)

// AccountStore is the durable per-account balance store.
//
// Decrement must be atomic at the row level: implementations re-read the
// balance inside the same transaction (or compare-and-swap) as the write.
type AccountStore interface {
	// Balance returns the current credit balance for an account.
	// Returns ErrAccountNotFound if no row exists.
	Balance(ctx context.Context, accountID string) (int64, error)

	// Decrement atomically subtracts n credits and returns the new balance.
	// Returns an *InsufficientCreditsError without mutating when the balance
	// is short, and ErrAccountNotFound if no row exists.
	Decrement(ctx context.Context, accountID string, n int64) (int64, error)
}

// Ledger exposes balance checks and debits over an AccountStore.
type Ledger struct {
	store AccountStore
}

// NewLedger creates a ledger over the given store.
func NewLedger(store AccountStore) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("account store is required")
	}
	return &Ledger{store: store}, nil
}

// RequireBalance verifies the account holds at least n credits. Pure read,
// no mutation. Returns an *InsufficientCreditsError when short.
func (l *Ledger) RequireBalance(ctx context.Context, accountID string, n int64) error {
	if n <= 0 {
		return fmt.Errorf("required amount must be positive, got %d", n)
	}

	available, err := l.store.Balance(ctx, accountID)
	if err != nil {
		return err
	}

	if available < n {
		return &InsufficientCreditsError{
			AccountID: accountID,
			Required:  n,
			Available: available,
		}
	}
	return nil
}

// Balance returns the current balance for an account.
func (l *Ledger) Balance(ctx context.Context, accountID string) (int64, error) {
	return l.store.Balance(ctx, accountID)
}

// Decrement atomically debits n credits and returns the new balance.
func (l *Ledger) Decrement(ctx context.Context, accountID string, n int64) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", n)
	}
	return l.store.Decrement(ctx, accountID, n)
}

// ConsumeOnSuccess bills n credits for op only if op succeeds.
//
// The balance is checked first so obviously-broke callers fail before the
// expensive work starts; the authoritative check is the atomic Decrement
// afterwards. If op returns an error, nothing is debited and the error
// propagates unchanged. If op succeeds but the debit fails, the result is
// returned together with a *BillingError so the incident is never swallowed.
func ConsumeOnSuccess[T any](ctx context.Context, l *Ledger, accountID string, n int64, op func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := l.RequireBalance(ctx, accountID, n); err != nil {
		return zero, err
	}

	result, err := op(ctx)
	if err != nil {
		return zero, err
	}

	if _, err := l.Decrement(ctx, accountID, n); err != nil {
		// A concurrent debit may have drained the balance between the
		// pre-check and here; that is a plain quota rejection, not a
		// billing incident.
		if IsInsufficientCredits(err) {
			return zero, err
		}
		return result, &BillingError{AccountID: accountID, Amount: n, Err: err}
	}

	return result, nil
}
