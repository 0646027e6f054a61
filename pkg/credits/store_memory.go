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

package credits

import (
	"context"
	"sync"
)

// MemoryAccountStore is an in-memory AccountStore for development and tests.
// Check and write happen under one lock, matching the row-level atomicity
// the SQL store provides with transactions.
type MemoryAccountStore struct {
	mu       sync.Mutex
	balances map[string]int64
}

// NewMemoryAccountStore creates an empty in-memory account store.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{balances: make(map[string]int64)}
}

// SetBalance provisions or overwrites an account balance. This stands in
// for the external account-provisioning collaborator.
func (s *MemoryAccountStore) SetBalance(accountID string, credits int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[accountID] = credits
}

// Balance returns the current balance.
func (s *MemoryAccountStore) Balance(ctx context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.balances[accountID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	return balance, nil
}

// Decrement atomically subtracts n credits.
func (s *MemoryAccountStore) Decrement(ctx context.Context, accountID string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.balances[accountID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	if balance < n {
		return 0, &InsufficientCreditsError{
			AccountID: accountID,
			Required:  n,
			Available: balance,
		}
	}

	balance -= n
	s.balances[accountID] = balance
	return balance, nil
}
