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
	"errors"
	"fmt"
)

// Common errors.
var (
	// ErrInsufficientCredits is the sentinel all balance denials unwrap to.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrAccountNotFound is returned when no account row exists for an id.
	// Account rows are provisioned on signup by an external collaborator;
	// the ledger never creates them.
	ErrAccountNotFound = errors.New("account not found")
)

// InsufficientCreditsError is a balance denial with enough detail for the
// caller to render a quota-style rejection.
type InsufficientCreditsError struct {
	AccountID string
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits for account %s: required %d, available %d",
		e.AccountID, e.Required, e.Available)
}

func (e *InsufficientCreditsError) Unwrap() error {
	return ErrInsufficientCredits
}

// IsInsufficientCredits reports whether err is a balance denial.
func IsInsufficientCredits(err error) bool {
	return errors.Is(err, ErrInsufficientCredits)
}

// BillingError reports a debit that failed after the billed operation
// already succeeded. This is a billing-integrity incident: the caller got
// the work for free and the books need manual reconciliation. It must be
// logged as an error and never silently absorbed.
type BillingError struct {
	AccountID string
	Amount    int64
	Err       error
}

func (e *BillingError) Error() string {
	return fmt.Sprintf("operation succeeded but debit of %d credits failed for account %s: %v",
		e.Amount, e.AccountID, e.Err)
}

func (e *BillingError) Unwrap() error {
	return e.Err
}

// IsBillingError reports whether err is a post-success debit failure.
func IsBillingError(err error) bool {
	var be *BillingError
	return errors.As(err, &be)
}
