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

import "context"

// Class is the identity class of a caller.
type Class string

const (
	// ClassRegistered callers have a session-derived account id and are
	// billed against the credit ledger.
	ClassRegistered Class = "registered"

	// ClassGuest callers have a persisted anonymous marker and draw on the
	// guest quota.
	ClassGuest Class = "guest"
)

// Identity is the single caller identity a gated request carries.
type Identity struct {
	Class     Class
	AccountID string
	GuestID   string
}

// Registered builds a registered identity.
func Registered(accountID string) Identity {
	return Identity{Class: ClassRegistered, AccountID: accountID}
}

// Guest builds an anonymous identity.
func Guest(guestID string) Identity {
	return Identity{Class: ClassGuest, GuestID: guestID}
}

// IsZero reports whether no identity was established.
func (id Identity) IsZero() bool {
	return id.AccountID == "" && id.GuestID == ""
}

// identityKey is the private context key for the resolved identity.
type identityKey struct{}

// ContextWithIdentity returns a context carrying the resolved identity.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext extracts the identity resolved by the middleware.
// The second return is false when no gated middleware ran for the request.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
