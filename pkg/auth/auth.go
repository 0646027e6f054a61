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

// Package auth resolves bearer tokens to registered account identities.
//
// A request without a token is not an auth failure here: it simply selects
// the anonymous (guest) admission path. Token validation failures, on the
// other hand, are real errors and never fall back to guest.
package auth

import (
	"context"
	"errors"
)

// Common authentication errors.
var (
	// ErrInvalidToken is returned when a token cannot be validated.
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingSubject is returned when a valid token carries no subject.
	ErrMissingSubject = errors.New("token has no subject claim")
)

// Claims are the validated claims doclens cares about.
type Claims struct {
	// Subject is the registered account id (sub claim).
	Subject string `json:"sub"`

	// Email is the user's email address, if the provider includes it.
	Email string `json:"email,omitempty"`

	// Plan is the account's billing plan, if the provider includes it.
	Plan string `json:"plan,omitempty"`
}

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// StaticValidator maps fixed tokens to account ids. Development and test
// use only; production deployments configure the JWKS-backed JWTValidator.
type StaticValidator struct {
	tokens map[string]string
}

// NewStaticValidator creates a validator over a token -> account id map.
func NewStaticValidator(tokens map[string]string) *StaticValidator {
	return &StaticValidator{tokens: tokens}
}

// ValidateToken looks the token up in the static map.
func (v *StaticValidator) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	subject, ok := v.tokens[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	return &Claims{Subject: subject}, nil
}
