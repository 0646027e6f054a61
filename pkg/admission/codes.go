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

import "net/http"

// Code is the machine-readable reason a request was denied admission.
// Codes are part of the API contract; clients switch on them.
type Code string

const (
	// CodeRateLimitExceeded: the per-identity token bucket is empty.
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"

	// CodeInsufficientCredits: the registered account cannot cover the cost.
	CodeInsufficientCredits Code = "INSUFFICIENT_CREDITS"

	// CodeGuestQuotaExceeded: the anonymous allowance for the period is spent.
	CodeGuestQuotaExceeded Code = "GUEST_QUOTA_EXCEEDED"

	// CodeMissingIdentity: the request carries neither a session nor a
	// guest marker and one could not be established.
	CodeMissingIdentity Code = "MISSING_IDENTITY"

	// CodeInvalidToken: a bearer token was presented but failed validation.
	CodeInvalidToken Code = "INVALID_TOKEN"
)

// HTTPStatus maps a denial code to its response status: 429 for rate
// limiting, 402 for credits and quota, 401 for identity problems.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeInsufficientCredits, CodeGuestQuotaExceeded:
		return http.StatusPaymentRequired
	case CodeMissingIdentity, CodeInvalidToken:
		return http.StatusUnauthorized
	default:
		return http.StatusForbidden
	}
}

// Message returns the human-readable companion to the code.
func (c Code) Message() string {
	switch c {
	case CodeRateLimitExceeded:
		return "too many requests, slow down"
	case CodeInsufficientCredits:
		return "not enough credits for this operation"
	case CodeGuestQuotaExceeded:
		return "free allowance used up, sign up to continue"
	case CodeMissingIdentity:
		return "no identity on request"
	case CodeInvalidToken:
		return "bearer token is invalid"
	default:
		return "request denied"
	}
}
