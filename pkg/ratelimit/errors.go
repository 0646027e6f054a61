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

package ratelimit

import (
	"errors"
	"fmt"
)

// ErrRateLimitExceeded is the sentinel all rate limit denials unwrap to.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// RateLimitError is a typed denial for callers that prefer error-style
// control flow over inspecting Decision values.
type RateLimitError struct {
	// Decision is the full check result, including the reset hint.
	Decision Decision
}

// Error returns the error message.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %s", e.Decision.ResetIn.Round(1e6))
}

// Unwrap returns the underlying sentinel.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimitExceeded
}

// NewRateLimitError creates a RateLimitError from a denied decision.
func NewRateLimitError(d Decision) *RateLimitError {
	return &RateLimitError{Decision: d}
}

// IsRateLimitError reports whether err is a rate limit denial.
func IsRateLimitError(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}

// GetDecision extracts the Decision from a rate limit error.
// Returns false if the error is not a *RateLimitError.
func GetDecision(err error) (Decision, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle.Decision, true
	}
	return Decision{}, false
}
