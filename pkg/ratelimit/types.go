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
	"net/http"
	"strconv"
	"time"
)

// Policy defines the token-bucket parameters for a single route.
// Policies are immutable once the limiter is constructed.
type Policy struct {
	// Limit is the steady-state number of requests per Window.
	Limit int

	// Window is the refill window.
	Window time.Duration

	// Burst is the extra above-baseline capacity tolerated for brief spikes.
	Burst int

	// Description documents what the route does (surfaced in config errors).
	Description string
}

// Capacity returns the maximum number of tokens the bucket can hold.
func (p Policy) Capacity() float64 {
	return float64(p.Limit + p.Burst)
}

// Decision is the outcome of a single rate limit check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool `json:"allowed"`

	// Remaining is the number of whole tokens left after this check.
	Remaining int `json:"remaining"`

	// Limit is the policy's steady-state limit, for client feedback.
	Limit int `json:"limit"`

	// ResetIn is the time until the bucket's window boundary. It is client
	// feedback for back-off logic only; server-side gating uses the token
	// count alone.
	ResetIn time.Duration `json:"reset_in"`
}

// WriteHeaders writes the standard X-RateLimit-* response headers for the
// decision, plus Retry-After when the request was denied.
func (d Decision) WriteHeaders(w http.ResponseWriter) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(d.ResetIn).Unix(), 10))
	if !d.Allowed && d.ResetIn > 0 {
		secs := int64(d.ResetIn.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
}
