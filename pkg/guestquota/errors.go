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

package guestquota

import (
	"errors"
	"fmt"
	"time"
)

// ErrQuotaExceeded is the sentinel all guest quota denials unwrap to.
var ErrQuotaExceeded = errors.New("guest quota exceeded")

// QuotaExceededError is a guest quota denial with enough detail for the
// caller to render a retry hint.
type QuotaExceededError struct {
	GuestID   string
	Used      int64
	Limit     int64
	ExpiresAt time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("guest quota exceeded for %s: %d/%d used, resets %s",
		e.GuestID, e.Used, e.Limit, e.ExpiresAt.Format(time.RFC3339))
}

func (e *QuotaExceededError) Unwrap() error {
	return ErrQuotaExceeded
}

// IsQuotaExceeded reports whether err is a guest quota denial.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}
