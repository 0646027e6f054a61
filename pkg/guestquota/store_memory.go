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
	"context"
	"sync"
	"time"
)

// MemoryQuotaStore is an in-memory QuotaStore for development and tests.
type MemoryQuotaStore struct {
	mu      sync.Mutex
	records map[string]*Record

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// NewMemoryQuotaStore creates an empty in-memory quota store.
func NewMemoryQuotaStore() *MemoryQuotaStore {
	return &MemoryQuotaStore{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// Status returns the record, creating or resetting it under the lock.
func (s *MemoryQuotaStore) Status(ctx context.Context, guestID string, period time.Duration) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	rec, ok := s.records[guestID]
	if !ok {
		rec = &Record{Used: 0, ExpiresAt: now.Add(period)}
		s.records[guestID] = rec
		out := *rec
		return &out, false, nil
	}

	expired := false
	if now.After(rec.ExpiresAt) {
		rec.Used = 0
		rec.ExpiresAt = now.Add(period)
		expired = true
	}

	out := *rec
	return &out, expired, nil
}

// Consume is an atomic check-and-increment under the lock.
func (s *MemoryQuotaStore) Consume(ctx context.Context, guestID string, limit int64, period time.Duration) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	rec, ok := s.records[guestID]
	if !ok {
		rec = &Record{Used: 0, ExpiresAt: now.Add(period)}
		s.records[guestID] = rec
	} else if now.After(rec.ExpiresAt) {
		rec.Used = 0
		rec.ExpiresAt = now.Add(period)
	}

	if rec.Used >= limit {
		return nil, &QuotaExceededError{
			GuestID:   guestID,
			Used:      rec.Used,
			Limit:     limit,
			ExpiresAt: rec.ExpiresAt,
		}
	}

	rec.Used++
	out := *rec
	return &out, nil
}

// SetRecord overwrites a guest record. Test helper.
func (s *MemoryQuotaStore) SetRecord(guestID string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[guestID] = &rec
}

// Len returns the number of guest records. Test helper.
func (s *MemoryQuotaStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
