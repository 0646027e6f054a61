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
	"database/sql"
	"fmt"
	"time"
)

const createGuestQuotasTableSQL = `
CREATE TABLE IF NOT EXISTS guest_quotas (
    guest_id VARCHAR(255) NOT NULL,
    used BIGINT NOT NULL DEFAULT 0,
    expires_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (guest_id)
);

CREATE INDEX IF NOT EXISTS idx_guest_quotas_expires_at ON guest_quotas(expires_at);
`

// SQLQuotaStore is a QuotaStore over a SQL database.
// Supported dialects: "postgres", "mysql", "sqlite".
type SQLQuotaStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLQuotaStore creates the store and ensures the schema exists.
func NewSQLQuotaStore(db *sql.DB, dialect string) (*SQLQuotaStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLQuotaStore{db: db, dialect: dialect}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, createGuestQuotasTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create guest_quotas table: %w", err)
	}

	return s, nil
}

// Status returns the record, creating or resetting it inside one
// transaction so the reset is atomic with the read that discovered the
// expiry.
func (s *SQLQuotaStore) Status(ctx context.Context, guestID string, period time.Duration) (*Record, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin quota transaction: %w", err)
	}
	defer tx.Rollback()

	rec, found, err := s.selectForUpdate(ctx, tx, guestID)
	if err != nil {
		return nil, false, err
	}

	now := time.Now()
	expired := false

	switch {
	case !found:
		rec = &Record{Used: 0, ExpiresAt: now.Add(period)}
		if err := s.insert(ctx, tx, guestID, rec, now); err != nil {
			return nil, false, err
		}
	case now.After(rec.ExpiresAt):
		rec = &Record{Used: 0, ExpiresAt: now.Add(period)}
		if err := s.update(ctx, tx, guestID, rec, now); err != nil {
			return nil, false, err
		}
		expired = true
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit quota read: %w", err)
	}
	return rec, expired, nil
}

// Consume checks and increments usage inside one transaction. The row is
// locked on dialects that support it; SQLite serializes through its
// single-connection pool.
func (s *SQLQuotaStore) Consume(ctx context.Context, guestID string, limit int64, period time.Duration) (*Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin quota transaction: %w", err)
	}
	defer tx.Rollback()

	rec, found, err := s.selectForUpdate(ctx, tx, guestID)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	if !found || now.After(rec.ExpiresAt) {
		rec = &Record{Used: 0, ExpiresAt: now.Add(period)}
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

	if !found {
		err = s.insert(ctx, tx, guestID, rec, now)
	} else {
		err = s.update(ctx, tx, guestID, rec, now)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit quota consume: %w", err)
	}
	return rec, nil
}

func (s *SQLQuotaStore) selectForUpdate(ctx context.Context, tx *sql.Tx, guestID string) (*Record, bool, error) {
	query := `SELECT used, expires_at FROM guest_quotas WHERE guest_id = ? FOR UPDATE`
	switch s.dialect {
	case "postgres":
		query = `SELECT used, expires_at FROM guest_quotas WHERE guest_id = $1 FOR UPDATE`
	case "sqlite":
		query = `SELECT used, expires_at FROM guest_quotas WHERE guest_id = ?`
	}

	rec := &Record{}
	err := tx.QueryRowContext(ctx, query, guestID).Scan(&rec.Used, &rec.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read guest quota: %w", err)
	}
	return rec, true, nil
}

func (s *SQLQuotaStore) insert(ctx context.Context, tx *sql.Tx, guestID string, rec *Record, now time.Time) error {
	query := `INSERT INTO guest_quotas (guest_id, used, expires_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	if s.dialect == "postgres" {
		query = `INSERT INTO guest_quotas (guest_id, used, expires_at, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`
	}
	if _, err := tx.ExecContext(ctx, query, guestID, rec.Used, rec.ExpiresAt, now, now); err != nil {
		return fmt.Errorf("failed to create guest quota: %w", err)
	}
	return nil
}

func (s *SQLQuotaStore) update(ctx context.Context, tx *sql.Tx, guestID string, rec *Record, now time.Time) error {
	query := `UPDATE guest_quotas SET used = ?, expires_at = ?, updated_at = ? WHERE guest_id = ?`
	if s.dialect == "postgres" {
		query = `UPDATE guest_quotas SET used = $1, expires_at = $2, updated_at = $3 WHERE guest_id = $4`
	}
	if _, err := tx.ExecContext(ctx, query, rec.Used, rec.ExpiresAt, now, guestID); err != nil {
		return fmt.Errorf("failed to update guest quota: %w", err)
	}
	return nil
}
