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
	"database/sql"
	"fmt"
	"time"
)

const createAccountsTableSQL = `
CREATE TABLE IF NOT EXISTS accounts (
    account_id VARCHAR(255) NOT NULL,
    credits BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (account_id),
    CHECK (credits >= 0)
);
`

// SQLAccountStore is an AccountStore over a SQL database.
// Supported dialects: "postgres", "mysql", "sqlite".
type SQLAccountStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLAccountStore creates the store and ensures the schema exists.
func NewSQLAccountStore(db *sql.DB, dialect string) (*SQLAccountStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLAccountStore{db: db, dialect: dialect}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, createAccountsTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create accounts table: %w", err)
	}

	return s, nil
}

// Balance returns the current balance for an account.
func (s *SQLAccountStore) Balance(ctx context.Context, accountID string) (int64, error) {
	query := `SELECT credits FROM accounts WHERE account_id = ?`
	if s.dialect == "postgres" {
		query = `SELECT credits FROM accounts WHERE account_id = $1`
	}

	var credits int64
	err := s.db.QueryRowContext(ctx, query, accountID).Scan(&credits)
	if err == sql.ErrNoRows {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query balance: %w", err)
	}
	return credits, nil
}

// Decrement atomically subtracts n credits and returns the new balance.
//
// The balance is re-read inside the transaction, with the row locked on
// dialects that support it, so two concurrent debits cannot both observe a
// sufficient balance. SQLite runs the pool on a single connection, which
// serializes the read-then-write the same way.
func (s *SQLAccountStore) Decrement(ctx context.Context, accountID string, n int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin debit transaction: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT credits FROM accounts WHERE account_id = ? FOR UPDATE`
	switch s.dialect {
	case "postgres":
		query = `SELECT credits FROM accounts WHERE account_id = $1 FOR UPDATE`
	case "sqlite":
		// SQLite has no FOR UPDATE; the single-connection pool serializes.
		query = `SELECT credits FROM accounts WHERE account_id = ?`
	}

	var credits int64
	err = tx.QueryRowContext(ctx, query, accountID).Scan(&credits)
	if err == sql.ErrNoRows {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance for debit: %w", err)
	}

	if credits < n {
		return 0, &InsufficientCreditsError{
			AccountID: accountID,
			Required:  n,
			Available: credits,
		}
	}

	update := `UPDATE accounts SET credits = credits - ?, updated_at = ? WHERE account_id = ?`
	if s.dialect == "postgres" {
		update = `UPDATE accounts SET credits = credits - $1, updated_at = $2 WHERE account_id = $3`
	}
	if _, err := tx.ExecContext(ctx, update, n, time.Now(), accountID); err != nil {
		return 0, fmt.Errorf("failed to debit account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit debit: %w", err)
	}

	return credits - n, nil
}
