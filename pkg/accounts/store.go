package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerhouse/checkbook/pkg/permissions"
)

// Store persists transactions and keeps the parent account balance in
// step. Every balance change happens in the same database transaction as
// the ledger row.
type Store struct {
	db *sql.DB
}

// NewStore creates a transaction store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert adds a transaction and applies its amount to the account balance.
func (s *Store) Insert(ctx context.Context, txn *Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	err = tx.QueryRowContext(ctx, `
		INSERT INTO transactions (account_id, user_id, amount_cents, description, category, occurred_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, txn.AccountID, txn.UserID, txn.AmountCents, txn.Description, nullIfEmpty(txn.Category), txn.OccurredAt, now, now).Scan(&txn.ID)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE accounts SET balance_cents = balance_cents + $1, updated_at = $2 WHERE id = $3
	`, txn.AmountCents, now, txn.AccountID); err != nil {
		return fmt.Errorf("failed to apply transaction to balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	txn.CreatedAt = now
	txn.UpdatedAt = now
	return nil
}

// Get retrieves a transaction by ID within an account.
func (s *Store) Get(ctx context.Context, accountID, txnID int64) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, user_id, amount_cents, description, category, occurred_at, created_at, updated_at
		FROM transactions
		WHERE id = $1 AND account_id = $2
	`, txnID, accountID)

	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, permissions.NewNotFoundError("transaction", txnID)
		}
		return nil, fmt.Errorf("failed to get transaction %d: %w", txnID, err)
	}
	return txn, nil
}

// Update edits a transaction and adjusts the account balance by the
// difference between the old and new amounts.
func (s *Store) Update(ctx context.Context, accountID, txnID int64, input TransactionInput) (*Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var oldAmount int64
	err = tx.QueryRowContext(ctx,
		`SELECT amount_cents FROM transactions WHERE id = $1 AND account_id = $2`,
		txnID, accountID).Scan(&oldAmount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, permissions.NewNotFoundError("transaction", txnID)
		}
		return nil, fmt.Errorf("failed to read transaction %d: %w", txnID, err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET amount_cents = $1, description = $2, category = $3, occurred_at = $4, updated_at = $5
		WHERE id = $6 AND account_id = $7
	`, input.AmountCents, input.Description, nullIfEmpty(input.Category), input.OccurredAt, now, txnID, accountID); err != nil {
		return nil, fmt.Errorf("failed to update transaction %d: %w", txnID, err)
	}

	if delta := input.AmountCents - oldAmount; delta != 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE accounts SET balance_cents = balance_cents + $1, updated_at = $2 WHERE id = $3
		`, delta, now, accountID); err != nil {
			return nil, fmt.Errorf("failed to adjust balance: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.Get(ctx, accountID, txnID)
}

// Delete removes a transaction and reverses its amount from the balance.
func (s *Store) Delete(ctx context.Context, accountID, txnID int64) (*Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txn, err := scanTransaction(tx.QueryRowContext(ctx, `
		SELECT id, account_id, user_id, amount_cents, description, category, occurred_at, created_at, updated_at
		FROM transactions
		WHERE id = $1 AND account_id = $2
	`, txnID, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, permissions.NewNotFoundError("transaction", txnID)
		}
		return nil, fmt.Errorf("failed to read transaction %d: %w", txnID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = $1 AND account_id = $2`, txnID, accountID); err != nil {
		return nil, fmt.Errorf("failed to delete transaction %d: %w", txnID, err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE accounts SET balance_cents = balance_cents - $1, updated_at = $2 WHERE id = $3
	`, txn.AmountCents, now, accountID); err != nil {
		return nil, fmt.Errorf("failed to reverse balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return txn, nil
}

// List returns an account's transactions, most recent first.
func (s *Store) List(ctx context.Context, accountID int64, limit, offset int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, user_id, amount_cents, description, category, occurred_at, created_at, updated_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}

	return txns, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var txn Transaction
	var category sql.NullString
	if err := row.Scan(&txn.ID, &txn.AccountID, &txn.UserID, &txn.AmountCents,
		&txn.Description, &category, &txn.OccurredAt, &txn.CreatedAt, &txn.UpdatedAt); err != nil {
		return nil, err
	}
	txn.Category = category.String
	return &txn, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
