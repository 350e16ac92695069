package permissions

import (
	"context"
	"database/sql"
	"io"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ledgerhouse/checkbook/pkg/observability"
)

// setupTestDB opens an in-memory sqlite database with the same shape as the
// production schema, including the partial unique index that enforces the
// single-pending-request rule.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// A second pooled connection would see its own empty in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			full_name TEXT,
			created_at TIMESTAMP NOT NULL
		);

		CREATE TABLE accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT,
			account_type TEXT NOT NULL,
			bank_name TEXT,
			account_number_masked TEXT,
			is_shared INTEGER NOT NULL DEFAULT 0,
			balance_cents INTEGER NOT NULL DEFAULT 0,
			owner_id INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE account_permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			permission_type TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE(account_id, user_id)
		);

		CREATE TABLE permission_requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL,
			requester_id INTEGER NOT NULL,
			requested_permission TEXT NOT NULL,
			current_permission TEXT,
			message TEXT,
			status TEXT NOT NULL DEFAULT 'PENDING',
			reviewed_by INTEGER,
			review_message TEXT,
			created_at TIMESTAMP NOT NULL,
			reviewed_at TIMESTAMP
		);

		CREATE UNIQUE INDEX idx_permission_requests_one_pending
			ON permission_requests(account_id, requester_id) WHERE status = 'PENDING';

		CREATE TABLE transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			amount_cents INTEGER NOT NULL,
			description TEXT NOT NULL,
			category TEXT,
			occurred_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	return db
}

func createTestUser(t *testing.T, db *sql.DB, username string) int64 {
	t.Helper()

	var id int64
	err := db.QueryRow(
		`INSERT INTO users (username, email, created_at) VALUES ($1, $2, datetime('now')) RETURNING id`,
		username, username+"@example.com",
	).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	return id
}

func createTestAccount(t *testing.T, store *Store, ownerID int64, shared bool) *Account {
	t.Helper()

	account := &Account{
		Name:        "Household Checking",
		AccountType: AccountTypeChecking,
		IsShared:    shared,
		OwnerID:     ownerID,
	}
	if err := store.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}
	return account
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}
