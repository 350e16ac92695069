package permissions

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations for the sharing subsystem.
// The uniqueness constraints here are load-bearing: the single-grant-per-
// pair and single-pending-request-per-pair rules are enforced by the
// database, not by check-then-insert in application code.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					username VARCHAR(255) NOT NULL UNIQUE,
					email VARCHAR(255) NOT NULL UNIQUE,
					full_name VARCHAR(255),
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
			`,
		},
		{
			Version:     2,
			Description: "Create accounts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS accounts (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					account_type VARCHAR(50) NOT NULL,
					bank_name VARCHAR(255),
					account_number_masked VARCHAR(50),
					is_shared BOOLEAN NOT NULL DEFAULT FALSE,
					balance_cents BIGINT NOT NULL DEFAULT 0,
					owner_id BIGINT NOT NULL REFERENCES users(id),
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_accounts_owner_id ON accounts(owner_id);
			`,
		},
		{
			Version:     3,
			Description: "Create account_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS account_permissions (
					id BIGSERIAL PRIMARY KEY,
					account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					permission_type VARCHAR(50) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(account_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_account_permissions_account_id ON account_permissions(account_id);
				CREATE INDEX IF NOT EXISTS idx_account_permissions_user_id ON account_permissions(user_id);
			`,
		},
		{
			Version:     4,
			Description: "Create permission_requests table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permission_requests (
					id BIGSERIAL PRIMARY KEY,
					account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
					requester_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					requested_permission VARCHAR(50) NOT NULL,
					current_permission VARCHAR(50),
					message TEXT,
					status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
					reviewed_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					review_message TEXT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					reviewed_at TIMESTAMP
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_permission_requests_one_pending
					ON permission_requests(account_id, requester_id) WHERE status = 'PENDING';
				CREATE INDEX IF NOT EXISTS idx_permission_requests_account_id ON permission_requests(account_id);
				CREATE INDEX IF NOT EXISTS idx_permission_requests_requester_id ON permission_requests(requester_id);
				CREATE INDEX IF NOT EXISTS idx_permission_requests_status ON permission_requests(status);
			`,
		},
		{
			Version:     5,
			Description: "Create transactions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS transactions (
					id BIGSERIAL PRIMARY KEY,
					account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id),
					amount_cents BIGINT NOT NULL,
					description VARCHAR(255) NOT NULL,
					category VARCHAR(100),
					occurred_at TIMESTAMP NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_transactions_account_id ON transactions(account_id);
				CREATE INDEX IF NOT EXISTS idx_transactions_occurred_at ON transactions(occurred_at);
			`,
		},
		{
			Version:     6,
			Description: "Create auth_tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS auth_tokens (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					token_hash VARCHAR(64) NOT NULL UNIQUE,
					name VARCHAR(255),
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP,
					last_used_at TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_auth_tokens_user_id ON auth_tokens(user_id);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkbook_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM checkbook_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO checkbook_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
