package permissions

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store handles persistence for accounts, grants and permission requests.
type Store struct {
	db *sql.DB
}

// NewStore creates a new permissions store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying database handle for cross-store transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateAccount creates a new account owned by OwnerID.
func (s *Store) CreateAccount(ctx context.Context, account *Account) error {
	query := `
		INSERT INTO accounts (name, description, account_type, bank_name, account_number_masked, is_shared, balance_cents, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, query,
		account.Name,
		account.Description,
		account.AccountType,
		account.BankName,
		account.NumberMasked,
		account.IsShared,
		account.BalanceCents,
		account.OwnerID,
		now,
		now,
	).Scan(&account.ID)

	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	account.CreatedAt = now
	account.UpdatedAt = now
	return nil
}

// GetAccount retrieves an account by ID. Returns a NotFoundError when the
// account does not exist.
func (s *Store) GetAccount(ctx context.Context, accountID int64) (*Account, error) {
	query := `
		SELECT id, name, description, account_type, bank_name, account_number_masked, is_shared, balance_cents, owner_id, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	var account Account
	var description, bankName, numberMasked sql.NullString

	err := s.db.QueryRowContext(ctx, query, accountID).Scan(
		&account.ID,
		&account.Name,
		&description,
		&account.AccountType,
		&bankName,
		&numberMasked,
		&account.IsShared,
		&account.BalanceCents,
		&account.OwnerID,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, NewNotFoundError("account", accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	account.Description = description.String
	account.BankName = bankName.String
	account.NumberMasked = numberMasked.String

	return &account, nil
}

// UpdateAccount updates mutable account fields.
func (s *Store) UpdateAccount(ctx context.Context, account *Account) error {
	query := `
		UPDATE accounts
		SET name = $1, description = $2, account_type = $3, bank_name = $4, account_number_masked = $5, is_shared = $6, balance_cents = $7, updated_at = $8
		WHERE id = $9
	`

	account.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query,
		account.Name,
		account.Description,
		account.AccountType,
		account.BankName,
		account.NumberMasked,
		account.IsShared,
		account.BalanceCents,
		account.UpdatedAt,
		account.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return NewNotFoundError("account", account.ID)
	}

	return nil
}

// SetShared flips the sharing flag on an account.
func (s *Store) SetShared(ctx context.Context, accountID int64, shared bool) error {
	query := `UPDATE accounts SET is_shared = $1, updated_at = $2 WHERE id = $3`
	result, err := s.db.ExecContext(ctx, query, shared, time.Now().UTC(), accountID)
	if err != nil {
		return fmt.Errorf("failed to update sharing flag: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return NewNotFoundError("account", accountID)
	}

	return nil
}

// DeleteAccount removes an account and everything hanging off it in one
// transaction. Grants are deleted before the account row so a crash
// mid-sequence cannot leave orphaned grants.
func (s *Store) DeleteAccount(ctx context.Context, accountID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	statements := []string{
		`DELETE FROM account_permissions WHERE account_id = $1`,
		`DELETE FROM permission_requests WHERE account_id = $1`,
		`DELETE FROM transactions WHERE account_id = $1`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, accountID); err != nil {
			return fmt.Errorf("failed to delete account dependents: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return NewNotFoundError("account", accountID)
	}

	return tx.Commit()
}

// ListAccountsForUser returns accounts the user owns plus shared accounts
// the user holds a grant on, most recently created first.
func (s *Store) ListAccountsForUser(ctx context.Context, userID int64) ([]*Account, error) {
	query := `
		SELECT DISTINCT a.id, a.name, a.description, a.account_type, a.bank_name, a.account_number_masked, a.is_shared, a.balance_cents, a.owner_id, a.created_at, a.updated_at
		FROM accounts a
		LEFT JOIN account_permissions ap ON ap.account_id = a.id AND ap.user_id = $1
		WHERE a.owner_id = $1 OR (a.is_shared AND ap.id IS NOT NULL)
		ORDER BY a.created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		var account Account
		var description, bankName, numberMasked sql.NullString
		if err := rows.Scan(
			&account.ID,
			&account.Name,
			&description,
			&account.AccountType,
			&bankName,
			&numberMasked,
			&account.IsShared,
			&account.BalanceCents,
			&account.OwnerID,
			&account.CreatedAt,
			&account.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		account.Description = description.String
		account.BankName = bankName.String
		account.NumberMasked = numberMasked.String
		accounts = append(accounts, &account)
	}

	return accounts, rows.Err()
}

// GetPermission returns the grant for (account, user), or nil when no grant
// exists. Absence of a grant is a normal outcome, not an error.
func (s *Store) GetPermission(ctx context.Context, accountID, userID int64) (*AccountPermission, error) {
	query := `
		SELECT id, account_id, user_id, permission_type, created_at, updated_at
		FROM account_permissions
		WHERE account_id = $1 AND user_id = $2
	`

	var grant AccountPermission
	err := s.db.QueryRowContext(ctx, query, accountID, userID).Scan(
		&grant.ID,
		&grant.AccountID,
		&grant.UserID,
		&grant.PermissionType,
		&grant.CreatedAt,
		&grant.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}

	return &grant, nil
}

// UpsertPermission inserts a grant for (account, user), or updates the
// existing row's permission type. The unique constraint on
// (account_id, user_id) guarantees a single row per pair even under
// concurrent grants.
func (s *Store) UpsertPermission(ctx context.Context, grant *AccountPermission) error {
	query := `
		INSERT INTO account_permissions (account_id, user_id, permission_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (account_id, user_id)
		DO UPDATE SET permission_type = EXCLUDED.permission_type, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, query,
		grant.AccountID,
		grant.UserID,
		grant.PermissionType,
		now,
	).Scan(&grant.ID, &grant.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert permission: %w", err)
	}

	grant.UpdatedAt = now
	return nil
}

// DeletePermission removes the grant for (account, user). Returns a
// NotFoundError when no grant exists for the pair.
func (s *Store) DeletePermission(ctx context.Context, accountID, userID int64) error {
	query := `DELETE FROM account_permissions WHERE account_id = $1 AND user_id = $2`
	result, err := s.db.ExecContext(ctx, query, accountID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return NewNotFoundError("permission", fmt.Sprintf("account %d, user %d", accountID, userID))
	}

	return nil
}

// ListPermissions returns all grants on an account, most recently created
// first.
func (s *Store) ListPermissions(ctx context.Context, accountID int64) ([]*AccountPermission, error) {
	query := `
		SELECT id, account_id, user_id, permission_type, created_at, updated_at
		FROM account_permissions
		WHERE account_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var grants []*AccountPermission
	for rows.Next() {
		var grant AccountPermission
		if err := rows.Scan(
			&grant.ID,
			&grant.AccountID,
			&grant.UserID,
			&grant.PermissionType,
			&grant.CreatedAt,
			&grant.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		grants = append(grants, &grant)
	}

	return grants, rows.Err()
}

// CreateRequest inserts a new pending permission request. The partial
// unique index on (account_id, requester_id) WHERE status = 'PENDING'
// rejects a second concurrent pending request; that outcome surfaces as an
// InvariantError rather than a storage error.
func (s *Store) CreateRequest(ctx context.Context, request *PermissionRequest) error {
	query := `
		INSERT INTO permission_requests (account_id, requester_id, requested_permission, current_permission, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id, requester_id) WHERE status = 'PENDING' DO NOTHING
		RETURNING id
	`

	now := time.Now().UTC()
	request.Status = StatusPending
	err := s.db.QueryRowContext(ctx, query,
		request.AccountID,
		request.RequesterID,
		request.RequestedPermission,
		request.CurrentPermission,
		request.Message,
		request.Status,
		now,
	).Scan(&request.ID)

	if err == sql.ErrNoRows {
		return NewInvariantError(InvariantDuplicatePending,
			"a pending permission request already exists for account %d", request.AccountID)
	}
	if err != nil {
		return fmt.Errorf("failed to create permission request: %w", err)
	}

	request.CreatedAt = now
	return nil
}

// GetRequest retrieves a permission request by ID.
func (s *Store) GetRequest(ctx context.Context, requestID int64) (*PermissionRequest, error) {
	query := `
		SELECT id, account_id, requester_id, requested_permission, current_permission, message, status, reviewed_by, review_message, created_at, reviewed_at
		FROM permission_requests
		WHERE id = $1
	`

	request, err := scanRequest(s.db.QueryRowContext(ctx, query, requestID))
	if err == sql.ErrNoRows {
		return nil, NewNotFoundError("permission request", requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission request: %w", err)
	}

	return request, nil
}

// GetPendingRequest returns the pending request for (account, requester),
// or nil when none exists.
func (s *Store) GetPendingRequest(ctx context.Context, accountID, requesterID int64) (*PermissionRequest, error) {
	query := `
		SELECT id, account_id, requester_id, requested_permission, current_permission, message, status, reviewed_by, review_message, created_at, reviewed_at
		FROM permission_requests
		WHERE account_id = $1 AND requester_id = $2 AND status = 'PENDING'
	`

	request, err := scanRequest(s.db.QueryRowContext(ctx, query, accountID, requesterID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending request: %w", err)
	}

	return request, nil
}

// ReviewRequest atomically moves a PENDING request to a terminal status.
// The WHERE clause makes the transition one-way: reviewing an already
// reviewed request affects zero rows and surfaces as an InvariantError.
func (s *Store) ReviewRequest(ctx context.Context, requestID int64, status RequestStatus, reviewerID *int64, reviewMessage string) error {
	if !status.Terminal() {
		return NewInvariantError(InvariantNotPending, "cannot transition request %d to %s", requestID, status)
	}

	query := `
		UPDATE permission_requests
		SET status = $1, reviewed_by = $2, review_message = $3, reviewed_at = $4
		WHERE id = $5 AND status = 'PENDING'
	`

	result, err := s.db.ExecContext(ctx, query, status, reviewerID, reviewMessage, time.Now().UTC(), requestID)
	if err != nil {
		return fmt.Errorf("failed to review permission request: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return NewInvariantError(InvariantNotPending, "permission request %d is not pending", requestID)
	}

	return nil
}

// ListRequests searches permission requests. Absent filter dimensions mean
// "match all".
func (s *Store) ListRequests(ctx context.Context, filter RequestFilter) ([]*PermissionRequest, error) {
	query := `
		SELECT id, account_id, requester_id, requested_permission, current_permission, message, status, reviewed_by, review_message, created_at, reviewed_at
		FROM permission_requests
		WHERE 1=1
	`

	args := []interface{}{}
	argCount := 1

	if filter.AccountID != nil {
		query += fmt.Sprintf(" AND account_id = $%d", argCount)
		args = append(args, *filter.AccountID)
		argCount++
	}
	if filter.RequesterID != nil {
		query += fmt.Sprintf(" AND requester_id = $%d", argCount)
		args = append(args, *filter.RequesterID)
		argCount++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, *filter.Status)
		argCount++
	}
	if filter.CreatedFrom != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filter.CreatedFrom)
		argCount++
	}
	if filter.CreatedTo != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, *filter.CreatedTo)
		argCount++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
		argCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list permission requests: %w", err)
	}
	defer rows.Close()

	var requests []*PermissionRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission request: %w", err)
		}
		requests = append(requests, request)
	}

	return requests, rows.Err()
}

// ListPendingForOwner returns all pending requests against accounts the
// given user owns, oldest first so owners review in arrival order.
func (s *Store) ListPendingForOwner(ctx context.Context, ownerID int64) ([]*PermissionRequest, error) {
	query := `
		SELECT pr.id, pr.account_id, pr.requester_id, pr.requested_permission, pr.current_permission, pr.message, pr.status, pr.reviewed_by, pr.review_message, pr.created_at, pr.reviewed_at
		FROM permission_requests pr
		JOIN accounts a ON a.id = pr.account_id
		WHERE a.owner_id = $1 AND pr.status = 'PENDING'
		ORDER BY pr.created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	defer rows.Close()

	var requests []*PermissionRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission request: %w", err)
		}
		requests = append(requests, request)
	}

	return requests, rows.Err()
}

// PurgeReviewedBefore deletes non-pending requests created before the
// cutoff. Pending requests are never auto-deleted regardless of age. Safe
// to run repeatedly over overlapping ranges.
func (s *Store) PurgeReviewedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM permission_requests WHERE status <> 'PENDING' AND created_at < $1`
	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge permission requests: %w", err)
	}

	return result.RowsAffected()
}

// scanRequest scans a permission request from a database row
func scanRequest(scanner interface {
	Scan(dest ...interface{}) error
}) (*PermissionRequest, error) {
	var request PermissionRequest
	var currentPermission sql.NullString
	var message, reviewMessage sql.NullString
	var reviewedBy sql.NullInt64
	var reviewedAt sql.NullTime

	err := scanner.Scan(
		&request.ID,
		&request.AccountID,
		&request.RequesterID,
		&request.RequestedPermission,
		&currentPermission,
		&message,
		&request.Status,
		&reviewedBy,
		&reviewMessage,
		&request.CreatedAt,
		&reviewedAt,
	)
	if err != nil {
		return nil, err
	}

	if currentPermission.Valid {
		p := PermissionType(currentPermission.String)
		request.CurrentPermission = &p
	}
	request.Message = message.String
	request.ReviewMessage = reviewMessage.String
	if reviewedBy.Valid {
		id := reviewedBy.Int64
		request.ReviewedBy = &id
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		request.ReviewedAt = &t
	}

	return &request, nil
}
