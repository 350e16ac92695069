package accounts

import (
	"context"

	"github.com/ledgerhouse/checkbook/pkg/audit"
	"github.com/ledgerhouse/checkbook/pkg/observability"
	"github.com/ledgerhouse/checkbook/pkg/permissions"
)

// Service is the account and ledger facade. Every operation is gated
// through the permission validator before touching data, and every
// mutation emits one audit entry. Reads of shared accounts are audited
// too, so owners can see who looked.
type Service struct {
	accounts  *permissions.Store
	txns      *Store
	validator *permissions.Validator
	recorder  audit.Recorder
	logger    *observability.Logger
}

// NewService creates an account service.
func NewService(accountStore *permissions.Store, txnStore *Store, recorder audit.Recorder, logger *observability.Logger) *Service {
	return &Service{
		accounts:  accountStore,
		txns:      txnStore,
		validator: permissions.NewValidator(accountStore),
		recorder:  recorder,
		logger:    logger,
	}
}

// CreateAccount creates an account owned by the caller.
func (s *Service) CreateAccount(ctx context.Context, callerID int64, input CreateAccountInput) (*permissions.Account, error) {
	account := &permissions.Account{
		Name:         input.Name,
		Description:  input.Description,
		AccountType:  permissions.AccountType(input.AccountType),
		BankName:     input.BankName,
		NumberMasked: input.NumberMasked,
		BalanceCents: input.BalanceCents,
		OwnerID:      callerID,
	}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// GetAccount returns an account the caller can see. Viewing a shared
// account by a non-owner is audited.
func (s *Service) GetAccount(ctx context.Context, callerID, accountID int64, md audit.RequestMetadata) (*permissions.Account, error) {
	if err := s.validator.RequireMinimumPermission(ctx, callerID, accountID, permissions.PermissionViewOnly); err != nil {
		return nil, err
	}

	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if account.IsShared && account.OwnerID != callerID {
		s.record(ctx, audit.NewEntry(accountID, callerID, audit.ActionAccountViewed, nil, md))
	}

	return account, nil
}

// ListAccounts returns all accounts the caller owns or holds a grant on.
func (s *Service) ListAccounts(ctx context.Context, callerID int64) ([]*permissions.Account, error) {
	return s.accounts.ListAccountsForUser(ctx, callerID)
}

// UpdateAccount edits account metadata. Requires FULL_ACCESS.
func (s *Service) UpdateAccount(ctx context.Context, callerID, accountID int64, input UpdateAccountInput, md audit.RequestMetadata) (*permissions.Account, error) {
	if err := s.validator.RequireMinimumPermission(ctx, callerID, accountID, permissions.PermissionFullAccess); err != nil {
		return nil, err
	}

	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	account.Name = input.Name
	account.Description = input.Description
	account.BankName = input.BankName
	account.NumberMasked = input.NumberMasked
	if err := s.accounts.UpdateAccount(ctx, account); err != nil {
		return nil, err
	}

	s.record(ctx, audit.NewEntry(accountID, callerID, audit.ActionAccountModified, map[string]interface{}{
		"name": account.Name,
	}, md))

	return account, nil
}

// SetShared toggles account sharing. Only the owner may. Unsharing leaves
// grants in place but suspends them until the account is shared again.
func (s *Service) SetShared(ctx context.Context, callerID, accountID int64, shared bool, md audit.RequestMetadata) error {
	if err := s.validator.RequireOwner(ctx, callerID, accountID); err != nil {
		return err
	}

	if err := s.accounts.SetShared(ctx, accountID, shared); err != nil {
		return err
	}

	s.record(ctx, audit.NewEntry(accountID, callerID, audit.ActionAccountModified, map[string]interface{}{
		"is_shared": shared,
	}, md))

	return nil
}

// DeleteAccount removes an account with its grants, requests, and
// transactions. Only the owner may delete.
func (s *Service) DeleteAccount(ctx context.Context, callerID, accountID int64, md audit.RequestMetadata) error {
	if err := s.validator.RequireOwner(ctx, callerID, accountID); err != nil {
		return err
	}

	if err := s.accounts.DeleteAccount(ctx, accountID); err != nil {
		return err
	}

	s.record(ctx, audit.NewEntry(accountID, callerID, audit.ActionAccountModified, map[string]interface{}{
		"deleted": true,
	}, md))

	return nil
}

// AddTransaction records a ledger entry. Requires TRANSACTION_ONLY.
func (s *Service) AddTransaction(ctx context.Context, callerID, accountID int64, input TransactionInput, md audit.RequestMetadata) (*Transaction, error) {
	if err := s.validator.RequireMinimumPermission(ctx, callerID, accountID, permissions.PermissionTransactionOnly); err != nil {
		return nil, err
	}

	txn := &Transaction{
		AccountID:   accountID,
		UserID:      callerID,
		AmountCents: input.AmountCents,
		Description: input.Description,
		Category:    input.Category,
		OccurredAt:  input.OccurredAt,
	}
	if err := s.txns.Insert(ctx, txn); err != nil {
		return nil, err
	}

	s.record(ctx, audit.NewEntry(accountID, callerID, audit.ActionTransactionAdded, map[string]interface{}{
		"transaction_id": txn.ID,
		"amount_cents":   txn.AmountCents,
	}, md))

	return txn, nil
}

// UpdateTransaction edits a ledger entry. Requires TRANSACTION_ONLY.
func (s *Service) UpdateTransaction(ctx context.Context, callerID, accountID, txnID int64, input TransactionInput, md audit.RequestMetadata) (*Transaction, error) {
	if err := s.validator.RequireMinimumPermission(ctx, callerID, accountID, permissions.PermissionTransactionOnly); err != nil {
		return nil, err
	}

	txn, err := s.txns.Update(ctx, accountID, txnID, input)
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.NewEntry(accountID, callerID, audit.ActionTransactionModified, map[string]interface{}{
		"transaction_id": txnID,
		"amount_cents":   txn.AmountCents,
	}, md))

	return txn, nil
}

// DeleteTransaction removes a ledger entry. Requires TRANSACTION_ONLY.
func (s *Service) DeleteTransaction(ctx context.Context, callerID, accountID, txnID int64, md audit.RequestMetadata) error {
	if err := s.validator.RequireMinimumPermission(ctx, callerID, accountID, permissions.PermissionTransactionOnly); err != nil {
		return err
	}

	txn, err := s.txns.Delete(ctx, accountID, txnID)
	if err != nil {
		return err
	}

	s.record(ctx, audit.NewEntry(accountID, callerID, audit.ActionTransactionDeleted, map[string]interface{}{
		"transaction_id": txnID,
		"amount_cents":   txn.AmountCents,
	}, md))

	return nil
}

// ListTransactions returns an account's ledger. Requires VIEW_ONLY.
func (s *Service) ListTransactions(ctx context.Context, callerID, accountID int64, limit, offset int) ([]*Transaction, error) {
	if err := s.validator.RequireMinimumPermission(ctx, callerID, accountID, permissions.PermissionViewOnly); err != nil {
		return nil, err
	}
	return s.txns.List(ctx, accountID, limit, offset)
}

func (s *Service) record(ctx context.Context, entry *audit.Entry) {
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.WithError(err).
			WithField("action", string(entry.Action)).
			WithField("account_id", entry.AccountID).
			Warn("audit record failed")
	}
}
