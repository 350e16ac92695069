package accounts

import "time"

// Transaction is one ledger entry against an account. Amounts are signed
// cents: deposits positive, withdrawals negative.
type Transaction struct {
	ID          int64     `json:"id"`
	AccountID   int64     `json:"account_id"`
	UserID      int64     `json:"user_id"`
	AmountCents int64     `json:"amount_cents"`
	Description string    `json:"description"`
	Category    string    `json:"category,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateAccountInput carries the fields a caller supplies for a new account.
type CreateAccountInput struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	AccountType  string `json:"account_type"`
	BankName     string `json:"bank_name,omitempty"`
	NumberMasked string `json:"account_number_masked,omitempty"`
	BalanceCents int64  `json:"balance_cents"`
}

// UpdateAccountInput carries the mutable account fields.
type UpdateAccountInput struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	BankName     string `json:"bank_name,omitempty"`
	NumberMasked string `json:"account_number_masked,omitempty"`
}

// TransactionInput carries the fields for adding or editing a transaction.
type TransactionInput struct {
	AmountCents int64     `json:"amount_cents"`
	Description string    `json:"description"`
	Category    string    `json:"category,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
