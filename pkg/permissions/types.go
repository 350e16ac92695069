package permissions

import (
	"fmt"
	"time"
)

// PermissionType is an access level granted on an account. Levels form a
// total order; all access checks go through Includes, never equality.
type PermissionType string

const (
	PermissionViewOnly        PermissionType = "VIEW_ONLY"
	PermissionTransactionOnly PermissionType = "TRANSACTION_ONLY"
	PermissionFullAccess      PermissionType = "FULL_ACCESS"
)

// permissionRanks maps each permission type to its explicit rank. The
// ranking is deliberately not derived from declaration order.
var permissionRanks = map[PermissionType]int{
	PermissionViewOnly:        1,
	PermissionTransactionOnly: 2,
	PermissionFullAccess:      3,
}

// Rank returns the ordering level of the permission type, or 0 for an
// unknown value.
func (p PermissionType) Rank() int {
	return permissionRanks[p]
}

// Includes reports whether this permission level satisfies the required one.
func (p PermissionType) Includes(required PermissionType) bool {
	return p.Rank() >= required.Rank() && required.Rank() > 0
}

// Valid reports whether the value is one of the known permission types.
func (p PermissionType) Valid() bool {
	return p.Rank() > 0
}

// ParsePermissionType validates a string as a permission type.
func ParsePermissionType(s string) (PermissionType, error) {
	p := PermissionType(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown permission type: %q", s)
	}
	return p, nil
}

// AccountType categorizes an account.
type AccountType string

const (
	AccountTypeChecking   AccountType = "checking"
	AccountTypeSavings    AccountType = "savings"
	AccountTypeCreditCard AccountType = "credit_card"
	AccountTypeCash       AccountType = "cash"
)

// Account represents a checkbook account. An account has exactly one owner;
// the owner implicitly holds FULL_ACCESS regardless of stored grants.
type Account struct {
	ID           int64       `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	AccountType  AccountType `json:"account_type"`
	BankName     string      `json:"bank_name,omitempty"`
	NumberMasked string      `json:"account_number_masked,omitempty"`
	IsShared     bool        `json:"is_shared"`
	BalanceCents int64       `json:"balance_cents"`
	OwnerID      int64       `json:"owner_id"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// AccountPermission is a grant of one permission type to one non-owner user
// on one account. At most one row exists per (account, user) pair.
type AccountPermission struct {
	ID             int64          `json:"id"`
	AccountID      int64          `json:"account_id"`
	UserID         int64          `json:"user_id"`
	PermissionType PermissionType `json:"permission_type"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// RequestStatus is the workflow state of a permission request. PENDING is
// the only non-terminal state.
type RequestStatus string

const (
	StatusPending   RequestStatus = "PENDING"
	StatusApproved  RequestStatus = "APPROVED"
	StatusDenied    RequestStatus = "DENIED"
	StatusCancelled RequestStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed from this
// status.
func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusDenied || s == StatusCancelled
}

// Valid reports whether the value is a known request status.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied, StatusCancelled:
		return true
	}
	return false
}

// PermissionRequest is a non-owner's ask to receive a permission level on a
// shared account, subject to owner review.
type PermissionRequest struct {
	ID                  int64           `json:"id"`
	AccountID           int64           `json:"account_id"`
	RequesterID         int64           `json:"requester_id"`
	RequestedPermission PermissionType  `json:"requested_permission"`
	CurrentPermission   *PermissionType `json:"current_permission,omitempty"`
	Message             string          `json:"message,omitempty"`
	Status              RequestStatus   `json:"status"`
	ReviewedBy          *int64          `json:"reviewed_by,omitempty"`
	ReviewMessage       string          `json:"review_message,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	ReviewedAt          *time.Time      `json:"reviewed_at,omitempty"`
}

// RequestFilter narrows a permission request search. Zero values mean
// "match all" for that dimension.
type RequestFilter struct {
	AccountID   *int64
	RequesterID *int64
	Status      *RequestStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}
