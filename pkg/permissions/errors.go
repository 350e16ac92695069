package permissions

import (
	"errors"
	"fmt"
)

// The error taxonomy here is deliberately small: not-found, access-denied
// and invariant-violation are typed so HTTP handlers can map each to a
// distinct status without string matching. Storage failures pass through
// wrapped.

// NotFoundError indicates a referenced entity does not exist.
type NotFoundError struct {
	Entity string
	ID     interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %v", e.Entity, e.ID)
}

// NewNotFoundError creates a not-found error for the given entity.
func NewNotFoundError(entity string, id interface{}) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// AccessDeniedError indicates the caller lacks the required permission
// level, or is not the owner where ownership is required.
type AccessDeniedError struct {
	UserID    int64
	AccountID int64
	Reason    string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied for user %d on account %d: %s", e.UserID, e.AccountID, e.Reason)
}

// NewAccessDeniedError creates an access-denied error.
func NewAccessDeniedError(userID, accountID int64, reason string) *AccessDeniedError {
	return &AccessDeniedError{UserID: userID, AccountID: accountID, Reason: reason}
}

// IsAccessDenied reports whether err is an AccessDeniedError.
func IsAccessDenied(err error) bool {
	var ad *AccessDeniedError
	return errors.As(err, &ad)
}

// InvariantKind identifies which business rule a rejected operation broke.
type InvariantKind string

const (
	InvariantDuplicatePending  InvariantKind = "duplicate_pending_request"
	InvariantSelfGrant         InvariantKind = "self_targeted_grant"
	InvariantOwnerSelfRequest  InvariantKind = "owner_self_request"
	InvariantNotShared         InvariantKind = "account_not_shared"
	InvariantAlreadySufficient InvariantKind = "permission_already_sufficient"
	InvariantNotPending        InvariantKind = "request_not_pending"
	InvariantAccountMismatch   InvariantKind = "request_account_mismatch"
	InvariantInvalidPermission InvariantKind = "invalid_permission_type"
)

// InvariantError indicates an operation was rejected because it would
// violate a business rule. Each rejection carries the specific rule so the
// caller can surface a specific message.
type InvariantError struct {
	Kind    InvariantKind
	Message string
}

func (e *InvariantError) Error() string {
	return e.Message
}

// NewInvariantError creates an invariant-violation error.
func NewInvariantError(kind InvariantKind, format string, args ...interface{}) *InvariantError {
	return &InvariantError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsInvariantViolation reports whether err is an InvariantError, optionally
// of a particular kind.
func IsInvariantViolation(err error, kinds ...InvariantKind) bool {
	var iv *InvariantError
	if !errors.As(err, &iv) {
		return false
	}
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if iv.Kind == k {
			return true
		}
	}
	return false
}
