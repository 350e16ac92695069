package permissions

import (
	"context"
	"fmt"

	"github.com/ledgerhouse/checkbook/pkg/observability"
)

// Validator is the central authorization oracle. Every caller service asks
// it before touching an account-scoped resource.
//
// All methods are read-only and re-read grant state on every call; there is
// deliberately no caching, so a concurrent grant or revoke is visible to
// the next check. A missing account resolves to "no access", never an
// error.
type Validator struct {
	store *Store
}

// NewValidator creates a new permission validator backed by the store.
func NewValidator(store *Store) *Validator {
	return &Validator{store: store}
}

// GetUserPermissionLevel returns the effective permission a user holds on
// an account. The owner always holds FULL_ACCESS, regardless of any stored
// grant. A non-owner's stored grant only counts while the account is
// shared. Returns nil when the user has no permission or the account does
// not exist.
func (v *Validator) GetUserPermissionLevel(ctx context.Context, userID, accountID int64) (*PermissionType, error) {
	account, err := v.store.GetAccount(ctx, accountID)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	if account.OwnerID == userID {
		full := PermissionFullAccess
		return &full, nil
	}

	if !account.IsShared {
		return nil, nil
	}

	grant, err := v.store.GetPermission(ctx, accountID, userID)
	if err != nil {
		return nil, err
	}
	if grant == nil {
		return nil, nil
	}

	level := grant.PermissionType
	return &level, nil
}

// HasMinimumPermission reports whether the user's effective permission
// level includes the required one.
func (v *Validator) HasMinimumPermission(ctx context.Context, userID, accountID int64, required PermissionType) (bool, error) {
	level, err := v.GetUserPermissionLevel(ctx, userID, accountID)
	if err != nil {
		return false, err
	}
	if level == nil {
		return false, nil
	}
	return level.Includes(required), nil
}

// HasAccountAccess reports whether the user has any access at all: the
// owner, or any stored grant on a shared account independent of its level.
func (v *Validator) HasAccountAccess(ctx context.Context, userID, accountID int64) (bool, error) {
	level, err := v.GetUserPermissionLevel(ctx, userID, accountID)
	if err != nil {
		return false, err
	}
	return level != nil, nil
}

// HasAccountViewAccess reports whether the user may view the account.
func (v *Validator) HasAccountViewAccess(ctx context.Context, userID, accountID int64) (bool, error) {
	return v.HasMinimumPermission(ctx, userID, accountID, PermissionViewOnly)
}

// HasAccountTransactionAccess reports whether the user may record
// transactions against the account.
func (v *Validator) HasAccountTransactionAccess(ctx context.Context, userID, accountID int64) (bool, error) {
	return v.HasMinimumPermission(ctx, userID, accountID, PermissionTransactionOnly)
}

// HasAccountFullAccess reports whether the user holds full access.
func (v *Validator) HasAccountFullAccess(ctx context.Context, userID, accountID int64) (bool, error) {
	return v.HasMinimumPermission(ctx, userID, accountID, PermissionFullAccess)
}

// IsAccountOwner reports whether the user owns the account.
func (v *Validator) IsAccountOwner(ctx context.Context, userID, accountID int64) (bool, error) {
	account, err := v.store.GetAccount(ctx, accountID)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return account.OwnerID == userID, nil
}

// CanManageAccountPermissions reports whether the user may grant, revoke or
// list permissions on the account. Only the owner may.
func (v *Validator) CanManageAccountPermissions(ctx context.Context, userID, accountID int64) (bool, error) {
	return v.IsAccountOwner(ctx, userID, accountID)
}

// CanRequestPermission reports whether the user may file a permission
// request at the given level: not the owner, account shared, and the
// current permission does not already include the requested one.
func (v *Validator) CanRequestPermission(ctx context.Context, userID, accountID int64, requested PermissionType) (bool, error) {
	account, err := v.store.GetAccount(ctx, accountID)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	if account.OwnerID == userID {
		return false, nil
	}
	if !account.IsShared {
		return false, nil
	}

	current, err := v.GetUserPermissionLevel(ctx, userID, accountID)
	if err != nil {
		return false, err
	}
	if current != nil && current.Includes(requested) {
		return false, nil
	}

	return true, nil
}

// CanUpgradePermission reports whether the caller may move a grant from one
// level to a strictly higher one. Only the owner may, and only upward; a
// downgrade must go through ordinary grant/revoke instead.
func (v *Validator) CanUpgradePermission(ctx context.Context, userID, accountID int64, from, to PermissionType) (bool, error) {
	owner, err := v.IsAccountOwner(ctx, userID, accountID)
	if err != nil {
		return false, err
	}
	if !owner {
		return false, nil
	}
	return to.Rank() > from.Rank(), nil
}

// RequireMinimumPermission is the explicit guard used at the top of caller
// service methods: it returns a typed AccessDeniedError when the user does
// not hold the required level.
func (v *Validator) RequireMinimumPermission(ctx context.Context, userID, accountID int64, required PermissionType) error {
	ok, err := v.HasMinimumPermission(ctx, userID, accountID, required)
	if err != nil {
		return err
	}
	if !ok {
		observability.PermissionChecks.WithLabelValues("denied").Inc()
		observability.PermissionDenials.Inc()
		return NewAccessDeniedError(userID, accountID, fmt.Sprintf("requires %s", required))
	}
	observability.PermissionChecks.WithLabelValues("allowed").Inc()
	return nil
}

// RequireOwner returns a typed AccessDeniedError when the user does not own
// the account.
func (v *Validator) RequireOwner(ctx context.Context, userID, accountID int64) error {
	owner, err := v.IsAccountOwner(ctx, userID, accountID)
	if err != nil {
		return err
	}
	if !owner {
		observability.PermissionChecks.WithLabelValues("denied").Inc()
		observability.PermissionDenials.Inc()
		return NewAccessDeniedError(userID, accountID, "requires account ownership")
	}
	observability.PermissionChecks.WithLabelValues("allowed").Inc()
	return nil
}
