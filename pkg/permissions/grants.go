package permissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgerhouse/checkbook/pkg/audit"
	"github.com/ledgerhouse/checkbook/pkg/observability"
	"github.com/ledgerhouse/checkbook/pkg/users"
)

// GrantService implements owner-driven sharing: granting, changing, and
// revoking permission levels on an account. All mutations emit audit
// entries; audit failures are logged and never fail the mutation.
type GrantService struct {
	store     *Store
	users     *users.Store
	validator *Validator
	recorder  audit.Recorder
	logger    *observability.Logger
}

// NewGrantService creates a grant service.
func NewGrantService(store *Store, userStore *users.Store, recorder audit.Recorder, logger *observability.Logger) *GrantService {
	return &GrantService{
		store:     store,
		users:     userStore,
		validator: NewValidator(store),
		recorder:  recorder,
		logger:    logger,
	}
}

// Validator exposes the permission validator backed by this service's store.
func (g *GrantService) Validator() *Validator {
	return g.validator
}

// Grant gives a user a permission level on an account, identified by
// username or email. Re-granting to a user who already holds a level
// replaces the level. Granting on an unshared account marks it shared.
// Only the account owner may grant, and owners cannot grant to themselves.
func (g *GrantService) Grant(ctx context.Context, callerID, accountID int64, grantee string, permission PermissionType, md audit.RequestMetadata) (*AccountPermission, error) {
	if !permission.Valid() {
		return nil, NewInvariantError(InvariantInvalidPermission, "unknown permission type %q", permission)
	}

	account, err := g.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.OwnerID != callerID {
		observability.PermissionDenials.Inc()
		return nil, NewAccessDeniedError(callerID, accountID, "only the account owner can grant permissions")
	}

	target, err := g.users.Lookup(ctx, grantee)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, NewNotFoundError("user", grantee)
		}
		return nil, err
	}
	if target.ID == account.OwnerID {
		return nil, NewInvariantError(InvariantSelfGrant, "account owner already has full access")
	}

	// Read the existing grant first so the audit entry can distinguish a
	// new grant from a level change. The unique constraint remains the
	// backstop if two grants race.
	existing, err := g.store.GetPermission(ctx, accountID, target.ID)
	if err != nil {
		return nil, err
	}

	grant := &AccountPermission{
		AccountID:      accountID,
		UserID:         target.ID,
		PermissionType: permission,
	}
	if err := g.store.UpsertPermission(ctx, grant); err != nil {
		return nil, err
	}

	// Sharing an account for the first time flips it to shared.
	if !account.IsShared {
		if err := g.store.SetShared(ctx, accountID, true); err != nil {
			return nil, fmt.Errorf("failed to mark account %d shared: %w", accountID, err)
		}
	}

	action := audit.ActionPermissionGranted
	details := map[string]interface{}{
		"grantee_id":       target.ID,
		"grantee_username": target.Username,
		"permission":       string(permission),
	}
	if existing != nil {
		action = audit.ActionPermissionModified
		details["old_permission"] = string(existing.PermissionType)
		details["new_permission"] = string(permission)
		delete(details, "permission")
	}
	g.record(ctx, audit.NewEntry(accountID, callerID, action, details, md))

	return grant, nil
}

// Revoke removes a user's grant on an account. Only the owner may revoke.
func (g *GrantService) Revoke(ctx context.Context, callerID, accountID, granteeID int64, md audit.RequestMetadata) error {
	account, err := g.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if account.OwnerID != callerID {
		observability.PermissionDenials.Inc()
		return NewAccessDeniedError(callerID, accountID, "only the account owner can revoke permissions")
	}

	existing, err := g.store.GetPermission(ctx, accountID, granteeID)
	if err != nil {
		return err
	}

	if err := g.store.DeletePermission(ctx, accountID, granteeID); err != nil {
		return err
	}

	details := map[string]interface{}{"grantee_id": granteeID}
	if existing != nil {
		details["permission"] = string(existing.PermissionType)
	}
	g.record(ctx, audit.NewEntry(accountID, callerID, audit.ActionPermissionRevoked, details, md))

	return nil
}

// List returns all grants on an account. Only the owner may list them.
func (g *GrantService) List(ctx context.Context, callerID, accountID int64) ([]*AccountPermission, error) {
	account, err := g.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.OwnerID != callerID {
		observability.PermissionDenials.Inc()
		return nil, NewAccessDeniedError(callerID, accountID, "only the account owner can list permissions")
	}

	return g.store.ListPermissions(ctx, accountID)
}

func (g *GrantService) record(ctx context.Context, entry *audit.Entry) {
	if err := g.recorder.Record(ctx, entry); err != nil {
		g.logger.WithError(err).
			WithField("action", string(entry.Action)).
			WithField("account_id", entry.AccountID).
			Warn("audit record failed")
	}
}
