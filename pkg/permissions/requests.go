package permissions

import (
	"context"

	"github.com/ledgerhouse/checkbook/pkg/audit"
	"github.com/ledgerhouse/checkbook/pkg/observability"
)

// RequestService implements the permission request workflow: a non-owner
// asks for a level on a shared account, the owner approves or denies, the
// requester may cancel while still pending. All transitions out of PENDING
// are terminal.
type RequestService struct {
	store     *Store
	validator *Validator
	recorder  audit.Recorder
	logger    *observability.Logger
}

// NewRequestService creates a request workflow service.
func NewRequestService(store *Store, recorder audit.Recorder, logger *observability.Logger) *RequestService {
	return &RequestService{
		store:     store,
		validator: NewValidator(store),
		recorder:  recorder,
		logger:    logger,
	}
}

// Create files a permission request. The account must exist and be shared,
// the requester must not be the owner, the requested level must exceed what
// the requester currently holds, and at most one pending request may exist
// per (account, requester) pair.
//
// The requester's current level is snapshotted onto the request so the
// owner reviews against the state at filing time.
func (r *RequestService) Create(ctx context.Context, requesterID, accountID int64, requested PermissionType, message string, md audit.RequestMetadata) (*PermissionRequest, error) {
	if !requested.Valid() {
		return nil, NewInvariantError(InvariantInvalidPermission, "unknown permission type %q", requested)
	}

	account, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.OwnerID == requesterID {
		return nil, NewInvariantError(InvariantOwnerSelfRequest, "account owner already has full access")
	}
	if !account.IsShared {
		return nil, NewInvariantError(InvariantNotShared, "account %d is not shared", accountID)
	}

	current, err := r.validator.GetUserPermissionLevel(ctx, requesterID, accountID)
	if err != nil {
		return nil, err
	}
	if current != nil && current.Includes(requested) {
		return nil, NewInvariantError(InvariantAlreadySufficient,
			"current permission %s already includes %s", *current, requested)
	}

	request := &PermissionRequest{
		AccountID:           accountID,
		RequesterID:         requesterID,
		RequestedPermission: requested,
		CurrentPermission:   current,
		Message:             message,
	}
	if err := r.store.CreateRequest(ctx, request); err != nil {
		return nil, err
	}

	details := map[string]interface{}{
		"request_id":           request.ID,
		"requested_permission": string(requested),
	}
	if current != nil {
		details["current_permission"] = string(*current)
	}
	r.record(ctx, audit.NewEntry(accountID, requesterID, audit.ActionPermissionRequested, details, md))

	return request, nil
}

// Approve moves a pending request to APPROVED and applies the requested
// level as a grant. Only the account owner may approve. Approval emits two
// audit entries: the permission change itself and the review decision.
func (r *RequestService) Approve(ctx context.Context, reviewerID, accountID, requestID int64, reviewMessage string, md audit.RequestMetadata) (*PermissionRequest, error) {
	request, _, err := r.loadForReview(ctx, reviewerID, accountID, requestID)
	if err != nil {
		return nil, err
	}

	if err := r.store.ReviewRequest(ctx, requestID, StatusApproved, &reviewerID, reviewMessage); err != nil {
		return nil, err
	}

	// Apply the grant after the transition so a lost race on the status
	// update never applies a grant for a request someone else reviewed.
	existing, err := r.store.GetPermission(ctx, accountID, request.RequesterID)
	if err != nil {
		return nil, err
	}
	grant := &AccountPermission{
		AccountID:      accountID,
		UserID:         request.RequesterID,
		PermissionType: request.RequestedPermission,
	}
	if err := r.store.UpsertPermission(ctx, grant); err != nil {
		return nil, err
	}

	action := audit.ActionPermissionGranted
	grantDetails := map[string]interface{}{
		"grantee_id": request.RequesterID,
		"permission": string(request.RequestedPermission),
		"request_id": requestID,
	}
	if existing != nil {
		action = audit.ActionPermissionModified
		grantDetails["old_permission"] = string(existing.PermissionType)
		grantDetails["new_permission"] = string(request.RequestedPermission)
		delete(grantDetails, "permission")
	}
	r.record(ctx, audit.NewEntry(accountID, reviewerID, action, grantDetails, md))
	r.record(ctx, audit.NewEntry(accountID, reviewerID, audit.ActionPermissionRequestApproved, map[string]interface{}{
		"request_id":           requestID,
		"requester_id":         request.RequesterID,
		"requested_permission": string(request.RequestedPermission),
	}, md))

	return r.store.GetRequest(ctx, requestID)
}

// Deny moves a pending request to DENIED. Only the account owner may deny.
// No grant is touched.
func (r *RequestService) Deny(ctx context.Context, reviewerID, accountID, requestID int64, reviewMessage string, md audit.RequestMetadata) (*PermissionRequest, error) {
	request, _, err := r.loadForReview(ctx, reviewerID, accountID, requestID)
	if err != nil {
		return nil, err
	}

	if err := r.store.ReviewRequest(ctx, requestID, StatusDenied, &reviewerID, reviewMessage); err != nil {
		return nil, err
	}

	r.record(ctx, audit.NewEntry(accountID, reviewerID, audit.ActionPermissionRequestDenied, map[string]interface{}{
		"request_id":           requestID,
		"requester_id":         request.RequesterID,
		"requested_permission": string(request.RequestedPermission),
	}, md))

	return r.store.GetRequest(ctx, requestID)
}

// Cancel moves a pending request to CANCELLED. Only the requester may
// cancel their own request. Cancellation leaves no audit trail.
func (r *RequestService) Cancel(ctx context.Context, callerID, accountID, requestID int64) (*PermissionRequest, error) {
	request, err := r.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.AccountID != accountID {
		return nil, NewInvariantError(InvariantAccountMismatch,
			"request %d does not belong to account %d", requestID, accountID)
	}
	if request.RequesterID != callerID {
		observability.PermissionDenials.Inc()
		return nil, NewAccessDeniedError(callerID, accountID, "only the requester can cancel a request")
	}

	if err := r.store.ReviewRequest(ctx, requestID, StatusCancelled, &callerID, ""); err != nil {
		return nil, err
	}

	return r.store.GetRequest(ctx, requestID)
}

// GetPending returns the caller's pending request on an account, or nil.
func (r *RequestService) GetPending(ctx context.Context, requesterID, accountID int64) (*PermissionRequest, error) {
	return r.store.GetPendingRequest(ctx, accountID, requesterID)
}

// ListMine returns requests filed by the caller, newest first.
func (r *RequestService) ListMine(ctx context.Context, requesterID int64, status *RequestStatus) ([]*PermissionRequest, error) {
	return r.store.ListRequests(ctx, RequestFilter{
		RequesterID: &requesterID,
		Status:      status,
	})
}

// ListPendingForOwner returns pending requests across all accounts the
// caller owns, oldest first.
func (r *RequestService) ListPendingForOwner(ctx context.Context, ownerID int64) ([]*PermissionRequest, error) {
	return r.store.ListPendingForOwner(ctx, ownerID)
}

// loadForReview fetches the request and account, checks the request
// belongs to the account, and checks the reviewer owns it.
func (r *RequestService) loadForReview(ctx context.Context, reviewerID, accountID, requestID int64) (*PermissionRequest, *Account, error) {
	request, err := r.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if request.AccountID != accountID {
		return nil, nil, NewInvariantError(InvariantAccountMismatch,
			"request %d does not belong to account %d", requestID, accountID)
	}

	account, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	if account.OwnerID != reviewerID {
		observability.PermissionDenials.Inc()
		return nil, nil, NewAccessDeniedError(reviewerID, accountID, "only the account owner can review requests")
	}

	return request, account, nil
}

func (r *RequestService) record(ctx context.Context, entry *audit.Entry) {
	if err := r.recorder.Record(ctx, entry); err != nil {
		r.logger.WithError(err).
			WithField("action", string(entry.Action)).
			WithField("account_id", entry.AccountID).
			Warn("audit record failed")
	}
}
