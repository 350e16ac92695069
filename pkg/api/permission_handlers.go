package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/ledgerhouse/checkbook/pkg/audit"
	"github.com/ledgerhouse/checkbook/pkg/httputil"
	"github.com/ledgerhouse/checkbook/pkg/permissions"
)

// PermissionHandlers handles grant and permission request HTTP requests
type PermissionHandlers struct {
	grants   *permissions.GrantService
	requests *permissions.RequestService
}

// NewPermissionHandlers creates a new PermissionHandlers
func NewPermissionHandlers(grants *permissions.GrantService, requests *permissions.RequestService) *PermissionHandlers {
	return &PermissionHandlers{
		grants:   grants,
		requests: requests,
	}
}

// RegisterRoutes registers permission routes
func (h *PermissionHandlers) RegisterRoutes(router *mux.Router) {
	// Grants
	router.HandleFunc("/accounts/{id}/permissions", h.Grant).Methods("POST")
	router.HandleFunc("/accounts/{id}/permissions", h.ListGrants).Methods("GET")
	router.HandleFunc("/accounts/{id}/permissions/{user_id}", h.Revoke).Methods("DELETE")

	// Requests
	router.HandleFunc("/accounts/{id}/requests", h.CreateRequest).Methods("POST")
	router.HandleFunc("/accounts/{id}/requests/pending", h.GetPendingRequest).Methods("GET")
	router.HandleFunc("/accounts/{id}/requests/{request_id}/approve", h.ApproveRequest).Methods("POST")
	router.HandleFunc("/accounts/{id}/requests/{request_id}/deny", h.DenyRequest).Methods("POST")
	router.HandleFunc("/accounts/{id}/requests/{request_id}/cancel", h.CancelRequest).Methods("POST")
	router.HandleFunc("/requests", h.ListMyRequests).Methods("GET")
	router.HandleFunc("/requests/pending", h.ListPendingForOwner).Methods("GET")
}

// GrantRequest is the body for granting a permission
type GrantRequest struct {
	Grantee    string `json:"grantee"` // username or email
	Permission string `json:"permission"`
}

// Grant handles POST /accounts/{id}/permissions
func (h *PermissionHandlers) Grant(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req GrantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Grantee, "grantee") {
		return
	}

	permission, err := permissions.ParsePermissionType(req.Permission)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	grant, err := h.grants.Grant(r.Context(), identity.UserID, accountID, req.Grantee, permission, audit.MetadataFromRequest(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, grant)
}

// ListGrants handles GET /accounts/{id}/permissions
func (h *PermissionHandlers) ListGrants(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	grants, err := h.grants.List(r.Context(), identity.UserID, accountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, grants)
}

// Revoke handles DELETE /accounts/{id}/permissions/{user_id}
func (h *PermissionHandlers) Revoke(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	granteeID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.grants.Revoke(r.Context(), identity.UserID, accountID, granteeID, audit.MetadataFromRequest(r)); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// CreateRequestBody is the body for filing a permission request
type CreateRequestBody struct {
	Permission string `json:"permission"`
	Message    string `json:"message,omitempty"`
}

// CreateRequest handles POST /accounts/{id}/requests
func (h *PermissionHandlers) CreateRequest(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var body CreateRequestBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}

	requested, err := permissions.ParsePermissionType(body.Permission)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	request, err := h.requests.Create(r.Context(), identity.UserID, accountID, requested, body.Message, audit.MetadataFromRequest(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, request)
}

// GetPendingRequest handles GET /accounts/{id}/requests/pending
func (h *PermissionHandlers) GetPendingRequest(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	request, err := h.requests.GetPending(r.Context(), identity.UserID, accountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if request == nil {
		httputil.WriteNotFoundError(w, "no pending request")
		return
	}

	httputil.WriteSuccess(w, request)
}

// ReviewBody is the body for approving or denying a request
type ReviewBody struct {
	Message string `json:"message,omitempty"`
}

// ApproveRequest handles POST /accounts/{id}/requests/{request_id}/approve
func (h *PermissionHandlers) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.requests.Approve)
}

// DenyRequest handles POST /accounts/{id}/requests/{request_id}/deny
func (h *PermissionHandlers) DenyRequest(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.requests.Deny)
}

func (h *PermissionHandlers) review(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, reviewerID, accountID, requestID int64, message string, md audit.RequestMetadata) (*permissions.PermissionRequest, error)) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	requestID, ok := httputil.ParsePathInt64OrError(w, r, "request_id")
	if !ok {
		return
	}

	var body ReviewBody
	if r.ContentLength > 0 && !httputil.ParseJSONOrError(w, r, &body) {
		return
	}

	request, err := fn(r.Context(), identity.UserID, accountID, requestID, body.Message, audit.MetadataFromRequest(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, request)
}

// CancelRequest handles POST /accounts/{id}/requests/{request_id}/cancel
func (h *PermissionHandlers) CancelRequest(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	requestID, ok := httputil.ParsePathInt64OrError(w, r, "request_id")
	if !ok {
		return
	}

	request, err := h.requests.Cancel(r.Context(), identity.UserID, accountID, requestID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, request)
}

// ListMyRequests handles GET /requests
func (h *PermissionHandlers) ListMyRequests(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var status *permissions.RequestStatus
	if raw := httputil.ParseQueryString(r, "status", ""); raw != "" {
		st := permissions.RequestStatus(raw)
		if !st.Valid() {
			httputil.WriteBadRequest(w, "unknown status: "+raw)
			return
		}
		status = &st
	}

	requests, err := h.requests.ListMine(r.Context(), identity.UserID, status)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, requests)
}

// ListPendingForOwner handles GET /requests/pending
func (h *PermissionHandlers) ListPendingForOwner(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	requests, err := h.requests.ListPendingForOwner(r.Context(), identity.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, requests)
}
