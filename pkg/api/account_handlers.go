package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/ledgerhouse/checkbook/pkg/accounts"
	"github.com/ledgerhouse/checkbook/pkg/audit"
	"github.com/ledgerhouse/checkbook/pkg/httputil"
)

// AccountHandlers handles account and transaction HTTP requests
type AccountHandlers struct {
	service *accounts.Service
}

// NewAccountHandlers creates a new AccountHandlers
func NewAccountHandlers(service *accounts.Service) *AccountHandlers {
	return &AccountHandlers{service: service}
}

// RegisterRoutes registers account routes
func (h *AccountHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	router.HandleFunc("/accounts", h.ListAccounts).Methods("GET")
	router.HandleFunc("/accounts/{id}", h.GetAccount).Methods("GET")
	router.HandleFunc("/accounts/{id}", h.UpdateAccount).Methods("PUT")
	router.HandleFunc("/accounts/{id}", h.DeleteAccount).Methods("DELETE")
	router.HandleFunc("/accounts/{id}/sharing", h.SetSharing).Methods("PUT")

	// Transactions
	router.HandleFunc("/accounts/{id}/transactions", h.AddTransaction).Methods("POST")
	router.HandleFunc("/accounts/{id}/transactions", h.ListTransactions).Methods("GET")
	router.HandleFunc("/accounts/{id}/transactions/{txn_id}", h.UpdateTransaction).Methods("PUT")
	router.HandleFunc("/accounts/{id}/transactions/{txn_id}", h.DeleteTransaction).Methods("DELETE")
}

// CreateAccount handles POST /accounts
func (h *AccountHandlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var input accounts.CreateAccountInput
	if !httputil.ParseJSONOrError(w, r, &input) {
		return
	}
	if !httputil.RequireNonEmpty(w, input.Name, "name") {
		return
	}
	if !httputil.RequireNonEmpty(w, input.AccountType, "account_type") {
		return
	}

	account, err := h.service.CreateAccount(r.Context(), identity.UserID, input)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, account)
}

// ListAccounts handles GET /accounts
func (h *AccountHandlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListAccounts(r.Context(), identity.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, list)
}

// GetAccount handles GET /accounts/{id}
func (h *AccountHandlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	account, err := h.service.GetAccount(r.Context(), identity.UserID, accountID, audit.MetadataFromRequest(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, account)
}

// UpdateAccount handles PUT /accounts/{id}
func (h *AccountHandlers) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var input accounts.UpdateAccountInput
	if !httputil.ParseJSONOrError(w, r, &input) {
		return
	}
	if !httputil.RequireNonEmpty(w, input.Name, "name") {
		return
	}

	account, err := h.service.UpdateAccount(r.Context(), identity.UserID, accountID, input, audit.MetadataFromRequest(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, account)
}

// DeleteAccount handles DELETE /accounts/{id}
func (h *AccountHandlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteAccount(r.Context(), identity.UserID, accountID, audit.MetadataFromRequest(r)); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// SetSharing handles PUT /accounts/{id}/sharing
func (h *AccountHandlers) SetSharing(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var body struct {
		IsShared bool `json:"is_shared"`
	}
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}

	if err := h.service.SetShared(r.Context(), identity.UserID, accountID, body.IsShared, audit.MetadataFromRequest(r)); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]bool{"is_shared": body.IsShared})
}

// AddTransaction handles POST /accounts/{id}/transactions
func (h *AccountHandlers) AddTransaction(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var input accounts.TransactionInput
	if !httputil.ParseJSONOrError(w, r, &input) {
		return
	}
	if !httputil.RequireNonEmpty(w, input.Description, "description") {
		return
	}

	txn, err := h.service.AddTransaction(r.Context(), identity.UserID, accountID, input, audit.MetadataFromRequest(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, txn)
}

// ListTransactions handles GET /accounts/{id}/transactions
func (h *AccountHandlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	txns, err := h.service.ListTransactions(r.Context(), identity.UserID, accountID, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, txns)
}

// UpdateTransaction handles PUT /accounts/{id}/transactions/{txn_id}
func (h *AccountHandlers) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	txnID, ok := httputil.ParsePathInt64OrError(w, r, "txn_id")
	if !ok {
		return
	}

	var input accounts.TransactionInput
	if !httputil.ParseJSONOrError(w, r, &input) {
		return
	}

	txn, err := h.service.UpdateTransaction(r.Context(), identity.UserID, accountID, txnID, input, audit.MetadataFromRequest(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, txn)
}

// DeleteTransaction handles DELETE /accounts/{id}/transactions/{txn_id}
func (h *AccountHandlers) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	txnID, ok := httputil.ParsePathInt64OrError(w, r, "txn_id")
	if !ok {
		return
	}

	if err := h.service.DeleteTransaction(r.Context(), identity.UserID, accountID, txnID, audit.MetadataFromRequest(r)); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}
