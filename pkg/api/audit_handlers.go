package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/ledgerhouse/checkbook/pkg/audit"
	"github.com/ledgerhouse/checkbook/pkg/httputil"
	"github.com/ledgerhouse/checkbook/pkg/permissions"
)

// AuditHandlers handles audit history HTTP requests. History is
// owner-only: grantees act on accounts, owners see who acted.
type AuditHandlers struct {
	store     *audit.Store
	validator *permissions.Validator
}

// NewAuditHandlers creates a new AuditHandlers
func NewAuditHandlers(store *audit.Store, validator *permissions.Validator) *AuditHandlers {
	return &AuditHandlers{
		store:     store,
		validator: validator,
	}
}

// RegisterRoutes registers audit routes
func (h *AuditHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/accounts/{id}/audit", h.Search).Methods("GET")
	router.HandleFunc("/accounts/{id}/audit/export", h.Export).Methods("GET")
}

// Search handles GET /accounts/{id}/audit
func (h *AuditHandlers) Search(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	entries, err := h.store.Search(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, entries)
}

// Export handles GET /accounts/{id}/audit/export?format=csv
func (h *AuditHandlers) Export(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	format := audit.ExportFormat(httputil.ParseQueryString(r, "format", string(audit.ExportFormatJSON)))
	switch format {
	case audit.ExportFormatJSON, audit.ExportFormatCSV, audit.ExportFormatNDJSON:
	default:
		httputil.WriteBadRequest(w, "unknown export format: "+string(format))
		return
	}

	data, err := h.store.Export(r.Context(), filter, format)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	contentType := "application/json"
	if format == audit.ExportFormatCSV {
		contentType = "text/csv"
	} else if format == audit.ExportFormatNDJSON {
		contentType = "application/x-ndjson"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// parseFilter authenticates, checks account ownership, and builds the
// search filter from query parameters.
func (h *AuditHandlers) parseFilter(w http.ResponseWriter, r *http.Request) (audit.Filter, bool) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return audit.Filter{}, false
	}
	accountID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return audit.Filter{}, false
	}

	if err := h.validator.RequireOwner(r.Context(), identity.UserID, accountID); err != nil {
		writeDomainError(w, err)
		return audit.Filter{}, false
	}

	filter := audit.Filter{AccountID: accountID}

	if raw := httputil.ParseQueryString(r, "action", ""); raw != "" {
		action := audit.ActionType(raw)
		if !action.Valid() {
			httputil.WriteBadRequest(w, "unknown action type: "+raw)
			return audit.Filter{}, false
		}
		filter.Action = &action
	}
	if raw := httputil.ParseQueryString(r, "user_id", ""); raw != "" {
		userID, ok := parseInt64Query(w, raw, "user_id")
		if !ok {
			return audit.Filter{}, false
		}
		filter.UserID = &userID
	}
	if raw := httputil.ParseQueryString(r, "from", ""); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid from timestamp: "+raw)
			return audit.Filter{}, false
		}
		filter.From = &from
	}
	if raw := httputil.ParseQueryString(r, "to", ""); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid to timestamp: "+raw)
			return audit.Filter{}, false
		}
		filter.To = &to
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return audit.Filter{}, false
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return audit.Filter{}, false
	}
	filter.Limit = limit
	filter.Offset = offset

	return filter, true
}

func parseInt64Query(w http.ResponseWriter, raw, name string) (int64, bool) {
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid integer for "+name+": "+raw)
		return 0, false
	}
	return val, true
}
