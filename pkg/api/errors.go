package api

import (
	"errors"
	"net/http"

	"github.com/ledgerhouse/checkbook/pkg/auth"
	"github.com/ledgerhouse/checkbook/pkg/httputil"
	"github.com/ledgerhouse/checkbook/pkg/permissions"
)

// writeDomainError maps the permission subsystem's typed errors onto HTTP
// statuses: not-found 404, access-denied 403, invariant violations 409,
// anything else 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case permissions.IsNotFound(err):
		httputil.WriteNotFoundError(w, err.Error())
	case permissions.IsAccessDenied(err):
		httputil.WriteForbidden(w, err.Error())
	case permissions.IsInvariantViolation(err):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		httputil.WriteUnauthorized(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}

// requireIdentity extracts the authenticated identity or writes a 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}
	return identity, true
}
