package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/ledgerhouse/checkbook/pkg/auth"
	"github.com/ledgerhouse/checkbook/pkg/httputil"
	"github.com/ledgerhouse/checkbook/pkg/users"
)

// AuthHandlers handles user registration and API token lifecycle
type AuthHandlers struct {
	users  *users.Store
	tokens *auth.TokenManager
}

// NewAuthHandlers creates a new AuthHandlers
func NewAuthHandlers(userStore *users.Store, tokens *auth.TokenManager) *AuthHandlers {
	return &AuthHandlers{
		users:  userStore,
		tokens: tokens,
	}
}

// RegisterRoutes registers authentication routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users", h.Register).Methods("POST")
	router.HandleFunc("/tokens", h.CreateToken).Methods("POST")
	router.HandleFunc("/tokens", h.ListTokens).Methods("GET")
	router.HandleFunc("/tokens/{id}", h.RevokeToken).Methods("DELETE")
}

// RegisterRequest is the body for creating a user
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
}

// RegisterResponse carries the new user and their bootstrap token
type RegisterResponse struct {
	User  *users.User `json:"user"`
	Token string      `json:"token"`
}

// Register handles POST /users. Registration is open and returns a
// bootstrap token; all other endpoints require one.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Username, "username") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}

	user, err := h.users.Create(r.Context(), req.Username, req.Email, req.FullName)
	if err != nil {
		httputil.WriteConflict(w, err.Error())
		return
	}

	_, plaintext, err := h.tokens.CreateToken(r.Context(), user.ID, "bootstrap", nil)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, RegisterResponse{User: user, Token: plaintext})
}

// CreateTokenRequest is the body for issuing a token
type CreateTokenRequest struct {
	Name      string     `json:"name,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CreateTokenResponse carries the stored token and its plaintext
type CreateTokenResponse struct {
	Token     *auth.Token `json:"token"`
	Plaintext string      `json:"plaintext"`
}

// CreateToken handles POST /tokens
func (h *AuthHandlers) CreateToken(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req CreateTokenRequest
	if r.ContentLength > 0 && !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	token, plaintext, err := h.tokens.CreateToken(r.Context(), identity.UserID, req.Name, req.ExpiresAt)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, CreateTokenResponse{Token: token, Plaintext: plaintext})
}

// ListTokens handles GET /tokens
func (h *AuthHandlers) ListTokens(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	tokens, err := h.tokens.ListTokens(r.Context(), identity.UserID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, tokens)
}

// RevokeToken handles DELETE /tokens/{id}
func (h *AuthHandlers) RevokeToken(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	tokenID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.tokens.RevokeToken(r.Context(), identity.UserID, tokenID); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}
