package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrInvalidToken indicates the presented token is unknown, malformed,
// expired, or revoked.
var ErrInvalidToken = errors.New("invalid or expired token")

const (
	// identityCacheSize bounds the token cache
	identityCacheSize = 4096
	// identityCacheTTL bounds how long a revoked token can still
	// authenticate from cache
	identityCacheTTL = 30 * time.Second
)

// TokenManager issues and validates API tokens backed by the auth_tokens
// table. Resolved identities are cached briefly so a hot client does not
// hit the database on every request. Permission levels are never cached
// here; only the token-to-user mapping is.
type TokenManager struct {
	db        *sql.DB
	generator *TokenGenerator
	cache     *expirable.LRU[string, Identity]
}

// NewTokenManager creates a token manager.
func NewTokenManager(db *sql.DB) *TokenManager {
	return &TokenManager{
		db:        db,
		generator: NewTokenGenerator(),
		cache:     expirable.NewLRU[string, Identity](identityCacheSize, nil, identityCacheTTL),
	}
}

// CreateToken issues a new token for a user and returns the stored record
// plus the plaintext token, which is never recoverable afterwards.
func (tm *TokenManager) CreateToken(ctx context.Context, userID int64, name string, expiresAt *time.Time) (*Token, string, error) {
	plaintext, tokenHash, err := tm.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	token := &Token{
		UserID:    userID,
		TokenHash: tokenHash,
		Name:      name,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}

	err = tm.db.QueryRowContext(ctx, `
		INSERT INTO auth_tokens (user_id, token_hash, name, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, token.UserID, token.TokenHash, nullIfEmpty(token.Name), token.CreatedAt, token.ExpiresAt).Scan(&token.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}

	return token, plaintext, nil
}

// Authenticate resolves a plaintext bearer token to an identity.
func (tm *TokenManager) Authenticate(ctx context.Context, plaintext string) (*Identity, error) {
	if err := tm.generator.ValidateTokenFormat(plaintext); err != nil {
		return nil, ErrInvalidToken
	}

	tokenHash := tm.generator.HashToken(plaintext)
	if id, ok := tm.cache.Get(tokenHash); ok {
		return &id, nil
	}

	var id Identity
	var expiresAt sql.NullTime
	err := tm.db.QueryRowContext(ctx, `
		SELECT t.id, t.user_id, u.username, t.expires_at
		FROM auth_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = $1
	`, tokenHash).Scan(&id.TokenID, &id.UserID, &id.Username, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	if expiresAt.Valid && expiresAt.Time.Before(time.Now().UTC()) {
		return nil, ErrInvalidToken
	}

	// Best effort; authentication already succeeded.
	_, _ = tm.db.ExecContext(ctx,
		`UPDATE auth_tokens SET last_used_at = $1 WHERE id = $2`,
		time.Now().UTC(), id.TokenID)

	tm.cache.Add(tokenHash, id)
	return &id, nil
}

// RevokeToken deletes a token owned by the user. The cached identity is
// dropped so revocation takes effect immediately for this process.
func (tm *TokenManager) RevokeToken(ctx context.Context, userID, tokenID int64) error {
	var tokenHash string
	err := tm.db.QueryRowContext(ctx,
		`SELECT token_hash FROM auth_tokens WHERE id = $1 AND user_id = $2`,
		tokenID, userID).Scan(&tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidToken
		}
		return fmt.Errorf("failed to look up token %d: %w", tokenID, err)
	}

	if _, err := tm.db.ExecContext(ctx,
		`DELETE FROM auth_tokens WHERE id = $1 AND user_id = $2`,
		tokenID, userID); err != nil {
		return fmt.Errorf("failed to revoke token %d: %w", tokenID, err)
	}

	tm.cache.Remove(tokenHash)
	return nil
}

// ListTokens returns all tokens issued to a user, newest first.
func (tm *TokenManager) ListTokens(ctx context.Context, userID int64) ([]*Token, error) {
	rows, err := tm.db.QueryContext(ctx, `
		SELECT id, user_id, name, created_at, expires_at, last_used_at
		FROM auth_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*Token
	for rows.Next() {
		var t Token
		var name sql.NullString
		var expiresAt, lastUsedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.UserID, &name, &t.CreatedAt, &expiresAt, &lastUsedAt); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		t.Name = name.String
		if expiresAt.Valid {
			t.ExpiresAt = &expiresAt.Time
		}
		if lastUsedAt.Valid {
			t.LastUsedAt = &lastUsedAt.Time
		}
		tokens = append(tokens, &t)
	}

	return tokens, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
