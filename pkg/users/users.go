package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound indicates no user matched the lookup.
var ErrNotFound = errors.New("user not found")

// User represents a registered user of the checkbook service
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store provides user directory lookups backed by the users table
type Store struct {
	db *sql.DB
}

// NewStore creates a new user store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new user. Usernames and emails are unique at the
// database level.
func (s *Store) Create(ctx context.Context, username, email, fullName string) (*User, error) {
	u := &User{
		Username:  strings.TrimSpace(username),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		FullName:  strings.TrimSpace(fullName),
		CreatedAt: time.Now().UTC(),
	}
	if u.Username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if u.Email == "" {
		return nil, fmt.Errorf("email is required")
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, full_name, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, u.Username, u.Email, nullIfEmpty(u.FullName), u.CreatedAt).Scan(&u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", u.Username, err)
	}

	return u, nil
}

// GetByID retrieves a user by ID
func (s *Store) GetByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, full_name, created_at
		FROM users
		WHERE id = $1
	`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return u, nil
}

// Lookup resolves a user by username or email address. The identifier
// matches the username exactly or the email case-insensitively.
func (s *Store) Lookup(ctx context.Context, identifier string) (*User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrNotFound
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, full_name, created_at
		FROM users
		WHERE username = $1 OR email = $2
	`, identifier, strings.ToLower(identifier))

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up user %q: %w", identifier, err)
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var fullName sql.NullString
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &fullName, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.FullName = fullName.String
	return &u, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
