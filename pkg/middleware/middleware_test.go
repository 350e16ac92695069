package middleware

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/ledgerhouse/checkbook/pkg/auth"
)

func newTokenManager(t *testing.T) (*auth.TokenManager, string) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			full_name TEXT,
			created_at TIMESTAMP NOT NULL
		);

		CREATE TABLE auth_tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			name TEXT,
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP,
			last_used_at TIMESTAMP
		);

		INSERT INTO users (username, email, created_at) VALUES ('alice', 'alice@example.com', datetime('now'));
	`)
	if err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	tm := auth.NewTokenManager(db)
	_, plaintext, err := tm.CreateToken(context.Background(), 1, "test", nil)
	if err != nil {
		t.Fatalf("CreateToken failed: %v", err)
	}
	return tm, plaintext
}

func identityEcho() (http.Handler, *auth.Identity) {
	captured := &auth.Identity{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := GetIdentity(r); id != nil {
			*captured = *id
		}
		w.WriteHeader(http.StatusNoContent)
	}), captured
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	tm, plaintext := newTokenManager(t)
	next, captured := identityEcho()
	handler := NewAuthMiddleware(tm, false).Handler(next)

	r := httptest.NewRequest("GET", "/accounts", nil)
	r.Header.Set("Authorization", "Bearer "+plaintext)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if captured.UserID != 1 || captured.Username != "alice" {
		t.Errorf("identity = %+v", captured)
	}
}

func TestAuthMiddlewareRejections(t *testing.T) {
	tm, _ := newTokenManager(t)
	next, _ := identityEcho()
	handler := NewAuthMiddleware(tm, false).Handler(next)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"malformed token", "Bearer nope"},
		{"unknown token", "Bearer cbk_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/accounts", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Errorf("response is not JSON: %v", err)
			}
		})
	}
}

func TestAuthMiddlewareOptional(t *testing.T) {
	tm, _ := newTokenManager(t)
	next, captured := identityEcho()
	handler := NewAuthMiddleware(tm, true).Handler(next)

	// No header passes through unauthenticated.
	r := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if captured.UserID != 0 {
		t.Errorf("unauthenticated request carried identity %+v", captured)
	}

	// A bad token is still rejected even in optional mode.
	r = httptest.NewRequest("GET", "/accounts", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	// Generated when absent.
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if seen == "" {
		t.Error("no request id generated")
	}
	if got := w.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header %q does not match context id %q", got, seen)
	}

	// Client-supplied IDs are honored.
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set(RequestIDHeader, "trace-42")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if seen != "trace-42" {
		t.Errorf("request id = %q, want trace-42", seen)
	}
}

func TestRequestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	handler := RequestLogging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	r := httptest.NewRequest("GET", "/accounts/7", nil)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if line["method"] != "GET" || line["path"] != "/accounts/7" {
		t.Errorf("log line = %v", line)
	}
	if line["status"] != float64(http.StatusTeapot) {
		t.Errorf("status = %v", line["status"])
	}
	if line["bytes"] != float64(len("short and stout")) {
		t.Errorf("bytes = %v", line["bytes"])
	}
}

func TestRequestLoggingErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	handler := RequestLogging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if line["level"] != "error" {
		t.Errorf("level = %v, want error", line["level"])
	}
}
