package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ledgerhouse/checkbook/pkg/observability"
)

// DBRecorder implements audit recording to PostgreSQL.
type DBRecorder struct {
	db *sql.DB
}

// NewDBRecorder creates a new database-backed audit recorder
func NewDBRecorder(db *sql.DB) (*DBRecorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBRecorder{db: db}, nil
}

// EnsureSchema creates the audit_logs table if it doesn't exist
func (r *DBRecorder) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		account_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		action_type VARCHAR(100) NOT NULL,
		details JSONB,
		ip_address VARCHAR(45),
		user_agent TEXT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_account_id ON audit_logs(account_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_action_type ON audit_logs(action_type);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at DESC);
	`

	_, err := r.db.ExecContext(ctx, query)
	return err
}

// Record writes one audit entry. If the detail blob cannot be serialized,
// the row is still written with a null details payload; losing the detail
// is preferable to losing the event.
func (r *DBRecorder) Record(ctx context.Context, entry *Entry) error {
	var detailsJSON []byte
	if entry.Details != nil {
		serialized, err := json.Marshal(entry.Details)
		if err != nil {
			observability.AuditDetailSerializationFailures.Inc()
			detailsJSON = nil
		} else {
			detailsJSON = serialized
		}
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_logs (account_id, user_id, action_type, details, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		entry.AccountID,
		entry.UserID,
		entry.Action,
		detailsJSON,
		nullIfEmpty(entry.IPAddress),
		nullIfEmpty(entry.UserAgent),
		entry.CreatedAt,
	).Scan(&entry.ID)

	if err != nil {
		observability.AuditWriteFailures.Inc()
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	observability.AuditWrites.Inc()
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
