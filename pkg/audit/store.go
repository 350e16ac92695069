package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store is the read and maintenance side of the audit log.
type Store struct {
	db *sql.DB
}

// NewStore creates a new audit store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Search returns audit entries for one account, newest first. Optional
// filter dimensions (action type, actor, date range) combine freely; an
// absent dimension matches all.
func (s *Store) Search(ctx context.Context, filter Filter) ([]*Entry, error) {
	if filter.AccountID == 0 {
		return nil, fmt.Errorf("account id is required")
	}

	query := `
		SELECT id, account_id, user_id, action_type, details, ip_address, user_agent, created_at
		FROM audit_logs
		WHERE account_id = $1
	`

	args := []interface{}{filter.AccountID}
	argCount := 2

	if filter.Action != nil {
		query += fmt.Sprintf(" AND action_type = $%d", argCount)
		args = append(args, *filter.Action)
		argCount++
	}
	if filter.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argCount)
		args = append(args, *filter.UserID)
		argCount++
	}
	if filter.From != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filter.From)
		argCount++
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, *filter.To)
		argCount++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
		argCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		var entry Entry
		var detailsJSON []byte
		var ipAddress, userAgent sql.NullString

		if err := rows.Scan(
			&entry.ID,
			&entry.AccountID,
			&entry.UserID,
			&entry.Action,
			&detailsJSON,
			&ipAddress,
			&userAgent,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit details: %w", err)
			}
		}
		entry.IPAddress = ipAddress.String
		entry.UserAgent = userAgent.String

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return entries, nil
}

// SearchBefore returns all entries older than the cutoff, oldest first.
// Used by the retention archiver.
func (s *Store) SearchBefore(ctx context.Context, cutoff time.Time) ([]*Entry, error) {
	query := `
		SELECT id, account_id, user_id, action_type, details, ip_address, user_agent, created_at
		FROM audit_logs
		WHERE created_at < $1
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query expiring audit logs: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		var entry Entry
		var detailsJSON []byte
		var ipAddress, userAgent sql.NullString

		if err := rows.Scan(
			&entry.ID,
			&entry.AccountID,
			&entry.UserID,
			&entry.Action,
			&detailsJSON,
			&ipAddress,
			&userAgent,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit details: %w", err)
			}
		}
		entry.IPAddress = ipAddress.String
		entry.UserAgent = userAgent.String

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// Cleanup deletes audit entries older than the cutoff date. Idempotent:
// running twice over overlapping ranges deletes nothing extra.
func (s *Store) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM audit_logs WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up audit logs: %w", err)
	}

	return result.RowsAffected()
}

// Export serializes the entries matching the filter in the given format.
func (s *Store) Export(ctx context.Context, filter Filter, format ExportFormat) ([]byte, error) {
	entries, err := s.Search(ctx, filter)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportFormatCSV:
		return exportCSV(entries)
	case ExportFormatNDJSON:
		return exportNDJSON(entries)
	default:
		return exportJSON(entries)
	}
}
