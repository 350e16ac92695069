package audit

import "time"

// ActionType categorizes an audited action on an account.
type ActionType string

const (
	// Permission lifecycle
	ActionPermissionGranted         ActionType = "permission.granted"
	ActionPermissionModified        ActionType = "permission.modified"
	ActionPermissionRevoked         ActionType = "permission.revoked"
	ActionPermissionRequested       ActionType = "permission.requested"
	ActionPermissionRequestApproved ActionType = "permission.request_approved"
	ActionPermissionRequestDenied   ActionType = "permission.request_denied"

	// Account data
	ActionAccountViewed   ActionType = "account.viewed"
	ActionAccountModified ActionType = "account.modified"

	// Transaction data
	ActionTransactionAdded    ActionType = "transaction.added"
	ActionTransactionModified ActionType = "transaction.modified"
	ActionTransactionDeleted  ActionType = "transaction.deleted"
)

// Valid reports whether the value is a known action type.
func (a ActionType) Valid() bool {
	switch a {
	case ActionPermissionGranted, ActionPermissionModified, ActionPermissionRevoked,
		ActionPermissionRequested, ActionPermissionRequestApproved, ActionPermissionRequestDenied,
		ActionAccountViewed, ActionAccountModified,
		ActionTransactionAdded, ActionTransactionModified, ActionTransactionDeleted:
		return true
	}
	return false
}

// Entry is one immutable audit record. Rows are append-only; nothing
// updates or deletes them except bulk retention cleanup by cutoff date.
type Entry struct {
	ID        int64                  `json:"id"`
	AccountID int64                  `json:"account_id"`
	UserID    int64                  `json:"user_id"`
	Action    ActionType             `json:"action"`
	Details   map[string]interface{} `json:"details,omitempty"`
	IPAddress string                 `json:"ip_address,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Filter narrows an audit history query. AccountID is required; every
// other dimension is optional and absent means "match all".
type Filter struct {
	AccountID int64
	Action    *ActionType
	UserID    *int64
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// ExportFormat selects the serialization for audit exports.
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson"
)

// RetentionPolicy defines how long audit entries are kept and whether they
// are archived before deletion.
type RetentionPolicy struct {
	RetentionDays int

	// ArchiveEnabled exports expiring entries to object storage before the
	// delete runs.
	ArchiveEnabled bool
	ArchiveBucket  string
	ArchivePrefix  string
}

// DefaultRetentionPolicy keeps 90 days of audit history.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		RetentionDays: 90,
	}
}
