package audit

import (
	"context"
	"net/http"
	"strings"
)

// Recorder is the write side of the audit log.
//
// Recording is best-effort by contract: a failure to record must never
// cause the parent data mutation to fail or roll back. Callers log the
// returned error and move on.
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
}

// RequestMetadata carries the request context an audit entry captures. It
// is passed explicitly into the recording call rather than read from any
// ambient request state, so the writer is testable without a framework
// request in flight. The zero value is valid for actions with no request
// context (scheduled jobs).
type RequestMetadata struct {
	IPAddress string
	UserAgent string
}

// ipHeaderChain is the proxy header precedence used to resolve the client
// IP behind load balancers. Order matters and must not change.
var ipHeaderChain = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"Proxy-Client-IP",
	"WL-Proxy-Client-IP",
}

// MetadataFromRequest extracts client IP and user agent from an HTTP
// request. The first populated header in the precedence chain wins; when a
// header holds a comma-separated proxy chain, the first entry is the
// client. Falls back to the socket remote address.
func MetadataFromRequest(r *http.Request) RequestMetadata {
	if r == nil {
		return RequestMetadata{}
	}

	md := RequestMetadata{UserAgent: r.UserAgent()}
	for _, header := range ipHeaderChain {
		value := r.Header.Get(header)
		if value == "" || strings.EqualFold(value, "unknown") {
			continue
		}
		if idx := strings.Index(value, ","); idx >= 0 {
			value = value[:idx]
		}
		md.IPAddress = strings.TrimSpace(value)
		return md
	}

	md.IPAddress = r.RemoteAddr
	return md
}

// NewEntry builds an audit entry for the given action.
func NewEntry(accountID, userID int64, action ActionType, details map[string]interface{}, md RequestMetadata) *Entry {
	return &Entry{
		AccountID: accountID,
		UserID:    userID,
		Action:    action,
		Details:   details,
		IPAddress: md.IPAddress,
		UserAgent: md.UserAgent,
	}
}

// NopRecorder discards all entries. Used where audit output is not wired,
// e.g. unit tests of caller services.
type NopRecorder struct{}

func (NopRecorder) Record(ctx context.Context, entry *Entry) error {
	return nil
}
