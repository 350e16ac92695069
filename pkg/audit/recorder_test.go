package audit

import (
	"context"
	"net/http/httptest"
	"testing"
)

func TestMetadataFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		wantIP     string
	}{
		{
			name:    "x-forwarded-for wins",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7", "X-Real-IP": "198.51.100.2"},
			wantIP:  "203.0.113.7",
		},
		{
			name:    "first hop of a proxy chain",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1, 10.0.0.2"},
			wantIP:  "203.0.113.7",
		},
		{
			name:    "x-real-ip when forwarded absent",
			headers: map[string]string{"X-Real-IP": "198.51.100.2"},
			wantIP:  "198.51.100.2",
		},
		{
			name:    "proxy-client-ip third in line",
			headers: map[string]string{"Proxy-Client-IP": "192.0.2.9"},
			wantIP:  "192.0.2.9",
		},
		{
			name:    "wl-proxy-client-ip fourth in line",
			headers: map[string]string{"WL-Proxy-Client-IP": "192.0.2.10"},
			wantIP:  "192.0.2.10",
		},
		{
			name:       "unknown header value is skipped",
			headers:    map[string]string{"X-Forwarded-For": "unknown", "X-Real-IP": "198.51.100.2"},
			wantIP:     "198.51.100.2",
		},
		{
			name:       "case-insensitive unknown",
			headers:    map[string]string{"X-Forwarded-For": "UNKNOWN"},
			remoteAddr: "192.0.2.1:54321",
			wantIP:     "192.0.2.1:54321",
		},
		{
			name:       "remote addr fallback",
			headers:    nil,
			remoteAddr: "192.0.2.1:54321",
			wantIP:     "192.0.2.1:54321",
		},
		{
			name:    "surrounding whitespace trimmed",
			headers: map[string]string{"X-Forwarded-For": "  203.0.113.7 , 10.0.0.1"},
			wantIP:  "203.0.113.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/accounts/1", nil)
			r.Header.Set("User-Agent", "checkbook-test/1.0")
			if tt.remoteAddr != "" {
				r.RemoteAddr = tt.remoteAddr
			}
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			md := MetadataFromRequest(r)
			if md.IPAddress != tt.wantIP {
				t.Errorf("ip = %q, want %q", md.IPAddress, tt.wantIP)
			}
			if md.UserAgent != "checkbook-test/1.0" {
				t.Errorf("user agent = %q", md.UserAgent)
			}
		})
	}
}

func TestMetadataFromNilRequest(t *testing.T) {
	md := MetadataFromRequest(nil)
	if md.IPAddress != "" || md.UserAgent != "" {
		t.Errorf("nil request should yield zero metadata, got %+v", md)
	}
}

func TestNewEntry(t *testing.T) {
	md := RequestMetadata{IPAddress: "203.0.113.7", UserAgent: "test"}
	entry := NewEntry(12, 34, ActionPermissionGranted, map[string]interface{}{"grantee_id": int64(56)}, md)

	if entry.AccountID != 12 || entry.UserID != 34 {
		t.Errorf("entry attribution = %+v", entry)
	}
	if entry.Action != ActionPermissionGranted {
		t.Errorf("action = %s", entry.Action)
	}
	if entry.IPAddress != "203.0.113.7" || entry.UserAgent != "test" {
		t.Errorf("request metadata not carried: %+v", entry)
	}
	if entry.Details["grantee_id"] != int64(56) {
		t.Errorf("details = %v", entry.Details)
	}
}

func TestActionTypeValid(t *testing.T) {
	known := []ActionType{
		ActionPermissionGranted, ActionPermissionModified, ActionPermissionRevoked,
		ActionPermissionRequested, ActionPermissionRequestApproved, ActionPermissionRequestDenied,
		ActionAccountViewed, ActionAccountModified,
		ActionTransactionAdded, ActionTransactionModified, ActionTransactionDeleted,
	}
	for _, a := range known {
		if !a.Valid() {
			t.Errorf("%s should be valid", a)
		}
	}
	if ActionType("permission.escalated").Valid() {
		t.Error("unknown action should not be valid")
	}
}

func TestNopRecorder(t *testing.T) {
	if err := (NopRecorder{}).Record(context.Background(), &Entry{}); err != nil {
		t.Errorf("NopRecorder returned %v", err)
	}
}
