package permissions

import "testing"

func TestPermissionTypeRank(t *testing.T) {
	tests := []struct {
		permission PermissionType
		rank       int
	}{
		{PermissionViewOnly, 1},
		{PermissionTransactionOnly, 2},
		{PermissionFullAccess, 3},
		{PermissionType("ADMIN"), 0},
		{PermissionType(""), 0},
	}

	for _, tt := range tests {
		if got := tt.permission.Rank(); got != tt.rank {
			t.Errorf("Rank(%q) = %d, want %d", tt.permission, got, tt.rank)
		}
	}
}

func TestPermissionTypeIncludes(t *testing.T) {
	tests := []struct {
		name     string
		held     PermissionType
		required PermissionType
		want     bool
	}{
		{"full access includes view", PermissionFullAccess, PermissionViewOnly, true},
		{"full access includes transaction", PermissionFullAccess, PermissionTransactionOnly, true},
		{"full access includes itself", PermissionFullAccess, PermissionFullAccess, true},
		{"transaction includes view", PermissionTransactionOnly, PermissionViewOnly, true},
		{"transaction includes itself", PermissionTransactionOnly, PermissionTransactionOnly, true},
		{"transaction does not include full", PermissionTransactionOnly, PermissionFullAccess, false},
		{"view includes itself", PermissionViewOnly, PermissionViewOnly, true},
		{"view does not include transaction", PermissionViewOnly, PermissionTransactionOnly, false},
		{"view does not include full", PermissionViewOnly, PermissionFullAccess, false},
		{"nothing includes an unknown level", PermissionFullAccess, PermissionType("ADMIN"), false},
		{"unknown level includes nothing", PermissionType("ADMIN"), PermissionViewOnly, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.held.Includes(tt.required); got != tt.want {
				t.Errorf("%q.Includes(%q) = %v, want %v", tt.held, tt.required, got, tt.want)
			}
		})
	}
}

func TestParsePermissionType(t *testing.T) {
	for _, valid := range []string{"VIEW_ONLY", "TRANSACTION_ONLY", "FULL_ACCESS"} {
		p, err := ParsePermissionType(valid)
		if err != nil {
			t.Errorf("ParsePermissionType(%q) returned error: %v", valid, err)
		}
		if string(p) != valid {
			t.Errorf("ParsePermissionType(%q) = %q", valid, p)
		}
	}

	for _, invalid := range []string{"", "view_only", "ADMIN", "FULL"} {
		if _, err := ParsePermissionType(invalid); err == nil {
			t.Errorf("ParsePermissionType(%q) should have failed", invalid)
		}
	}
}

func TestRequestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() {
		t.Error("PENDING must not be terminal")
	}
	for _, s := range []RequestStatus{StatusApproved, StatusDenied, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}

func TestRequestStatusValid(t *testing.T) {
	for _, s := range []RequestStatus{StatusPending, StatusApproved, StatusDenied, StatusCancelled} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if RequestStatus("EXPIRED").Valid() {
		t.Error("EXPIRED should not be a valid status")
	}
}
