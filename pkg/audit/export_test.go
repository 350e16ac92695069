package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func exportFixture() []*Entry {
	created := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	return []*Entry{
		{
			ID:        1,
			AccountID: 12,
			UserID:    34,
			Action:    ActionPermissionGranted,
			Details:   map[string]interface{}{"permission": "VIEW_ONLY"},
			IPAddress: "203.0.113.7",
			UserAgent: "checkbook-cli",
			CreatedAt: created,
		},
		{
			ID:        2,
			AccountID: 12,
			UserID:    34,
			Action:    ActionAccountViewed,
			CreatedAt: created.Add(time.Minute),
		},
	}
}

func TestExportJSON(t *testing.T) {
	data, err := exportJSON(exportFixture())
	if err != nil {
		t.Fatalf("exportJSON failed: %v", err)
	}

	var decoded []*Entry
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(decoded))
	}
	if decoded[0].Action != ActionPermissionGranted {
		t.Errorf("first action = %s", decoded[0].Action)
	}
}

func TestExportNDJSON(t *testing.T) {
	data, err := exportNDJSON(exportFixture())
	if err != nil {
		t.Fatalf("exportNDJSON failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	for i, line := range lines {
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Errorf("line %d is not valid JSON: %v", i, err)
		}
	}
}

func TestExportCSV(t *testing.T) {
	data, err := exportCSV(exportFixture())
	if err != nil {
		t.Fatalf("exportCSV failed: %v", err)
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("export is not valid CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 records, got %d rows", len(records))
	}
	if records[0][0] != "id" || records[0][3] != "action" {
		t.Errorf("unexpected header: %v", records[0])
	}
	if records[1][3] != "permission.granted" {
		t.Errorf("first record action = %q", records[1][3])
	}
	if records[1][4] != `{"permission":"VIEW_ONLY"}` {
		t.Errorf("details column = %q", records[1][4])
	}
	// Entries without details leave the column empty.
	if records[2][4] != "" {
		t.Errorf("empty details column = %q", records[2][4])
	}
	if records[2][7] != "2026-02-01T12:01:00Z" {
		t.Errorf("created_at column = %q", records[2][7])
	}
}

func TestExportEmpty(t *testing.T) {
	data, err := exportNDJSON(nil)
	if err != nil {
		t.Fatalf("exportNDJSON failed: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("empty export produced %q", data)
	}
}
