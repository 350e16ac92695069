package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

func exportJSON(entries []*Entry) ([]byte, error) {
	return json.MarshalIndent(entries, "", "  ")
}

func exportNDJSON(entries []*Entry) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			return nil, fmt.Errorf("failed to encode audit entry %d: %w", entry.ID, err)
		}
	}
	return buf.Bytes(), nil
}

func exportCSV(entries []*Entry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{"id", "account_id", "user_id", "action", "details", "ip_address", "user_agent", "created_at"}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, entry := range entries {
		details := ""
		if entry.Details != nil {
			serialized, err := json.Marshal(entry.Details)
			if err == nil {
				details = string(serialized)
			}
		}

		record := []string{
			strconv.FormatInt(entry.ID, 10),
			strconv.FormatInt(entry.AccountID, 10),
			strconv.FormatInt(entry.UserID, 10),
			string(entry.Action),
			details,
			entry.IPAddress,
			entry.UserAgent,
			entry.CreatedAt.Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}

	return buf.Bytes(), nil
}
