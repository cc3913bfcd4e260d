package audit

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// WriteCSV serialises entries with a header row.
func WriteCSV(w io.Writer, entries []Entry) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writer.Write([]string{
			e.ID.String(),
			e.Timestamp.UTC().Format(time.RFC3339),
			formatID(e.TenantID),
			formatID(e.UserID),
			e.EntityType,
			e.EntityID,
			string(e.Action),
			string(e.OldValue),
			string(e.NewValue),
			e.IPAddress,
			e.UserAgent,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

var csvHeader = []string{"id", "timestamp", "tenant_id", "user_id", "entity_type", "entity_id", "action", "old_value", "new_value", "ip_address", "user_agent"}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
