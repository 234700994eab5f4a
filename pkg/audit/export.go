package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Format selects the serialization used by Export
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

// ParseFormat maps a query parameter to a Format, defaulting to JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatJSONL:
		return FormatJSONL, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported audit export format %q", s)
	}
}

// ContentType returns the MIME type for the format
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatJSONL:
		return "application/x-ndjson"
	default:
		return "application/json"
	}
}

// Export writes events in the requested format
func Export(w io.Writer, events []*Event, format Format) error {
	switch format {
	case FormatJSONL:
		enc := json.NewEncoder(w)
		for _, e := range events {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	case FormatCSV:
		return exportCSV(w, events)
	default:
		return json.NewEncoder(w).Encode(map[string]any{"events": events, "count": len(events)})
	}
}

func exportCSV(w io.Writer, events []*Event) (retErr error) {
	cw := csv.NewWriter(w)
	defer func() {
		cw.Flush()
		if err := cw.Error(); err != nil && retErr == nil {
			retErr = fmt.Errorf("CSV writer flush error: %w", err)
		}
	}()

	header := []string{"ID", "Timestamp", "Username", "Action", "ResourceType", "ResourceID", "Outcome", "Status", "ErrorMessage"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, e := range events {
		record := []string{
			e.ID,
			e.Timestamp.Format(time.RFC3339),
			e.Username,
			string(e.Action),
			string(e.ResourceType),
			e.ResourceID,
			e.Outcome,
			string(e.Status),
			e.ErrorMessage,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	return nil
}
