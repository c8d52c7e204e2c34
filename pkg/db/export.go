package db

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const exportTimeLayout = "2006-01-02 15:04:05"

// Export writes the refreshes matching filter in the given format
func (db *DB) Export(w io.Writer, format ExportFormat, filter RefreshFilter) error {
	refreshes, err := db.ListRefreshes(filter)
	if err != nil {
		return err
	}

	switch format {
	case ExportFormatCSV:
		return ExportCSV(w, refreshes)
	case ExportFormatJSON:
		return ExportJSON(w, refreshes)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

// ExportCSV writes refreshes as CSV, one row per refresh
func ExportCSV(w io.Writer, refreshes []*Refresh) error {
	csvWriter := csv.NewWriter(w)

	headers := []string{"Refresh ID", "Session", "Trigger", "Started", "Duration (ms)", "Cards"}
	if err := csvWriter.Write(headers); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	for _, r := range refreshes {
		ids := make([]string, len(r.Shown))
		for i, id := range r.Shown {
			ids[i] = id.String()
		}
		row := []string{
			strconv.FormatInt(r.ID, 10),
			r.SessionID,
			r.Trigger,
			r.StartedAt.Format(exportTimeLayout),
			fmt.Sprintf("%.3f", r.Duration.Seconds()*1000),
			strings.Join(ids, " "),
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// ExportJSON writes refreshes as an indented JSON array
func ExportJSON(w io.Writer, refreshes []*Refresh) error {
	if refreshes == nil {
		refreshes = []*Refresh{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(refreshes); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
