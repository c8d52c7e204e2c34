package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mscrnt/homecards/pkg/card"
)

// Refresh is one recorded monitoring pass
type Refresh struct {
	ID        int64         `json:"id"`
	SessionID string        `json:"session_id"`
	Trigger   string        `json:"trigger"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Shown     IDList        `json:"shown"`
}

// IDList is a list of card ids stored as a JSON array
type IDList []card.ID

// Value implements the driver.Valuer interface
func (l IDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]card.ID(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the sql.Scanner interface
func (l *IDList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan type %T into IDList", value)
	}

	var ids []card.ID
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	if len(ids) == 0 {
		ids = nil
	}
	*l = ids
	return nil
}

// IDsOf collects the ids of cards in order
func IDsOf(cards []card.Card) IDList {
	if len(cards) == 0 {
		return nil
	}
	ids := make(IDList, len(cards))
	for i, c := range cards {
		ids[i] = c.ID()
	}
	return ids
}

// RefreshFilter represents filters for querying refreshes
type RefreshFilter struct {
	SessionID string
	Trigger   string
	Since     *time.Time
	Limit     int
	Offset    int
}

// ExportFormat represents the format for exporting data
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatJSON ExportFormat = "json"
)

// FilterDismissed drops dismissed cards and keeps the order of the rest
func FilterDismissed(cards []card.Card, dismissed map[card.ID]time.Time) []card.Card {
	if len(dismissed) == 0 {
		return cards
	}
	out := make([]card.Card, 0, len(cards))
	for _, c := range cards {
		if _, ok := dismissed[c.ID()]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}
