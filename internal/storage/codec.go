// Package storage holds the row encoding shared by the ledger backends.
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/progression/internal/domain"
)

// DateLayout is the calendar-day format used for last_study_date columns
// and history entries.
const DateLayout = time.DateOnly

// xpEntryRow is the JSON shape of one xp_history element
type xpEntryRow struct {
	Date      string    `json:"date"`
	Delta     int       `json:"xp_delta"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
	AttemptID string    `json:"attempt_id,omitempty"`
}

// EncodeXPHistory serializes history for a JSON column
func EncodeXPHistory(entries []domain.XPEntry) ([]byte, error) {
	rows := make([]xpEntryRow, len(entries))
	for i, e := range entries {
		rows[i] = xpEntryRow{
			Date:      e.Date.Format(DateLayout),
			Delta:     e.Delta,
			Reason:    e.Reason,
			Timestamp: e.Timestamp.UTC(),
			AttemptID: e.AttemptID,
		}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("marshal xp_history: %w", err)
	}
	return data, nil
}

// DecodeXPHistory parses a JSON xp_history column. Empty input is an empty history.
func DecodeXPHistory(data []byte) ([]domain.XPEntry, error) {
	if len(data) == 0 {
		return []domain.XPEntry{}, nil
	}
	var rows []xpEntryRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal xp_history: %w", err)
	}
	entries := make([]domain.XPEntry, len(rows))
	for i, r := range rows {
		date, err := ParseDate(r.Date)
		if err != nil {
			return nil, err
		}
		entries[i] = domain.XPEntry{
			Date:      date,
			Delta:     r.Delta,
			Reason:    r.Reason,
			Timestamp: r.Timestamp,
			AttemptID: r.AttemptID,
		}
	}
	return entries, nil
}

// ParseDate parses a calendar day column value
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders a calendar day column value, or nil for an absent date.
func FormatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return domain.DateOf(*t).Format(DateLayout)
}

// ProfileColumn maps an identity's profile to its column value: NULL when absent.
func ProfileColumn(id domain.Identity) any {
	if !id.HasProfile() {
		return nil
	}
	return id.ProfileID
}

// ProfileFromColumn maps a nullable profile column back to an identity field.
func ProfileFromColumn(p *string) string {
	if p == nil {
		return ""
	}
	return domain.NormalizeProfileID(*p)
}
