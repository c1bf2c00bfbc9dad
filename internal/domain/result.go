package domain

import (
	"slices"
	"time"
)

// DedupRecord is the per-signal, per-day list of ids already notified.
// It is persisted as JSON and thrown away when Date is not today.
type DedupRecord struct {
	Date        string   `json:"date"` // 2006-01-02 in the watchdog's location
	NotifiedIDs []string `json:"notifiedIds"`
}

const DateLayout = "2006-01-02"

func (r DedupRecord) Has(id string) bool {
	return slices.Contains(r.NotifiedIDs, id)
}

// Preference holds the user's "alerts enabled" flag for one signal.
type Preference struct {
	SignalID      string    `json:"signal_id"`
	AlertsEnabled bool      `json:"alerts_enabled"`
	UpdatedAt     time.Time `json:"updated_at"`
}
