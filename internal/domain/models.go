package domain

import (
	"slices"
	"strings"
	"time"
)

// Connectivity is the value watched by the network watchdog.
type Connectivity string

const (
	Online  Connectivity = "online"
	Offline Connectivity = "offline"
)

// Severity is the value watched by a platform-health watchdog.
type Severity string

const (
	SeverityOperational Severity = "operational"
	SeverityDegraded    Severity = "degraded"
	SeverityOutage      Severity = "outage"
	SeverityUnknown     Severity = "unknown"
)

// ParseSeverity maps the indicator strings used by status pages onto a Severity.
// Anything unrecognised is SeverityUnknown.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "operational", "none", "ok", "up":
		return SeverityOperational
	case "degraded", "degraded_performance", "minor", "partial_outage", "maintenance", "under_maintenance":
		return SeverityDegraded
	case "outage", "major_outage", "major", "critical", "down":
		return SeverityOutage
	default:
		return SeverityUnknown
	}
}

// Bad reports whether s is worth alerting on.
func (s Severity) Bad() bool {
	return s == SeverityDegraded || s == SeverityOutage
}

// ProbeResult is what /network/current returns and what probe.Connectivity produces.
type ProbeResult struct {
	Success       bool    `json:"success"`
	LatencyMS     float64 `json:"latencyMs"`
	PacketLossPct float64 `json:"packetLossPct"`
}

type PlatformStatus struct {
	PlatformID  string   `json:"platformId"`
	Name        string   `json:"name,omitempty"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description,omitempty"`
	PageURL     string   `json:"pageUrl,omitempty"`
}

// DisplayName falls back to the id when the status page sent no name.
func (p PlatformStatus) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.PlatformID
}

type TodoItem struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Completed    bool       `json:"completed"`
	ReminderDate *time.Time `json:"reminderDate"`
}

// Due reports whether the item's reminder has come up and it is still open.
func (t TodoItem) Due(now time.Time) bool {
	if t.Completed || t.ReminderDate == nil {
		return false
	}
	return !t.ReminderDate.After(now)
}

// DueSet is the value watched by the reminder watchdog: the ids of due,
// non-completed items, kept sorted, plus their titles for display.
type DueSet struct {
	IDs    []string
	Titles map[string]string
}

// NewDueSet collects the due items in todos.
func NewDueSet(todos []TodoItem, now time.Time) DueSet {
	ds := DueSet{Titles: make(map[string]string)}
	for _, t := range todos {
		if !t.Due(now) {
			continue
		}
		if _, dup := ds.Titles[t.ID]; dup {
			continue
		}
		ds.IDs = append(ds.IDs, t.ID)
		ds.Titles[t.ID] = t.Title
	}
	slices.Sort(ds.IDs)
	return ds
}

func (d DueSet) Equal(o DueSet) bool {
	return slices.Equal(d.IDs, o.IDs)
}

func (d DueSet) String() string {
	if len(d.IDs) == 0 {
		return "none"
	}
	return strings.Join(d.IDs, ",")
}
