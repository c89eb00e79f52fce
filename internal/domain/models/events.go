package models

import "time"

// SnapshotLoaded is emitted by the ingestion process after the warehouse
// tables were reloaded. Field names follow the ingestion team's JSON.
type SnapshotLoaded struct {
	Source   string    `json:"source"`
	LoadedAt time.Time `json:"loaded_at"`
	Loans    int       `json:"loans"`
}

// ReportStatus is the outcome of one report inside a generation run.
type ReportStatus struct {
	Name        string    `json:"name"`
	Rows        int       `json:"rows"`
	Excluded    int       `json:"excluded"`
	GeneratedAt time.Time `json:"generated_at"`
	DurationMS  int64     `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`
}

// RunSummary describes one GenerateAll pass.
type RunSummary struct {
	RunID     string         `json:"run_id"`
	Trigger   string         `json:"trigger"`
	StartedAt time.Time      `json:"started_at"`
	Reports   []ReportStatus `json:"reports"`
}

// Failed counts reports that did not produce a result set.
func (s RunSummary) Failed() int {
	n := 0
	for _, r := range s.Reports {
		if r.Error != "" {
			n++
		}
	}
	return n
}

// ReportNotice is pushed to live dashboards when a report was regenerated.
type ReportNotice struct {
	RunID       string    `json:"run_id"`
	Report      string    `json:"report"`
	Rows        int       `json:"rows"`
	GeneratedAt time.Time `json:"generated_at"`
}

// CatalogEntry lists a report available to consumers.
type CatalogEntry struct {
	Name          string     `json:"name"`
	Title         string     `json:"title"`
	LastGenerated *time.Time `json:"last_generated,omitempty"`
	Error         string     `json:"error,omitempty"`
}
