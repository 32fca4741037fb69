package model

import "time"

// Importance classifies how market-moving an economic indicator is.
type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
)

// EconomicEvent is an indicator tracked by the API ("US CPI", "UK GDP").
// Rows are produced by the ingestion collaborators; the core only reads them.
type EconomicEvent struct {
	ID         int64
	Name       string
	Slug       string
	Category   string
	Country    string
	Importance Importance
}

// Release is a single scheduled data point for an event. Actual is nil until
// the value is published.
type Release struct {
	ID          int64
	EventID     int64
	ReleaseDate string // YYYY-MM-DD
	Actual      *float64
	Forecast    *float64
	Previous    *float64
	Unit        string
	UpdatedAt   time.Time
}

// ReleaseUpdate is the change notification pushed to live connections when a
// release value is recorded or revised. It is derived from a release joined to
// its event and is never persisted. The JSON shape is the websocket wire
// format.
type ReleaseUpdate struct {
	EventSlug   string     `json:"event_slug"`
	EventName   string     `json:"event_name"`
	Country     string     `json:"country"`
	Category    string     `json:"category"`
	Importance  Importance `json:"importance"`
	ReleaseDate string     `json:"release_date"`
	Actual      *float64   `json:"actual"`
	Previous    *float64   `json:"previous"`
	Forecast    *float64   `json:"forecast"`
	Unit        string     `json:"unit"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// SubjectKey identifies the release across detector ticks: one event on one
// release date is one subject.
func (u ReleaseUpdate) SubjectKey() string {
	return u.EventSlug + "_" + u.ReleaseDate
}
