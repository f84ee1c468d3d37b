package models

import "time"

// Sample is one telemetry record: a cumulative kWh reading and when it was taken
type Sample struct {
	EntryID   int64     `json:"entry_id"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"` // NaN when the feed value could not be parsed
}

// DateRange is a pair of civil dates in YYYY-MM-DD form
type DateRange struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	ToDate bool   `json:"to_date,omitempty"` // End target is "now" rather than end of day
}

// UsageResult is the consumption delta between the samples nearest each end of a range
type UsageResult struct {
	StartSample Sample    `json:"start_sample"`
	EndSample   Sample    `json:"end_sample"`
	UsageKWh    float64   `json:"usage_kwh"`
	Range       DateRange `json:"range"`
}
