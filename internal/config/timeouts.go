package config

import "time"

// StageTimeouts bounds each backend call.
//
// The context deadline and the HTTP client timeout both apply; the shorter wins.
// The client uses no transport-level timeout, so these values are authoritative.
type StageTimeouts struct {
	Triage         string `yaml:"triage"`
	DeepDive       string `yaml:"deep_dive"`
	Adjudication   string `yaml:"adjudication"`
	Reconstruction string `yaml:"reconstruction"`
}

// DefaultStageTimeouts returns the default per-stage timeouts.
// Reconstruction is the heaviest backend operation and gets the longest budget.
func DefaultStageTimeouts() StageTimeouts {
	return StageTimeouts{
		Triage:         "30s",
		DeepDive:       "30s",
		Adjudication:   "60s",
		Reconstruction: "120s",
	}
}

// Durations resolves the timeouts, falling back to defaults for unparsable values.
func (t StageTimeouts) Durations() ResolvedTimeouts {
	return ResolvedTimeouts{
		Triage:         parseDuration(t.Triage, 30*time.Second),
		DeepDive:       parseDuration(t.DeepDive, 30*time.Second),
		Adjudication:   parseDuration(t.Adjudication, 60*time.Second),
		Reconstruction: parseDuration(t.Reconstruction, 120*time.Second),
	}
}

// ResolvedTimeouts holds parsed stage timeouts.
type ResolvedTimeouts struct {
	Triage         time.Duration
	DeepDive       time.Duration
	Adjudication   time.Duration
	Reconstruction time.Duration
}
