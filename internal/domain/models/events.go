package models

import "time"

// ArtifactsEvent announces per-date artifacts that were newly written.
type ArtifactsEvent struct {
	RunID    string    `json:"run_id"`
	Source   string    `json:"source"` // "market" or "mirror"
	Platform string    `json:"platform"`
	Dates    []string  `json:"dates"`
	At       time.Time `json:"at"`
}

// LoadedEvent announces a committed persistence run.
type LoadedEvent struct {
	RunID      string    `json:"run_id"`
	Checkpoint string    `json:"checkpoint,omitempty"`
	Dates      []string  `json:"dates"`
	Inserted   int64     `json:"inserted"`
	At         time.Time `json:"at"`
}
