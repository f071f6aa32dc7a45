package resultsink

import (
	"encoding/json"
	"fmt"
	"time"
)

// Manifest is the metadata record the simulation container writes alongside
// its diagnostics, after all artifacts have been uploaded.
type Manifest struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created"`

	Simulation struct {
		Type       string `json:"type"`
		Resolution string `json:"resolution"`
		StartDate  string `json:"start_date"`
		EndDate    string `json:"end_date"`
	} `json:"simulation"`

	Files []ManifestFile `json:"files"`
}

// ManifestFile is one uploaded artifact as recorded in the manifest.
type ManifestFile struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
}

// ParseManifest decodes a manifest document.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
