// Package sinktest provides an in-memory result sink for tests.
package sinktest

import (
	"context"
	"fmt"
	"sync"

	"github.com/atmoslabs/simbatch/pkg/resultsink"
)

// Fake is an in-memory resultsink.Sink. Tests seed per-job locations via
// SetResults.
type Fake struct {
	mu        sync.Mutex
	locations map[string]resultsink.Location

	// LocateErr, when set, is returned by every Locate call.
	LocateErr error
}

var _ resultsink.Sink = (*Fake)(nil)

func New() *Fake {
	return &Fake{locations: make(map[string]resultsink.Location)}
}

func (f *Fake) OutputLocation(jobID string) string {
	return "s3://results-test/jobs/" + jobID + "/"
}

func (f *Fake) Locate(_ context.Context, jobID string) (resultsink.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.LocateErr != nil {
		return resultsink.Location{}, f.LocateErr
	}

	loc, ok := f.locations[jobID]
	if !ok {
		return resultsink.Location{}, fmt.Errorf("locate results for %s: %w", jobID, resultsink.ErrNoResults)
	}
	return loc, nil
}

// SetResults seeds the keys Locate reports for a job. Pass manifest=true to
// mark the manifest present.
func (f *Fake) SetResults(jobID string, manifest bool, keys ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.locations[jobID] = resultsink.Location{
		URI:             f.OutputLocation(jobID),
		ManifestPresent: manifest,
		Keys:            keys,
	}
}
