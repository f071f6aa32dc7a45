// Package resultsink defines the narrow interface the orchestrator uses to
// locate and verify simulation output artifacts.
package resultsink

import (
	"context"
	"errors"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// Sentinel errors for sink operations.
var (
	// ErrNoResults indicates no output exists for the job at all.
	ErrNoResults = errors.New("no results found")

	// ErrUnavailable indicates the sink could not be reached.
	ErrUnavailable = errors.New("result sink unavailable")
)

// Location describes what the sink found for one job.
type Location struct {
	// URI is the root of the job's output (s3://bucket/prefix/).
	URI string

	// ManifestPresent reports whether the run's manifest.json exists and
	// parses. The simulation container writes it last, so its presence
	// marks a complete upload.
	ManifestPresent bool

	// Manifest is the parsed manifest when present.
	Manifest *Manifest

	// Keys are the artifact keys found under the root, relative to it.
	Keys []string
}

// Sink is the result adapter consumed by the dispatcher (to choose an output
// destination) and the finalizer (to confirm output exists).
type Sink interface {
	// OutputLocation returns the URI the job's container should write to.
	// Deterministic per job id so a resubmitted attempt overwrites its
	// predecessor's partial output.
	OutputLocation(jobID string) string

	// Locate inspects the sink for the job's output. Absence of any
	// output is ErrNoResults; an unreadable sink is ErrUnavailable.
	Locate(ctx context.Context, jobID string) (Location, error)
}

// ExpectedArtifacts are the glob patterns a complete run must satisfy.
// GEOS-Chem writes its diagnostic collections as NetCDF under OutputDir.
var ExpectedArtifacts = []string{
	"OutputDir/*.nc4",
}

// ValidateComplete checks a located result set for completeness: the
// manifest must be present and every expected pattern must match at least
// one artifact. Returns a descriptive error naming the first missing piece.
func ValidateComplete(loc Location, patterns []string) error {
	if !loc.ManifestPresent {
		return fmt.Errorf("manifest.json missing under %s", loc.URI)
	}
	if len(patterns) == 0 {
		patterns = ExpectedArtifacts
	}

	for _, pattern := range patterns {
		matched := false
		for _, key := range loc.Keys {
			ok, err := doublestar.Match(pattern, key)
			if err != nil {
				return fmt.Errorf("bad artifact pattern %q: %w", pattern, err)
			}
			if ok {
				matched = true
				break
			}
		}
		if !matched {
			return fmt.Errorf("no artifact matching %q under %s", pattern, loc.URI)
		}
	}

	return nil
}
