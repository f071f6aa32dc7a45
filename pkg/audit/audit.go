// Package audit provides a JSONL transition log for job lifecycle events.
//
// Each status transition is emitted as a self-contained JSON line, suitable
// for operator tooling and post-hoc reconstruction of a job's history.
package audit

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/atmoslabs/simbatch/pkg/job"
)

// TypeTransition identifies transition records.
// Records follow the pattern: simbatch.<type>.v<version>
const TypeTransition = "simbatch.transition.v1"

// Record is the envelope for all JSONL audit output.
type Record struct {
	// Type identifies the record type (e.g., "simbatch.transition.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// JobID is the job the record concerns.
	JobID string `json:"job_id"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// TransitionRecord is the data payload for a status transition.
type TransitionRecord struct {
	From    job.Status `json:"from"`
	To      job.Status `json:"to"`
	Attempt int        `json:"attempt"`

	// Actor names the component that made the transition (validator,
	// dispatcher, monitor, canceller, finalizer).
	Actor string `json:"actor"`

	// Detail carries the failure reason or backend detail, when relevant.
	Detail string `json:"detail,omitempty"`
}

// Log writes transition records as newline-delimited JSON.
//
// Log is safe for concurrent use. Writes are serialized with a mutex so
// lines never interleave.
type Log struct {
	w  io.Writer
	mu sync.Mutex
}

// NewLog creates an audit log writing to w (a file, stdout, etc.).
func NewLog(w io.Writer) *Log {
	return &Log{w: w}
}

// Transition emits one transition record. A nil Log discards the event, so
// callers never need to guard emission.
func (l *Log) Transition(jobID string, rec TransitionRecord) error {
	if l == nil || l.w == nil {
		return nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line, err := json.Marshal(Record{
		Type:  TypeTransition,
		TS:    time.Now().UTC(),
		JobID: jobID,
		Data:  data,
	})
	if err != nil {
		return err
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.w.Write(line)
	return err
}
