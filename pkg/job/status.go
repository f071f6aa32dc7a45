package job

// Status is the lifecycle state of a simulation job.
//
// NOTE: These values are persisted in the job store and returned by the API;
// they are part of the stable external contract.
type Status string

const (
	StatusSubmitted        Status = "SUBMITTED"
	StatusValidating       Status = "VALIDATING"
	StatusValidationFailed Status = "VALIDATION_FAILED"
	StatusDispatching      Status = "DISPATCHING"
	StatusDispatchFailed   Status = "DISPATCH_FAILED"
	StatusRunning          Status = "RUNNING"
	StatusCancelling       Status = "CANCELLING"
	StatusCancelled        Status = "CANCELLED"
	StatusProcessing       Status = "PROCESSING_RESULTS"
	StatusSucceeded        Status = "SUCCEEDED"
	StatusFailed           Status = "FAILED"
)

// transitions encodes the allowed state machine edges. Every store write that
// changes status is checked against this relation before it is attempted, so
// a programming error in an actor surfaces as a refused transition rather
// than a corrupted record.
var transitions = map[Status][]Status{
	StatusSubmitted:   {StatusValidating, StatusCancelling},
	StatusValidating:  {StatusDispatching, StatusValidationFailed, StatusCancelling},
	StatusDispatching: {StatusRunning, StatusDispatchFailed, StatusCancelling},
	StatusRunning:     {StatusProcessing, StatusFailed, StatusCancelling},
	StatusCancelling:  {StatusCancelled},
	StatusProcessing:  {StatusSucceeded, StatusFailed},
}

// CanTransition reports whether moving from to next is a legal edge of the
// job state machine.
func CanTransition(from, next Status) bool {
	for _, s := range transitions[from] {
		if s == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a terminal state. Terminal jobs never change
// again.
func (s Status) Terminal() bool {
	switch s {
	case StatusValidationFailed, StatusDispatchFailed, StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether s requires a monitor loop (the job has work in
// flight on the compute backend).
func (s Status) Active() bool {
	return s == StatusRunning || s == StatusCancelling
}

// Cancellable reports whether a cancel request is accepted in state s.
func (s Status) Cancellable() bool {
	switch s {
	case StatusSubmitted, StatusValidating, StatusDispatching, StatusRunning:
		return true
	}
	return false
}

// Valid reports whether s is a known status value. Used when decoding
// API query parameters and stored rows.
func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusValidating, StatusValidationFailed,
		StatusDispatching, StatusDispatchFailed, StatusRunning,
		StatusCancelling, StatusCancelled, StatusProcessing,
		StatusSucceeded, StatusFailed:
		return true
	}
	return false
}
