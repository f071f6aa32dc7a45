package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		next Status
		want bool
	}{
		{"submitted to validating", StatusSubmitted, StatusValidating, true},
		{"submitted to cancelling", StatusSubmitted, StatusCancelling, true},
		{"submitted straight to running", StatusSubmitted, StatusRunning, false},
		{"validating to dispatching", StatusValidating, StatusDispatching, true},
		{"validating to validation failed", StatusValidating, StatusValidationFailed, true},
		{"dispatching to running", StatusDispatching, StatusRunning, true},
		{"dispatching to dispatch failed", StatusDispatching, StatusDispatchFailed, true},
		{"running to processing", StatusRunning, StatusProcessing, true},
		{"running to failed", StatusRunning, StatusFailed, true},
		{"running to succeeded directly", StatusRunning, StatusSucceeded, false},
		{"processing to succeeded", StatusProcessing, StatusSucceeded, true},
		{"processing to failed", StatusProcessing, StatusFailed, true},
		{"processing to cancelling", StatusProcessing, StatusCancelling, false},
		{"cancelling to cancelled", StatusCancelling, StatusCancelled, true},
		{"cancelling to running", StatusCancelling, StatusRunning, false},
		{"terminal succeeded goes nowhere", StatusSucceeded, StatusFailed, false},
		{"terminal cancelled goes nowhere", StatusCancelled, StatusCancelling, false},
		{"terminal failed goes nowhere", StatusFailed, StatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.next))
		})
	}
}

func TestTerminalStatesHaveNoOutgoingEdges(t *testing.T) {
	all := []Status{
		StatusSubmitted, StatusValidating, StatusValidationFailed,
		StatusDispatching, StatusDispatchFailed, StatusRunning,
		StatusCancelling, StatusCancelled, StatusProcessing,
		StatusSucceeded, StatusFailed,
	}
	for _, from := range all {
		if !from.Terminal() {
			continue
		}
		for _, next := range all {
			assert.False(t, CanTransition(from, next),
				"terminal state %s must not transition to %s", from, next)
		}
	}
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusRunning.Active())
	assert.True(t, StatusCancelling.Active())
	assert.False(t, StatusDispatching.Active())
	assert.False(t, StatusSucceeded.Active())

	assert.True(t, StatusSubmitted.Cancellable())
	assert.True(t, StatusValidating.Cancellable())
	assert.True(t, StatusDispatching.Cancellable())
	assert.True(t, StatusRunning.Cancellable())
	assert.False(t, StatusProcessing.Cancellable())
	assert.False(t, StatusCancelling.Cancellable())
	assert.False(t, StatusSucceeded.Cancellable())

	assert.True(t, StatusProcessing.Valid())
	assert.False(t, Status("BOGUS").Valid())
	assert.False(t, Status("").Valid())
}

func TestSpecDays(t *testing.T) {
	tests := []struct {
		name    string
		start   string
		end     string
		want    int
		wantErr bool
	}{
		{"one month", "2024-01-01", "2024-02-01", 31, false},
		{"single day", "2024-06-15", "2024-06-16", 1, false},
		{"leap february", "2024-02-01", "2024-03-01", 29, false},
		{"zero-length range", "2024-06-15", "2024-06-15", 0, true},
		{"end before start", "2024-02-01", "2024-01-01", 0, true},
		{"bad start", "January 1", "2024-01-31", 0, true},
		{"bad end", "2024-01-01", "31/01/2024", 0, true},
		{"empty", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := Spec{StartDate: tt.start, EndDate: tt.end}
			days, err := spec.Days()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, days)
		})
	}
}
