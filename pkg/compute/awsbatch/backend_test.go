package awsbatch

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"

	"github.com/atmoslabs/simbatch/pkg/compute"
)

func TestMapState(t *testing.T) {
	tests := []struct {
		name   string
		status types.JobStatus
		reason string
		want   compute.State
	}{
		{"submitted", types.JobStatusSubmitted, "", compute.StatePending},
		{"pending", types.JobStatusPending, "", compute.StatePending},
		{"runnable", types.JobStatusRunnable, "", compute.StatePending},
		{"starting", types.JobStatusStarting, "", compute.StatePending},
		{"running", types.JobStatusRunning, "", compute.StateRunning},
		{"succeeded", types.JobStatusSucceeded, "", compute.StateSucceeded},
		{"failed plain", types.JobStatusFailed, "Essential container in task exited", compute.StateFailed},
		{
			"failed by spot reclaim",
			types.JobStatusFailed,
			"Host EC2 (instance i-0abc) terminated.",
			compute.StateInterrupted,
		},
		{
			"failed by spot interruption notice",
			types.JobStatusFailed,
			"Spot Interruption: capacity-not-available",
			compute.StateInterrupted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mapState(tt.status, tt.reason))
		})
	}
}

func TestIsSpotReclaim(t *testing.T) {
	assert.True(t, isSpotReclaim("Host EC2 (instance i-123) terminated"))
	assert.True(t, isSpotReclaim("spot interruption"))
	assert.True(t, isSpotReclaim("Instance terminated by the platform"))
	assert.False(t, isSpotReclaim("Essential container in task exited"))
	assert.False(t, isSpotReclaim(""))
}

type fakeAPIError struct {
	code string
	msg  string
}

func (e *fakeAPIError) Error() string                 { return e.code + ": " + e.msg }
func (e *fakeAPIError) ErrorCode() string             { return e.code }
func (e *fakeAPIError) ErrorMessage() string          { return e.msg }
func (e *fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

func TestWrapErrorClassification(t *testing.T) {
	b := &Backend{}

	tests := []struct {
		name  string
		code  string
		msg   string
		check func(t *testing.T, err error)
	}{
		{
			name: "throttled",
			code: "TooManyRequestsException", msg: "slow down",
			check: func(t *testing.T, err error) {
				assert.True(t, compute.IsTransient(err))
				assert.ErrorIs(t, err, compute.ErrThrottled)
			},
		},
		{
			name: "client rejection",
			code: "ClientException", msg: "jobQueue does not exist",
			check: func(t *testing.T, err error) {
				assert.False(t, compute.IsTransient(err))
				assert.ErrorIs(t, err, compute.ErrRejected)
			},
		},
		{
			name: "capacity shortfall",
			code: "ClientException", msg: "insufficient capacity in compute environment",
			check: func(t *testing.T, err error) {
				assert.True(t, compute.IsTransient(err))
				assert.ErrorIs(t, err, compute.ErrNoCapacity)
			},
		},
		{
			name: "server fault",
			code: "ServerException", msg: "internal error",
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, compute.ErrUnavailable)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.wrapError("Submit", "", &fakeAPIError{code: tt.code, msg: tt.msg})

			var berr *compute.BackendError
			assert.ErrorAs(t, err, &berr)
			assert.Equal(t, "Submit", berr.Op)
			tt.check(t, err)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	valid := Config{JobDefinition: "simbatch-geoschem"}
	assert.NoError(t, valid.Validate())

	missing := Config{}
	assert.Error(t, missing.Validate())

	halfCreds := Config{JobDefinition: "simbatch-geoschem", AccessKeyID: "AKIA..."}
	assert.Error(t, halfCreds.Validate())
}
