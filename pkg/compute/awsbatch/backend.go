package awsbatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/aws/smithy-go"

	"github.com/atmoslabs/simbatch/pkg/catalog"
	"github.com/atmoslabs/simbatch/pkg/compute"
)

// Backend implements compute.Backend on AWS Batch.
type Backend struct {
	client     *batch.Client
	jobDef     string
	namePrefix string
}

var _ compute.Backend = (*Backend)(nil)

// New creates an AWS Batch backend with the given configuration.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &compute.BackendError{Op: "New", Err: err}
	}

	prefix := cfg.JobNamePrefix
	if prefix == "" {
		prefix = "simbatch"
	}

	return &Backend{
		client:     batch.NewFromConfig(awsCfg),
		jobDef:     cfg.JobDefinition,
		namePrefix: prefix,
	}, nil
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	// Only apply explicit region if user set one in config.
	// Let SDK resolve from env/profile first.
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // session token (empty for long-term credentials)
		)
		opts = append(opts, config.WithCredentialsProvider(staticCreds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	// On EC2 with no region from config/env/profile, ask the instance.
	if awsCfg.Region == "" {
		if out, err := imds.NewFromConfig(awsCfg).GetRegion(ctx, &imds.GetRegionInput{}); err == nil {
			awsCfg.Region = out.Region
		}
	}

	return awsCfg, nil
}

// Submit places one simulation attempt on Batch. Queue selection follows the
// spec's processor family and spot eligibility; resource sizing comes from
// the instance catalog.
func (b *Backend) Submit(ctx context.Context, sub compute.Submission) (string, error) {
	class, err := catalog.Lookup(sub.Spec.ProcessorFamily, sub.Spec.InstanceSize)
	if err != nil {
		return "", &compute.BackendError{Op: "Submit", Err: fmt.Errorf("%w: %v", compute.ErrRejected, err)}
	}

	jobName := fmt.Sprintf("%s-%s-%d", b.namePrefix, sub.JobID, sub.Attempt)

	input := &batch.SubmitJobInput{
		JobName:       aws.String(jobName),
		JobQueue:      aws.String(catalog.Queue(class, sub.Spec.SpotEligible)),
		JobDefinition: aws.String(b.jobDef),
		Parameters: map[string]string{
			"simulationType": sub.Spec.SimulationType,
			"resolution":     sub.Spec.Resolution,
			"startDate":      sub.Spec.StartDate,
			"endDate":        sub.Spec.EndDate,
			"outputPath":     sub.OutputLocation,
		},
		ContainerOverrides: &types.ContainerOverrides{
			ResourceRequirements: []types.ResourceRequirement{
				{Type: types.ResourceTypeVcpu, Value: aws.String(strconv.Itoa(int(class.VCPUs)))},
				{Type: types.ResourceTypeMemory, Value: aws.String(strconv.Itoa(int(class.MemoryMiB)))},
			},
		},
		Tags: map[string]string{
			"SimbatchJobId":  sub.JobID,
			"Attempt":        strconv.Itoa(sub.Attempt),
			"SimulationType": sub.Spec.SimulationType,
			"Resolution":     sub.Spec.Resolution,
		},
	}

	out, err := b.client.SubmitJob(ctx, input)
	if err != nil {
		return "", b.wrapError("Submit", "", err)
	}

	return aws.ToString(out.JobId), nil
}

// Describe reports the backend state of a previously submitted attempt.
func (b *Backend) Describe(ctx context.Context, handle string) (compute.Description, error) {
	out, err := b.client.DescribeJobs(ctx, &batch.DescribeJobsInput{Jobs: []string{handle}})
	if err != nil {
		return compute.Description{}, b.wrapError("Describe", handle, err)
	}
	if len(out.Jobs) == 0 {
		return compute.Description{}, &compute.BackendError{
			Op: "Describe", Handle: handle, Err: compute.ErrNotFound,
		}
	}

	detail := out.Jobs[0]
	reason := aws.ToString(detail.StatusReason)

	return compute.Description{
		State:  mapState(detail.Status, reason),
		Detail: reason,
	}, nil
}

// Terminate asks Batch to stop the attempt. Terminating a finished Batch job
// is a no-op on the Batch side, which matches the adapter contract.
func (b *Backend) Terminate(ctx context.Context, handle string) error {
	_, err := b.client.TerminateJob(ctx, &batch.TerminateJobInput{
		JobId:  aws.String(handle),
		Reason: aws.String("cancelled by owner"),
	})
	if err != nil {
		return b.wrapError("Terminate", handle, err)
	}
	return nil
}

// mapState converts a Batch job status to the adapter state. Spot reclaims
// surface on Batch as FAILED with a host-termination status reason, so the
// reason string decides Failed vs Interrupted.
func mapState(status types.JobStatus, reason string) compute.State {
	switch status {
	case types.JobStatusSubmitted, types.JobStatusPending, types.JobStatusRunnable, types.JobStatusStarting:
		return compute.StatePending
	case types.JobStatusRunning:
		return compute.StateRunning
	case types.JobStatusSucceeded:
		return compute.StateSucceeded
	case types.JobStatusFailed:
		if isSpotReclaim(reason) {
			return compute.StateInterrupted
		}
		return compute.StateFailed
	default:
		return compute.StatePending
	}
}

// isSpotReclaim matches the status reasons Batch records when the underlying
// instance was reclaimed out from under the job.
func isSpotReclaim(reason string) bool {
	r := strings.ToLower(reason)
	return strings.Contains(r, "host ec2") ||
		strings.Contains(r, "spot interruption") ||
		strings.Contains(r, "instance terminated")
}

// wrapError classifies AWS errors into the adapter's sentinel taxonomy.
func (b *Backend) wrapError(op, handle string, err error) error {
	wrapped := err

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException", "ThrottlingException", "RequestThrottled":
			wrapped = fmt.Errorf("%w: %s", compute.ErrThrottled, apiErr.ErrorMessage())
		case "ClientException":
			msg := apiErr.ErrorMessage()
			if strings.Contains(strings.ToLower(msg), "capacity") {
				wrapped = fmt.Errorf("%w: %s", compute.ErrNoCapacity, msg)
			} else {
				wrapped = fmt.Errorf("%w: %s", compute.ErrRejected, msg)
			}
		case "ServerException", "ServiceUnavailableException":
			wrapped = fmt.Errorf("%w: %s", compute.ErrUnavailable, apiErr.ErrorMessage())
		}
	}

	return &compute.BackendError{Op: op, Handle: handle, Err: wrapped}
}
