package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/atmoslabs/simbatch/pkg/resultsink"
)

// Sink implements resultsink.Sink over an S3 bucket. Job output lives under
// <prefix>/<job_id>/, with manifest.json at the root of that prefix.
type Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ resultsink.Sink = (*Sink)(nil)

// New creates an S3 sink with the given configuration.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &Sink{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "")
		opts = append(opts, config.WithCredentialsProvider(staticCreds))
	}

	return config.LoadDefaultConfig(ctx, opts...)
}

func (s *Sink) jobPrefix(jobID string) string {
	if s.prefix == "" {
		return jobID + "/"
	}
	return s.prefix + "/" + jobID + "/"
}

// OutputLocation returns the deterministic output URI for a job.
func (s *Sink) OutputLocation(jobID string) string {
	return "s3://" + s.bucket + "/" + s.jobPrefix(jobID)
}

// Locate lists the job's output prefix and fetches its manifest.
func (s *Sink) Locate(ctx context.Context, jobID string) (resultsink.Location, error) {
	prefix := s.jobPrefix(jobID)
	loc := resultsink.Location{URI: s.OutputLocation(jobID)}

	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return resultsink.Location{}, s.wrapError("Locate", jobID, err)
		}
		for _, obj := range out.Contents {
			loc.Keys = append(loc.Keys, strings.TrimPrefix(aws.ToString(obj.Key), prefix))
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}

	if len(loc.Keys) == 0 {
		return resultsink.Location{}, fmt.Errorf("locate results for %s: %w", jobID, resultsink.ErrNoResults)
	}

	manifest, err := s.fetchManifest(ctx, path.Join(prefix, "manifest.json"))
	if err != nil {
		return resultsink.Location{}, err
	}
	loc.Manifest = manifest
	loc.ManifestPresent = manifest != nil

	return loc, nil
}

func (s *Sink) fetchManifest(ctx context.Context, key string) (*resultsink.Manifest, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, s.wrapError("Locate", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", key, err)
	}

	m, err := resultsink.ParseManifest(data)
	if err != nil {
		// A corrupt manifest counts as absent: the finalizer must not
		// declare success on it.
		return nil, nil
	}
	return m, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func (s *Sink) wrapError(op, key string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "AccessDenied", "ServiceUnavailable", "SlowDown", "InternalError":
			return fmt.Errorf("s3 %s %s/%s: %w: %s", op, s.bucket, key, resultsink.ErrUnavailable, apiErr.ErrorMessage())
		}
	}
	return fmt.Errorf("s3 %s %s/%s: %w", op, s.bucket, key, err)
}
