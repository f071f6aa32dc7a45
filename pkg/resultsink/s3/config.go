// Package s3 implements the result sink on AWS S3.
package s3

// Config configures the S3 result sink.
//
// Authentication follows the AWS SDK v2 default chain; explicit credentials,
// when set, take precedence. For S3-compatible stores (MinIO in local
// development), set Endpoint and typically ForcePathStyle.
type Config struct {
	// Bucket is the results bucket name (required).
	Bucket string

	// Prefix roots all job output under the bucket (e.g. "jobs").
	Prefix string

	// Region is the AWS region. Defaults via the SDK chain when empty.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible stores.
	Endpoint string

	// Profile is the AWS profile name to use from shared config.
	Profile string

	// AccessKeyID is an explicit access key. If set, SecretAccessKey must also be set.
	AccessKeyID string

	// SecretAccessKey is an explicit secret key. Required if AccessKeyID is set.
	SecretAccessKey string

	// ForcePathStyle forces path-style URLs (bucket in path, not subdomain).
	ForcePathStyle bool
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "s3 sink config: " + e.Field + ": " + e.Message
}
