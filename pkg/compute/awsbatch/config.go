// Package awsbatch implements the compute backend on AWS Batch.
package awsbatch

// Config configures the AWS Batch backend.
//
// Authentication priority (AWS SDK v2 default chain):
//  1. Explicit AccessKeyID/SecretAccessKey (if provided)
//  2. Environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY)
//  3. Shared credentials file (~/.aws/credentials)
//  4. Shared config file (~/.aws/config) with profile
//  5. EC2 instance metadata / ECS task role / EKS IRSA
//
// Region handling: an explicit Region wins; otherwise the SDK resolves from
// environment/profile; when the orchestrator runs on EC2 and neither is set,
// the instance's own region is read from IMDS.
type Config struct {
	// Region is the AWS region. Optional on EC2 (resolved via IMDS).
	Region string

	// Profile is the AWS profile name to use from shared config.
	// Leave empty to use the default profile or environment credentials.
	Profile string

	// AccessKeyID is an explicit access key. If set, SecretAccessKey must also be set.
	// This takes precedence over the default credential chain.
	AccessKeyID string

	// SecretAccessKey is an explicit secret key. Required if AccessKeyID is set.
	SecretAccessKey string

	// JobDefinition is the registered Batch job definition the simulation
	// container runs under (required).
	JobDefinition string

	// JobNamePrefix prefixes generated Batch job names. Defaults to
	// "simbatch".
	JobNamePrefix string
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.JobDefinition == "" {
		return &ConfigError{Field: "JobDefinition", Message: "job definition is required"}
	}

	// If one explicit credential is set, both must be set
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
	return "awsbatch config: " + e.Field + ": " + e.Message
}
