// Package config loads the service configuration from defaults, an optional
// simbatch.yaml, and SIMBATCH_* environment variables, in increasing
// precedence.
package config

import (
	"fmt"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Store        StoreConfig        `mapstructure:"store"`
	Batch        BatchConfig        `mapstructure:"batch"`
	Results      ResultsConfig      `mapstructure:"results"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Quota        QuotaConfig        `mapstructure:"quota"`
	Pricing      PricingConfig      `mapstructure:"pricing"`
	LogLevel     string             `mapstructure:"log_level"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type StoreConfig struct {
	// Path is the local SQLite database path.
	Path string `mapstructure:"path"`

	// URL is a libsql URL for a remote store (cgo builds only).
	URL string `mapstructure:"url"`

	AuthToken string `mapstructure:"auth_token"`
}

type BatchConfig struct {
	Region        string `mapstructure:"region"`
	Profile       string `mapstructure:"profile"`
	JobDefinition string `mapstructure:"job_definition"`
	JobNamePrefix string `mapstructure:"job_name_prefix"`
}

type ResultsConfig struct {
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

type OrchestratorConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	PollInitial    time.Duration `mapstructure:"poll_initial"`
	PollMax        time.Duration `mapstructure:"poll_max"`
	PollWidenAfter time.Duration `mapstructure:"poll_widen_after"`
	PollFactor     float64       `mapstructure:"poll_factor"`
	ResubmitBase   time.Duration `mapstructure:"resubmit_base"`
	ResubmitMax    time.Duration `mapstructure:"resubmit_max"`
	AdapterTimeout time.Duration `mapstructure:"adapter_timeout"`
	AdapterRetries int           `mapstructure:"adapter_retries"`
	DescribeRate   float64       `mapstructure:"describe_rate"`

	// AuditLogPath enables the JSONL transition log when set.
	AuditLogPath string `mapstructure:"audit_log_path"`
}

type QuotaConfig struct {
	MaxActiveJobs     int `mapstructure:"max_active_jobs"`
	MaxSimulationDays int `mapstructure:"max_simulation_days"`
}

type PricingConfig struct {
	// TablePath overrides the built-in price table with a YAML file.
	TablePath string `mapstructure:"table_path"`
}

// Validate rejects configurations the orchestrator cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Store.Path == "" && c.Store.URL == "" {
		return fmt.Errorf("store.path or store.url is required")
	}
	if c.Orchestrator.MaxAttempts < 1 {
		return fmt.Errorf("orchestrator.max_attempts must be at least 1")
	}
	if c.Orchestrator.PollInitial <= 0 {
		return fmt.Errorf("orchestrator.poll_initial must be positive")
	}
	if c.Orchestrator.PollMax < c.Orchestrator.PollInitial {
		return fmt.Errorf("orchestrator.poll_max must be at least poll_initial")
	}
	if c.Orchestrator.PollFactor < 1 {
		return fmt.Errorf("orchestrator.poll_factor must be at least 1")
	}
	return nil
}
