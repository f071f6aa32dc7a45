package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Load builds the configuration. Precedence, lowest to highest: built-in
// defaults, simbatch.yaml (working directory or /etc/simbatch), SIMBATCH_*
// environment variables (dots become underscores, e.g.
// SIMBATCH_SERVER_PORT).
func Load(ctx context.Context) (*Config, error) {
	_ = ctx

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("simbatch")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/simbatch")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// No file is fine; defaults plus environment apply.
	}

	v.SetEnvPrefix("SIMBATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("store.path", "simbatch.db")

	v.SetDefault("batch.job_definition", "simbatch-geoschem")
	v.SetDefault("batch.job_name_prefix", "simbatch")

	v.SetDefault("results.bucket", "simbatch-results")
	v.SetDefault("results.prefix", "jobs")

	v.SetDefault("orchestrator.max_attempts", 3)
	v.SetDefault("orchestrator.poll_initial", "15s")
	v.SetDefault("orchestrator.poll_max", "2m")
	v.SetDefault("orchestrator.poll_widen_after", "5m")
	v.SetDefault("orchestrator.poll_factor", 1.5)
	v.SetDefault("orchestrator.resubmit_base", "15s")
	v.SetDefault("orchestrator.resubmit_max", "2m")
	v.SetDefault("orchestrator.adapter_timeout", "30s")
	v.SetDefault("orchestrator.adapter_retries", 4)
	v.SetDefault("orchestrator.describe_rate", 10.0)

	v.SetDefault("quota.max_active_jobs", 10)
	v.SetDefault("quota.max_simulation_days", 366)

	v.SetDefault("log_level", "info")
}
