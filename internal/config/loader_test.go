package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp moves the process into an empty directory so a developer's
// simbatch.yaml never leaks into the test.
func chdirTemp(t *testing.T) {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, "simbatch.db", cfg.Store.Path)

	assert.Equal(t, 3, cfg.Orchestrator.MaxAttempts)
	assert.Equal(t, 15*time.Second, cfg.Orchestrator.PollInitial)
	assert.Equal(t, 2*time.Minute, cfg.Orchestrator.PollMax)
	assert.Equal(t, 5*time.Minute, cfg.Orchestrator.PollWidenAfter)
	assert.InDelta(t, 1.5, cfg.Orchestrator.PollFactor, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.Orchestrator.AdapterTimeout)
	assert.InDelta(t, 10.0, cfg.Orchestrator.DescribeRate, 1e-9)

	assert.Equal(t, 10, cfg.Quota.MaxActiveJobs)
	assert.Equal(t, 366, cfg.Quota.MaxSimulationDays)

	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigFile(t *testing.T) {
	chdirTemp(t)

	require.NoError(t, os.WriteFile("simbatch.yaml", []byte(`
server:
  port: 9090
store:
  path: /var/lib/simbatch/jobs.db
orchestrator:
  max_attempts: 5
  poll_initial: 30s
quota:
  max_active_jobs: 25
`), 0o644))

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/var/lib/simbatch/jobs.db", cfg.Store.Path)
	assert.Equal(t, 5, cfg.Orchestrator.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Orchestrator.PollInitial)
	assert.Equal(t, 25, cfg.Quota.MaxActiveJobs)

	// Untouched keys keep their defaults.
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 2*time.Minute, cfg.Orchestrator.PollMax)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chdirTemp(t)

	require.NoError(t, os.WriteFile("simbatch.yaml", []byte("server:\n  port: 9090\n"), 0o644))
	t.Setenv("SIMBATCH_SERVER_PORT", "7070")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	chdirTemp(t)

	tests := []struct {
		name string
		body string
	}{
		{"port out of range", "server:\n  port: 99999\n"},
		{"no store", "store:\n  path: \"\"\n"},
		{"zero attempts", "orchestrator:\n  max_attempts: 0\n"},
		{"poll max below initial", "orchestrator:\n  poll_initial: 5m\n  poll_max: 1m\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, os.WriteFile("simbatch.yaml", []byte(tt.body), 0o644))
			_, err := Load(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	chdirTemp(t)

	require.NoError(t, os.WriteFile("simbatch.yaml", []byte("server: [unclosed"), 0o644))
	_, err := Load(context.Background())
	assert.Error(t, err)
}
