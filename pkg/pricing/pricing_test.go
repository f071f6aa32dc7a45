package pricing

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmoslabs/simbatch/pkg/catalog"
	"github.com/atmoslabs/simbatch/pkg/job"
)

func baselineSpec() job.Spec {
	return job.Spec{
		SimulationType:  "fullchem",
		Resolution:      "4x5",
		StartDate:       "2024-01-01",
		EndDate:         "2024-02-01",
		ProcessorFamily: "graviton",
		InstanceSize:    "8xlarge",
	}
}

func TestEstimateHours(t *testing.T) {
	class, err := catalog.Lookup("graviton", "8xlarge")
	require.NoError(t, err)

	// 31 simulated days at the 0.25 h/day baseline, factors 1.0, speedup 1.0.
	hours, err := EstimateHours(baselineSpec(), class)
	require.NoError(t, err)
	assert.InDelta(t, 7.75, hours, 1e-9)

	// Doubling resolution cost factor scales runtime linearly.
	fine := baselineSpec()
	fine.Resolution = "2x2.5"
	hours, err = EstimateHours(fine, class)
	require.NoError(t, err)
	assert.InDelta(t, 7.75*2.5, hours, 1e-9)
}

func TestEstimate(t *testing.T) {
	table := Default()

	cost, err := Estimate(table, baselineSpec())
	require.NoError(t, err)
	assert.InDelta(t, 7.75*1.16, cost, 1e-9)

	spot := baselineSpec()
	spot.SpotEligible = true
	spotCost, err := Estimate(table, spot)
	require.NoError(t, err)
	assert.InDelta(t, cost*0.30, spotCost, 1e-9)
}

func TestEstimateRejectsUnknownInputs(t *testing.T) {
	table := Default()

	bad := baselineSpec()
	bad.Resolution = "1x1"
	_, err := Estimate(table, bad)
	assert.Error(t, err)

	bad = baselineSpec()
	bad.ProcessorFamily = "quantum"
	_, err = Estimate(table, bad)
	assert.Error(t, err)
}

func TestActual(t *testing.T) {
	table := Default()

	cost, err := Actual(table, baselineSpec(), 2*time.Hour)
	require.NoError(t, err)
	assert.InDelta(t, 2*1.16, cost, 1e-9)

	// Negative elapsed (clock skew) clamps to zero rather than refunding.
	cost, err = Actual(table, baselineSpec(), -time.Minute)
	require.NoError(t, err)
	assert.Zero(t, cost)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prices.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
hourly_usd:
  c7g.8xlarge: 2.00
spot_multiplier: 0.5
`), 0o644))

	table, err := LoadFile(path)
	require.NoError(t, err)
	assert.InDelta(t, 2.00, table.HourlyUSD["c7g.8xlarge"], 1e-9)
	assert.InDelta(t, 0.5, table.SpotMultiplier, 1e-9)
}

func TestLoadFileRejectsBadTables(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		body string
	}{
		{"empty table", "hourly_usd: {}\nspot_multiplier: 0.3\n"},
		{"negative rate", "hourly_usd:\n  c7g.large: -1\nspot_multiplier: 0.3\n"},
		{"multiplier above one", "hourly_usd:\n  c7g.large: 0.07\nspot_multiplier: 1.5\n"},
		{"not yaml", "{{{{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}
}
