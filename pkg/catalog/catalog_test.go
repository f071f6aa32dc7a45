package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name         string
		family       string
		size         string
		wantType     string
		wantArch     Architecture
		wantVCPUs    int32
		wantErr      bool
	}{
		{"graviton 8xlarge", "graviton", "8xlarge", "c7g.8xlarge", ArchARM64, 32, false},
		{"intel large", "intel", "large", "c6i.large", ArchX86, 2, false},
		{"amd 4xlarge", "amd", "4xlarge", "c6a.4xlarge", ArchX86, 16, false},
		{"graviton 16xlarge", "graviton", "16xlarge", "c7g.16xlarge", ArchARM64, 64, false},
		{"amd has no 16xlarge", "amd", "16xlarge", "", "", 0, true},
		{"unknown family", "quantum", "large", "", "", 0, true},
		{"unknown size", "intel", "xlarge", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, err := Lookup(tt.family, tt.size)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, class.InstanceType)
			assert.Equal(t, tt.wantArch, class.Architecture)
			assert.Equal(t, tt.wantVCPUs, class.VCPUs)
		})
	}
}

func TestQueue(t *testing.T) {
	graviton, err := Lookup("graviton", "8xlarge")
	require.NoError(t, err)
	intel, err := Lookup("intel", "4xlarge")
	require.NoError(t, err)

	assert.Equal(t, "simbatch-graviton", Queue(graviton, false))
	assert.Equal(t, "simbatch-graviton-spot", Queue(graviton, true))
	assert.Equal(t, "simbatch-x86", Queue(intel, false))
	assert.Equal(t, "simbatch-x86-spot", Queue(intel, true))
}

func TestValidResolution(t *testing.T) {
	for _, res := range []string{"4x5", "2x2.5", "0.5x0.625", "c24", "c90", "c180"} {
		assert.True(t, ValidResolution(res), res)
	}
	assert.False(t, ValidResolution("1x1"))
	assert.False(t, ValidResolution(""))
}

func TestValidSimulationType(t *testing.T) {
	for _, st := range []string{"fullchem", "aerosol", "transport", "co2"} {
		assert.True(t, ValidSimulationType(st), st)
	}
	assert.False(t, ValidSimulationType("methane"))
	assert.False(t, ValidSimulationType(""))
}

func TestSpeedupOrdering(t *testing.T) {
	// Larger instances of a family must never be slower than smaller ones.
	sizes := []string{"large", "4xlarge", "8xlarge", "16xlarge"}
	for _, family := range []string{"graviton", "intel"} {
		prev := 0.0
		for _, size := range sizes {
			class, err := Lookup(family, size)
			require.NoError(t, err)
			assert.Greater(t, class.Speedup, prev, "%s %s", family, size)
			prev = class.Speedup
		}
	}
}
