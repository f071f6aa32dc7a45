// Package catalog holds the domain rules a submission is validated against:
// supported grids and chemistry mechanisms, the processor/instance matrix,
// and compute queue selection.
package catalog

import "fmt"

// ResolutionFactor maps each supported model grid to its relative compute
// cost against the 4x5 baseline. The factors come from operational tuning of
// the benchmark fleet and feed runtime/cost estimation.
var ResolutionFactor = map[string]float64{
	"4x5":       1.0,
	"2x2.5":     2.5,
	"0.5x0.625": 5.0,
	"c24":       1.0,
	"c90":       4.0,
	"c180":      8.0,
}

// SimulationFactor maps each chemistry mechanism to its relative compute
// cost against fullchem.
var SimulationFactor = map[string]float64{
	"fullchem":  1.0,
	"aerosol":   0.6,
	"transport": 0.3,
	"co2":       0.25,
}

// Architecture is the CPU architecture a processor family maps to. It
// decides which compute queue a job lands on.
type Architecture string

const (
	ArchARM64 Architecture = "arm64"
	ArchX86   Architecture = "x86_64"
)

// InstanceClass describes one valid processor-family/size combination.
type InstanceClass struct {
	// Family is the requested processor family (graviton, intel, amd).
	Family string

	// Size is the instance size within the family.
	Size string

	// InstanceType is the concrete EC2 instance type.
	InstanceType string

	Architecture Architecture
	VCPUs        int32
	MemoryMiB    int32

	// Speedup is the relative throughput against the 8xlarge baseline,
	// used for runtime estimation.
	Speedup float64
}

// instancePrefix maps processor family to the EC2 family prefix.
var instancePrefix = map[string]string{
	"graviton": "c7g",
	"intel":    "c6i",
	"amd":      "c6a",
}

var sizeSpec = map[string]struct {
	vcpus   int32
	memory  int32
	speedup float64
}{
	"large":    {2, 4096, 0.08},
	"4xlarge":  {16, 32768, 0.5},
	"8xlarge":  {32, 65536, 1.0},
	"16xlarge": {64, 131072, 1.9},
}

// validSizes lists the sizes offered per family. AMD capacity is not
// provisioned above 8xlarge in any supported region.
var validSizes = map[string][]string{
	"graviton": {"large", "4xlarge", "8xlarge", "16xlarge"},
	"intel":    {"large", "4xlarge", "8xlarge", "16xlarge"},
	"amd":      {"large", "4xlarge", "8xlarge"},
}

// Lookup resolves a processor family and size to its instance class.
func Lookup(family, size string) (InstanceClass, error) {
	prefix, ok := instancePrefix[family]
	if !ok {
		return InstanceClass{}, fmt.Errorf("unknown processor family %q", family)
	}
	allowed := false
	for _, s := range validSizes[family] {
		if s == size {
			allowed = true
			break
		}
	}
	if !allowed {
		return InstanceClass{}, fmt.Errorf("instance size %q is not offered for processor family %q", size, family)
	}
	spec := sizeSpec[size]

	arch := ArchX86
	if family == "graviton" {
		arch = ArchARM64
	}

	return InstanceClass{
		Family:       family,
		Size:         size,
		InstanceType: prefix + "." + size,
		Architecture: arch,
		VCPUs:        spec.vcpus,
		MemoryMiB:    spec.memory,
		Speedup:      spec.speedup,
	}, nil
}

// Queue returns the compute queue for an instance class. Queues are split
// by architecture, with separate spot queues backed by reclaimable capacity.
func Queue(class InstanceClass, spot bool) string {
	name := "simbatch-x86"
	if class.Architecture == ArchARM64 {
		name = "simbatch-graviton"
	}
	if spot {
		name += "-spot"
	}
	return name
}

// ValidResolution reports whether the grid is supported.
func ValidResolution(resolution string) bool {
	_, ok := ResolutionFactor[resolution]
	return ok
}

// ValidSimulationType reports whether the chemistry mechanism is supported.
func ValidSimulationType(simType string) bool {
	_, ok := SimulationFactor[simType]
	return ok
}
