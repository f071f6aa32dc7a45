// Package pricing declares the price table used for cost estimation and
// final cost accounting.
package pricing

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/atmoslabs/simbatch/pkg/catalog"
	"github.com/atmoslabs/simbatch/pkg/job"
)

// Table maps concrete instance types to on-demand hourly rates, with a
// single multiplier applied to spot capacity.
type Table struct {
	// HourlyUSD is the on-demand rate per instance type.
	HourlyUSD map[string]float64 `yaml:"hourly_usd"`

	// SpotMultiplier scales the on-demand rate for spot-eligible jobs.
	SpotMultiplier float64 `yaml:"spot_multiplier"`
}

// Default returns the built-in table. Rates track us-east-1 published
// pricing; operators override them with a YAML file when rates drift.
func Default() Table {
	return Table{
		HourlyUSD: map[string]float64{
			"c7g.large":    0.0725,
			"c7g.4xlarge":  0.5800,
			"c7g.8xlarge":  1.1600,
			"c7g.16xlarge": 2.3200,
			"c6i.large":    0.0850,
			"c6i.4xlarge":  0.6800,
			"c6i.8xlarge":  1.3600,
			"c6i.16xlarge": 2.7200,
			"c6a.large":    0.0765,
			"c6a.4xlarge":  0.6120,
			"c6a.8xlarge":  1.2240,
		},
		SpotMultiplier: 0.30,
	}
}

// LoadFile reads a price table from a YAML file.
func LoadFile(path string) (Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read price table: %w", err)
	}
	var t Table
	if err := yaml.Unmarshal(b, &t); err != nil {
		return Table{}, fmt.Errorf("parse price table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

func (t Table) Validate() error {
	if len(t.HourlyUSD) == 0 {
		return fmt.Errorf("price table has no hourly rates")
	}
	for instanceType, rate := range t.HourlyUSD {
		if rate <= 0 {
			return fmt.Errorf("price table rate for %s must be positive", instanceType)
		}
	}
	if t.SpotMultiplier <= 0 || t.SpotMultiplier > 1 {
		return fmt.Errorf("spot multiplier must be in (0, 1]")
	}
	return nil
}

// Rate returns the effective hourly rate for an instance class.
func (t Table) Rate(class catalog.InstanceClass, spot bool) (float64, error) {
	rate, ok := t.HourlyUSD[class.InstanceType]
	if !ok {
		return 0, fmt.Errorf("no hourly rate for instance type %s", class.InstanceType)
	}
	if spot {
		rate *= t.SpotMultiplier
	}
	return rate, nil
}

// baseHoursPerSimDay is the wall-clock hours one simulated day of fullchem
// at 4x5 takes on the 8xlarge baseline. Operationally tuned.
const baseHoursPerSimDay = 0.25

// EstimateHours predicts wall-clock runtime for a spec on an instance class.
func EstimateHours(spec job.Spec, class catalog.InstanceClass) (float64, error) {
	days, err := spec.Days()
	if err != nil {
		return 0, err
	}
	resFactor, ok := catalog.ResolutionFactor[spec.Resolution]
	if !ok {
		return 0, fmt.Errorf("unknown resolution %q", spec.Resolution)
	}
	simFactor, ok := catalog.SimulationFactor[spec.SimulationType]
	if !ok {
		return 0, fmt.Errorf("unknown simulation type %q", spec.SimulationType)
	}
	return float64(days) * baseHoursPerSimDay * resFactor * simFactor / class.Speedup, nil
}

// Estimate predicts total cost for a spec before dispatch.
func Estimate(t Table, spec job.Spec) (float64, error) {
	class, err := catalog.Lookup(spec.ProcessorFamily, spec.InstanceSize)
	if err != nil {
		return 0, err
	}
	hours, err := EstimateHours(spec, class)
	if err != nil {
		return 0, err
	}
	rate, err := t.Rate(class, spec.SpotEligible)
	if err != nil {
		return 0, err
	}
	return hours * rate, nil
}

// Actual computes the final cost from observed wall-clock runtime.
func Actual(t Table, spec job.Spec, elapsed time.Duration) (float64, error) {
	class, err := catalog.Lookup(spec.ProcessorFamily, spec.InstanceSize)
	if err != nil {
		return 0, err
	}
	rate, err := t.Rate(class, spec.SpotEligible)
	if err != nil {
		return 0, err
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed.Hours() * rate, nil
}
