package catalog

// Quota bounds what a single owner may have in flight. Long simulations tie
// up capacity for days, so quota counts active jobs rather than submissions
// per interval.
type Quota struct {
	// MaxActiveJobs is the ceiling on non-terminal jobs per owner.
	MaxActiveJobs int

	// MaxSimulationDays caps the simulated period of one job.
	MaxSimulationDays int
}

// DefaultQuota matches the per-user limits of the shared research cluster.
func DefaultQuota() Quota {
	return Quota{
		MaxActiveJobs:     10,
		MaxSimulationDays: 366,
	}
}
