package config

import (
	"time"

	"github.com/loadstone/loadstone/internal/bench"
)

// Presets for the common sections of a task file. Callers composing
// specs programmatically start from these instead of repeating the same
// YAML fragments.

// DefaultContext is a minimal single-identity context.
func DefaultContext() bench.ContextSpec {
	return bench.ContextSpec{
		Tenants:        1,
		UsersPerTenant: 1,
	}
}

// SmokeContext allocates a small multi-tenant pool with unlimited volume
// quota, enough to exercise contention without tripping provider limits.
func SmokeContext() bench.ContextSpec {
	return bench.ContextSpec{
		Tenants:        2,
		UsersPerTenant: 2,
		Quotas: map[string]int64{
			"volumes": bench.QuotaUnlimited,
		},
	}
}

// ConstantRunner is the standard fixed-pool runner.
func ConstantRunner(concurrency, times int) bench.RunnerSpec {
	return bench.RunnerSpec{
		Type:        bench.RunnerConstant,
		Concurrency: concurrency,
		Times:       times,
	}
}

// SerialRunner runs times iterations back to back in one worker.
func SerialRunner(times int) bench.RunnerSpec {
	return bench.RunnerSpec{
		Type:  bench.RunnerSerial,
		Times: times,
	}
}

// StrictSLA fails the run on any iteration error and on a mean duration
// above maxAvg.
func StrictSLA(maxAvg time.Duration) bench.SLASpec {
	return bench.SLASpec{
		Rules: []bench.SLARule{
			{Kind: bench.SLANoFailures},
			{Kind: bench.SLAMaxAvgDuration, Duration: maxAvg},
		},
	}
}

// LenientSLA tolerates failures up to maxFailureRate.
func LenientSLA(maxFailureRate float64) bench.SLASpec {
	return bench.SLASpec{
		Rules: []bench.SLARule{
			{Kind: bench.SLAMaxFailureRate, Threshold: maxFailureRate},
		},
	}
}
