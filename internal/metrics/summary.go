// Package metrics aggregates iteration results into duration summaries
// backed by an HDR histogram, so percentile SLA rules and the console
// report read from the same numbers.
package metrics

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/loadstone/loadstone/internal/bench"
)

// Histogram range: 1 microsecond to 1 hour, 3 significant figures.
const (
	histMin     int64 = 1
	histMax     int64 = 3600000000
	histSigFigs       = 3
)

// Summary holds aggregated statistics over one run's iteration results.
// Duration statistics cover successful iterations only; failure counts
// cover everything.
type Summary struct {
	Count    int64
	Failures int64

	// ErrorRate is Failures / Count, zero for empty runs.
	ErrorRate float64

	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
	P50  time.Duration
	P90  time.Duration
	P95  time.Duration
	P99  time.Duration

	hist *hdrhistogram.Histogram
}

// Summarize aggregates a result sequence. Safe to call with an empty or
// nil slice; the returned summary then reports zeroes.
func Summarize(results []bench.IterationResult) *Summary {
	s := &Summary{
		hist: hdrhistogram.New(histMin, histMax, histSigFigs),
	}

	var total time.Duration
	var successes int64
	for _, it := range results {
		s.Count++
		if it.Failed() {
			s.Failures++
			continue
		}
		successes++
		total += it.Duration
		if successes == 1 || it.Duration < s.Min {
			s.Min = it.Duration
		}
		if it.Duration > s.Max {
			s.Max = it.Duration
		}
		s.hist.RecordValue(clampMicros(it.Duration))
	}

	if s.Count > 0 {
		s.ErrorRate = float64(s.Failures) / float64(s.Count)
	}
	if successes == 0 {
		return s
	}

	// Min, Max and Mean come from the raw durations: the histogram rounds
	// to 3 significant figures, which is fine for percentiles but not for
	// extremes or averages compared against an SLA threshold.
	s.Mean = total / time.Duration(successes)
	s.P50 = s.Percentile(50)
	s.P90 = s.Percentile(90)
	s.P95 = s.Percentile(95)
	s.P99 = s.Percentile(99)
	return s
}

// Percentile returns the duration at the given percentile over successful
// iterations, zero when there are none.
func (s *Summary) Percentile(p float64) time.Duration {
	if s.hist.TotalCount() == 0 {
		return 0
	}
	return time.Duration(s.hist.ValueAtQuantile(p)) * time.Microsecond
}

// Successes returns the number of non-failed iterations.
func (s *Summary) Successes() int64 {
	return s.Count - s.Failures
}

func clampMicros(d time.Duration) int64 {
	v := d.Microseconds()
	if v < histMin {
		return histMin
	}
	if v > histMax {
		return histMax
	}
	return v
}
