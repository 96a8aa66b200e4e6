package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/loadstone/loadstone/internal/bench"
	"github.com/loadstone/loadstone/internal/metrics"
)

// jsonReport is the machine-readable task report.
type jsonReport struct {
	Title       string       `json:"title,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
	Passed      bool         `json:"passed"`
	Scenarios   []jsonResult `json:"scenarios"`
}

type jsonResult struct {
	bench.RunResult
	Outcome string       `json:"outcome"`
	Summary *jsonSummary `json:"summary,omitempty"`
}

type jsonSummary struct {
	Count     int64   `json:"count"`
	Failures  int64   `json:"failures"`
	ErrorRate float64 `json:"error_rate"`
	MinMs     float64 `json:"min_ms"`
	MaxMs     float64 `json:"max_ms"`
	MeanMs    float64 `json:"mean_ms"`
	P50Ms     float64 `json:"p50_ms"`
	P90Ms     float64 `json:"p90_ms"`
	P95Ms     float64 `json:"p95_ms"`
	P99Ms     float64 `json:"p99_ms"`
}

// WriteJSON renders the full task report as indented JSON.
func WriteJSON(w io.Writer, title string, results []bench.RunResult) error {
	out := jsonReport{
		Title:       title,
		GeneratedAt: time.Now().UTC(),
		Passed:      true,
	}
	for i := range results {
		res := results[i]
		jr := jsonResult{RunResult: res, Outcome: res.Outcome()}
		if res.Outcome() != bench.OutcomePassed {
			out.Passed = false
		}
		if len(res.Iterations) > 0 {
			s := metrics.Summarize(res.Iterations)
			jr.Summary = &jsonSummary{
				Count:     s.Count,
				Failures:  s.Failures,
				ErrorRate: s.ErrorRate,
				MinMs:     ms(s.Min),
				MaxMs:     ms(s.Max),
				MeanMs:    ms(s.Mean),
				P50Ms:     ms(s.P50),
				P90Ms:     ms(s.P90),
				P95Ms:     ms(s.P95),
				P99Ms:     ms(s.P99),
			}
		}
		out.Scenarios = append(out.Scenarios, jr)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
