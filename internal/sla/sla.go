// Package sla evaluates aggregated iteration results against declarative
// pass/fail rules. Evaluation is pure and deterministic: the same result
// sequence and rule set always produce the same verdict.
package sla

import (
	"fmt"

	"github.com/loadstone/loadstone/internal/bench"
	"github.com/loadstone/loadstone/internal/metrics"
)

// Evaluate runs every configured rule independently over the full result
// set and ANDs their verdicts. The violations list carries one
// human-readable entry per failed rule with the observed vs. threshold
// values.
func Evaluate(results []bench.IterationResult, spec bench.SLASpec) *bench.Verdict {
	verdict := &bench.Verdict{Passed: true}
	if len(spec.Rules) == 0 {
		return verdict
	}

	summary := metrics.Summarize(results)
	for _, rule := range spec.Rules {
		rr := evaluateRule(rule, summary)
		verdict.Rules = append(verdict.Rules, rr)
		if !rr.Passed {
			verdict.Passed = false
			verdict.Violations = append(verdict.Violations, rr.Detail)
		}
	}
	return verdict
}

func evaluateRule(rule bench.SLARule, s *metrics.Summary) bench.RuleResult {
	switch rule.Kind {
	case bench.SLANoFailures:
		return noFailures(rule, s)
	case bench.SLAMaxAvgDuration:
		return maxAvgDuration(rule, s)
	case bench.SLAMaxFailureRate:
		return maxFailureRate(rule, s)
	case bench.SLAMaxPercentileDuration:
		return maxPercentileDuration(rule, s)
	case bench.SLAMaxIterationDuration:
		return maxIterationDuration(rule, s)
	default:
		return bench.RuleResult{
			Kind:   rule.Kind,
			Passed: false,
			Detail: fmt.Sprintf("unknown SLA rule kind: %s", rule.Kind),
		}
	}
}

func noFailures(rule bench.SLARule, s *metrics.Summary) bench.RuleResult {
	rr := bench.RuleResult{
		Kind:      rule.Kind,
		Passed:    s.Failures == 0,
		Observed:  fmt.Sprintf("%d failures", s.Failures),
		Threshold: "0 failures",
	}
	if !rr.Passed {
		rr.Detail = fmt.Sprintf("%d failures observed", s.Failures)
	}
	return rr
}

// maxAvgDuration checks the mean over non-error iterations. A run with no
// successful iterations has no average to judge; the rule passes
// vacuously and leaves failure detection to no_failures/max_failure_rate.
func maxAvgDuration(rule bench.SLARule, s *metrics.Summary) bench.RuleResult {
	rr := bench.RuleResult{
		Kind:      rule.Kind,
		Threshold: rule.Duration.String(),
	}
	if s.Successes() == 0 {
		rr.Passed = true
		rr.Observed = "no successful iterations"
		return rr
	}
	rr.Observed = s.Mean.String()
	rr.Passed = s.Mean <= rule.Duration
	if !rr.Passed {
		rr.Detail = fmt.Sprintf("average duration is %s, threshold: %s", s.Mean, rule.Duration)
	}
	return rr
}

func maxFailureRate(rule bench.SLARule, s *metrics.Summary) bench.RuleResult {
	rr := bench.RuleResult{
		Kind:      rule.Kind,
		Observed:  fmt.Sprintf("%.4f", s.ErrorRate),
		Threshold: fmt.Sprintf("%.4f", rule.Threshold),
		Passed:    s.ErrorRate <= rule.Threshold,
	}
	if !rr.Passed {
		rr.Detail = fmt.Sprintf("failure rate is %.4f, threshold: %.4f", s.ErrorRate, rule.Threshold)
	}
	return rr
}

func maxPercentileDuration(rule bench.SLARule, s *metrics.Summary) bench.RuleResult {
	rr := bench.RuleResult{
		Kind:      rule.Kind,
		Threshold: fmt.Sprintf("p%g <= %s", rule.Percentile, rule.Duration),
	}
	if s.Successes() == 0 {
		rr.Passed = true
		rr.Observed = "no successful iterations"
		return rr
	}
	observed := s.Percentile(rule.Percentile)
	rr.Observed = observed.String()
	rr.Passed = observed <= rule.Duration
	if !rr.Passed {
		rr.Detail = fmt.Sprintf("p%g duration is %s, threshold: %s", rule.Percentile, observed, rule.Duration)
	}
	return rr
}

func maxIterationDuration(rule bench.SLARule, s *metrics.Summary) bench.RuleResult {
	rr := bench.RuleResult{
		Kind:      rule.Kind,
		Observed:  s.Max.String(),
		Threshold: rule.Duration.String(),
	}
	if s.Successes() == 0 {
		rr.Passed = true
		rr.Observed = "no successful iterations"
		return rr
	}
	rr.Passed = s.Max <= rule.Duration
	if !rr.Passed {
		rr.Detail = fmt.Sprintf("slowest iteration took %s, threshold: %s", s.Max, rule.Duration)
	}
	return rr
}
