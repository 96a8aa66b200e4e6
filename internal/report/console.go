// Package report renders finished run results for humans (console) and
// machines (JSON).
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/loadstone/loadstone/internal/bench"
	"github.com/loadstone/loadstone/internal/metrics"
)

const headerRule = "━"

// scheme holds the colors used across the console report.
type scheme struct {
	Title   *color.Color
	Pass    *color.Color
	Fail    *color.Color
	Warn    *color.Color
	Value   *color.Color
	Section *color.Color
}

func newScheme(enabled bool) *scheme {
	s := &scheme{
		Title:   color.New(color.FgCyan, color.Bold),
		Pass:    color.New(color.FgGreen, color.Bold),
		Fail:    color.New(color.FgRed, color.Bold),
		Warn:    color.New(color.FgYellow, color.Bold),
		Value:   color.New(color.FgCyan),
		Section: color.New(color.Bold),
	}
	if !enabled {
		for _, c := range []*color.Color{s.Title, s.Pass, s.Fail, s.Warn, s.Value, s.Section} {
			c.DisableColor()
		}
	}
	return s
}

// Console writes a human-readable summary of task results.
type Console struct {
	w      io.Writer
	colors *scheme
	quiet  bool
}

// Config controls console rendering.
type Config struct {
	Writer io.Writer

	// Quiet reduces output to one PASSED/FAILED line per scenario.
	Quiet bool

	// NoColor disables colors even on a terminal; ForceColors enables
	// them even off one. NoColor wins.
	NoColor     bool
	ForceColors bool
}

// NewConsole builds a console reporter. Colors default to on when the
// writer is a terminal.
func NewConsole(cfg Config) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	enabled := cfg.ForceColors || isTerminal(cfg.Writer)
	if cfg.NoColor || os.Getenv("NO_COLOR") != "" {
		enabled = false
	}
	return &Console{
		w:      cfg.Writer,
		colors: newScheme(enabled),
		quiet:  cfg.Quiet,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// PrintHeader announces the task before the first scenario runs.
func (c *Console) PrintHeader(title string, scenarios int) {
	if c.quiet {
		return
	}
	if title == "" {
		title = "benchmark task"
	}
	line := strings.Repeat(headerRule, 56)
	fmt.Fprintln(c.w, c.colors.Title.Sprint(line))
	fmt.Fprintf(c.w, "%s (%d scenarios)\n", c.colors.Section.Sprint(title), scenarios)
	fmt.Fprintln(c.w, c.colors.Title.Sprint(line))
}

// PrintResult renders one scenario's outcome, latency distribution, and
// SLA verdict.
func (c *Console) PrintResult(res *bench.RunResult) {
	outcome := res.Outcome()

	if c.quiet {
		fmt.Fprintf(c.w, "%s %s\n", c.outcomeLabel(outcome), res.ScenarioName)
		return
	}

	fmt.Fprintf(c.w, "\n%s %s — %s\n",
		c.outcomeLabel(outcome),
		c.colors.Section.Sprint(res.ScenarioName),
		res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))

	if res.SetupError != "" {
		fmt.Fprintf(c.w, "  setup: %s\n", c.colors.Fail.Sprint(res.SetupError))
		return
	}
	if res.Aborted {
		fmt.Fprintf(c.w, "  aborted: %s\n", c.colors.Warn.Sprint(res.AbortReason))
	}

	s := metrics.Summarize(res.Iterations)
	fmt.Fprintf(c.w, "  iterations: %s  failures: %s  error rate: %s\n",
		c.colors.Value.Sprintf("%d", s.Count),
		c.failureValue(s.Failures),
		c.colors.Value.Sprintf("%.2f%%", s.ErrorRate*100))

	if s.Successes() > 0 {
		fmt.Fprintf(c.w, "  min %s  p50 %s  p90 %s  p95 %s  p99 %s  max %s  mean %s\n",
			shortDuration(s.Min), shortDuration(s.P50), shortDuration(s.P90),
			shortDuration(s.P95), shortDuration(s.P99), shortDuration(s.Max),
			shortDuration(s.Mean))
	}

	c.printVerdict(res.Verdict)
}

func (c *Console) printVerdict(v *bench.Verdict) {
	if v == nil || len(v.Rules) == 0 {
		return
	}
	fmt.Fprintln(c.w, c.colors.Section.Sprint("  SLA:"))
	for _, rule := range v.Rules {
		mark := c.colors.Pass.Sprint("✓")
		if !rule.Passed {
			mark = c.colors.Fail.Sprint("✗")
		}
		fmt.Fprintf(c.w, "    %s %s (observed: %s, threshold: %s)\n",
			mark, rule.Kind, rule.Observed, rule.Threshold)
	}
}

// PrintFooter renders the overall task verdict and returns true when
// every scenario passed.
func (c *Console) PrintFooter(results []bench.RunResult) bool {
	passed := 0
	for i := range results {
		if results[i].Outcome() == bench.OutcomePassed {
			passed++
		}
	}
	ok := passed == len(results)

	if !c.quiet {
		fmt.Fprintln(c.w)
	}
	label := c.colors.Pass.Sprint("PASSED")
	if !ok {
		label = c.colors.Fail.Sprint("FAILED")
	}
	fmt.Fprintf(c.w, "%s: %d/%d scenarios passed\n", label, passed, len(results))
	return ok
}

func (c *Console) outcomeLabel(o string) string {
	switch o {
	case bench.OutcomePassed:
		return c.colors.Pass.Sprint("PASS")
	case bench.OutcomeSLAFailed:
		return c.colors.Fail.Sprint("FAIL")
	case bench.OutcomeAborted:
		return c.colors.Warn.Sprint("ABRT")
	default:
		return c.colors.Fail.Sprint("ERR ")
	}
}

func (c *Console) failureValue(n int64) string {
	if n == 0 {
		return c.colors.Pass.Sprintf("%d", n)
	}
	return c.colors.Fail.Sprintf("%d", n)
}

func shortDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}
