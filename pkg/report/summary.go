package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/devicelab-dev/browser-runner/pkg/core"
)

const tableWidth = 86

type palette struct {
	pass, fail, skip, bold *color.Color
}

func newPalette(noColor bool) palette {
	p := palette{
		pass: color.New(color.FgGreen),
		fail: color.New(color.FgRed),
		skip: color.New(color.FgCyan),
		bold: color.New(color.Bold),
	}
	if noColor {
		for _, c := range []*color.Color{p.pass, p.fail, p.skip, p.bold} {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) status(s core.StepStatus) (string, *color.Color) {
	switch s {
	case core.StatusFailed:
		return "✗ FAIL", p.fail
	case core.StatusSkipped:
		return "- SKIP", p.skip
	default:
		return "✓ PASS", p.pass
	}
}

// PrintSummary prints the step totals and a per-script table.
func PrintSummary(w io.Writer, suite *core.SuiteResult, noColor bool) {
	p := newPalette(noColor)

	var total, passed, failed, skipped int
	for _, sc := range suite.Scripts {
		total += sc.TotalSteps
		passed += sc.PassedSteps
		failed += sc.FailedSteps
		skipped += sc.SkippedSteps
	}

	fmt.Fprintln(w)
	if passed > 0 {
		fmt.Fprintf(w, "  %s (%s)\n", p.pass.Sprintf("%d steps passing", passed), FormatDuration(suite.Duration))
	}
	if failed > 0 {
		fmt.Fprintf(w, "  %s\n", p.fail.Sprintf("%d steps failing", failed))
	}
	if skipped > 0 {
		fmt.Fprintf(w, "  %s\n", p.skip.Sprintf("%d steps skipped", skipped))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, strings.Repeat("═", tableWidth))
	fmt.Fprintf(w, "  %-30s %6s %7s %6s %6s %6s %10s\n", "Script", "Status", "Steps", "Pass", "Fail", "Skip", "Duration")
	fmt.Fprintln(w, strings.Repeat("─", tableWidth))

	for _, sc := range suite.Scripts {
		label, c := p.status(sc.Status)
		name := sc.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		fmt.Fprintf(w, "  %-30s %s %7d %6d %6d %6d %10s\n",
			name, c.Sprintf("%6s", label),
			sc.TotalSteps, sc.PassedSteps, sc.FailedSteps, sc.SkippedSteps,
			FormatDuration(sc.Duration))
	}

	fmt.Fprintln(w, strings.Repeat("─", tableWidth))
	totals := p.pass
	if suite.FailedScripts > 0 {
		totals = p.fail
	}
	fmt.Fprintf(w, "  %s %s %7d %6d %6d %6d %10s\n",
		p.bold.Sprintf("%-30s", "TOTAL"),
		totals.Sprintf("%6s", fmt.Sprintf("%d/%d", suite.PassedScripts, suite.TotalScripts)),
		total, passed, failed, skipped, FormatDuration(suite.Duration))
	fmt.Fprintln(w, strings.Repeat("═", tableWidth))

	for _, sc := range suite.Scripts {
		if sc.Status != core.StatusFailed {
			continue
		}
		fmt.Fprintf(w, "\n  %s\n", p.fail.Sprint(sc.Name))
		for _, step := range sc.Steps {
			if step.Status == core.StatusFailed {
				fmt.Fprintf(w, "    step %d %s: %s\n", step.Index+1, step.Command, step.Error)
			}
		}
		for _, msg := range sc.Failures {
			fmt.Fprintf(w, "    reported: %s\n", msg)
		}
	}
}

// FormatDuration renders d as 850ms, 2.3s or 1m 5s.
func FormatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}
