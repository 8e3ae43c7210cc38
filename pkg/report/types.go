// Package report writes run results and collects test failures.
//
// Layout of the output directory:
//   - report.json: run index with per-script status and summary
//   - scripts/script-NNN.json: per-script step details
package report

import (
	"time"

	"github.com/devicelab-dev/browser-runner/pkg/core"
)

// Version is the report schema version.
const Version = "1.0.0"

// Index is the main report file.
type Index struct {
	Version   string          `json:"version"`
	RunID     string          `json:"runId"`
	Status    core.StepStatus `json:"status"`
	StartTime time.Time       `json:"startTime"`
	EndTime   time.Time       `json:"endTime"`
	Duration  int64           `json:"duration"` // ms
	Runner    RunnerInfo      `json:"runner"`
	Summary   Summary         `json:"summary"`
	Scripts   []ScriptEntry   `json:"scripts"`
}

// RunnerInfo describes the runner that produced the report.
type RunnerInfo struct {
	Version string `json:"version"`
	Driver  string `json:"driver"`
}

// Summary counts scripts by status.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// ScriptEntry is the index entry for one script.
type ScriptEntry struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	SourceFile string          `json:"sourceFile"`
	DataFile   string          `json:"dataFile"` // relative to the report directory
	Status     core.StepStatus `json:"status"`
	Duration   int64           `json:"duration"` // ms
	Steps      StepSummary     `json:"steps"`
	Failures   int             `json:"failures"`
	Error      string          `json:"error,omitempty"`
}

// StepSummary counts steps by status.
type StepSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}
