package core

import (
	"time"
)

// StepResult captures the complete outcome of executing a single script step
type StepResult struct {
	// Identity
	Index   int    `json:"index"`   // 0-based position in script
	Command string `json:"command"` // Command name: getText, click, findByLabelText, etc.

	// Status
	Status   StepStatus    `json:"status"`
	Category ErrorCategory `json:"errorCategory,omitempty"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Output
	Message string      `json:"message,omitempty"` // Human-readable explanation
	Data    interface{} `json:"data,omitempty"`    // Command result value

	// Error Details
	Error string `json:"error,omitempty"` // Technical error message
}

// ScriptResult captures the complete outcome of executing a script
type ScriptResult struct {
	// Identity
	Name     string `json:"name"`
	FilePath string `json:"filePath"`

	// Status (aggregated from steps)
	Status StepStatus `json:"status"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Results
	Steps []StepResult `json:"steps"`

	// Summary (computed)
	TotalSteps   int `json:"totalSteps"`
	PassedSteps  int `json:"passedSteps"`
	FailedSteps  int `json:"failedSteps"`
	SkippedSteps int `json:"skippedSteps"`

	// Failures registered with the reporter while the script ran
	Failures []string `json:"failures,omitempty"`

	// Error info (if script failed)
	Error string `json:"error,omitempty"`
}

// ComputeSummary calculates step counts from the Steps slice
func (r *ScriptResult) ComputeSummary() {
	r.TotalSteps = len(r.Steps)
	r.PassedSteps = 0
	r.FailedSteps = 0
	r.SkippedSteps = 0

	for _, step := range r.Steps {
		switch step.Status {
		case StatusPassed:
			r.PassedSteps++
		case StatusFailed:
			r.FailedSteps++
		case StatusSkipped:
			r.SkippedSteps++
		}
	}
}

// AggregateStatus determines the script status from step results and registered failures.
// A failure registered through abortOnFailure fails the script even if every step passed.
func (r *ScriptResult) AggregateStatus() StepStatus {
	for _, step := range r.Steps {
		if step.Status == StatusFailed {
			return StatusFailed
		}
	}
	if len(r.Failures) > 0 {
		return StatusFailed
	}
	if len(r.Steps) > 0 && r.SkippedSteps == len(r.Steps) {
		return StatusSkipped
	}
	return StatusPassed
}

// SuiteResult captures the complete outcome of executing multiple scripts
type SuiteResult struct {
	RunID string `json:"runId"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Results
	Scripts []ScriptResult `json:"scripts"`

	// Summary
	TotalScripts   int `json:"totalScripts"`
	PassedScripts  int `json:"passedScripts"`
	FailedScripts  int `json:"failedScripts"`
	SkippedScripts int `json:"skippedScripts"`
}

// ComputeSummary calculates script counts from the Scripts slice
func (s *SuiteResult) ComputeSummary() {
	s.TotalScripts = len(s.Scripts)
	s.PassedScripts = 0
	s.FailedScripts = 0
	s.SkippedScripts = 0

	for _, sc := range s.Scripts {
		switch sc.Status {
		case StatusPassed:
			s.PassedScripts++
		case StatusFailed:
			s.FailedScripts++
		case StatusSkipped:
			s.SkippedScripts++
		}
	}
}

// Success returns true if all scripts passed
func (s *SuiteResult) Success() bool {
	for _, sc := range s.Scripts {
		if sc.Status != StatusPassed {
			return false
		}
	}
	return len(s.Scripts) > 0
}
