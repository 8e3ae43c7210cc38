// Package executor runs parsed scripts against browser sessions and collects
// their results.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devicelab-dev/browser-runner/pkg/core"
	"github.com/devicelab-dev/browser-runner/pkg/locator"
	"github.com/devicelab-dev/browser-runner/pkg/metrics"
	"github.com/devicelab-dev/browser-runner/pkg/report"
	"github.com/devicelab-dev/browser-runner/pkg/script"
)

const tracerName = "github.com/devicelab-dev/browser-runner/pkg/executor"

// TransportFactory opens a fresh browser session. Each script gets its own.
type TransportFactory func(ctx context.Context) (core.Transport, error)

// RunnerConfig configures the script runner.
type RunnerConfig struct {
	OutputDir   string // Report output directory, empty = no report files
	Parallelism int    // Max concurrent scripts (0 = sequential)
	StopOnFail  bool   // Skip scripts not yet started after the first failure

	// Defaults are the session lookup defaults before script overrides.
	Defaults locator.Defaults

	Logger *zap.Logger
	Tracer trace.Tracer

	// Runner metadata
	RunnerVersion string
	DriverName    string

	// Live progress callbacks
	OnScriptStart  func(scriptIdx, totalScripts int, name, file string)
	OnStepComplete func(scriptName string, idx int, label string, status core.StepStatus, d time.Duration, errMsg string)
	OnScriptEnd    func(name string, status core.StepStatus, d time.Duration)
}

// Runner orchestrates script execution.
type Runner struct {
	config  RunnerConfig
	factory TransportFactory
	logger  *zap.Logger
	tracer  trace.Tracer

	// callbacks may run from several goroutines
	cbMu sync.Mutex
}

// New creates a new Runner.
func New(factory TransportFactory, cfg RunnerConfig) *Runner {
	cfg.Defaults = cfg.Defaults.WithFallback()
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Runner{
		config:  cfg,
		factory: factory,
		logger:  logger,
		tracer:  tracer,
	}
}

// Run executes all scripts and writes the report when OutputDir is set.
// The returned error covers report output only; script failures are in the result.
func (r *Runner) Run(ctx context.Context, scripts []*script.Script) (*core.SuiteResult, error) {
	suite := &core.SuiteResult{
		RunID:     uuid.NewString(),
		StartTime: time.Now(),
		Scripts:   make([]core.ScriptResult, len(scripts)),
	}
	r.logger.Info("run started", zap.String("run", suite.RunID), zap.Int("scripts", len(scripts)))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	limit := r.config.Parallelism
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)

	for i, s := range scripts {
		i, s := i, s
		g.Go(func() error {
			if runCtx.Err() != nil {
				suite.Scripts[i] = skippedScript(s, "execution cancelled")
				metrics.RecordScript(core.StatusSkipped.String())
				return nil
			}
			result := r.executeScript(runCtx, s, i, len(scripts))
			suite.Scripts[i] = result
			metrics.RecordScript(result.Status.String())
			if result.Status == core.StatusFailed && r.config.StopOnFail {
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait()

	suite.Duration = time.Since(suite.StartTime)
	suite.ComputeSummary()
	r.logger.Info("run finished",
		zap.String("run", suite.RunID),
		zap.Int("passed", suite.PassedScripts),
		zap.Int("failed", suite.FailedScripts),
		zap.Int("skipped", suite.SkippedScripts),
		zap.Duration("elapsed", suite.Duration))

	if r.config.OutputDir != "" {
		info := report.RunnerInfo{Version: r.config.RunnerVersion, Driver: r.config.DriverName}
		if _, err := report.Write(r.config.OutputDir, suite, info); err != nil {
			return suite, fmt.Errorf("failed to write report: %w", err)
		}
	}
	return suite, nil
}

// executeScript runs one script on its own session.
func (r *Runner) executeScript(ctx context.Context, s *script.Script, idx, total int) core.ScriptResult {
	ctx, span := r.tracer.Start(ctx, "script "+s.Name, trace.WithAttributes(
		attribute.String("script.file", s.SourcePath),
		attribute.Int("script.steps", len(s.Steps)),
	))
	defer span.End()

	r.notify(func() {
		if r.config.OnScriptStart != nil {
			r.config.OnScriptStart(idx, total, s.Name, s.SourcePath)
		}
	})

	sr := &scriptRunner{runner: r, script: s, logger: r.logger.With(zap.String("script", s.Name))}
	result := sr.run(ctx)

	if result.Status == core.StatusFailed {
		span.SetStatus(codes.Error, result.Error)
	}
	r.notify(func() {
		if r.config.OnScriptEnd != nil {
			r.config.OnScriptEnd(result.Name, result.Status, result.Duration)
		}
	})
	return result
}

func (r *Runner) notify(fn func()) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	fn()
}

func skippedScript(s *script.Script, reason string) core.ScriptResult {
	result := core.ScriptResult{
		Name:      s.Name,
		FilePath:  s.SourcePath,
		StartTime: time.Now(),
		Status:    core.StatusSkipped,
		Error:     reason,
	}
	for i, step := range s.Steps {
		result.Steps = append(result.Steps, core.StepResult{
			Index:   i,
			Command: string(step.Command),
			Status:  core.StatusSkipped,
			Message: reason,
		})
	}
	result.ComputeSummary()
	return result
}
