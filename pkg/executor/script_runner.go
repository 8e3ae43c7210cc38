package executor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/browser-runner/pkg/core"
	"github.com/devicelab-dev/browser-runner/pkg/report"
	"github.com/devicelab-dev/browser-runner/pkg/script"
	"github.com/devicelab-dev/browser-runner/pkg/session"
)

// maxIncludeDepth bounds runScript nesting.
const maxIncludeDepth = 16

const closeTimeout = 30 * time.Second

// scriptRunner executes a single script.
type scriptRunner struct {
	runner  *Runner
	script  *script.Script
	logger  *zap.Logger
	session *session.Session
}

// run opens a session, executes every step and closes the session.
func (sr *scriptRunner) run(ctx context.Context) core.ScriptResult {
	start := time.Now()
	result := core.ScriptResult{
		Name:      sr.script.Name,
		FilePath:  sr.script.SourcePath,
		StartTime: start,
	}
	fail := func(msg string) core.ScriptResult {
		skipped := skippedScript(sr.script, msg)
		result.Steps = skipped.Steps
		result.ComputeSummary()
		result.Status = core.StatusFailed
		result.Error = msg
		result.Duration = time.Since(start)
		return result
	}

	defaults, err := sr.script.Defaults.Apply(sr.runner.config.Defaults)
	if err != nil {
		return fail(fmt.Sprintf("invalid defaults: %v", err))
	}

	transport, err := sr.runner.factory(ctx)
	if err != nil {
		sr.logger.Error("failed to open session", zap.Error(err))
		return fail(err.Error())
	}

	collector := report.NewCollector(sr.logger)
	sr.session = session.New(transport, session.Options{
		Defaults: defaults,
		Reporter: collector,
		Logger:   sr.logger,
		Tracer:   sr.runner.tracer,
		Context:  ctx,
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := sr.session.Close(closeCtx); err != nil {
			sr.logger.Warn("failed to close session", zap.Error(err))
		}
	}()

	for i, step := range sr.script.Steps {
		if ctx.Err() != nil {
			result.Steps = append(result.Steps, sr.skipRemaining(i, "execution cancelled")...)
			if result.Error == "" {
				result.Error = "execution cancelled"
			}
			break
		}

		stepResult := sr.executeStep(ctx, i, step, 0)
		result.Steps = append(result.Steps, stepResult)
		sr.runner.notify(func() {
			if sr.runner.config.OnStepComplete != nil {
				sr.runner.config.OnStepComplete(sr.script.Name, i, step.Label(), stepResult.Status, stepResult.Duration, stepResult.Error)
			}
		})

		if stepResult.Status == core.StatusFailed {
			result.Error = stepResult.Error
			result.Steps = append(result.Steps, sr.skipRemaining(i+1, "skipped after earlier failure")...)
			break
		}
	}

	result.Failures = collector.Messages()
	result.ComputeSummary()
	result.Status = result.AggregateStatus()
	if result.Status == core.StatusFailed && result.Error == "" && len(result.Failures) > 0 {
		result.Error = result.Failures[0]
	}
	result.Duration = time.Since(start)
	return result
}

func (sr *scriptRunner) skipRemaining(from int, reason string) []core.StepResult {
	var out []core.StepResult
	for j := from; j < len(sr.script.Steps); j++ {
		out = append(out, core.StepResult{
			Index:   j,
			Command: string(sr.script.Steps[j].Command),
			Status:  core.StatusSkipped,
			Message: reason,
		})
	}
	return out
}

// executeStep runs step and converts its outcome into a StepResult.
func (sr *scriptRunner) executeStep(ctx context.Context, idx int, step script.Step, depth int) core.StepResult {
	res := core.StepResult{
		Index:     idx,
		Command:   string(step.Command),
		StartTime: time.Now(),
	}

	var (
		data interface{}
		err  error
	)
	if step.Command == script.CmdRunScript {
		data, err = sr.runInclude(ctx, step, depth)
	} else {
		data, err = sr.dispatch(ctx, step)
	}
	res.Duration = time.Since(res.StartTime)
	res.Data = data

	switch {
	case err == nil:
		res.Status = core.StatusPassed
	case step.Params.Optional:
		res.Status = core.StatusSkipped
		res.Category = stepCategory(err)
		res.Message = "optional step failed"
		res.Error = err.Error()
	default:
		res.Status = core.StatusFailed
		res.Category = stepCategory(err)
		res.Message = step.Label()
		res.Error = err.Error()
	}

	sr.logger.Debug("step finished",
		zap.Int("step", idx),
		zap.String("command", res.Command),
		zap.String("status", res.Status.String()),
		zap.Duration("elapsed", res.Duration),
		zap.String("error", res.Error))
	return res
}

// runInclude executes another script's steps on the current session.
func (sr *scriptRunner) runInclude(ctx context.Context, step script.Step, depth int) (interface{}, error) {
	if depth >= maxIncludeDepth {
		return nil, core.ErrInvalidArgument.WithMessagef("runScript nested deeper than %d", maxIncludeDepth)
	}
	path := resolveInclude(sr.script.SourcePath, step.Params.File)
	included, err := script.ParseFile(path)
	if err != nil {
		return nil, err
	}

	executed := 0
	for i, inner := range included.Steps {
		if ctx.Err() != nil {
			return executed, ctx.Err()
		}
		r := sr.executeStep(ctx, i, inner, depth+1)
		executed++
		if r.Status == core.StatusFailed {
			return executed, fmt.Errorf("%s step %d (%s): %s", filepath.Base(path), i+1, inner.Command, r.Error)
		}
	}
	return executed, nil
}

// stepCategory reports not-found for lookups that failed inside a command's
// argument resolution.
func stepCategory(err error) core.ErrorCategory {
	if errors.Is(err, core.ErrElementNotFound) {
		return core.ErrCategoryNotFound
	}
	return core.CategoryOf(err)
}
