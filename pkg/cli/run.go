package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/devicelab-dev/browser-runner/pkg/core"
	"github.com/devicelab-dev/browser-runner/pkg/executor"
	"github.com/devicelab-dev/browser-runner/pkg/logger"
	"github.com/devicelab-dev/browser-runner/pkg/metrics"
	"github.com/devicelab-dev/browser-runner/pkg/report"
	"github.com/devicelab-dev/browser-runner/pkg/script"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Run browser scripts",
	ArgsUsage: "<script-file-or-folder>...",
	Description: `Run one or more YAML scripts. Each script gets its own browser session.

Reports are generated in the output directory:
  - Default: ./reports/<timestamp>/
  - With --output: <output>/<timestamp>/
  - With --output and --flatten: <output>/ (no timestamp subfolder)

Examples:
  browser-runner run login.yaml
  browser-runner run scripts/ --include-tags smoke
  browser-runner run scripts/ --parallel 4 --stop-on-fail`,
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "include-tags",
			Usage: "Only include scripts with these tags",
		},
		&cli.StringSliceFlag{
			Name:  "exclude-tags",
			Usage: "Exclude scripts with these tags",
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Output directory for reports (default: ./reports)",
		},
		&cli.BoolFlag{
			Name:  "flatten",
			Usage: "Don't create timestamp subfolder (requires --output)",
		},
		&cli.IntFlag{
			Name:  "parallel",
			Usage: "Run up to N scripts at once (overrides runner.parallelism)",
		},
		&cli.BoolFlag{
			Name:  "stop-on-fail",
			Usage: "Skip remaining scripts after the first failure",
		},
	},
	Action: runScripts,
}

func runScripts(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one script file or folder is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("parallel") {
		cfg.Runner.Parallelism = c.Int("parallel")
	}
	if c.Bool("stop-on-fail") {
		cfg.Runner.StopOnFail = true
	}

	outputDir, err := resolveOutputDir(c.String("output"), c.Bool("flatten"))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if cfg.Logger.File == "" {
		cfg.Logger.File = filepath.Join(outputDir, "browser-runner.log")
	}
	if err := initLogger(cfg, c); err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Named("run")

	scripts, err := validateScripts(c, c.Args().Slice())
	if err != nil {
		return err
	}
	log.Info("validated scripts", zap.Int("count", len(scripts)), zap.String("output", outputDir))

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Addr != "" {
		metricsCtx, cancelMetrics := context.WithCancel(ctx)
		defer cancelMetrics()
		go func() {
			if err := metrics.Serve(metricsCtx, cfg.Metrics.Addr); err != nil {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	driver := c.String("driver")
	factory, err := newTransportFactory(driver, cfg, c.String("html-file"), logger.L())
	if err != nil {
		return err
	}
	defaults, err := cfg.Locate.Defaults()
	if err != nil {
		return err
	}

	noColor := c.Bool("no-ansi")
	out := c.App.Writer
	runner := executor.New(factory, executor.RunnerConfig{
		OutputDir:     outputDir,
		Parallelism:   cfg.Runner.Parallelism,
		StopOnFail:    cfg.Runner.StopOnFail,
		Defaults:      defaults,
		Logger:        logger.Named("executor"),
		RunnerVersion: Version,
		DriverName:    driver,
		OnScriptStart: func(idx, total int, name, file string) {
			fmt.Fprintf(out, "\n  [%d/%d] %s (%s)\n", idx+1, total, name, filepath.Base(file))
		},
		OnStepComplete: func(scriptName string, idx int, label string, status core.StepStatus, d time.Duration, errMsg string) {
			printStep(out, scriptName, label, status, d, errMsg, noColor)
		},
	})

	suite, err := runner.Run(ctx, scripts)
	if err != nil {
		return err
	}

	report.PrintSummary(out, suite, noColor)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Reports:")
	fmt.Fprintf(out, "    JSON:   %s\n", filepath.Join(outputDir, "report.json"))
	fmt.Fprintln(out)

	if !suite.Success() {
		return cli.Exit("", 1)
	}
	return nil
}

// validateScripts parses and validates paths, printing every error.
func validateScripts(c *cli.Context, paths []string) ([]*script.Script, error) {
	v := newValidator(c)
	result := v.Validate(paths...)
	if !result.IsValid() {
		fmt.Fprintln(c.App.ErrWriter, "Validation errors:")
		for _, err := range result.Errors {
			fmt.Fprintf(c.App.ErrWriter, "  - %v\n", err)
		}
		return nil, fmt.Errorf("validation failed with %d error(s)", len(result.Errors))
	}
	if len(result.Scripts) == 0 {
		return nil, fmt.Errorf("no scripts to run")
	}
	return result.Scripts, nil
}

// resolveOutputDir determines the report directory.
func resolveOutputDir(output string, flatten bool) (string, error) {
	if flatten && output == "" {
		return "", fmt.Errorf("--flatten requires --output to be specified")
	}

	baseDir := output
	if baseDir == "" {
		baseDir = "./reports"
	}

	if flatten {
		return filepath.Clean(baseDir), nil
	}

	// Create timestamp-based subfolder
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(baseDir, timestamp), nil
}

// printStep prints one live progress line.
func printStep(w io.Writer, scriptName, label string, status core.StepStatus, d time.Duration, errMsg string, noColor bool) {
	var c *color.Color
	mark := "✓"
	switch status {
	case core.StatusFailed:
		c, mark = color.New(color.FgRed), "✗"
	case core.StatusSkipped:
		c, mark = color.New(color.FgCyan), "-"
	default:
		c = color.New(color.FgGreen)
	}
	if noColor {
		c.DisableColor()
	}
	fmt.Fprintf(w, "    %s %s › %s (%s)\n", c.Sprint(mark), scriptName, label, report.FormatDuration(d))
	if errMsg != "" {
		fmt.Fprintf(w, "      %s\n", c.Sprint(errMsg))
	}
}
