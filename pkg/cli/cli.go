// Package cli provides the command-line interface for browser-runner.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "driver",
		Aliases: []string{"d"},
		Usage:   "Transport to use (webdriver, cdp, html)",
		Value:   driverWebDriver,
		EnvVars: []string{"BROWSER_RUNNER_DRIVER"},
	},
	&cli.StringFlag{
		Name:    "webdriver-url",
		Usage:   "W3C WebDriver server URL (overrides webdriver.url)",
		EnvVars: []string{"WEBDRIVER_URL"},
	},
	&cli.StringFlag{
		Name:  "html-file",
		Usage: "HTML document served by the html driver",
	},
	&cli.StringFlag{
		Name:  "config",
		Usage: "Path to config.yaml (default: <home>/config.yaml)",
	},
	&cli.StringFlag{
		Name:  "log-file",
		Usage: "Write JSON logs to this file (rotated)",
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"BROWSER_RUNNER_VERBOSE"},
	},
	&cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "Serve Prometheus metrics on this address (e.g. :9090)",
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// NewApp builds the CLI application writing to stdout and stderr.
func NewApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:    "browser-runner",
		Usage:   "Run YAML browser scripts against WebDriver or Chrome",
		Version: Version,
		Description: `browser-runner executes YAML scripts that locate elements and drive
a browser session through W3C WebDriver, the Chrome DevTools protocol,
or a static HTML document.

Examples:
  browser-runner run login.yaml
  browser-runner --driver cdp run scripts/ --parallel 4
  browser-runner --driver html --html-file page.html run smoke.yaml
  browser-runner validate scripts/`,
		Flags: GlobalFlags,
		Commands: []*cli.Command{
			runCommand,
			validateCommand,
		},
		Writer:    stdout,
		ErrWriter: stderr,
	}
}

// Execute runs the CLI.
func Execute() {
	app := NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
