package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/devicelab-dev/browser-runner/pkg/config"
	"github.com/devicelab-dev/browser-runner/pkg/core"
	"github.com/devicelab-dev/browser-runner/pkg/driver/cdp"
	"github.com/devicelab-dev/browser-runner/pkg/driver/htmldoc"
	"github.com/devicelab-dev/browser-runner/pkg/driver/webdriver"
	"github.com/devicelab-dev/browser-runner/pkg/executor"
	"github.com/devicelab-dev/browser-runner/pkg/logger"
)

// Driver names accepted by --driver.
const (
	driverWebDriver = "webdriver"
	driverCDP       = "cdp"
	driverHTML      = "html"
)

// loadConfig reads --config, or config.yaml from the home directory, and
// applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(config.GetHome())
	}
	if err != nil {
		return nil, err
	}

	if url := c.String("webdriver-url"); url != "" {
		cfg.WebDriver.URL = url
	}
	if file := c.String("log-file"); file != "" {
		cfg.Logger.File = file
	}
	if c.Bool("verbose") {
		cfg.Logger.Level = "debug"
	}
	if addr := c.String("metrics-addr"); addr != "" {
		cfg.Metrics.Addr = addr
	}
	return cfg, nil
}

// initLogger starts the global logger from the logger section.
func initLogger(cfg *config.Config, c *cli.Context) error {
	return logger.Init(logger.Options{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		File:       cfg.Logger.File,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		Console:    c.App.ErrWriter,
	})
}

// newTransportFactory returns the session factory for the selected driver.
func newTransportFactory(driver string, cfg *config.Config, htmlFile string, log *zap.Logger) (executor.TransportFactory, error) {
	switch strings.ToLower(driver) {
	case driverWebDriver:
		opts := webdriver.Options{
			RequestTimeout: cfg.WebDriver.RequestTimeout,
			RateLimit:      cfg.WebDriver.RateLimit,
			ConnectRetry:   cfg.WebDriver.ConnectRetry,
			Logger:         log.Named("webdriver"),
		}
		url, caps := cfg.WebDriver.URL, cfg.WebDriver.Capabilities
		return func(ctx context.Context) (core.Transport, error) {
			t, err := webdriver.Dial(ctx, url, caps, opts)
			if err != nil {
				return nil, err
			}
			return t, nil
		}, nil

	case driverCDP:
		opts := cdp.Options{
			Headless:     cfg.CDP.Headless,
			ExecPath:     cfg.CDP.ExecPath,
			WindowWidth:  cfg.CDP.WindowWidth,
			WindowHeight: cfg.CDP.WindowHeight,
			Logger:       log.Named("cdp"),
		}
		return func(ctx context.Context) (core.Transport, error) {
			t, err := cdp.Launch(ctx, opts)
			if err != nil {
				return nil, err
			}
			return t, nil
		}, nil

	case driverHTML:
		if htmlFile == "" {
			return nil, fmt.Errorf("--html-file is required with --driver html")
		}
		return func(context.Context) (core.Transport, error) {
			t, err := htmldoc.Open(htmlFile)
			if err != nil {
				return nil, err
			}
			return t, nil
		}, nil
	}
	return nil, fmt.Errorf("unknown driver %q (expected webdriver, cdp or html)", driver)
}
