package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/devicelab-dev/browser-runner/pkg/config"
	"github.com/devicelab-dev/browser-runner/pkg/logger"
	"github.com/devicelab-dev/browser-runner/pkg/validator"
)

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Check scripts without opening a browser",
	ArgsUsage: "<script-file-or-folder>...",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "include-tags",
			Usage: "Only include scripts with these tags",
		},
		&cli.StringSliceFlag{
			Name:  "exclude-tags",
			Usage: "Exclude scripts with these tags",
		},
	},
	Action: validateScriptsAction,
}

func newValidator(c *cli.Context) *validator.Validator {
	return validator.New(c.StringSlice("include-tags"), c.StringSlice("exclude-tags"))
}

func validateScriptsAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one script file or folder is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	// No report directory here, so logs go under the home directory.
	if cfg.Logger.File == "" {
		cfg.Logger.File = config.DefaultLogFile()
	}
	if err := initLogger(cfg, c); err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Named("validate")

	result := newValidator(c).Validate(c.Args().Slice()...)
	for _, verr := range result.Errors {
		log.Warn("invalid script", zap.Error(verr))
	}
	log.Info("validated scripts",
		zap.Int("files", len(result.Files)),
		zap.Int("scripts", len(result.Scripts)),
		zap.Int("errors", len(result.Errors)))

	out := c.App.Writer
	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	if c.Bool("no-ansi") {
		ok.DisableColor()
		bad.DisableColor()
	}

	for _, err := range result.Errors {
		fmt.Fprintf(out, "  %s %v\n", bad.Sprint("✗"), err)
	}
	if !result.IsValid() {
		fmt.Fprintf(out, "\n  %s\n", bad.Sprintf("%d error(s) in %d file(s)", len(result.Errors), len(result.Files)))
		return cli.Exit("", 1)
	}

	fmt.Fprintf(out, "  %s %d file(s) valid, %d script(s) selected\n", ok.Sprint("✓"), len(result.Files), len(result.Scripts))
	return nil
}
