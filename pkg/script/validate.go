package script

import (
	"fmt"
	"strings"

	"github.com/devicelab-dev/browser-runner/pkg/command"
	"github.com/devicelab-dev/browser-runner/pkg/locator"
)

// StepError is a validation error for one step.
type StepError struct {
	Path    string
	Line    int
	Command Command
	Message string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s:%d: %s: %s", e.Path, e.Line, e.Command, e.Message)
}

// Validate checks every step's arguments without running anything.
func Validate(s *Script) []error {
	var errs []error
	if _, err := s.Defaults.Apply(locator.NewDefaults()); err != nil {
		errs = append(errs, &ParseError{Path: s.SourcePath, Message: fmt.Sprintf("invalid defaults: %v", err)})
	}
	for _, step := range s.Steps {
		if msg := validateStep(step); msg != "" {
			errs = append(errs, &StepError{Path: s.SourcePath, Line: step.Line, Command: step.Command, Message: msg})
		}
	}
	return errs
}

func validateStep(step Step) string {
	p := step.Params
	if p.Using != "" {
		if _, err := parseStrategy(p.Using); err != nil {
			return err.Error()
		}
	}
	if p.Selector != nil {
		if _, err := p.Selector.Normalize("", locator.NewDefaults()); err != nil {
			return err.Error()
		}
	}

	switch step.Command {
	case CmdFind, CmdFindAll, CmdGetText, CmdClick, CmdGetLastElementChild, CmdIsDisplayed:
		return requireSelector(p)
	case CmdGetAttribute:
		if msg := requireSelector(p); msg != "" {
			return msg
		}
		if p.Name == "" {
			return "name is required"
		}
	case CmdSendKeys:
		if msg := requireSelector(p); msg != "" {
			return msg
		}
		if p.Text == "" {
			return "text is required"
		}
	case CmdFindByLabelText:
		if strings.TrimSpace(p.Text) == "" {
			return "label text is required"
		}
	case CmdNavigateTo:
		if p.URL == "" {
			return "url is required"
		}
	case CmdSetWindowPosition:
		if err := validateCommandArgs(command.WindowSetPosition, p.X, p.Y); err != nil {
			return err.Error()
		}
	case CmdPause:
		if p.Duration == nil {
			return "duration is required"
		}
		if _, err := locator.ParseDuration(p.Duration); err != nil {
			return fmt.Sprintf("invalid duration: %v", err)
		}
	case CmdRunScript:
		if p.File == "" {
			return "file is required"
		}
	}
	return ""
}

func requireSelector(p Params) string {
	if p.Selector == nil || p.Selector.Selector == "" {
		return "selector is required"
	}
	return ""
}

func validateCommandArgs(name string, args ...interface{}) error {
	d, err := command.Lookup(name)
	if err != nil {
		return err
	}
	return d.Validate(args)
}
