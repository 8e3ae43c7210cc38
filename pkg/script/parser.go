package script

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/browser-runner/pkg/core"
	"github.com/devicelab-dev/browser-runner/pkg/locator"
)

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ParseFile parses a single script file.
func ParseFile(path string) (*Script, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is a user-provided script
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data, path)
}

// Parse parses script YAML.
func Parse(data []byte, sourcePath string) (*Script, error) {
	var raw struct {
		Name     string      `yaml:"name"`
		Tags     []string    `yaml:"tags"`
		Defaults Defaults    `yaml:"defaults"`
		Steps    []yaml.Node `yaml:"steps"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Path: sourcePath, Message: fmt.Sprintf("invalid script: %v", err)}
	}
	if len(raw.Steps) == 0 {
		return nil, &ParseError{Path: sourcePath, Line: 1, Message: "script has no steps"}
	}

	s := &Script{
		SourcePath: sourcePath,
		Name:       raw.Name,
		Tags:       raw.Tags,
		Defaults:   raw.Defaults,
	}
	for i := range raw.Steps {
		step, err := parseStep(&raw.Steps[i], sourcePath)
		if err != nil {
			return nil, err
		}
		s.Steps = append(s.Steps, step)
	}
	return s, nil
}

func parseStep(node *yaml.Node, sourcePath string) (Step, error) {
	// Bare command such as "- maximizeWindow"
	if node.Kind == yaml.ScalarNode {
		if !IsCommand(node.Value) {
			return Step{}, &ParseError{Path: sourcePath, Line: node.Line, Message: fmt.Sprintf("unknown command: %s", node.Value)}
		}
		return Step{Command: Command(node.Value), Line: node.Line}, nil
	}

	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return Step{}, &ParseError{Path: sourcePath, Line: node.Line, Message: "step must be a command name or a single-key mapping"}
	}
	key, value := node.Content[0], node.Content[1]
	if !IsCommand(key.Value) {
		return Step{}, &ParseError{Path: sourcePath, Line: key.Line, Message: fmt.Sprintf("unknown command: %s", key.Value)}
	}

	step := Step{Command: Command(key.Value), Line: key.Line}
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			break
		}
		if err := step.setPrimary(value.Value); err != nil {
			return Step{}, &ParseError{Path: sourcePath, Line: value.Line, Message: err.Error()}
		}
	case yaml.MappingNode:
		if err := value.Decode(&step.Params); err != nil {
			return Step{}, wrapParseError(sourcePath, value.Line, err)
		}
	default:
		return Step{}, &ParseError{Path: sourcePath, Line: value.Line, Message: fmt.Sprintf("%s: arguments must be a scalar or a mapping", key.Value)}
	}
	return step, nil
}

// setPrimary assigns the shorthand scalar form, e.g. "- click: '#submit'".
func (s *Step) setPrimary(v string) error {
	switch s.Command {
	case CmdFind, CmdFindAll, CmdGetText, CmdClick, CmdGetLastElementChild, CmdIsDisplayed:
		d := locator.Selector(v)
		s.Params.Selector = &d
	case CmdFindByLabelText:
		s.Params.Text = v
	case CmdNavigateTo:
		s.Params.URL = v
	case CmdPause:
		s.Params.Duration = v
	case CmdRunScript:
		s.Params.File = v
	default:
		return fmt.Errorf("%s needs a mapping of arguments", s.Command)
	}
	return nil
}

func wrapParseError(path string, line int, err error) error {
	return &ParseError{Path: path, Line: line, Message: err.Error()}
}

func parseStrategy(s string) (core.Strategy, error) {
	return core.ParseStrategy(s)
}
