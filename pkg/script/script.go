// Package script handles parsing and representation of browser-runner YAML scripts.
package script

import (
	"github.com/devicelab-dev/browser-runner/pkg/locator"
)

// Script represents a parsed script file.
type Script struct {
	SourcePath string
	Name       string
	Tags       []string
	Defaults   Defaults
	Steps      []Step
}

// Defaults overrides the session lookup defaults for one script.
// Zero values keep the configured defaults.
type Defaults struct {
	Strategy      string      `yaml:"strategy"`
	Timeout       interface{} `yaml:"timeout"`
	RetryInterval interface{} `yaml:"retryInterval"`
}

// Apply returns base with the script overrides applied.
func (d Defaults) Apply(base locator.Defaults) (locator.Defaults, error) {
	out := base
	if d.Strategy != "" {
		st, err := parseStrategy(d.Strategy)
		if err != nil {
			return base, err
		}
		out.Strategy = st
	}
	if d.Timeout != nil {
		t, err := locator.ParseDuration(d.Timeout)
		if err != nil {
			return base, err
		}
		out.Timeout = t
	}
	if d.RetryInterval != nil {
		r, err := locator.ParseDuration(d.RetryInterval)
		if err != nil {
			return base, err
		}
		out.RetryInterval = r
	}
	return out, nil
}

// Command names a step type.
type Command string

// Step commands.
const (
	CmdUseCSS              Command = "useCss"
	CmdUseXPath            Command = "useXpath"
	CmdFind                Command = "find"
	CmdFindAll             Command = "findAll"
	CmdFindByLabelText     Command = "findByLabelText"
	CmdGetText             Command = "getText"
	CmdClick               Command = "click"
	CmdGetAttribute        Command = "getAttribute"
	CmdGetLastElementChild Command = "getLastElementChild"
	CmdSendKeys            Command = "sendKeys"
	CmdIsDisplayed         Command = "isDisplayed"
	CmdNavigateTo          Command = "navigateTo"
	CmdGetTitle            Command = "getTitle"
	CmdMaximizeWindow      Command = "maximizeWindow"
	CmdSetWindowPosition   Command = "setWindowPosition"
	CmdGetWindowRect       Command = "getWindowRect"
	CmdPause               Command = "pause"
	CmdRunScript           Command = "runScript"
)

var commands = map[Command]bool{
	CmdUseCSS: true, CmdUseXPath: true, CmdFind: true, CmdFindAll: true,
	CmdFindByLabelText: true, CmdGetText: true, CmdClick: true, CmdGetAttribute: true,
	CmdGetLastElementChild: true, CmdSendKeys: true, CmdIsDisplayed: true,
	CmdNavigateTo: true, CmdGetTitle: true, CmdMaximizeWindow: true,
	CmdSetWindowPosition: true, CmdGetWindowRect: true, CmdPause: true, CmdRunScript: true,
}

// IsCommand reports whether name is a known step command.
func IsCommand(name string) bool {
	return commands[Command(name)]
}

// Step is one script step.
type Step struct {
	Command Command
	Line    int
	Params  Params
}

// Params holds every step argument; each command reads the ones it needs.
type Params struct {
	// Selector is a css/xpath string or a full element descriptor.
	Selector *locator.Descriptor `yaml:"selector"`
	// Using is a call-scoped strategy for Selector.
	Using string `yaml:"using"`

	Text  string `yaml:"text"`  // sendKeys text, findByLabelText label
	Name  string `yaml:"name"`  // attribute name
	URL   string `yaml:"url"`   // navigateTo
	File  string `yaml:"file"`  // runScript
	Exact *bool  `yaml:"exact"` // findByLabelText, default true

	X interface{} `yaml:"x"`
	Y interface{} `yaml:"y"`

	Duration interface{} `yaml:"duration"` // pause

	// SendKeys types into the element found by findByLabelText.
	SendKeys *string `yaml:"sendKeys"`

	// Expect fails the step when the result differs.
	Expect *string `yaml:"expect"`
	// Count fails find/findAll when the number of matches differs.
	Count *int `yaml:"count"`
	// Optional steps record failures as skipped instead of failing the script.
	Optional bool `yaml:"optional"`
}

// Label returns a display label for the step.
func (s Step) Label() string {
	switch {
	case s.Params.Selector != nil:
		return string(s.Command) + " " + s.Params.Selector.String()
	case s.Params.Text != "":
		return string(s.Command) + " " + s.Params.Text
	case s.Params.URL != "":
		return string(s.Command) + " " + s.Params.URL
	case s.Params.File != "":
		return string(s.Command) + " " + s.Params.File
	}
	return string(s.Command)
}

// ShouldInclude applies tag filters.
func ShouldInclude(s *Script, includeTags, excludeTags []string) bool {
	if len(includeTags) > 0 {
		hasTag := false
		for _, tag := range s.Tags {
			for _, include := range includeTags {
				if tag == include {
					hasTag = true
					break
				}
			}
		}
		if !hasTag {
			return false
		}
	}

	for _, tag := range s.Tags {
		for _, exclude := range excludeTags {
			if tag == exclude {
				return false
			}
		}
	}

	return true
}
