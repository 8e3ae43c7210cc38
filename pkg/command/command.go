// Package command defines the closed set of browser commands.
//
// Each command is a Descriptor: a name, an argument check that runs before
// anything is queued, and the transport action it executes. Element commands
// receive their target element as the first transport argument.
package command

import (
	"context"
	"sort"

	"github.com/devicelab-dev/browser-runner/pkg/core"
)

// Kind distinguishes session-level protocol commands from element commands.
type Kind int

const (
	KindProtocol Kind = iota // acts on the session or window
	KindElement              // acts on a located element
)

func (k Kind) String() string {
	if k == KindElement {
		return "element"
	}
	return "protocol"
}

// Descriptor describes one command.
type Descriptor struct {
	Name      string
	Namespace string // diagnostics only
	Kind      Kind
	Action    core.Action
	// Args names the expected arguments, for usage messages.
	Args []string

	validate func(args []interface{}) error
	decode   func(value interface{}) (interface{}, error)
}

// Validate checks arguments synchronously and returns core.ErrInvalidArgument on mismatch.
func (d Descriptor) Validate(args []interface{}) error {
	if len(args) != len(d.Args) {
		return core.ErrInvalidArgument.WithMessagef("%s expects %d argument(s) %v, got %d", d.Name, len(d.Args), d.Args, len(args))
	}
	if d.validate != nil {
		return d.validate(args)
	}
	return nil
}

// Exec runs the command against t. target must be non-nil for element commands.
func (d Descriptor) Exec(ctx context.Context, t core.Transport, target *core.Element, args []interface{}) (interface{}, error) {
	callArgs := args
	if d.Kind == KindElement {
		if target == nil {
			return nil, core.ErrInvalidArgument.WithMessagef("%s requires a target element", d.Name)
		}
		callArgs = append([]interface{}{*target}, args...)
	}
	value, err := t.Execute(ctx, d.Action, callArgs...)
	if err != nil {
		return nil, err
	}
	if d.decode != nil {
		return d.decode(value)
	}
	return value, nil
}

// Command names.
const (
	WindowMaximize      = "window.maximize"
	WindowSetPosition   = "window.setPosition"
	WindowGetRect       = "window.getRect"
	NavigateTo          = "navigateTo"
	GetTitle            = "getTitle"
	GetText             = "getText"
	Click               = "click"
	GetAttribute        = "getAttribute"
	GetLastElementChild = "getLastElementChild"
	SendKeys            = "sendKeys"
	IsDisplayed         = "isDisplayed"
)

var registry = map[string]Descriptor{
	WindowMaximize: {
		Name: WindowMaximize, Namespace: "window", Kind: KindProtocol,
		Action: core.ActionMaximizeWindow,
	},
	WindowSetPosition: {
		Name: WindowSetPosition, Namespace: "window", Kind: KindProtocol,
		Action: core.ActionSetWindowPosition, Args: []string{"x", "y"},
		validate: func(args []interface{}) error {
			for _, a := range args {
				if !isNumber(a) {
					return core.ErrInvalidArgument.WithMessage("Coordinates passed to .window.setPosition() must be of type number.")
				}
			}
			return nil
		},
	},
	WindowGetRect: {
		Name: WindowGetRect, Namespace: "window", Kind: KindProtocol,
		Action: core.ActionGetWindowRect, decode: decodeRect,
	},
	NavigateTo: {
		Name: NavigateTo, Kind: KindProtocol,
		Action: core.ActionNavigateTo, Args: []string{"url"},
		validate: requireString(0, "url"),
	},
	GetTitle: {
		Name: GetTitle, Kind: KindProtocol,
		Action: core.ActionGetTitle, decode: decodeString,
	},
	GetText: {
		Name: GetText, Namespace: "element", Kind: KindElement,
		Action: core.ActionGetText, decode: decodeString,
	},
	Click: {
		Name: Click, Namespace: "element", Kind: KindElement,
		Action: core.ActionClick,
	},
	GetAttribute: {
		Name: GetAttribute, Namespace: "element", Kind: KindElement,
		Action: core.ActionGetAttribute, Args: []string{"name"},
		validate: requireString(0, "name"),
	},
	GetLastElementChild: {
		Name: GetLastElementChild, Namespace: "element", Kind: KindElement,
		Action: core.ActionGetLastElementChild, decode: decodeElement,
	},
	SendKeys: {
		Name: SendKeys, Namespace: "element", Kind: KindElement,
		Action: core.ActionSendKeys, Args: []string{"text"},
		validate: requireString(0, "text"),
	},
	IsDisplayed: {
		Name: IsDisplayed, Namespace: "element", Kind: KindElement,
		Action: core.ActionIsDisplayed, decode: decodeBool,
	},
}

// Lookup returns the descriptor for name, or core.ErrUnknownCommand.
func Lookup(name string) (Descriptor, error) {
	d, ok := registry[name]
	if !ok {
		return Descriptor{}, core.ErrUnknownCommand.WithMessagef("unknown command %q", name)
	}
	return d, nil
}

// Names returns every registered command name, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func requireString(i int, name string) func([]interface{}) error {
	return func(args []interface{}) error {
		if _, ok := args[i].(string); !ok {
			return core.ErrInvalidArgument.WithMessagef("%s must be a string, got %T", name, args[i])
		}
		return nil
	}
}

func decodeString(v interface{}) (interface{}, error) {
	if v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, core.ErrTransport.WithMessagef("expected a string result, got %T", v)
	}
	return s, nil
}

func decodeBool(v interface{}) (interface{}, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, core.ErrTransport.WithMessagef("expected a boolean result, got %T", v)
	}
	return b, nil
}

// decodeElement accepts a handle or a raw protocol element payload.
// A missing child decodes to nil.
func decodeElement(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case core.Element:
		return x, nil
	case map[string]interface{}:
		id := core.ElementIDFromMap(x)
		if id == "" {
			return nil, core.ErrTransport.WithMessagef("result is not an element: %v", x)
		}
		return core.NewElement(id), nil
	}
	return nil, core.ErrTransport.WithMessagef("expected an element result, got %T", v)
}

func decodeRect(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case core.Rect:
		return x, nil
	case map[string]interface{}:
		num := func(key string) int {
			switch n := x[key].(type) {
			case float64:
				return int(n)
			case int:
				return n
			}
			return 0
		}
		return core.Rect{X: num("x"), Y: num("y"), Width: num("width"), Height: num("height")}, nil
	}
	return nil, core.ErrTransport.WithMessagef("expected a rect result, got %T", v)
}
