// Package locator turns element descriptors into normalized locate conditions.
package locator

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/browser-runner/pkg/core"
)

// Descriptor is the declarative form of an element lookup.
// In scripts it is either a bare selector string or a mapping:
//
//	selector: "#login"
//	locateStrategy: css selector
//	timeout: 2000        # milliseconds, or a duration such as "2s"
//	retryInterval: 100ms
//	index: 1
//	suppressNotFoundErrors: true
//	abortOnFailure: false
//
// Nil fields take the session defaults.
type Descriptor struct {
	Selector               string
	LocateStrategy         core.Strategy
	Timeout                *time.Duration
	RetryInterval          *time.Duration
	Index                  *int
	SuppressNotFoundErrors *bool
	AbortOnFailure         *bool
}

// Selector returns a descriptor holding only a selector.
func Selector(s string) Descriptor {
	return Descriptor{Selector: s}
}

// String renders the descriptor for log lines.
func (d Descriptor) String() string {
	if d.LocateStrategy != "" {
		return fmt.Sprintf("{ %s: %s }", d.LocateStrategy, d.Selector)
	}
	return "{ " + d.Selector + " }"
}

// UnmarshalYAML allows Descriptor to be unmarshaled from a string or a mapping.
func (d *Descriptor) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*d = Descriptor{Selector: node.Value}
		return nil
	case yaml.MappingNode:
		var raw map[string]interface{}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		parsed, err := FromMap(raw)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	}
	return core.ErrInvalidDescriptor.WithMessagef("line %d: descriptor must be a string or a mapping", node.Line)
}

// UnmarshalJSON allows Descriptor to be unmarshaled from a string or an object.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*d = Descriptor{Selector: s}
		return nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return core.ErrInvalidDescriptor.WithMessage("descriptor must be a string or an object").WithCause(err)
	}
	parsed, err := FromMap(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// FromMap builds a Descriptor from a decoded YAML/JSON object.
func FromMap(m map[string]interface{}) (Descriptor, error) {
	var d Descriptor
	for key, value := range m {
		var err error
		switch key {
		case "selector":
			s, ok := value.(string)
			if !ok {
				err = fmt.Errorf("must be a string, got %T", value)
			}
			d.Selector = s
		case "locateStrategy":
			var s string
			s, err = asString(value)
			if err == nil {
				d.LocateStrategy, err = core.ParseStrategy(s)
			}
		case "timeout":
			d.Timeout, err = asDuration(value)
		case "retryInterval":
			d.RetryInterval, err = asDuration(value)
		case "index":
			d.Index, err = asInt(value)
		case "suppressNotFoundErrors":
			d.SuppressNotFoundErrors, err = asBool(value)
		case "abortOnFailure":
			d.AbortOnFailure, err = asBool(value)
		default:
			err = fmt.Errorf("unknown property")
		}
		if err != nil {
			return Descriptor{}, core.ErrInvalidDescriptor.WithMessagef("descriptor property %q: %v", key, err)
		}
	}
	return d, nil
}

func asString(v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("must be a string, got %T", v)
	}
	return s, nil
}

func asBool(v interface{}) (*bool, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("must be a boolean, got %T", v)
	}
	return &b, nil
}

func asInt(v interface{}) (*int, error) {
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case uint64:
		n = int(x)
	case float64:
		if x != math.Trunc(x) {
			return nil, fmt.Errorf("must be an integer, got %v", x)
		}
		n = int(x)
	default:
		return nil, fmt.Errorf("must be an integer, got %T", v)
	}
	return &n, nil
}

// asDuration accepts milliseconds as a number or numeric string, or a Go duration string.
func asDuration(v interface{}) (*time.Duration, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			d := time.Duration(ms) * time.Millisecond
			return &d, nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, err
		}
		return &d, nil
	}
	ms, err := asInt(v)
	if err != nil {
		return nil, fmt.Errorf("must be milliseconds or a duration, got %T", v)
	}
	d := time.Duration(*ms) * time.Millisecond
	return &d, nil
}

// ParseDuration accepts the same forms as descriptor timeouts: milliseconds
// as a number or numeric string, or a Go duration string.
func ParseDuration(v interface{}) (time.Duration, error) {
	d, err := asDuration(v)
	if err != nil {
		return 0, err
	}
	return *d, nil
}
