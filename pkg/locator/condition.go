package locator

import (
	"fmt"
	"time"

	"github.com/devicelab-dev/browser-runner/pkg/core"
)

// Defaults are the session-scoped values a descriptor falls back to.
type Defaults struct {
	Strategy               core.Strategy
	Timeout                time.Duration
	RetryInterval          time.Duration
	AbortOnFailure         bool
	SuppressNotFoundErrors bool
}

// Default lookup settings.
const (
	DefaultTimeout       = 5 * time.Second
	DefaultRetryInterval = 500 * time.Millisecond
)

// NewDefaults returns css with the default timeout and retry interval.
func NewDefaults() Defaults {
	return Defaults{
		Strategy:      core.StrategyCSS,
		Timeout:       DefaultTimeout,
		RetryInterval: DefaultRetryInterval,
	}
}

// WithFallback fills each unset field from NewDefaults. A zero Timeout is kept
// unless every field is unset, since it means a single attempt.
func (d Defaults) WithFallback() Defaults {
	if d == (Defaults{}) {
		return NewDefaults()
	}
	if d.Strategy == "" {
		d.Strategy = core.StrategyCSS
	}
	if d.RetryInterval <= 0 {
		d.RetryInterval = DefaultRetryInterval
	}
	return d
}

// Condition is a normalized search request.
type Condition struct {
	Strategy               core.Strategy
	Expression             string
	Timeout                time.Duration // 0 = single attempt
	RetryInterval          time.Duration
	Index                  *int // nil = every match
	SuppressNotFoundErrors bool
	AbortOnFailure         bool
}

// Describe renders the condition for diagnostics.
func (c Condition) Describe() string {
	if c.Index != nil {
		return fmt.Sprintf("%s %q [%d]", c.Strategy, c.Expression, *c.Index)
	}
	return fmt.Sprintf("%s %q", c.Strategy, c.Expression)
}

// Query returns the single-shot search for the transport, rooted at parent when non-nil.
func (c Condition) Query(parent *core.Element) core.Query {
	return core.Query{Strategy: c.Strategy, Expression: c.Expression, Parent: parent}
}

// Normalize resolves raw into a Condition.
//
// raw may be a selector string, a Descriptor, a *Descriptor or a decoded map.
// Strategy precedence is descriptor locateStrategy, then using, then the session default;
// using never changes defaults. Malformed input returns core.ErrInvalidDescriptor.
func Normalize(raw interface{}, using core.Strategy, defaults Defaults) (Condition, error) {
	var d Descriptor
	switch v := raw.(type) {
	case string:
		d = Descriptor{Selector: v}
	case Descriptor:
		d = v
	case *Descriptor:
		if v == nil {
			return Condition{}, core.ErrInvalidDescriptor.WithMessage("descriptor is nil")
		}
		d = *v
	case map[string]interface{}:
		parsed, err := FromMap(v)
		if err != nil {
			return Condition{}, err
		}
		d = parsed
	case nil:
		return Condition{}, core.ErrInvalidDescriptor.WithMessage("descriptor is nil")
	default:
		return Condition{}, core.ErrInvalidDescriptor.WithMessagef("descriptor must be a string or an object, got %T", raw)
	}
	return d.Normalize(using, defaults)
}

// Normalize fills in defaults and validates the descriptor.
func (d Descriptor) Normalize(using core.Strategy, defaults Defaults) (Condition, error) {
	if d.Selector == "" {
		return Condition{}, core.ErrInvalidDescriptor.WithMessage("selector must not be empty")
	}

	strategy := defaults.Strategy
	if using != "" {
		strategy = using
	}
	if d.LocateStrategy != "" {
		strategy = d.LocateStrategy
	}
	st, err := core.ParseStrategy(string(strategy))
	if err != nil {
		return Condition{}, err
	}

	c := Condition{
		Strategy:               st,
		Expression:             d.Selector,
		Timeout:                defaults.Timeout,
		RetryInterval:          defaults.RetryInterval,
		SuppressNotFoundErrors: defaults.SuppressNotFoundErrors,
		AbortOnFailure:         defaults.AbortOnFailure,
	}
	if d.Timeout != nil {
		c.Timeout = *d.Timeout
	}
	if d.RetryInterval != nil {
		c.RetryInterval = *d.RetryInterval
	}
	if d.SuppressNotFoundErrors != nil {
		c.SuppressNotFoundErrors = *d.SuppressNotFoundErrors
	}
	if d.AbortOnFailure != nil {
		c.AbortOnFailure = *d.AbortOnFailure
	}
	if d.Index != nil {
		idx := *d.Index
		c.Index = &idx
	}

	if c.Timeout < 0 {
		return Condition{}, core.ErrInvalidDescriptor.WithMessagef("timeout must not be negative, got %s", c.Timeout)
	}
	if c.RetryInterval <= 0 {
		return Condition{}, core.ErrInvalidDescriptor.WithMessagef("retryInterval must be positive, got %s", c.RetryInterval)
	}
	if c.Index != nil && *c.Index < 0 {
		return Condition{}, core.ErrInvalidDescriptor.WithMessagef("index must not be negative, got %d", *c.Index)
	}
	return c, nil
}
