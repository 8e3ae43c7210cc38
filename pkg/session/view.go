package session

import (
	"github.com/devicelab-dev/browser-runner/pkg/command"
	"github.com/devicelab-dev/browser-runner/pkg/core"
	"github.com/devicelab-dev/browser-runner/pkg/element"
	"github.com/devicelab-dev/browser-runner/pkg/queue"
)

// View issues lookups with a call-scoped strategy. The zero strategy means
// the session default.
type View struct {
	s     *Session
	using core.Strategy

	optional  bool
	onFailure func(error)
}

// Strategy returns the call-scoped strategy, or "" for the session default.
func (v *View) Strategy() core.Strategy {
	return v.using
}

// Optional returns a copy of v whose element commands resolve with nil
// instead of rejecting. Failures are not reported; onFailure receives them.
func (v *View) Optional(onFailure func(error)) *View {
	out := *v
	out.optional = true
	out.onFailure = onFailure
	return &out
}

// Element returns the first element matching raw.
func (v *View) Element(raw interface{}) (*element.Scoped, error) {
	return v.Find(raw)
}

// Find returns the first element matching raw.
func (v *View) Find(raw interface{}) (*element.Scoped, error) {
	c, err := v.s.Normalize(raw, v.using)
	if err != nil {
		return nil, err
	}
	if c.Index == nil {
		first := 0
		c.Index = &first
	}
	return element.FromCondition(v.s, c, nil), nil
}

// FindAll returns every element matching raw.
func (v *View) FindAll(raw interface{}) (*element.Scoped, error) {
	c, err := v.s.Normalize(raw, v.using)
	if err != nil {
		return nil, err
	}
	return element.FromCondition(v.s, c, nil), nil
}

// FindByLabelText returns the input associated with a label. Zero timings in
// opts take the session defaults.
func (v *View) FindByLabelText(text string, opts element.LabelOptions) (*element.Scoped, error) {
	d := v.s.Defaults()
	if opts.Timeout == 0 {
		opts.Timeout = d.Timeout
	}
	if opts.RetryInterval == 0 {
		opts.RetryInterval = d.RetryInterval
	}
	return element.FindByLabelText(v.s, text, opts)
}

// GetText resolves to the visible text of the element matching raw.
func (v *View) GetText(raw interface{}) (*queue.Deferred, error) {
	return v.elementCommand(raw, command.GetText)
}

// Click clicks the element matching raw.
func (v *View) Click(raw interface{}) (*queue.Deferred, error) {
	return v.elementCommand(raw, command.Click)
}

// GetAttribute resolves to an attribute of the element matching raw.
func (v *View) GetAttribute(raw interface{}, name string) (*queue.Deferred, error) {
	return v.elementCommand(raw, command.GetAttribute, name)
}

// GetLastElementChild resolves to the last child core.Element of the element
// matching raw; ID() gives the child id.
func (v *View) GetLastElementChild(raw interface{}) (*queue.Deferred, error) {
	return v.elementCommand(raw, command.GetLastElementChild)
}

// SendKeys types text into the element matching raw.
func (v *View) SendKeys(raw interface{}, text string) (*queue.Deferred, error) {
	return v.elementCommand(raw, command.SendKeys, text)
}

// IsDisplayed resolves to the visibility of the element matching raw.
func (v *View) IsDisplayed(raw interface{}) (*queue.Deferred, error) {
	return v.elementCommand(raw, command.IsDisplayed)
}

// ElementCommand runs any element command against the element matching raw.
func (v *View) ElementCommand(raw interface{}, name string, args ...interface{}) (*queue.Deferred, error) {
	return v.elementCommand(raw, name, args...)
}

func (v *View) elementCommand(raw interface{}, name string, args ...interface{}) (*queue.Deferred, error) {
	d, err := command.Lookup(name)
	if err != nil {
		return nil, err
	}
	if d.Kind != command.KindElement {
		return nil, core.ErrInvalidArgument.WithMessagef("%s is not an element command", name)
	}
	if err := d.Validate(args); err != nil {
		return nil, err
	}
	target, err := v.Find(raw)
	if err != nil {
		return nil, err
	}
	if v.optional {
		return target.OptionalCommand(v.onFailure, name, args...)
	}
	return target.Command(name, args...)
}
