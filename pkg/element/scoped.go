// Package element provides lazily resolved element handles whose actions go
// through the session command queue.
package element

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/devicelab-dev/browser-runner/pkg/command"
	"github.com/devicelab-dev/browser-runner/pkg/core"
	"github.com/devicelab-dev/browser-runner/pkg/locator"
	"github.com/devicelab-dev/browser-runner/pkg/queue"
)

// Host is the session a Scoped element belongs to.
type Host interface {
	// Enqueue schedules a node on the session queue.
	Enqueue(n *queue.Node) *queue.Deferred
	// Locate runs the wait/retry loop for c under parent (nil = document).
	Locate(ctx context.Context, c locator.Condition, parent *core.Element) ([]core.Element, error)
	// Transport returns the session transport.
	Transport() core.Transport
	// Normalize resolves a descriptor against the session defaults.
	Normalize(raw interface{}, using core.Strategy) (locator.Condition, error)
	// Logger returns the session logger.
	Logger() *zap.Logger
}

// Scoped is a lazily resolved, ordered set of element handles, optionally
// searched within a parent. Creating one never blocks; the lookup runs on the
// queue and its outcome is settled once.
type Scoped struct {
	host     Host
	parent   *Scoped
	deferred *queue.Deferred
	label    string
}

// New normalizes raw and enqueues a findAll for it under parent.
// A malformed descriptor is returned before anything is queued.
func New(host Host, raw interface{}, parent *Scoped) (*Scoped, error) {
	c, err := host.Normalize(raw, "")
	if err != nil {
		return nil, err
	}
	return FromCondition(host, c, parent), nil
}

// FromCondition enqueues a findAll for an already normalized condition.
func FromCondition(host Host, c locator.Condition, parent *Scoped) *Scoped {
	s := &Scoped{host: host, parent: parent, label: "{ " + c.Expression + " }"}

	var parentArg interface{}
	if parent != nil {
		parentArg = parent
	}
	n := queue.NewNode("element", "findAll", func(ctx context.Context, args []interface{}) (interface{}, error) {
		var root *core.Element
		if args[0] != nil {
			parents, _ := args[0].([]core.Element)
			if len(parents) == 0 {
				if c.SuppressNotFoundErrors {
					return []core.Element{}, nil
				}
				return nil, core.ErrResolution.WithMessagef("parent of %s resolved to no elements", c.Describe())
			}
			root = &parents[0]
		}
		return host.Locate(ctx, c, root)
	}, parentArg)
	n.PrintArgs = func() string { return s.label }

	s.deferred = host.Enqueue(n)
	return s
}

// Resolved wraps handles that are already known.
func Resolved(host Host, elems []core.Element) *Scoped {
	if elems == nil {
		elems = []core.Element{}
	}
	return &Scoped{host: host, deferred: queue.Resolved(elems), label: fmt.Sprintf("%v", elems)}
}

// FromDeferred wraps the outcome of another node. The node may settle with
// []core.Element, a single core.Element, or nil (no elements).
func FromDeferred(host Host, d *queue.Deferred) *Scoped {
	return &Scoped{host: host, deferred: d, label: "deferred"}
}

// Parent returns the scope this element was searched within, or nil.
func (s *Scoped) Parent() *Scoped {
	return s.parent
}

func (s *Scoped) String() string {
	return s.label
}

// Done is closed once the lookup has settled.
func (s *Scoped) Done() <-chan struct{} {
	return s.deferred.Done()
}

// Await implements queue.Awaitable; the value is a []core.Element.
// A nil Scoped resolves to nil.
func (s *Scoped) Await(ctx context.Context) (interface{}, error) {
	if s == nil {
		return nil, nil
	}
	elems, err := s.Elements(ctx)
	if err != nil {
		return nil, err
	}
	return elems, nil
}

// Elements waits for the lookup. Repeated calls return the same outcome.
func (s *Scoped) Elements(ctx context.Context) ([]core.Element, error) {
	v, err := s.deferred.Await(ctx)
	if err != nil {
		return nil, err
	}
	return asElements(v)
}

// First waits for the lookup and returns the first handle.
func (s *Scoped) First(ctx context.Context) (core.Element, error) {
	elems, err := s.Elements(ctx)
	if err != nil {
		return core.Element{}, err
	}
	if len(elems) == 0 {
		return core.Element{}, core.ErrElementNotFound.WithMessagef("%s resolved to no elements", s.label)
	}
	return elems[0], nil
}

// Then calls onOK or onErr once the lookup settles. Either may be nil.
func (s *Scoped) Then(onOK func([]core.Element), onErr func(error)) {
	go func() {
		elems, err := s.Elements(context.Background())
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		if onOK != nil {
			onOK(elems)
		}
	}()
}

// FindAll searches for raw within the first element of s.
func (s *Scoped) FindAll(raw interface{}) (*Scoped, error) {
	return New(s.host, raw, s)
}

// Find searches for the first match of raw within the first element of s.
func (s *Scoped) Find(raw interface{}) (*Scoped, error) {
	c, err := s.host.Normalize(raw, "")
	if err != nil {
		return nil, err
	}
	if c.Index == nil {
		first := 0
		c.Index = &first
	}
	return FromCondition(s.host, c, s), nil
}

// Count enqueues a node resolving to the number of handles.
func (s *Scoped) Count() *queue.Deferred {
	n := queue.NewNode("element", "count", func(_ context.Context, args []interface{}) (interface{}, error) {
		elems, _ := args[0].([]core.Element)
		return len(elems), nil
	}, s)
	n.PrintArgs = func() string { return s.label }
	return s.host.Enqueue(n)
}

// Command enqueues the element command name against the first handle of s.
// Argument errors are returned before anything is queued.
func (s *Scoped) Command(name string, args ...interface{}) (*queue.Deferred, error) {
	return s.command(name, args, nil)
}

// OptionalCommand is Command for non-fatal work: a failure resolves the
// result with nil, is not reported, and is passed to onFailure.
func (s *Scoped) OptionalCommand(onFailure func(error), name string, args ...interface{}) (*queue.Deferred, error) {
	return s.command(name, args, func(n *queue.Node) { n.Tolerate(onFailure) })
}

func (s *Scoped) command(name string, args []interface{}, tune func(*queue.Node)) (*queue.Deferred, error) {
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

	host := s.host
	n := queue.NewNode(d.Namespace, d.Name, func(ctx context.Context, nodeArgs []interface{}) (interface{}, error) {
		elems, _ := nodeArgs[0].([]core.Element)
		if len(elems) == 0 {
			return nil, core.ErrElementNotFound.WithMessagef("%s: %s resolved to no elements", d.Name, s.label)
		}
		return d.Exec(ctx, host.Transport(), &elems[0], nodeArgs[1:])
	}, append([]interface{}{s}, args...)...)
	n.ReportFailure = true
	n.PrintArgs = func() string { return s.label }
	if tune != nil {
		tune(n)
	}
	return host.Enqueue(n), nil
}

// Click clicks the first handle.
func (s *Scoped) Click() *queue.Deferred {
	return s.must(s.Command(command.Click))
}

// GetText resolves to the visible text of the first handle.
func (s *Scoped) GetText() *queue.Deferred {
	return s.must(s.Command(command.GetText))
}

// GetAttribute resolves to an attribute of the first handle.
func (s *Scoped) GetAttribute(name string) *queue.Deferred {
	return s.must(s.Command(command.GetAttribute, name))
}

// SendKeys types text into the first handle.
func (s *Scoped) SendKeys(text string) *queue.Deferred {
	return s.must(s.Command(command.SendKeys, text))
}

// IsDisplayed resolves to the visibility of the first handle.
func (s *Scoped) IsDisplayed() *queue.Deferred {
	return s.must(s.Command(command.IsDisplayed))
}

// GetLastElementChild resolves to a core.Element, or nil when there are no children.
func (s *Scoped) GetLastElementChild() *queue.Deferred {
	return s.must(s.Command(command.GetLastElementChild))
}

// must turns a construction error from a typed helper into a rejected Deferred.
func (s *Scoped) must(d *queue.Deferred, err error) *queue.Deferred {
	if err != nil {
		return queue.Rejected(err)
	}
	return d
}

func asElements(v interface{}) ([]core.Element, error) {
	switch x := v.(type) {
	case nil:
		return []core.Element{}, nil
	case []core.Element:
		return x, nil
	case core.Element:
		return []core.Element{x}, nil
	}
	return nil, core.ErrResolution.WithMessagef("value of type %T is not an element", v)
}
