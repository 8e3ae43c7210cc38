package element

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/browser-runner/pkg/core"
	"github.com/devicelab-dev/browser-runner/pkg/fallback"
	"github.com/devicelab-dev/browser-runner/pkg/locator"
	"github.com/devicelab-dev/browser-runner/pkg/queue"
)

// LabelOptions configures FindByLabelText.
type LabelOptions struct {
	// Exact matches the label text exactly; otherwise it is a substring match.
	Exact                  bool
	Timeout                time.Duration
	RetryInterval          time.Duration
	SuppressNotFoundErrors bool
}

// DefaultLabelOptions returns exact matching with the given lookup timings.
func DefaultLabelOptions(timeout, retryInterval time.Duration) LabelOptions {
	return LabelOptions{Exact: true, Timeout: timeout, RetryInterval: retryInterval}
}

// Label association strategies, in the order they are tried.
const (
	StrategyForAttribute   = "for-attribute"
	StrategyAriaLabelledBy = "aria-labelledby"
	StrategyNestedInput    = "nested-input"
	StrategyDeepNesting    = "label-descendant-text"
	StrategyAriaLabel      = "aria-label"
)

// FindByLabelText resolves to the input associated with the label whose text
// equals (or contains) text.
//
// The label is looked up first. When it is found, the input it names through
// for, the input that references it through aria-labelledby, and an input
// nested inside it are tried in turn. When no label matches, a label whose
// child element carries the text is tried. Finally an input whose aria-label
// carries the text is tried. A strategy's own errors never stop the chain.
func FindByLabelText(host Host, text string, opts LabelOptions) (*Scoped, error) {
	if text == "" {
		return nil, core.ErrInvalidArgument.WithMessage("findByLabelText: text must not be empty")
	}
	if opts.Timeout < 0 || opts.RetryInterval <= 0 {
		return nil, core.ErrInvalidArgument.WithMessagef("findByLabelText: invalid timeout %s or retry interval %s", opts.Timeout, opts.RetryInterval)
	}

	r := &labelResolver{host: host, text: text, opts: opts}
	n := queue.NewNode("element", "findByLabelText", r.resolve)
	n.PrintArgs = func() string { return fmt.Sprintf("%q", text) }

	s := FromDeferred(host, host.Enqueue(n))
	s.label = fmt.Sprintf("label %q", text)
	return s, nil
}

type labelResolver struct {
	host Host
	text string
	opts LabelOptions
}

func (r *labelResolver) matchWord() string {
	if r.opts.Exact {
		return "equals"
	}
	return "contains"
}

func (r *labelResolver) textPredicate() string {
	lit := core.XPathLiteral(r.text)
	if r.opts.Exact {
		return "text()=" + lit
	}
	return "contains(text()," + lit + ")"
}

func (r *labelResolver) condition(strategy core.Strategy, expr string, timeout time.Duration, suppress bool) locator.Condition {
	return locator.Condition{
		Strategy:               strategy,
		Expression:             expr,
		Timeout:                timeout,
		RetryInterval:          r.opts.RetryInterval,
		SuppressNotFoundErrors: suppress,
	}
}

func (r *labelResolver) resolve(ctx context.Context, _ []interface{}) (interface{}, error) {
	logger := r.host.Logger().With(zap.String("label", r.text), zap.Bool("exact", r.opts.Exact))
	labels, err := r.host.Locate(ctx, r.condition(core.StrategyXPath, ".//label["+r.textPredicate()+"]", r.opts.Timeout, true), nil)
	if err != nil && ctx.Err() != nil {
		return nil, err
	}
	var label *core.Element
	if len(labels) > 0 {
		label = &labels[0]
	}

	chain := fallback.New[core.Element](logger).
		FatalWhen(isMalformedQuery).
		Then(StrategyForAttribute, func(ctx context.Context) (core.Element, bool, error) {
			return r.fromLabelAttribute(ctx, label, "for", "id")
		}).
		Then(StrategyAriaLabelledBy, func(ctx context.Context) (core.Element, bool, error) {
			return r.fromLabelAttribute(ctx, label, "id", "aria-labelledby")
		}).
		Then(StrategyNestedInput, func(ctx context.Context) (core.Element, bool, error) {
			if label == nil {
				return core.Element{}, false, nil
			}
			return r.first(ctx, r.condition(core.StrategyCSS, "input", 0, false), label)
		}).
		Then(StrategyDeepNesting, func(ctx context.Context) (core.Element, bool, error) {
			if label != nil {
				return core.Element{}, false, nil
			}
			expr := ".//label[*[" + r.textPredicate() + "]]"
			outer, found, err := r.first(ctx, r.condition(core.StrategyXPath, expr, r.opts.Timeout, true), nil)
			if err != nil || !found {
				return core.Element{}, false, err
			}
			return r.first(ctx, r.condition(core.StrategyCSS, "input", 0, false), &outer)
		}).
		Then(StrategyAriaLabel, func(ctx context.Context) (core.Element, bool, error) {
			op := "="
			if !r.opts.Exact {
				op = "*="
			}
			return r.first(ctx, r.condition(core.StrategyCSS, core.AttrSelector("input", "aria-label", op, r.text), r.opts.Timeout, true), nil)
		})

	res, err := chain.Run(ctx)
	if err != nil {
		return nil, err
	}
	if res.Found {
		logger.Debug("label association found", zap.String("strategy", res.Strategy))
		return []core.Element{res.Value}, nil
	}

	if r.opts.SuppressNotFoundErrors {
		return []core.Element{}, nil
	}
	return nil, core.ErrElementNotFound.
		WithMessagef("The element associated with label whose text %s %q has not been found.", r.matchWord(), r.text).
		WithDetails(map[string]interface{}{
			"text":       r.text,
			"exact":      r.opts.Exact,
			"strategies": res.Tried,
		})
}

// isMalformedQuery reports errors that every later strategy would hit too.
func isMalformedQuery(err error) bool {
	return errors.Is(err, core.ErrInvalidArgument) || errors.Is(err, core.ErrInvalidDescriptor)
}

// fromLabelAttribute reads attr from the label and looks for input[targetAttr="value"].
func (r *labelResolver) fromLabelAttribute(ctx context.Context, label *core.Element, attr, targetAttr string) (core.Element, bool, error) {
	if label == nil {
		return core.Element{}, false, nil
	}
	v, err := r.host.Transport().Execute(ctx, core.ActionGetAttribute, *label, attr)
	if err != nil {
		return core.Element{}, false, err
	}
	value, _ := v.(string)
	if value == "" {
		return core.Element{}, false, nil
	}
	c := r.condition(core.StrategyCSS, core.AttrSelector("input", targetAttr, "=", value), r.opts.Timeout, false)
	return r.first(ctx, c, nil)
}

func (r *labelResolver) first(ctx context.Context, c locator.Condition, parent *core.Element) (core.Element, bool, error) {
	elems, err := r.host.Locate(ctx, c, parent)
	if err != nil {
		return core.Element{}, false, err
	}
	if len(elems) == 0 {
		return core.Element{}, false, nil
	}
	return elems[0], true, nil
}
