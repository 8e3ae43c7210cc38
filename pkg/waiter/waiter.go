// Package waiter polls a transport until a locate condition is satisfied.
package waiter

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/browser-runner/pkg/core"
	"github.com/devicelab-dev/browser-runner/pkg/locator"
	"github.com/devicelab-dev/browser-runner/pkg/metrics"
)

// Waiter runs the wait/retry loop of element lookups against one transport.
type Waiter struct {
	transport core.Transport
	reporter  core.Reporter
	logger    *zap.Logger
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithReporter sets the sink notified when an AbortOnFailure lookup fails.
func WithReporter(r core.Reporter) Option {
	return func(w *Waiter) {
		if r != nil {
			w.reporter = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Waiter) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a Waiter.
func New(t core.Transport, opts ...Option) *Waiter {
	w := &Waiter{
		transport: t,
		reporter:  core.NopReporter,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Locate polls for c under parent (nil = document) until at least one match
// appears or c.Timeout elapses.
//
// With c.Index set the result holds only that match. When nothing is found,
// or the transport fails, the lookup fails; c.SuppressNotFoundErrors turns the
// failure into an empty result and c.AbortOnFailure reports it either way.
// Cancelling ctx stops the loop between polls.
func (w *Waiter) Locate(ctx context.Context, c locator.Condition, parent *core.Element) ([]core.Element, error) {
	start := time.Now()
	deadline := start.Add(c.Timeout)
	q := c.Query(parent)

	for {
		metrics.RecordPoll()
		elems, err := w.transport.Locate(ctx, q)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			metrics.RecordLocate(metrics.LocateError)
			return w.fail(c, transportError(err, c), false)
		}

		if len(elems) > 0 {
			if c.Index == nil {
				metrics.RecordLocate(metrics.LocateFound)
				return elems, nil
			}
			if *c.Index < len(elems) {
				metrics.RecordLocate(metrics.LocateFound)
				return []core.Element{elems[*c.Index]}, nil
			}
			metrics.RecordLocate(metrics.LocateNotFound)
			return w.fail(c, indexError(c, len(elems)), true)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		sleep := c.RetryInterval
		if sleep > remaining {
			sleep = remaining
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	metrics.RecordLocate(metrics.LocateNotFound)
	return w.fail(c, NotFoundError(c), true)
}

func (w *Waiter) fail(c locator.Condition, err error, notFound bool) ([]core.Element, error) {
	if c.AbortOnFailure {
		w.reporter.RegisterFailure(err)
		metrics.RecordFailure()
	}
	if c.SuppressNotFoundErrors {
		if !notFound {
			w.logger.Warn("lookup failed, returning empty result",
				zap.String("condition", c.Describe()),
				zap.Error(err))
		} else {
			w.logger.Debug("no elements found", zap.String("condition", c.Describe()))
		}
		return []core.Element{}, nil
	}
	return nil, err
}

// NotFoundError describes a lookup that matched nothing within its timeout.
func NotFoundError(c locator.Condition) *core.ExecutionError {
	return core.ErrElementNotFound.
		WithMessagef("No elements with selector %q using %s found for %d milliseconds.",
			c.Expression, c.Strategy, c.Timeout.Milliseconds()).
		WithDetails(details(c))
}

func indexError(c locator.Condition, matches int) *core.ExecutionError {
	return core.ErrElementNotFound.
		WithMessagef("Element at index %d of selector %q using %s not found, %d elements matched.",
			*c.Index, c.Expression, c.Strategy, matches).
		WithDetails(details(c))
}

func transportError(err error, c locator.Condition) error {
	var execErr *core.ExecutionError
	if errors.As(err, &execErr) {
		return err
	}
	return core.ErrTransport.
		WithMessagef("locating %s failed", c.Describe()).
		WithDetails(details(c)).
		WithCause(err)
}

func details(c locator.Condition) map[string]interface{} {
	d := map[string]interface{}{
		"strategy":   string(c.Strategy),
		"expression": c.Expression,
		"timeout_ms": c.Timeout.Milliseconds(),
	}
	if c.Index != nil {
		d["index"] = *c.Index
	}
	return d
}
