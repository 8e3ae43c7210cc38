// Package fallback runs an ordered list of lookup strategies until one finds a result.
package fallback

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// TryFunc is one strategy. found=false with a nil error means "nothing here".
type TryFunc[T any] func(ctx context.Context) (value T, found bool, err error)

type attempt[T any] struct {
	name string
	try  TryFunc[T]
}

// Chain is an attempt chain with per-step error suppression.
// A strategy's error is logged and treated as "nothing found" unless the
// fatal predicate claims it; context cancellation is always fatal.
type Chain[T any] struct {
	attempts []attempt[T]
	logger   *zap.Logger
	fatal    func(error) bool
}

// Result describes a chain run.
type Result[T any] struct {
	Value    T
	Found    bool
	Strategy string   // name of the strategy that found Value
	Tried    []string // strategies run, in order
	Errors   []error  // swallowed strategy errors
}

// New returns an empty chain.
func New[T any](logger *zap.Logger) *Chain[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain[T]{logger: logger}
}

// Then appends a strategy.
func (c *Chain[T]) Then(name string, try TryFunc[T]) *Chain[T] {
	c.attempts = append(c.attempts, attempt[T]{name: name, try: try})
	return c
}

// FatalWhen makes errors matching pred stop the chain instead of being swallowed.
func (c *Chain[T]) FatalWhen(pred func(error) bool) *Chain[T] {
	c.fatal = pred
	return c
}

// Len returns the number of strategies.
func (c *Chain[T]) Len() int {
	return len(c.attempts)
}

// Run tries each strategy in order and stops at the first one that finds a value.
// It returns an error only for fatal errors; exhausting the chain is Found=false.
func (c *Chain[T]) Run(ctx context.Context) (Result[T], error) {
	var res Result[T]
	for _, a := range c.attempts {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Tried = append(res.Tried, a.name)

		value, found, err := a.try(ctx)
		if err != nil {
			if c.isFatal(ctx, err) {
				return res, err
			}
			c.logger.Debug("fallback strategy failed, trying next", zap.String("strategy", a.name), zap.Error(err))
			res.Errors = append(res.Errors, err)
			continue
		}
		if found {
			res.Value = value
			res.Found = true
			res.Strategy = a.name
			return res, nil
		}
	}
	return res, nil
}

func (c *Chain[T]) isFatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return c.fatal != nil && c.fatal(err)
}
