// Package queue serializes browser actions: nodes run one at a time in
// submission order on a single drain goroutine, and each settles its own Deferred.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/devicelab-dev/browser-runner/pkg/core"
	"github.com/devicelab-dev/browser-runner/pkg/metrics"
)

const tracerName = "github.com/devicelab-dev/browser-runner/pkg/queue"

// Queue is a FIFO scheduler with a single execution lane.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []*Node
	closed  bool
	running *Node

	ctx      context.Context
	reporter core.Reporter
	logger   *zap.Logger
	tracer   trace.Tracer

	drained chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithReporter sets the sink for rejected nodes that have ReportFailure set.
func WithReporter(r core.Reporter) Option {
	return func(q *Queue) {
		if r != nil {
			q.reporter = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(q *Queue) {
		if t != nil {
			q.tracer = t
		}
	}
}

// WithContext sets the context nodes run under. Defaults to context.Background().
func WithContext(ctx context.Context) Option {
	return func(q *Queue) {
		if ctx != nil {
			q.ctx = ctx
		}
	}
}

// New creates a queue and starts its drain goroutine. Call Close to stop it.
func New(opts ...Option) *Queue {
	q := &Queue{
		ctx:      context.Background(),
		reporter: core.NopReporter,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
		drained:  make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}
	go q.drain()
	return q
}

// Enqueue appends n and returns its Deferred. It never blocks.
// After Close the node is rejected with core.ErrQueueClosed without running.
func (q *Queue) Enqueue(n *Node) *Deferred {
	if n.Deferred == nil {
		n.Deferred = NewDeferred()
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		n.Deferred.Reject(core.ErrQueueClosed.WithMessagef("cannot run %s: command queue is closed", n.FullName()))
		return n.Deferred
	}
	q.pending = append(q.pending, n)
	q.mu.Unlock()
	q.cond.Signal()

	metrics.NodeEnqueued()
	q.logger.Debug("enqueued", zap.String("node", n.String()), zap.String("id", n.ID))
	return n.Deferred
}

// Len returns the number of nodes waiting to run, excluding the running one.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting nodes and waits until every queued node has run
// or ctx is done.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()

	select {
	case <-q.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) drain() {
	defer close(q.drained)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		n := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.running = n
		q.mu.Unlock()

		q.execute(n)

		q.mu.Lock()
		q.running = nil
		q.mu.Unlock()
		metrics.NodeFinished()
	}
}

func (q *Queue) execute(n *Node) {
	ctx, span := q.tracer.Start(q.ctx, n.FullName(), trace.WithAttributes(
		attribute.String("node.id", n.ID),
		attribute.String("node.namespace", n.Namespace),
	))
	defer span.End()

	start := time.Now()
	value, fromArg, err := q.run(ctx, n)
	elapsed := time.Since(start)

	if err == nil {
		n.Deferred.Resolve(value)
		metrics.RecordNode(n.FullName(), metrics.OutcomeResolved, elapsed)
		q.logger.Debug("resolved", zap.String("node", n.String()), zap.Duration("elapsed", elapsed))
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if !n.RejectOnError {
		if n.OnSuppressed != nil {
			n.OnSuppressed(err)
		}
		n.Deferred.Resolve(nil)
		metrics.RecordNode(n.FullName(), metrics.OutcomeSuppressed, elapsed)
		q.logger.Debug("failed, resolving empty", zap.String("node", n.String()), zap.Error(err))
		return
	}

	q.logger.Error("command failed", zap.String("node", n.String()), zap.Duration("elapsed", elapsed), zap.Error(err))
	// an argument failure belongs to whatever produced it
	if n.ReportFailure && !fromArg && !errors.Is(err, core.ErrElementNotFound) {
		q.reporter.RegisterFailure(err)
		metrics.RecordFailure()
	}
	n.Deferred.Reject(err)
	metrics.RecordNode(n.FullName(), metrics.OutcomeRejected, elapsed)
}

// run awaits Awaitable arguments and then calls the node body. fromArg
// reports that err came from an argument rather than the body.
func (q *Queue) run(ctx context.Context, n *Node) (value interface{}, fromArg bool, err error) {
	args := make([]interface{}, len(n.Args))
	for i, arg := range n.Args {
		a, ok := arg.(Awaitable)
		if !ok {
			args[i] = arg
			continue
		}
		v, awaitErr := a.Await(ctx)
		if awaitErr != nil {
			return nil, true, core.ErrResolution.
				WithMessagef("%s: argument %d could not be resolved", n.FullName(), i).
				WithCause(awaitErr)
		}
		args[i] = v
	}

	if n.Run == nil {
		return nil, false, nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", n.FullName(), r)
		}
	}()
	value, err = n.Run(ctx, args)
	return value, false, err
}
