// Package session is the script-facing API of one browser session: element
// lookups, element commands and window commands, all scheduled on the
// session's command queue.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/devicelab-dev/browser-runner/pkg/command"
	"github.com/devicelab-dev/browser-runner/pkg/core"
	"github.com/devicelab-dev/browser-runner/pkg/element"
	"github.com/devicelab-dev/browser-runner/pkg/locator"
	"github.com/devicelab-dev/browser-runner/pkg/queue"
	"github.com/devicelab-dev/browser-runner/pkg/waiter"
)

// Options configures a Session.
type Options struct {
	Defaults locator.Defaults // unset fields fall back to locator.NewDefaults()
	Reporter core.Reporter
	Logger   *zap.Logger
	Tracer   trace.Tracer
	// Context is the context queued nodes run under.
	Context context.Context
}

// Session drives one remote browser session.
//
// Lookup and command methods return immediately; their work runs in order on
// the session queue and is observed through the returned Deferred or Scoped.
// The embedded View carries the session-default strategy.
type Session struct {
	View

	id        string
	transport core.Transport
	queue     *queue.Queue
	waiter    *waiter.Waiter
	logger    *zap.Logger

	mu       sync.RWMutex
	defaults locator.Defaults
}

// New creates a session over t and starts its queue.
func New(t core.Transport, opts Options) *Session {
	defaults := opts.Defaults.WithFallback()
	reporter := opts.Reporter
	if reporter == nil {
		reporter = core.NopReporter
	}
	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("session", id))

	s := &Session{
		id:        id,
		transport: t,
		logger:    logger,
		defaults:  defaults,
		waiter:    waiter.New(t, waiter.WithReporter(reporter), waiter.WithLogger(logger.Named("waiter"))),
		queue: queue.New(
			queue.WithReporter(reporter),
			queue.WithLogger(logger.Named("queue")),
			queue.WithTracer(opts.Tracer),
			queue.WithContext(opts.Context),
		),
	}
	s.View = View{s: s}
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// Defaults returns the current lookup defaults.
func (s *Session) Defaults() locator.Defaults {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaults
}

// UseStrategy changes the default strategy for lookups enqueued after the call.
func (s *Session) UseStrategy(strategy core.Strategy) error {
	st, err := core.ParseStrategy(string(strategy))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.defaults.Strategy = st
	s.mu.Unlock()
	s.logger.Debug("default locate strategy changed", zap.String("strategy", string(st)))
	return nil
}

// UseCSS makes css selector the default strategy.
func (s *Session) UseCSS() {
	_ = s.UseStrategy(core.StrategyCSS)
}

// UseXPath makes xpath the default strategy.
func (s *Session) UseXPath() {
	_ = s.UseStrategy(core.StrategyXPath)
}

// Using returns a view whose lookups use strategy unless a descriptor names
// its own. The session default is not changed.
func (s *Session) Using(strategy core.Strategy) (*View, error) {
	st, err := core.ParseStrategy(string(strategy))
	if err != nil {
		return nil, err
	}
	return &View{s: s, using: st}, nil
}

// Enqueue schedules a node on the session queue.
func (s *Session) Enqueue(n *queue.Node) *queue.Deferred {
	return s.queue.Enqueue(n)
}

// Locate runs the wait/retry loop for c.
func (s *Session) Locate(ctx context.Context, c locator.Condition, parent *core.Element) ([]core.Element, error) {
	return s.waiter.Locate(ctx, c, parent)
}

// Transport returns the underlying transport.
func (s *Session) Transport() core.Transport {
	return s.transport
}

// Normalize resolves raw against the current defaults.
func (s *Session) Normalize(raw interface{}, using core.Strategy) (locator.Condition, error) {
	return locator.Normalize(raw, using, s.Defaults())
}

// Logger returns the session logger.
func (s *Session) Logger() *zap.Logger {
	return s.logger
}

// Command enqueues a protocol command such as window.maximize.
// Argument errors are returned before anything is queued.
func (s *Session) Command(name string, args ...interface{}) (*queue.Deferred, error) {
	return s.command(name, args, nil)
}

// OptionalCommand is Command for non-fatal work: a failure resolves the
// result with nil, is not reported, and is passed to onFailure.
func (s *Session) OptionalCommand(onFailure func(error), name string, args ...interface{}) (*queue.Deferred, error) {
	return s.command(name, args, func(n *queue.Node) { n.Tolerate(onFailure) })
}

func (s *Session) command(name string, args []interface{}, tune func(*queue.Node)) (*queue.Deferred, error) {
	d, err := command.Lookup(name)
	if err != nil {
		return nil, err
	}
	if d.Kind != command.KindProtocol {
		return nil, core.ErrInvalidArgument.WithMessagef("%s is an element command, it needs a selector", name)
	}
	if err := d.Validate(args); err != nil {
		return nil, err
	}
	n := queue.NewNode(d.Namespace, d.Name, func(ctx context.Context, nodeArgs []interface{}) (interface{}, error) {
		return d.Exec(ctx, s.transport, nil, nodeArgs)
	}, args...)
	n.ReportFailure = true
	if tune != nil {
		tune(n)
	}
	return s.queue.Enqueue(n), nil
}

// Maximize enlarges the window without going full-screen.
func (s *Session) Maximize() *queue.Deferred {
	d, _ := s.Command(command.WindowMaximize)
	return d
}

// SetPosition moves the window. x and y must be numbers.
func (s *Session) SetPosition(x, y interface{}) (*queue.Deferred, error) {
	return s.Command(command.WindowSetPosition, x, y)
}

// WindowRect resolves to the window core.Rect.
func (s *Session) WindowRect() *queue.Deferred {
	d, _ := s.Command(command.WindowGetRect)
	return d
}

// NavigateTo loads url.
func (s *Session) NavigateTo(url string) *queue.Deferred {
	d, _ := s.Command(command.NavigateTo, url)
	return d
}

// Title resolves to the document title.
func (s *Session) Title() *queue.Deferred {
	d, _ := s.Command(command.GetTitle)
	return d
}

// Pause enqueues a sleep.
func (s *Session) Pause(d time.Duration) *queue.Deferred {
	n := queue.NewNode("", "pause", func(ctx context.Context, _ []interface{}) (interface{}, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	n.PrintArgs = func() string { return d.String() }
	return s.queue.Enqueue(n)
}

// Close waits for queued work, then closes the transport.
func (s *Session) Close(ctx context.Context) error {
	qErr := s.queue.Close(ctx)
	tErr := s.transport.Close()
	if qErr != nil {
		return qErr
	}
	return tErr
}

var _ element.Host = (*Session)(nil)
