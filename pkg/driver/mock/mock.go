// Package mock provides a programmable transport for testing without a browser.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devicelab-dev/browser-runner/pkg/core"
)

// Call kinds.
const (
	KindLocate  = "locate"
	KindExecute = "execute"
)

// Call records one transport call.
type Call struct {
	Kind   string
	Action core.Action // execute only
	Args   []interface{}
	Query  core.Query // locate only
	Start  time.Time
	End    time.Time
}

// Config configures mock transport behavior.
type Config struct {
	// FailOnCall makes call N fail with a transport error (1-indexed). 0 = never fail.
	FailOnCall int
	// Delay adds artificial latency per call
	Delay time.Duration
}

// LocateFunc answers a locate call.
type LocateFunc func(ctx context.Context, q core.Query) ([]core.Element, error)

// ExecuteFunc answers an execute call.
type ExecuteFunc func(ctx context.Context, action core.Action, args []interface{}) (interface{}, error)

// Transport is a mock implementation of core.Transport.
// Without handlers, Locate finds nothing and Execute returns nil.
type Transport struct {
	Config Config

	mu        sync.Mutex
	calls     []Call
	locateFn  LocateFunc
	executeFn ExecuteFunc
	closed    bool
}

// New creates a new mock transport.
func New(cfg Config) *Transport {
	return &Transport{Config: cfg}
}

// OnLocate sets the locate handler.
func (t *Transport) OnLocate(fn LocateFunc) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.locateFn = fn
	return t
}

// OnExecute sets the execute handler.
func (t *Transport) OnExecute(fn ExecuteFunc) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.executeFn = fn
	return t
}

// Locate implements core.Transport.
func (t *Transport) Locate(ctx context.Context, q core.Query) ([]core.Element, error) {
	call := Call{Kind: KindLocate, Query: q, Start: time.Now()}
	n, fn := t.begin()
	if err := t.simulate(ctx, n); err != nil {
		t.finish(call)
		return nil, err
	}
	var (
		elems []core.Element
		err   error
	)
	if fn.locate != nil {
		elems, err = fn.locate(ctx, q)
	}
	t.finish(call)
	return elems, err
}

// Execute implements core.Transport.
func (t *Transport) Execute(ctx context.Context, action core.Action, args ...interface{}) (interface{}, error) {
	call := Call{Kind: KindExecute, Action: action, Args: args, Start: time.Now()}
	n, fn := t.begin()
	if err := t.simulate(ctx, n); err != nil {
		t.finish(call)
		return nil, err
	}
	var (
		value interface{}
		err   error
	)
	if fn.execute != nil {
		value, err = fn.execute(ctx, action, args)
	}
	t.finish(call)
	return value, err
}

// Close implements core.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Calls returns a copy of the recorded calls in completion order.
func (t *Transport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Call, len(t.calls))
	copy(out, t.calls)
	return out
}

// LocateCalls returns the number of locate calls made.
func (t *Transport) LocateCalls() int {
	n := 0
	for _, c := range t.Calls() {
		if c.Kind == KindLocate {
			n++
		}
	}
	return n
}

type handlers struct {
	locate  LocateFunc
	execute ExecuteFunc
}

func (t *Transport) begin() (int, handlers) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls) + 1, handlers{locate: t.locateFn, execute: t.executeFn}
}

func (t *Transport) finish(c Call) {
	c.End = time.Now()
	t.mu.Lock()
	t.calls = append(t.calls, c)
	t.mu.Unlock()
}

func (t *Transport) simulate(ctx context.Context, n int) error {
	if t.Config.Delay > 0 {
		select {
		case <-time.After(t.Config.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if t.Config.FailOnCall > 0 && n == t.Config.FailOnCall {
		return core.ErrTransport.WithMessagef("mock failure on call %d", n)
	}
	return nil
}

// Elements builds element handles from ids.
func Elements(ids ...string) []core.Element {
	out := make([]core.Element, len(ids))
	for i, id := range ids {
		out[i] = core.NewElement(id)
	}
	return out
}

// Reporter records registered failures.
type Reporter struct {
	mu       sync.Mutex
	failures []error
}

// RegisterFailure implements core.Reporter.
func (r *Reporter) RegisterFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, err)
}

// Failures returns the registered failures.
func (r *Reporter) Failures() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]error, len(r.failures))
	copy(out, r.failures)
	return out
}

// Count returns the number of registered failures.
func (r *Reporter) Count() int {
	return len(r.Failures())
}

func (c Call) String() string {
	if c.Kind == KindLocate {
		return fmt.Sprintf("locate %s", c.Query)
	}
	return fmt.Sprintf("execute %s %v", c.Action, c.Args)
}
