package queue

import (
	"context"
	"sync"
)

// Awaitable is a value that settles asynchronously.
// Node arguments implementing it are awaited before the node runs.
type Awaitable interface {
	Await(ctx context.Context) (interface{}, error)
}

// Deferred is a single-resolution future.
// The first Resolve or Reject wins; later calls are ignored.
type Deferred struct {
	once  sync.Once
	done  chan struct{}
	value interface{}
	err   error
}

// NewDeferred returns a pending Deferred.
func NewDeferred() *Deferred {
	return &Deferred{done: make(chan struct{})}
}

// Resolved returns a Deferred already resolved with v.
func Resolved(v interface{}) *Deferred {
	d := NewDeferred()
	d.Resolve(v)
	return d
}

// Rejected returns a Deferred already rejected with err.
func Rejected(err error) *Deferred {
	d := NewDeferred()
	d.Reject(err)
	return d
}

// Resolve settles d with v. It reports whether this call settled d.
func (d *Deferred) Resolve(v interface{}) bool {
	return d.settle(v, nil)
}

// Reject settles d with err. It reports whether this call settled d.
func (d *Deferred) Reject(err error) bool {
	return d.settle(nil, err)
}

func (d *Deferred) settle(v interface{}, err error) bool {
	settled := false
	d.once.Do(func() {
		d.value, d.err = v, err
		close(d.done)
		settled = true
	})
	return settled
}

// Done is closed once d settles.
func (d *Deferred) Done() <-chan struct{} {
	return d.done
}

// Await blocks until d settles or ctx is done. A nil Deferred resolves to nil.
func (d *Deferred) Await(ctx context.Context) (interface{}, error) {
	if d == nil {
		return nil, nil
	}
	select {
	case <-d.done:
		return d.value, d.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome without blocking; ok is false while pending.
func (d *Deferred) Result() (value interface{}, err error, ok bool) {
	select {
	case <-d.done:
		return d.value, d.err, true
	default:
		return nil, nil, false
	}
}

// Then calls onOK or onErr from a new goroutine once d settles. Either may be nil.
func (d *Deferred) Then(onOK func(interface{}), onErr func(error)) {
	go func() {
		<-d.done
		if d.err != nil {
			if onErr != nil {
				onErr(d.err)
			}
			return
		}
		if onOK != nil {
			onOK(d.value)
		}
	}()
}
