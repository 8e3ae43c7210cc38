package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/devicelab-dev/browser-runner/pkg/core"
	"github.com/devicelab-dev/browser-runner/pkg/driver/mock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newQueue(t *testing.T, opts ...Option) *Queue {
	t.Helper()
	q := New(opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, q.Close(ctx))
	})
	return q
}

func await(t *testing.T, d *Deferred) (interface{}, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.Await(ctx)
}

func value(v interface{}) RunFunc {
	return func(context.Context, []interface{}) (interface{}, error) { return v, nil }
}

func TestEnqueue_ResolvesWithValue(t *testing.T) {
	q := newQueue(t)

	v, err := await(t, q.Enqueue(NewNode("", "getTitle", value("Home"))))
	require.NoError(t, err)
	assert.Equal(t, "Home", v)
}

func TestEnqueue_FIFOWithVaryingLatency(t *testing.T) {
	q := newQueue(t)

	var (
		mu    sync.Mutex
		order []int
	)
	var last *Deferred
	for i := 0; i < 10; i++ {
		i := i
		last = q.Enqueue(NewNode("", "step", func(ctx context.Context, _ []interface{}) (interface{}, error) {
			time.Sleep(time.Duration(10-i) * time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil, nil
		}))
	}
	_, err := await(t, last)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestEnqueue_NoOverlapAcrossConcurrentSubmitters(t *testing.T) {
	tr := mock.New(mock.Config{Delay: time.Millisecond})
	q := newQueue(t)

	var wg sync.WaitGroup
	deferreds := make(chan *Deferred, 40)
	for chain := 0; chain < 4; chain++ {
		chain := chain
		wg.Add(1)
		go func() {
			defer wg.Done()
			for step := 0; step < 10; step++ {
				name := fmt.Sprintf("chain%d-step%d", chain, step)
				deferreds <- q.Enqueue(NewNode("", name, func(ctx context.Context, _ []interface{}) (interface{}, error) {
					return tr.Execute(ctx, core.Action(name))
				}))
			}
		}()
	}
	wg.Wait()
	close(deferreds)
	for d := range deferreds {
		_, err := await(t, d)
		require.NoError(t, err)
	}

	calls := tr.Calls()
	require.Len(t, calls, 40)
	for i := 1; i < len(calls); i++ {
		assert.False(t, calls[i].Start.Before(calls[i-1].End), "call %d overlapped call %d", i, i-1)
	}

	// within one chain, submission order holds
	next := map[int]int{}
	for _, c := range calls {
		var chain, step int
		_, err := fmt.Sscanf(string(c.Action), "chain%d-step%d", &chain, &step)
		require.NoError(t, err)
		assert.Equal(t, next[chain], step)
		next[chain]++
	}
}

func TestEnqueue_FailureRejectsOnlyItsNode(t *testing.T) {
	q := newQueue(t)
	boom := errors.New("session lost")

	failed := q.Enqueue(NewNode("", "click", func(context.Context, []interface{}) (interface{}, error) {
		return nil, boom
	}))
	after := q.Enqueue(NewNode("", "getTitle", value("still runs")))

	_, err := await(t, failed)
	assert.ErrorIs(t, err, boom)
	v, err := await(t, after)
	require.NoError(t, err)
	assert.Equal(t, "still runs", v)
}

func TestEnqueue_RejectOnErrorFalse(t *testing.T) {
	rep := &mock.Reporter{}
	q := newQueue(t, WithReporter(rep))

	n := NewNode("", "optional", func(context.Context, []interface{}) (interface{}, error) {
		return "ignored", errors.New("nope")
	})
	n.RejectOnError = false
	n.ReportFailure = true

	v, err := await(t, q.Enqueue(n))
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, 0, rep.Count())
}

func TestEnqueue_TolerateHandsOverFailure(t *testing.T) {
	rep := &mock.Reporter{}
	q := newQueue(t, WithReporter(rep))

	var swallowed error
	n := NewNode("element", "click", value(nil), Rejected(core.ErrTransport.WithMessage("stale")))
	n.ReportFailure = true
	n.Tolerate(func(err error) { swallowed = err })

	v, err := await(t, q.Enqueue(n))
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.ErrorIs(t, swallowed, core.ErrTransport)
	assert.Equal(t, 0, rep.Count())
}

func TestEnqueue_ReportFailure(t *testing.T) {
	rep := &mock.Reporter{}
	q := newQueue(t, WithReporter(rep))

	transportFail := NewNode("", "click", func(context.Context, []interface{}) (interface{}, error) {
		return nil, core.ErrTransport
	})
	transportFail.ReportFailure = true
	notFound := NewNode("", "getText", func(context.Context, []interface{}) (interface{}, error) {
		return nil, core.ErrElementNotFound.WithMessage("missing")
	})
	notFound.ReportFailure = true
	quiet := NewNode("", "find", func(context.Context, []interface{}) (interface{}, error) {
		return nil, core.ErrTransport
	})

	_, _ = await(t, q.Enqueue(transportFail))
	_, _ = await(t, q.Enqueue(notFound))
	_, _ = await(t, q.Enqueue(quiet))

	require.Equal(t, 1, rep.Count())
	assert.ErrorIs(t, rep.Failures()[0], core.ErrTransport)
}

func TestEnqueue_AwaitsArguments(t *testing.T) {
	q := newQueue(t)

	parent := q.Enqueue(NewNode("element", "find", value(core.NewElement("p1"))))
	child := q.Enqueue(NewNode("element", "getText", func(_ context.Context, args []interface{}) (interface{}, error) {
		return fmt.Sprintf("%s|%v", args[0].(core.Element).ID(), args[1]), nil
	}, parent, "plain"))

	v, err := await(t, child)
	require.NoError(t, err)
	assert.Equal(t, "p1|plain", v)
}

func TestEnqueue_ArgumentFailureIsResolutionError(t *testing.T) {
	q := newQueue(t)
	ran := false

	d := q.Enqueue(NewNode("element", "click", func(context.Context, []interface{}) (interface{}, error) {
		ran = true
		return nil, nil
	}, Rejected(core.ErrElementNotFound)))

	_, err := await(t, d)
	assert.ErrorIs(t, err, core.ErrResolution)
	assert.ErrorIs(t, err, core.ErrElementNotFound)
	assert.False(t, ran)
}

func TestEnqueue_ArgumentFailureIsNotReported(t *testing.T) {
	rep := &mock.Reporter{}
	q := newQueue(t, WithReporter(rep))

	n := NewNode("element", "getText", value("unused"), Rejected(core.ErrTransport.WithMessage("session lost")))
	n.ReportFailure = true

	_, err := await(t, q.Enqueue(n))
	assert.ErrorIs(t, err, core.ErrResolution)
	assert.ErrorIs(t, err, core.ErrTransport)
	assert.Equal(t, 0, rep.Count())
}

func TestEnqueue_PanicBecomesError(t *testing.T) {
	q := newQueue(t)

	_, err := await(t, q.Enqueue(NewNode("", "bad", func(context.Context, []interface{}) (interface{}, error) {
		panic("kaboom")
	})))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestEnqueue_NeverBlocks(t *testing.T) {
	q := newQueue(t)
	started := make(chan struct{})
	release := make(chan struct{})

	q.Enqueue(NewNode("", "slow", func(context.Context, []interface{}) (interface{}, error) {
		close(started)
		<-release
		return nil, nil
	}))
	<-started

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			q.Enqueue(NewNode("", "fast", value(i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked while a node was running")
	}
	assert.Equal(t, 1000, q.Len())
	close(release)
}

func TestClose_DrainsThenRejects(t *testing.T) {
	q := New()
	d := q.Enqueue(NewNode("", "queued", func(context.Context, []interface{}) (interface{}, error) {
		time.Sleep(10 * time.Millisecond)
		return "done", nil
	}))

	require.NoError(t, q.Close(context.Background()))
	v, err, ok := d.Result()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, "done", v)

	_, err = q.Enqueue(NewNode("", "late", value(nil))).Await(context.Background())
	assert.ErrorIs(t, err, core.ErrQueueClosed)
}

func TestDeferred_SingleResolution(t *testing.T) {
	d := NewDeferred()
	assert.True(t, d.Resolve(1))
	assert.False(t, d.Resolve(2))
	assert.False(t, d.Reject(errors.New("late")))

	v, err := d.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestDeferred_Then(t *testing.T) {
	got := make(chan error, 1)
	Rejected(core.ErrElementNotFound).Then(nil, func(err error) { got <- err })
	assert.ErrorIs(t, <-got, core.ErrElementNotFound)

	ok := make(chan interface{}, 1)
	Resolved("v").Then(func(v interface{}) { ok <- v }, nil)
	assert.Equal(t, "v", <-ok)
}

func TestDeferred_AwaitContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDeferred().Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	var nilDeferred *Deferred
	v, err := nilDeferred.Await(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, v)
}
