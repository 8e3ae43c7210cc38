package element

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/browser-runner/pkg/core"
	"github.com/devicelab-dev/browser-runner/pkg/driver/mock"
	"github.com/devicelab-dev/browser-runner/pkg/locator"
	"github.com/devicelab-dev/browser-runner/pkg/queue"
)

const listPage = `<html><body>
<div id="a"><span class="x">a1</span><span class="x">a2</span></div>
<div id="b"><span class="x">b1</span></div>
</body></html>`

func TestNew_ResolvesAll(t *testing.T) {
	h, _, _ := docHost(t, listPage)

	s, err := New(h, "span.x", nil)
	require.NoError(t, err)

	elems, err := s.Elements(ctx(t))
	require.NoError(t, err)
	assert.Len(t, elems, 3)
}

func TestNew_ConstructionErrorIsSynchronous(t *testing.T) {
	tr := mock.New(mock.Config{})
	h := newHost(t, tr, nil)

	_, err := New(h, 12, nil)
	assert.True(t, errors.Is(err, core.ErrInvalidDescriptor))
	assert.Equal(t, 0, h.queue.Len())
	assert.Empty(t, tr.Calls())
}

func TestNew_NeverBlocks(t *testing.T) {
	tr := mock.New(mock.Config{Delay: 50 * time.Millisecond})
	h := newHost(t, tr, nil)

	start := time.Now()
	s, err := New(h, "div", nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 20*time.Millisecond)

	select {
	case <-s.Done():
		t.Fatal("resolved before the transport answered")
	default:
	}
	<-s.Done()
}

func TestScoped_SearchesWithinParent(t *testing.T) {
	h, rec, _ := docHost(t, listPage)

	parent, err := New(h, "#b", nil)
	require.NoError(t, err)
	child, err := parent.FindAll("span.x")
	require.NoError(t, err)

	elems, err := child.Elements(ctx(t))
	require.NoError(t, err)
	require.Len(t, elems, 1)

	text, err := Resolved(h, elems).GetText().Await(ctx(t))
	require.NoError(t, err)
	assert.Equal(t, "b1", text)
	assert.Equal(t, []string{"#b", "span.x"}, rec.Locates())
	assert.Same(t, parent, child.Parent())
}

func TestScoped_FindReturnsFirst(t *testing.T) {
	h, _, _ := docHost(t, listPage)

	parent, _ := New(h, "#a", nil)
	first, err := parent.Find("span")
	require.NoError(t, err)

	text, err := first.GetText().Await(ctx(t))
	require.NoError(t, err)
	assert.Equal(t, "a1", text)

	n, err := first.Count().Await(ctx(t))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestScoped_SingleResolution(t *testing.T) {
	var polls int32
	tr := mock.New(mock.Config{}).OnLocate(func(ctx context.Context, q core.Query) ([]core.Element, error) {
		atomic.AddInt32(&polls, 1)
		return mock.Elements("e1", "e2"), nil
	})
	h := newHost(t, tr, nil)

	s, err := New(h, ".item", nil)
	require.NoError(t, err)

	first, err := s.Elements(ctx(t))
	require.NoError(t, err)
	second, err := s.Elements(ctx(t))
	require.NoError(t, err)

	got := make(chan []core.Element, 1)
	s.Then(func(e []core.Element) { got <- e }, nil)

	assert.Equal(t, first, second)
	assert.Equal(t, first, <-got)
	assert.Equal(t, int32(1), atomic.LoadInt32(&polls))
}

func TestScoped_ChainedActionPropagatesResolutionFailure(t *testing.T) {
	tr := mock.New(mock.Config{})
	h := newHost(t, tr, nil)

	missing, err := New(h, locator.Selector("#missing"), nil)
	require.NoError(t, err)

	_, err = missing.Click().Await(ctx(t))
	assert.True(t, errors.Is(err, core.ErrResolution), "got %v", err)
	assert.True(t, errors.Is(err, core.ErrElementNotFound), "got %v", err)

	child, err := missing.FindAll("span")
	require.NoError(t, err)
	_, err = child.Elements(ctx(t))
	assert.True(t, errors.Is(err, core.ErrResolution))

	for _, c := range tr.Calls() {
		assert.Equal(t, mock.KindLocate, c.Kind, "no action may reach the transport")
	}
}

func TestScoped_SuppressedLookupResolvesEmpty(t *testing.T) {
	h := newHost(t, mock.New(mock.Config{}), nil)
	suppress := true

	s, err := New(h, locator.Descriptor{Selector: "#none", SuppressNotFoundErrors: &suppress}, nil)
	require.NoError(t, err)

	elems, err := s.Elements(ctx(t))
	require.NoError(t, err)
	assert.Empty(t, elems)

	_, err = s.First(ctx(t))
	assert.True(t, errors.Is(err, core.ErrElementNotFound))

	_, err = s.GetText().Await(ctx(t))
	assert.True(t, errors.Is(err, core.ErrElementNotFound))
}

func TestScoped_AbortOnFailureReports(t *testing.T) {
	rep := &mock.Reporter{}
	h := newHost(t, mock.New(mock.Config{}), rep)
	abort := true

	s, err := New(h, locator.Descriptor{Selector: "#none", AbortOnFailure: &abort}, nil)
	require.NoError(t, err)
	_, err = s.Elements(ctx(t))
	assert.Error(t, err)
	assert.Equal(t, 1, rep.Count())
}

func TestScoped_CommandValidation(t *testing.T) {
	h := newHost(t, mock.New(mock.Config{}), nil)
	s := Resolved(h, mock.Elements("e1"))

	_, err := s.Command("window.maximize")
	assert.True(t, errors.Is(err, core.ErrInvalidArgument))
	_, err = s.Command("hover")
	assert.True(t, errors.Is(err, core.ErrUnknownCommand))
	_, err = s.Command("getAttribute")
	assert.True(t, errors.Is(err, core.ErrInvalidArgument))
}

func TestScoped_OptionalCommandSwallowsFailure(t *testing.T) {
	rep := &mock.Reporter{}
	h := newHost(t, mock.New(mock.Config{}), rep)
	s, err := New(h, "#none", nil)
	require.NoError(t, err)

	var failure error
	d, err := s.OptionalCommand(func(err error) { failure = err }, "click")
	require.NoError(t, err)
	v, err := d.Await(ctx(t))
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.True(t, errors.Is(failure, core.ErrElementNotFound))
	assert.Equal(t, 0, rep.Count())

	_, err = s.OptionalCommand(nil, "window.maximize")
	assert.True(t, errors.Is(err, core.ErrInvalidArgument))
}

func TestScoped_GetLastElementChild(t *testing.T) {
	h, _, _ := docHost(t, listPage)
	parent, _ := New(h, "#a", nil)

	v, err := parent.GetLastElementChild().Await(ctx(t))
	require.NoError(t, err)
	child, ok := v.(core.Element)
	require.True(t, ok)
	assert.NotEmpty(t, child.ID())

	text, err := Resolved(h, []core.Element{child}).GetText().Await(ctx(t))
	require.NoError(t, err)
	assert.Equal(t, "a2", text)
}

func TestFromDeferred_NormalizesValues(t *testing.T) {
	h := newHost(t, mock.New(mock.Config{}), nil)

	elems, err := FromDeferred(h, queue.Resolved(core.NewElement("only"))).Elements(ctx(t))
	require.NoError(t, err)
	assert.Equal(t, mock.Elements("only"), elems)

	elems, err = FromDeferred(h, queue.Resolved(nil)).Elements(ctx(t))
	require.NoError(t, err)
	assert.Empty(t, elems)

	_, err = FromDeferred(h, queue.Resolved("text")).Elements(ctx(t))
	assert.True(t, errors.Is(err, core.ErrResolution))
}
