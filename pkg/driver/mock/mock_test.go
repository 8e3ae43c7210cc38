package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/browser-runner/pkg/core"
)

func TestTransport_DefaultsFindNothing(t *testing.T) {
	tr := New(Config{})

	elems, err := tr.Locate(context.Background(), core.Query{Strategy: core.StrategyCSS, Expression: "#a"})
	require.NoError(t, err)
	assert.Empty(t, elems)

	v, err := tr.Execute(context.Background(), core.ActionGetTitle)
	require.NoError(t, err)
	assert.Nil(t, v)

	calls := tr.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, KindLocate, calls[0].Kind)
	assert.Equal(t, "#a", calls[0].Query.Expression)
	assert.Equal(t, core.ActionGetTitle, calls[1].Action)
	assert.Equal(t, 1, tr.LocateCalls())
}

func TestTransport_Handlers(t *testing.T) {
	tr := New(Config{}).
		OnLocate(func(ctx context.Context, q core.Query) ([]core.Element, error) {
			return Elements("e1", "e2"), nil
		}).
		OnExecute(func(ctx context.Context, action core.Action, args []interface{}) (interface{}, error) {
			return string(action), nil
		})

	elems, err := tr.Locate(context.Background(), core.Query{})
	require.NoError(t, err)
	assert.Equal(t, []core.Element{core.NewElement("e1"), core.NewElement("e2")}, elems)

	v, err := tr.Execute(context.Background(), core.ActionClick, core.NewElement("e1"))
	require.NoError(t, err)
	assert.Equal(t, "elementClick", v)
}

func TestTransport_FailOnCall(t *testing.T) {
	tr := New(Config{FailOnCall: 2})

	_, err := tr.Execute(context.Background(), core.ActionGetTitle)
	assert.NoError(t, err)
	_, err = tr.Locate(context.Background(), core.Query{})
	assert.True(t, errors.Is(err, core.ErrTransport))
	_, err = tr.Execute(context.Background(), core.ActionGetTitle)
	assert.NoError(t, err)
}

func TestTransport_DelayHonorsContext(t *testing.T) {
	tr := New(Config{Delay: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := tr.Execute(ctx, core.ActionGetTitle)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransport_Close(t *testing.T) {
	tr := New(Config{})
	assert.False(t, tr.Closed())
	require.NoError(t, tr.Close())
	assert.True(t, tr.Closed())
}

func TestReporter(t *testing.T) {
	r := &Reporter{}
	r.RegisterFailure(errors.New("one"))
	r.RegisterFailure(errors.New("two"))
	assert.Equal(t, 2, r.Count())
	assert.EqualError(t, r.Failures()[1], "two")
}
