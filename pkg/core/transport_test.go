package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElement_JSONShape(t *testing.T) {
	el := NewElement("elem-1")

	data, err := json.Marshal(el)
	require.NoError(t, err)
	assert.JSONEq(t, `{"element-6066-11e4-a52e-4f735466cecf":"elem-1"}`, string(data))
	assert.Equal(t, "elem-1", el.ID())

	var back Element
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, el, back)

	var legacy Element
	require.NoError(t, json.Unmarshal([]byte(`{"ELEMENT":"old-1"}`), &legacy))
	assert.Equal(t, "old-1", legacy.ID())

	assert.Error(t, json.Unmarshal([]byte(`{"foo":"bar"}`), &legacy))
}

func TestParseStrategy(t *testing.T) {
	tests := map[string]Strategy{
		"css":               StrategyCSS,
		"CSS Selector":      StrategyCSS,
		"xpath":             StrategyXPath,
		"link text":         StrategyLinkText,
		"partial link text": StrategyPartialLinkText,
		"tag name":          StrategyTagName,
		"id":                StrategyID,
		"aria-label":        StrategyAriaLabel,
	}
	for in, want := range tests {
		got, err := ParseStrategy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseStrategy("sizzle")
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
}

func TestQuery_Wire(t *testing.T) {
	tests := []struct {
		q        Query
		strategy Strategy
		expr     string
	}{
		{Query{Strategy: StrategyCSS, Expression: "#nock"}, StrategyCSS, "#nock"},
		{Query{Strategy: StrategyXPath, Expression: "//a"}, StrategyXPath, "//a"},
		{Query{Strategy: StrategyID, Expression: `we"ird`}, StrategyCSS, `*[id="we\"ird"]`},
		{Query{Strategy: StrategyName, Expression: "email"}, StrategyCSS, `*[name="email"]`},
		{Query{Strategy: StrategyClassName, Expression: "a.b"}, StrategyCSS, `.a\.b`},
		{Query{Strategy: StrategyAriaLabel, Expression: "Close"}, StrategyCSS, `*[aria-label="Close"]`},
		{Query{Strategy: StrategyLinkText, Expression: "Home"}, StrategyLinkText, "Home"},
	}
	for _, tt := range tests {
		st, expr := tt.q.Wire()
		assert.Equal(t, tt.strategy, st)
		assert.Equal(t, tt.expr, expr)
	}
}

func TestQuery_Portable(t *testing.T) {
	st, expr := Query{Strategy: StrategyLinkText, Expression: "Home"}.Portable()
	assert.Equal(t, StrategyXPath, st)
	assert.Equal(t, `.//a[normalize-space(.)="Home"]`, expr)

	st, expr = Query{Strategy: StrategyTagName, Expression: "input"}.Portable()
	assert.Equal(t, StrategyCSS, st)
	assert.Equal(t, "input", expr)
}

func TestXPathLiteral(t *testing.T) {
	assert.Equal(t, `"plain"`, XPathLiteral("plain"))
	assert.Equal(t, `'say "hi"'`, XPathLiteral(`say "hi"`))
	assert.Equal(t, `concat("it's ",'"',"x",'"')`, XPathLiteral(`it's "x"`))
}
