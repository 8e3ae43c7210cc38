package script

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/browser-runner/pkg/core"
	"github.com/devicelab-dev/browser-runner/pkg/locator"
)

const checkout = `
name: checkout
tags: [smoke, cart]
defaults:
  strategy: xpath
  timeout: 2s
  retryInterval: 100
steps:
  - navigateTo: https://shop.test/cart
  - maximizeWindow
  - setWindowPosition: {x: 0, y: 10}
  - useCss
  - click: "#checkout"
  - getText:
      selector: //h1
      using: xpath
      expect: Checkout
  - getText:
      selector: {selector: "li", index: 1, suppressNotFoundErrors: true}
  - sendKeys: {selector: "#q", text: shoes}
  - getAttribute: {selector: "#q", name: value, expect: shoes}
  - findByLabelText: {text: Email, exact: false, sendKeys: a@b.test}
  - findAll: {selector: li, count: 3}
  - pause: 250ms
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(checkout), "checkout.yaml")
	require.NoError(t, err)

	assert.Equal(t, "checkout", s.Name)
	assert.Equal(t, []string{"smoke", "cart"}, s.Tags)
	require.Len(t, s.Steps, 12)

	assert.Equal(t, CmdNavigateTo, s.Steps[0].Command)
	assert.Equal(t, "https://shop.test/cart", s.Steps[0].Params.URL)
	assert.Equal(t, CmdMaximizeWindow, s.Steps[1].Command)
	assert.Equal(t, 0, s.Steps[2].Params.X)
	assert.Equal(t, 10, s.Steps[2].Params.Y)

	click := s.Steps[4]
	require.NotNil(t, click.Params.Selector)
	assert.Equal(t, "#checkout", click.Params.Selector.Selector)

	getText := s.Steps[5]
	assert.Equal(t, "xpath", getText.Params.Using)
	require.NotNil(t, getText.Params.Expect)
	assert.Equal(t, "Checkout", *getText.Params.Expect)

	desc := s.Steps[6].Params.Selector
	require.NotNil(t, desc)
	require.NotNil(t, desc.Index)
	assert.Equal(t, 1, *desc.Index)
	require.NotNil(t, desc.SuppressNotFoundErrors)
	assert.True(t, *desc.SuppressNotFoundErrors)

	label := s.Steps[9]
	assert.Equal(t, "Email", label.Params.Text)
	require.NotNil(t, label.Params.Exact)
	assert.False(t, *label.Params.Exact)
	assert.Equal(t, "a@b.test", *label.Params.SendKeys)

	assert.Equal(t, 3, *s.Steps[10].Params.Count)
	assert.Equal(t, "250ms", s.Steps[11].Params.Duration)

	assert.Empty(t, Validate(s))
}

func TestDefaults_Apply(t *testing.T) {
	s, err := Parse([]byte(checkout), "checkout.yaml")
	require.NoError(t, err)

	d, err := s.Defaults.Apply(locator.NewDefaults())
	require.NoError(t, err)
	assert.Equal(t, core.StrategyXPath, d.Strategy)
	assert.Equal(t, 2*time.Second, d.Timeout)
	assert.Equal(t, 100*time.Millisecond, d.RetryInterval)

	_, err = Defaults{Strategy: "telepathy"}.Apply(locator.NewDefaults())
	assert.True(t, errors.Is(err, core.ErrInvalidDescriptor))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
	}{
		{"no steps", "name: empty\n", 1},
		{"unknown bare command", "steps:\n  - swipe\n", 2},
		{"unknown mapped command", "steps:\n  - tapOn: x\n", 2},
		{"two commands in one step", "steps:\n  - click: a\n    getText: b\n", 2},
		{"scalar for mapping command", "steps:\n  - sendKeys: hello\n", 2},
		{"sequence arguments", "steps:\n  - click: [a, b]\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "bad.yaml")
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, tt.line, pe.Line)
		})
	}
}

func TestValidate(t *testing.T) {
	src := `
steps:
  - click
  - getAttribute: {selector: "#a"}
  - sendKeys: {selector: "#a"}
  - setWindowPosition: {x: "0", y: 1}
  - pause: soon
  - getText: {selector: "#a", using: telepathy}
  - findByLabelText: {text: "  "}
  - navigateTo: {}
`
	s, err := Parse([]byte(src), "bad.yaml")
	require.NoError(t, err)

	errs := Validate(s)
	require.Len(t, errs, 8)
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	assert.Contains(t, msgs[0], "selector is required")
	assert.Contains(t, msgs[1], "name is required")
	assert.Contains(t, msgs[2], "text is required")
	assert.Contains(t, msgs[3], "Coordinates passed to .window.setPosition() must be of type number.")
	assert.Contains(t, msgs[4], "invalid duration")
	assert.Contains(t, msgs[5], "telepathy")
	assert.Contains(t, msgs[6], "label text is required")
	assert.Contains(t, msgs[7], "url is required")
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps:\n  - getTitle\n"), 0o644))

	s, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.SourcePath)
	assert.Equal(t, "getTitle", s.Steps[0].Label())

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestShouldInclude(t *testing.T) {
	s := &Script{Tags: []string{"smoke", "slow"}}
	assert.True(t, ShouldInclude(s, nil, nil))
	assert.True(t, ShouldInclude(s, []string{"smoke"}, nil))
	assert.False(t, ShouldInclude(s, []string{"nightly"}, nil))
	assert.False(t, ShouldInclude(s, nil, []string{"slow"}))
}
