package element

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/browser-runner/pkg/core"
	"github.com/devicelab-dev/browser-runner/pkg/driver/htmldoc"
)

func labelOpts() LabelOptions {
	return DefaultLabelOptions(50*time.Millisecond, 5*time.Millisecond)
}

func resolveLabel(t *testing.T, h Host, text string, opts LabelOptions) (string, error) {
	t.Helper()
	s, err := FindByLabelText(h, text, opts)
	require.NoError(t, err)
	el, err := s.First(ctx(t))
	if err != nil {
		return "", err
	}
	v, err := h.Transport().Execute(ctx(t), core.ActionGetAttribute, el, "id")
	require.NoError(t, err)
	id, _ := v.(string)
	return id, nil
}

func TestFindByLabelText_ForAttributeShortCircuits(t *testing.T) {
	h, rec, _ := docHost(t, `<html><body>
<label for="email" id="lbl">Email</label>
<input id="email">
<input id="other" aria-labelledby="lbl" aria-label="Email">
</body></html>`)

	id, err := resolveLabel(t, h, "Email", labelOpts())
	require.NoError(t, err)
	assert.Equal(t, "email", id)
	assert.Equal(t, []string{`.//label[text()="Email"]`, `input[id="email"]`}, rec.Locates())
}

func TestFindByLabelText_AriaLabelledBy(t *testing.T) {
	h, _, _ := docHost(t, `<html><body>
<label id="lbl">Password</label>
<input id="pw" aria-labelledby="lbl">
</body></html>`)

	id, err := resolveLabel(t, h, "Password", labelOpts())
	require.NoError(t, err)
	assert.Equal(t, "pw", id)
}

func TestFindByLabelText_NestedInput(t *testing.T) {
	h, _, _ := docHost(t, `<html><body>
<label><input id="name">Name</label>
</body></html>`)

	id, err := resolveLabel(t, h, "Name", labelOpts())
	require.NoError(t, err)
	assert.Equal(t, "name", id)
}

func TestFindByLabelText_DeepNestingWhenNoLabelMatches(t *testing.T) {
	h, rec, _ := docHost(t, `<html><body>
<label><span>Phone</span><input id="phone"></label>
</body></html>`)

	id, err := resolveLabel(t, h, "Phone", labelOpts())
	require.NoError(t, err)
	assert.Equal(t, "phone", id)
	assert.Contains(t, rec.Locates(), `.//label[*[text()="Phone"]]`)
}

func TestFindByLabelText_AriaLabelOnly(t *testing.T) {
	h, rec, _ := docHost(t, `<html><body>
<label>Search</label>
<div><input id="q" aria-label="Search"></div>
</body></html>`)

	id, err := resolveLabel(t, h, "Search", labelOpts())
	require.NoError(t, err)
	assert.Equal(t, "q", id)

	locates := rec.Locates()
	assert.NotContains(t, locates, `.//label[*[text()="Search"]]`, "deep nesting runs only when no label matched")
	assert.Equal(t, `input[aria-label="Search"]`, locates[len(locates)-1])
}

func TestFindByLabelText_ContainsMatching(t *testing.T) {
	h, _, _ := docHost(t, `<html><body>
<label for="e">Your email address</label><input id="e">
<input id="a" aria-label="Billing email address">
</body></html>`)

	opts := labelOpts()
	opts.Exact = false
	id, err := resolveLabel(t, h, "email", opts)
	require.NoError(t, err)
	assert.Equal(t, "e", id)

	_, err = resolveLabel(t, h, "email", labelOpts())
	assert.True(t, errors.Is(err, core.ErrElementNotFound))
}

// attrFailure fails every getAttribute call with a protocol error.
type attrFailure struct {
	core.Transport
}

func (a attrFailure) Execute(ctx context.Context, action core.Action, args ...interface{}) (interface{}, error) {
	if action == core.ActionGetAttribute && len(args) > 1 && args[1] == "for" {
		return nil, core.ErrTransport.WithMessage("invalid argument: malformed attribute")
	}
	return a.Transport.Execute(ctx, action, args...)
}

func TestFindByLabelText_StrategyErrorsAreIsolated(t *testing.T) {
	doc, err := htmldoc.Parse(`<html><body>
<label for="broken" id="lbl">City</label>
<input id="city" aria-labelledby="lbl">
</body></html>`)
	require.NoError(t, err)
	h := newHost(t, attrFailure{Transport: doc}, nil)

	s, err := FindByLabelText(h, "City", labelOpts())
	require.NoError(t, err)
	elems, err := s.Elements(ctx(t))
	require.NoError(t, err)
	require.Len(t, elems, 1)

	id, _ := doc.Execute(ctx(t), core.ActionGetAttribute, elems[0], "id")
	assert.Equal(t, "city", id)
}

// attrRejected answers getAttribute("for") with an invalid-argument error.
type attrRejected struct {
	core.Transport
}

func (a attrRejected) Execute(ctx context.Context, action core.Action, args ...interface{}) (interface{}, error) {
	if action == core.ActionGetAttribute && len(args) > 1 && args[1] == "for" {
		return nil, core.ErrInvalidArgument.WithMessage("attribute name rejected")
	}
	return a.Transport.Execute(ctx, action, args...)
}

func TestFindByLabelText_InvalidArgumentStopsChain(t *testing.T) {
	doc, err := htmldoc.Parse(`<html><body>
<label for="broken" id="lbl">City</label>
<input id="city" aria-labelledby="lbl">
</body></html>`)
	require.NoError(t, err)
	h := newHost(t, attrRejected{Transport: doc}, nil)

	s, err := FindByLabelText(h, "City", labelOpts())
	require.NoError(t, err)
	_, err = s.Elements(ctx(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidArgument))
	assert.False(t, errors.Is(err, core.ErrElementNotFound))
}

func TestFindByLabelText_NotFound(t *testing.T) {
	h, _, _ := docHost(t, `<html><body><input id="x"></body></html>`)

	_, err := resolveLabel(t, h, "Missing", labelOpts())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrElementNotFound))
	assert.Equal(t, `The element associated with label whose text equals "Missing" has not been found.`, err.Error())

	opts := labelOpts()
	opts.Exact = false
	_, err = resolveLabel(t, h, "Missing", opts)
	assert.Contains(t, err.Error(), `whose text contains "Missing"`)
}

func TestFindByLabelText_Suppressed(t *testing.T) {
	h, _, _ := docHost(t, `<html><body></body></html>`)

	opts := labelOpts()
	opts.SuppressNotFoundErrors = true
	s, err := FindByLabelText(h, "Missing", opts)
	require.NoError(t, err)

	elems, err := s.Elements(ctx(t))
	require.NoError(t, err)
	assert.Empty(t, elems)
}

func TestFindByLabelText_InvalidArguments(t *testing.T) {
	h, _, _ := docHost(t, `<html></html>`)

	_, err := FindByLabelText(h, "", labelOpts())
	assert.True(t, errors.Is(err, core.ErrInvalidArgument))

	_, err = FindByLabelText(h, "x", LabelOptions{Timeout: time.Second})
	assert.True(t, errors.Is(err, core.ErrInvalidArgument))
}
