package webdriver

import (
	"context"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/devicelab-dev/browser-runner/pkg/core"
)

const lastElementChildScript = "return arguments[0].lastElementChild;"

// Transport is a core.Transport bound to one WebDriver session.
type Transport struct {
	client *Client
}

// Dial creates a session on the server and returns its transport.
func Dial(ctx context.Context, serverURL string, capabilities map[string]interface{}, opts Options) (*Transport, error) {
	client := NewClient(serverURL, opts)
	if err := client.Connect(ctx, capabilities); err != nil {
		return nil, err
	}
	return &Transport{client: client}, nil
}

// NewTransport wraps a connected client.
func NewTransport(client *Client) *Transport {
	return &Transport{client: client}
}

// Client returns the underlying HTTP client.
func (t *Transport) Client() *Client {
	return t.client
}

// Locate implements core.Transport. One POST to /elements; no match is an empty slice.
func (t *Transport) Locate(ctx context.Context, q core.Query) ([]core.Element, error) {
	strategy, value := q.Wire()
	path := t.client.sessionPath() + "/elements"
	if q.Parent != nil {
		path = t.client.elementPath(q.Parent.ID()) + "/elements"
	}
	resp, err := t.client.post(ctx, path, map[string]interface{}{
		"using": string(strategy),
		"value": value,
	})
	if err != nil {
		return nil, asExecutionError("findElements", err)
	}

	var elems []core.Element
	resp.Get("value").ForEach(func(_, v gjson.Result) bool {
		if id := elementID(v); id != "" {
			elems = append(elems, core.NewElement(id))
		}
		return true
	})
	return elems, nil
}

// Execute implements core.Transport.
func (t *Transport) Execute(ctx context.Context, action core.Action, args ...interface{}) (interface{}, error) {
	v, err := t.execute(ctx, action, args)
	return v, asExecutionError(action, err)
}

func (t *Transport) execute(ctx context.Context, action core.Action, args []interface{}) (interface{}, error) {
	c := t.client
	switch action {
	case core.ActionNavigateTo:
		_, err := c.post(ctx, c.sessionPath()+"/url", map[string]interface{}{"url": stringArg(args, 0)})
		return nil, err
	case core.ActionGetTitle:
		resp, err := c.get(ctx, c.sessionPath()+"/title")
		if err != nil {
			return nil, err
		}
		return resp.Get("value").String(), nil
	case core.ActionMaximizeWindow:
		_, err := c.post(ctx, c.sessionPath()+"/window/maximize", nil)
		return nil, err
	case core.ActionSetWindowPosition:
		_, err := c.post(ctx, c.sessionPath()+"/window/rect", map[string]interface{}{
			"x": argAt(args, 0),
			"y": argAt(args, 1),
		})
		return nil, err
	case core.ActionGetWindowRect:
		resp, err := c.get(ctx, c.sessionPath()+"/window/rect")
		if err != nil {
			return nil, err
		}
		value := resp.Get("value")
		return core.Rect{
			X:      int(value.Get("x").Int()),
			Y:      int(value.Get("y").Int()),
			Width:  int(value.Get("width").Int()),
			Height: int(value.Get("height").Int()),
		}, nil
	}

	target, err := targetArg(action, args)
	if err != nil {
		return nil, err
	}
	switch action {
	case core.ActionGetText:
		resp, err := c.get(ctx, c.elementPath(target.ID())+"/text")
		if err != nil {
			return nil, err
		}
		return resp.Get("value").String(), nil
	case core.ActionGetAttribute:
		resp, err := c.get(ctx, c.elementPath(target.ID())+"/attribute/"+url.PathEscape(stringArg(args, 1)))
		if err != nil {
			return nil, err
		}
		value := resp.Get("value")
		if value.Type == gjson.Null {
			return nil, nil
		}
		return value.String(), nil
	case core.ActionClick:
		_, err := c.post(ctx, c.elementPath(target.ID())+"/click", nil)
		return nil, err
	case core.ActionSendKeys:
		_, err := c.post(ctx, c.elementPath(target.ID())+"/value", map[string]interface{}{"text": stringArg(args, 1)})
		return nil, err
	case core.ActionIsDisplayed:
		resp, err := c.get(ctx, c.elementPath(target.ID())+"/displayed")
		if err != nil {
			return nil, err
		}
		return resp.Get("value").Bool(), nil
	case core.ActionGetLastElementChild:
		resp, err := c.post(ctx, c.sessionPath()+"/execute/sync", map[string]interface{}{
			"script": lastElementChildScript,
			"args":   []interface{}{target},
		})
		if err != nil {
			return nil, err
		}
		if id := elementID(resp.Get("value")); id != "" {
			return core.NewElement(id), nil
		}
		return nil, nil
	}
	return nil, core.ErrUnsupportedAction.WithMessagef("action %q is not supported by the WebDriver transport", action)
}

// Close implements core.Transport by deleting the session.
func (t *Transport) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return asExecutionError("deleteSession", t.client.Disconnect(ctx))
}

func elementID(v gjson.Result) string {
	if id := v.Get(core.W3CElementKey); id.Exists() {
		return id.String()
	}
	return v.Get("ELEMENT").String()
}

func targetArg(action core.Action, args []interface{}) (core.Element, error) {
	if len(args) > 0 {
		switch e := args[0].(type) {
		case core.Element:
			if !e.IsZero() {
				return e, nil
			}
		case *core.Element:
			if e != nil && !e.IsZero() {
				return *e, nil
			}
		}
	}
	return core.Element{}, core.ErrInvalidArgument.WithMessagef("%s requires a target element", action)
}

func argAt(args []interface{}, i int) interface{} {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func stringArg(args []interface{}, i int) string {
	s, _ := argAt(args, i).(string)
	return s
}

var _ core.Transport = (*Transport)(nil)
