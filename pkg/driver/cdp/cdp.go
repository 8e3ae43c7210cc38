// Package cdp implements core.Transport over the Chrome DevTools Protocol using chromedp.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/devicelab-dev/browser-runner/pkg/core"
)

// objectGroup groups every remote object the transport holds so they can be
// released together on navigation.
const objectGroup = "browser-runner"

// Options configures the Chrome process.
type Options struct {
	Headless     bool
	ExecPath     string // empty = let chromedp find Chrome
	WindowWidth  int
	WindowHeight int
	Logger       *zap.Logger
}

// Transport is a core.Transport driving one Chrome tab.
type Transport struct {
	ctx         context.Context // tab context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	logger      *zap.Logger

	mu      sync.Mutex
	objects map[string]runtime.RemoteObjectID
	nextID  int
}

// allocatorOptions translates Options into chromedp allocator options.
func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	out := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	out = append(out,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.Headless {
		out = append(out, chromedp.Headless)
	} else {
		out = append(out, chromedp.Flag("headless", false))
	}
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		out = append(out, chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight))
	}
	return out
}

// Launch starts Chrome and opens a tab.
func Launch(ctx context.Context, opts Options) (*Transport, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocatorOptions(opts)...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Sugar().Debugf))

	// The first Run starts the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, core.ErrSessionNotCreated.WithMessage("failed to start Chrome").WithCause(err)
	}
	logger.Info("chrome started", zap.Bool("headless", opts.Headless))
	return &Transport{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		logger:      logger,
		objects:     make(map[string]runtime.RemoteObjectID),
	}, nil
}

// run executes fn on the tab, aborting when ctx is done.
func (t *Transport) run(ctx context.Context, fn func(ctx context.Context) error) error {
	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, chromedp.ActionFunc(fn))
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Locate implements core.Transport. The search runs once in the page.
func (t *Transport) Locate(ctx context.Context, q core.Query) ([]core.Element, error) {
	var root runtime.RemoteObjectID
	if q.Parent != nil {
		id, err := t.object(*q.Parent)
		if err != nil {
			return nil, err
		}
		root = id
	}
	decl, err := locateFunction(q)
	if err != nil {
		return nil, err
	}

	var elems []core.Element
	err = t.run(ctx, func(ctx context.Context) error {
		if root == "" {
			doc, exc, err := runtime.Evaluate("document").WithObjectGroup(objectGroup).Do(ctx)
			if err := callError(exc, err); err != nil {
				return err
			}
			root = doc.ObjectID
		}
		arr, exc, err := runtime.CallFunctionOn(decl).WithObjectID(root).WithObjectGroup(objectGroup).Do(ctx)
		if err := callError(exc, err); err != nil {
			return err
		}
		var n int
		if err := callByValue(ctx, arr.ObjectID, "function(){return this.length}", &n); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			obj, exc, err := runtime.CallFunctionOn("function(){return this["+strconv.Itoa(i)+"]}").
				WithObjectID(arr.ObjectID).WithObjectGroup(objectGroup).Do(ctx)
			if err := callError(exc, err); err != nil {
				return err
			}
			elems = append(elems, t.register(obj.ObjectID))
		}
		return nil
	})
	if err != nil {
		return nil, transportError("locate", err)
	}
	return elems, nil
}

// Execute implements core.Transport.
func (t *Transport) Execute(ctx context.Context, action core.Action, args ...interface{}) (interface{}, error) {
	v, err := t.execute(ctx, action, args)
	return v, transportError(string(action), err)
}

func (t *Transport) execute(ctx context.Context, action core.Action, args []interface{}) (interface{}, error) {
	switch action {
	case core.ActionNavigateTo:
		url, _ := argAt(args, 0).(string)
		err := t.run(ctx, func(ctx context.Context) error {
			if err := chromedp.Navigate(url).Do(ctx); err != nil {
				return err
			}
			return runtime.ReleaseObjectGroup(objectGroup).Do(ctx)
		})
		if err == nil {
			t.forget()
		}
		return nil, err
	case core.ActionGetTitle:
		var title string
		err := t.run(ctx, func(ctx context.Context) error {
			return chromedp.Title(&title).Do(ctx)
		})
		return title, err
	case core.ActionMaximizeWindow:
		return nil, t.run(ctx, func(ctx context.Context) error {
			id, _, err := browser.GetWindowForTarget().Do(ctx)
			if err != nil {
				return err
			}
			return browser.SetWindowBounds(id, &browser.Bounds{WindowState: browser.WindowStateMaximized}).Do(ctx)
		})
	case core.ActionSetWindowPosition:
		x, okX := toInt64(argAt(args, 0))
		y, okY := toInt64(argAt(args, 1))
		if !okX || !okY {
			return nil, core.ErrInvalidArgument.WithMessage("setWindowPosition expects numeric x and y")
		}
		return nil, t.run(ctx, func(ctx context.Context) error {
			id, _, err := browser.GetWindowForTarget().Do(ctx)
			if err != nil {
				return err
			}
			// position changes are ignored while maximized
			if err := browser.SetWindowBounds(id, &browser.Bounds{WindowState: browser.WindowStateNormal}).Do(ctx); err != nil {
				return err
			}
			return browser.SetWindowBounds(id, &browser.Bounds{Left: x, Top: y}).Do(ctx)
		})
	case core.ActionGetWindowRect:
		var rect core.Rect
		err := t.run(ctx, func(ctx context.Context) error {
			_, b, err := browser.GetWindowForTarget().Do(ctx)
			if err != nil {
				return err
			}
			rect = core.Rect{X: int(b.Left), Y: int(b.Top), Width: int(b.Width), Height: int(b.Height)}
			return nil
		})
		return rect, err
	}

	target, ok := argAt(args, 0).(core.Element)
	if !ok || target.IsZero() {
		return nil, core.ErrInvalidArgument.WithMessagef("%s requires a target element", action)
	}
	obj, err := t.object(target)
	if err != nil {
		return nil, err
	}

	switch action {
	case core.ActionGetText:
		var text string
		err := t.run(ctx, func(ctx context.Context) error {
			return callByValue(ctx, obj, jsText, &text)
		})
		return text, err
	case core.ActionGetAttribute:
		name, _ := argAt(args, 1).(string)
		var value *string
		err := t.run(ctx, func(ctx context.Context) error {
			return callByValue(ctx, obj, "function(){return this.getAttribute("+jsString(name)+")}", &value)
		})
		if err != nil || value == nil {
			return nil, err
		}
		return *value, nil
	case core.ActionClick:
		return nil, t.run(ctx, func(ctx context.Context) error {
			return click(ctx, obj)
		})
	case core.ActionSendKeys:
		text, _ := argAt(args, 1).(string)
		return nil, t.run(ctx, func(ctx context.Context) error {
			if err := dom.Focus().WithObjectID(obj).Do(ctx); err != nil {
				return err
			}
			return input.InsertText(text).Do(ctx)
		})
	case core.ActionIsDisplayed:
		var shown bool
		err := t.run(ctx, func(ctx context.Context) error {
			return callByValue(ctx, obj, jsDisplayed, &shown)
		})
		return shown, err
	case core.ActionGetLastElementChild:
		var child interface{}
		err := t.run(ctx, func(ctx context.Context) error {
			res, exc, err := runtime.CallFunctionOn("function(){return this.lastElementChild}").
				WithObjectID(obj).WithObjectGroup(objectGroup).Do(ctx)
			if err := callError(exc, err); err != nil {
				return err
			}
			if res.ObjectID != "" {
				child = t.register(res.ObjectID)
			}
			return nil
		})
		return child, err
	}
	return nil, core.ErrUnsupportedAction.WithMessagef("action %q is not supported by the CDP transport", action)
}

// Close implements core.Transport by closing the tab and the browser.
func (t *Transport) Close() error {
	t.cancelTab()
	t.cancelAlloc()
	t.forget()
	return nil
}

func (t *Transport) register(id runtime.RemoteObjectID) core.Element {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	key := fmt.Sprintf("cdp-%d", t.nextID)
	t.objects[key] = id
	return core.NewElement(key)
}

func (t *Transport) object(e core.Element) (runtime.RemoteObjectID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.objects[e.ID()]
	if !ok {
		return "", core.ErrTransport.WithMessagef("stale element reference: %s", e.ID())
	}
	return id, nil
}

func (t *Transport) forget() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.objects = make(map[string]runtime.RemoteObjectID)
}

func click(ctx context.Context, obj runtime.RemoteObjectID) error {
	if err := dom.ScrollIntoViewIfNeeded().WithObjectID(obj).Do(ctx); err != nil {
		return err
	}
	box, err := dom.GetBoxModel().WithObjectID(obj).Do(ctx)
	if err != nil {
		return err
	}
	x, y := center(box.Content)
	if err := input.DispatchMouseEvent(input.MousePressed, x, y).WithButton(input.Left).WithClickCount(1).Do(ctx); err != nil {
		return err
	}
	return input.DispatchMouseEvent(input.MouseReleased, x, y).WithButton(input.Left).WithClickCount(1).Do(ctx)
}

// center returns the midpoint of a quad given as x1,y1,...,x4,y4.
func center(q dom.Quad) (float64, float64) {
	var x, y float64
	n := len(q) / 2
	if n == 0 {
		return 0, 0
	}
	for i := 0; i < n; i++ {
		x += q[2*i]
		y += q[2*i+1]
	}
	return x / float64(n), y / float64(n)
}

func callByValue(ctx context.Context, obj runtime.RemoteObjectID, decl string, out interface{}) error {
	res, exc, err := runtime.CallFunctionOn(decl).WithObjectID(obj).WithReturnByValue(true).Do(ctx)
	if err := callError(exc, err); err != nil {
		return err
	}
	if len(res.Value) == 0 {
		return nil
	}
	return json.Unmarshal([]byte(res.Value), out)
}

func callError(exc *runtime.ExceptionDetails, err error) error {
	if err != nil {
		return err
	}
	if exc != nil {
		return exc
	}
	return nil
}

func transportError(action string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var execErr *core.ExecutionError
	if errors.As(err, &execErr) {
		return err
	}
	return core.ErrTransport.WithMessagef("%s failed", action).WithCause(err)
}

func argAt(args []interface{}, i int) interface{} {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

var _ core.Transport = (*Transport)(nil)
