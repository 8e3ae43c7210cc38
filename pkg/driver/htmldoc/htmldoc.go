// Package htmldoc implements core.Transport over a static HTML document.
//
// css selectors are evaluated with goquery/cascadia, xpath with htmlquery.
// There is no layout engine: visibility is derived from the hidden attribute,
// inline display:none/visibility:hidden and type=hidden, and window actions
// update a simulated window rectangle. It is used for offline script runs
// and as the in-memory DOM of package tests.
package htmldoc

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/devicelab-dev/browser-runner/pkg/core"
)

// Screen is the simulated screen size used by maximizeWindow.
var Screen = core.Rect{Width: 1920, Height: 1080}

// Document is an in-memory browser session over one HTML page.
type Document struct {
	mu     sync.Mutex
	doc    *goquery.Document
	ids    map[*html.Node]string
	nodes  map[string]*html.Node
	nextID int
	window core.Rect
	clicks []string
	pages  map[string]string
	url    string
	closed bool
}

// Option configures a Document.
type Option func(*Document)

// WithPages registers documents served by navigateTo, keyed by URL.
// URLs not registered are read from disk when they are file:// URLs.
func WithPages(pages map[string]string) Option {
	return func(d *Document) {
		for k, v := range pages {
			d.pages[k] = v
		}
	}
}

// Parse builds a Document from HTML source.
func Parse(src string, opts ...Option) (*Document, error) {
	return New(strings.NewReader(src), opts...)
}

// New builds a Document from r.
func New(r io.Reader, opts ...Option) (*Document, error) {
	d := &Document{
		pages:  make(map[string]string),
		window: core.Rect{Width: 1280, Height: 800},
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.load(r); err != nil {
		return nil, err
	}
	return d, nil
}

// Open builds a Document from an HTML file.
func Open(path string, opts ...Option) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, core.ErrSessionNotCreated.WithMessagef("open %s", path).WithCause(err)
	}
	defer f.Close()
	d, err := New(f, opts...)
	if err != nil {
		return nil, err
	}
	d.url = "file://" + path
	return d, nil
}

func (d *Document) load(r io.Reader) error {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return core.ErrSessionNotCreated.WithMessage("failed to parse HTML document").WithCause(err)
	}
	d.doc = doc
	d.ids = make(map[*html.Node]string)
	d.nodes = make(map[string]*html.Node)
	return nil
}

// Locate implements core.Transport.
func (d *Document) Locate(ctx context.Context, q core.Query) ([]core.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errClosed()
	}

	root := d.doc.Selection.Nodes[0]
	if q.Parent != nil {
		n, err := d.nodeLocked(*q.Parent)
		if err != nil {
			return nil, err
		}
		root = n
	}

	strategy, expr := q.Portable()
	var found []*html.Node
	switch strategy {
	case core.StrategyCSS:
		matcher, err := cascadia.Compile(expr)
		if err != nil {
			return nil, invalidSelector(q, err)
		}
		found = goquery.NewDocumentFromNode(root).FindMatcher(matcher).Nodes
	case core.StrategyXPath:
		nodes, err := htmlquery.QueryAll(root, expr)
		if err != nil {
			return nil, invalidSelector(q, err)
		}
		for _, n := range nodes {
			if n.Type == html.ElementNode {
				found = append(found, n)
			}
		}
	default:
		return nil, core.ErrUnsupportedAction.WithMessagef("strategy %q is not supported", q.Strategy)
	}

	elems := make([]core.Element, len(found))
	for i, n := range found {
		elems[i] = d.elementLocked(n)
	}
	return elems, nil
}

// Execute implements core.Transport.
func (d *Document) Execute(ctx context.Context, action core.Action, args ...interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errClosed()
	}

	switch action {
	case core.ActionNavigateTo:
		url, _ := argString(args, 0)
		return nil, d.navigateLocked(url)
	case core.ActionGetTitle:
		return collapse(d.doc.Find("title").First().Text()), nil
	case core.ActionMaximizeWindow:
		d.window = Screen
		return nil, nil
	case core.ActionSetWindowPosition:
		x, okX := argInt(args, 0)
		y, okY := argInt(args, 1)
		if !okX || !okY {
			return nil, core.ErrInvalidArgument.WithMessage("setWindowPosition expects numeric x and y")
		}
		d.window.X, d.window.Y = x, y
		return nil, nil
	case core.ActionGetWindowRect:
		return d.window, nil
	}

	n, sel, err := d.targetLocked(args)
	if err != nil {
		return nil, err
	}
	switch action {
	case core.ActionGetText:
		if !visible(n) {
			return "", nil
		}
		return collapse(sel.Text()), nil
	case core.ActionGetAttribute:
		name, _ := argString(args, 1)
		if v, ok := sel.Attr(name); ok {
			return v, nil
		}
		return nil, nil
	case core.ActionClick:
		if !visible(n) {
			return nil, core.ErrTransport.WithMessagef("element not interactable: %s", d.ids[n])
		}
		d.clicks = append(d.clicks, d.ids[n])
		return nil, nil
	case core.ActionSendKeys:
		text, _ := argString(args, 1)
		current, _ := sel.Attr("value")
		sel.SetAttr("value", current+text)
		return nil, nil
	case core.ActionIsDisplayed:
		return visible(n), nil
	case core.ActionGetLastElementChild:
		for c := n.LastChild; c != nil; c = c.PrevSibling {
			if c.Type == html.ElementNode {
				return d.elementLocked(c), nil
			}
		}
		return nil, nil
	}
	return nil, core.ErrUnsupportedAction.WithMessagef("action %q is not supported by the HTML document transport", action)
}

// Close implements core.Transport.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Clicks returns the ids of clicked elements in order.
func (d *Document) Clicks() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.clicks))
	copy(out, d.clicks)
	return out
}

// URL returns the current document URL.
func (d *Document) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

func (d *Document) navigateLocked(url string) error {
	src, ok := d.pages[url]
	if !ok {
		path, isFile := strings.CutPrefix(url, "file://")
		if !isFile {
			return core.ErrUnsupportedAction.WithMessagef("cannot navigate to %q: page not registered", url)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return core.ErrTransport.WithMessagef("cannot navigate to %q", url).WithCause(err)
		}
		src = string(data)
	}
	if err := d.load(strings.NewReader(src)); err != nil {
		return err
	}
	d.url = url
	return nil
}

func (d *Document) elementLocked(n *html.Node) core.Element {
	id, ok := d.ids[n]
	if !ok {
		d.nextID++
		id = fmt.Sprintf("node-%d", d.nextID)
		d.ids[n] = id
		d.nodes[id] = n
	}
	return core.NewElement(id)
}

func (d *Document) nodeLocked(e core.Element) (*html.Node, error) {
	n, ok := d.nodes[e.ID()]
	if !ok {
		return nil, core.ErrTransport.WithMessagef("stale element reference: %s", e.ID())
	}
	return n, nil
}

func (d *Document) targetLocked(args []interface{}) (*html.Node, *goquery.Selection, error) {
	if len(args) == 0 {
		return nil, nil, core.ErrInvalidArgument.WithMessage("missing target element")
	}
	e, ok := args[0].(core.Element)
	if !ok {
		return nil, nil, core.ErrInvalidArgument.WithMessagef("target must be an element, got %T", args[0])
	}
	n, err := d.nodeLocked(e)
	if err != nil {
		return nil, nil, err
	}
	return n, d.doc.FindNodes(n), nil
}

func visible(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if htmlquery.ExistsAttr(n, "hidden") {
			return false
		}
		if n.Data == "input" && strings.EqualFold(htmlquery.SelectAttr(n, "type"), "hidden") {
			return false
		}
		style := strings.ReplaceAll(strings.ToLower(htmlquery.SelectAttr(n, "style")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	return true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func argString(args []interface{}, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	s, ok := args[i].(string)
	return s, ok
}

func argInt(args []interface{}, i int) (int, bool) {
	if i >= len(args) {
		return 0, false
	}
	switch v := args[i].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func invalidSelector(q core.Query, err error) error {
	return core.ErrTransport.WithMessagef("invalid selector: %s", q).WithCause(err)
}

func errClosed() error {
	return core.ErrTransport.WithMessage("session is closed")
}
