// Package core provides the element, transport and error model shared by every browser-runner package.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// W3CElementKey is the W3C WebDriver element identifier key.
const W3CElementKey = "element-6066-11e4-a52e-4f735466cecf"

// legacyElementKey is the JSON Wire Protocol element key still emitted by some servers.
const legacyElementKey = "ELEMENT"

// Element is an opaque reference to one remote DOM node.
// It marshals to the W3C element payload so it can be sent back as a protocol argument.
type Element struct {
	id string
}

// NewElement wraps a remote element id.
func NewElement(id string) Element {
	return Element{id: id}
}

// ID returns the remote element id.
func (e Element) ID() string {
	return e.id
}

// IsZero reports whether e refers to no element.
func (e Element) IsZero() bool {
	return e.id == ""
}

func (e Element) String() string {
	return "element(" + e.id + ")"
}

// MarshalJSON implements json.Marshaler.
func (e Element) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{W3CElementKey: e.id})
}

// UnmarshalJSON accepts the W3C and the legacy element payloads.
func (e *Element) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id := ElementIDFromMap(raw)
	if id == "" {
		return fmt.Errorf("no element id in %s", string(data))
	}
	e.id = id
	return nil
}

// ElementIDFromMap extracts an element id from a decoded protocol value.
func ElementIDFromMap(value map[string]interface{}) string {
	if id, ok := value[W3CElementKey].(string); ok {
		return id
	}
	if id, ok := value[legacyElementKey].(string); ok {
		return id
	}
	return ""
}

// Strategy names a locator strategy.
type Strategy string

// Supported strategies. The first five are native W3C strategies; the rest are rewritten to css.
const (
	StrategyCSS             Strategy = "css selector"
	StrategyXPath           Strategy = "xpath"
	StrategyLinkText        Strategy = "link text"
	StrategyPartialLinkText Strategy = "partial link text"
	StrategyTagName         Strategy = "tag name"
	StrategyID              Strategy = "id"
	StrategyName            Strategy = "name"
	StrategyClassName       Strategy = "class name"
	StrategyAriaLabel       Strategy = "aria-label"
)

var strategyAliases = map[string]Strategy{
	"css":               StrategyCSS,
	"css selector":      StrategyCSS,
	"xpath":             StrategyXPath,
	"link text":         StrategyLinkText,
	"partial link text": StrategyPartialLinkText,
	"tag name":          StrategyTagName,
	"tag":               StrategyTagName,
	"id":                StrategyID,
	"name":              StrategyName,
	"class name":        StrategyClassName,
	"class":             StrategyClassName,
	"aria-label":        StrategyAriaLabel,
}

// ParseStrategy resolves a strategy name or alias.
func ParseStrategy(s string) (Strategy, error) {
	if st, ok := strategyAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st, nil
	}
	return "", ErrInvalidDescriptor.WithMessagef("unknown locate strategy %q", s)
}

// Valid reports whether s is a supported strategy.
func (s Strategy) Valid() bool {
	_, err := ParseStrategy(string(s))
	return err == nil
}

// Query is a single-shot search sent to a transport.
type Query struct {
	Strategy   Strategy
	Expression string
	// Parent, when set, is the evaluation root of the search.
	Parent *Element
}

func (q Query) String() string {
	if q.Parent != nil {
		return fmt.Sprintf("%s %q within %s", q.Strategy, q.Expression, q.Parent)
	}
	return fmt.Sprintf("%s %q", q.Strategy, q.Expression)
}

// Wire returns the strategy and value to send over the W3C protocol.
func (q Query) Wire() (Strategy, string) {
	switch q.Strategy {
	case StrategyID:
		return StrategyCSS, attrSelector("*", "id", "=", q.Expression)
	case StrategyName:
		return StrategyCSS, attrSelector("*", "name", "=", q.Expression)
	case StrategyClassName:
		return StrategyCSS, "." + cssIdent(q.Expression)
	case StrategyAriaLabel:
		return StrategyCSS, attrSelector("*", "aria-label", "=", q.Expression)
	}
	return q.Strategy, q.Expression
}

// Portable returns an equivalent css selector or xpath expression.
// Transports that only evaluate css and xpath use it.
func (q Query) Portable() (Strategy, string) {
	st, expr := q.Wire()
	switch st {
	case StrategyTagName:
		return StrategyCSS, expr
	case StrategyLinkText:
		return StrategyXPath, fmt.Sprintf(".//a[normalize-space(.)=%s]", XPathLiteral(expr))
	case StrategyPartialLinkText:
		return StrategyXPath, fmt.Sprintf(".//a[contains(normalize-space(.),%s)]", XPathLiteral(expr))
	}
	return st, expr
}

// AttrSelector builds tag[attr<op>"value"] with the value quoted for css.
func AttrSelector(tag, attr, op, value string) string {
	return attrSelector(tag, attr, op, value)
}

func attrSelector(tag, attr, op, value string) string {
	return fmt.Sprintf(`%s[%s%s"%s"]`, tag, attr, op, cssString(value))
}

func cssString(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func cssIdent(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r > 0x7f:
			b.WriteRune(r)
		default:
			b.WriteRune('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

// XPathLiteral quotes s as an xpath string literal, using concat() when s holds both quote kinds.
func XPathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ",") + ")"
}

// Action names a protocol action a transport can execute.
type Action string

// Protocol actions. Element actions take the target Element as their first argument.
const (
	ActionNavigateTo          Action = "navigateTo"
	ActionGetTitle            Action = "getTitle"
	ActionMaximizeWindow      Action = "maximizeWindow"
	ActionSetWindowPosition   Action = "setWindowPosition"
	ActionGetWindowRect       Action = "getWindowRect"
	ActionGetText             Action = "getElementText"
	ActionGetAttribute        Action = "getElementAttribute"
	ActionClick               Action = "elementClick"
	ActionSendKeys            Action = "elementSendKeys"
	ActionIsDisplayed         Action = "isElementDisplayed"
	ActionGetLastElementChild Action = "getLastElementChild"
)

// Rect is a window or element rectangle.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Transport executes protocol actions against one remote browser session.
// Implementations: WebDriver (HTTP), Chrome DevTools, static HTML document.
type Transport interface {
	// Execute runs a named protocol action and returns its decoded value.
	Execute(ctx context.Context, action Action, args ...interface{}) (interface{}, error)

	// Locate performs one search attempt. No match is an empty slice, not an error.
	Locate(ctx context.Context, q Query) ([]Element, error)

	// Close ends the remote session.
	Close() error
}

// Reporter receives hard test failures.
type Reporter interface {
	RegisterFailure(err error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(err error)

// RegisterFailure implements Reporter.
func (f ReporterFunc) RegisterFailure(err error) { f(err) }

// NopReporter discards failures.
var NopReporter Reporter = ReporterFunc(func(error) {})
