package cdp

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/devicelab-dev/browser-runner/pkg/core"
)

const jsText = `function(){return this.innerText === undefined ? this.textContent : this.innerText}`

const jsDisplayed = `function(){
	const style = window.getComputedStyle(this);
	if (style.display === 'none' || style.visibility === 'hidden') return false;
	return !!(this.offsetWidth || this.offsetHeight || this.getClientRects().length);
}`

// locateFunction returns a function declaration that, called on the search
// root, returns an array of the matching elements.
func locateFunction(q core.Query) (string, error) {
	strategy, expr := q.Portable()
	switch strategy {
	case core.StrategyCSS:
		return `function(){return Array.from(this.querySelectorAll(` + jsString(expr) + `))}`, nil
	case core.StrategyXPath:
		return `function(){
	const doc = this.ownerDocument || this;
	const r = doc.evaluate(` + jsString(expr) + `, this, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
	const out = [];
	for (let i = 0; i < r.snapshotLength; i++) {
		const n = r.snapshotItem(i);
		if (n.nodeType === 1) out.push(n);
	}
	return out;
}`, nil
	}
	return "", core.ErrUnsupportedAction.WithMessagef("strategy %q is not supported by the CDP transport", strategy)
}

// jsString quotes s as a JavaScript string literal. Selector characters
// such as > stay readable in CDP traces.
func jsString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}
