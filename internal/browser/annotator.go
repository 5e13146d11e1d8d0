package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/gatecrash/api/schemas"
)

// Index badges are injected with this marker class so ClearAnnotations can
// remove exactly what Annotate added.
const annotationClass = "__gc_badge"

// annotateScript places a numbered badge over each selector's top-left
// corner, in document order. Badges are absolutely positioned children of
// the body so they never perturb challenge layout.
const annotateScript = `((selectors) => {
	let placed = 0;
	selectors.forEach((sel, idx) => {
		const el = document.querySelector(sel);
		if (!el) return;
		const r = el.getBoundingClientRect();
		const badge = document.createElement('div');
		badge.className = %q;
		badge.textContent = String(idx);
		badge.style.cssText = 'position:absolute;z-index:2147483647;' +
			'left:' + (r.x + window.scrollX + 2) + 'px;' +
			'top:' + (r.y + window.scrollY + 2) + 'px;' +
			'background:#000;color:#fff;font:bold 14px monospace;' +
			'padding:1px 4px;border-radius:3px;pointer-events:none;';
		document.body.appendChild(badge);
		placed++;
	});
	return placed;
})(%s)`

const clearScript = `(() => {
	const badges = document.querySelectorAll('.' + %q);
	badges.forEach(b => b.remove());
	return badges.length;
})()`

// Annotator implements schemas.Annotator: visual index overlays so grid
// perception can express target tiles as integers.
type Annotator struct {
	manager *Manager
}

// NewAnnotator creates the annotation collaborator.
func NewAnnotator(manager *Manager) *Annotator {
	return &Annotator{manager: manager}
}

var _ schemas.Annotator = (*Annotator)(nil)

// Annotate overlays one numbered badge per selector, index matching slice
// position.
func (a *Annotator) Annotate(ctx context.Context, contextID string, selectors []string) error {
	tab, err := a.manager.Tab(contextID)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(selectors)
	if err != nil {
		return fmt.Errorf("selector encoding failed: %w", err)
	}
	var placed int
	script := fmt.Sprintf(annotateScript, annotationClass, string(encoded))
	if err := tab.run(ctx, chromedp.Evaluate(script, &placed)); err != nil {
		return fmt.Errorf("annotation failed: %w", err)
	}
	if placed == 0 {
		return fmt.Errorf("no annotation target resolved")
	}
	return nil
}

// ClearAnnotations removes every badge Annotate placed.
func (a *Annotator) ClearAnnotations(ctx context.Context, contextID string) error {
	tab, err := a.manager.Tab(contextID)
	if err != nil {
		return err
	}
	var removed int
	return tab.run(ctx, chromedp.Evaluate(fmt.Sprintf(clearScript, annotationClass), &removed))
}

// splitSelectorList splits a comma separated selector candidate list.
func splitSelectorList(list string) []string {
	var out []string
	for _, sel := range strings.Split(list, ",") {
		if sel = strings.TrimSpace(sel); sel != "" {
			out = append(out, sel)
		}
	}
	return out
}
