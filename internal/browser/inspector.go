package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
)

// elementRecord mirrors the JSON shape produced by the snapshot script.
type elementRecord struct {
	Selector  string  `json:"selector"`
	ID        string  `json:"id"`
	ClassName string  `json:"className"`
	Tag       string  `json:"tag"`
	Text      string  `json:"text"`
	AltText   string  `json:"altText"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Visible   bool    `json:"visible"`
}

// snapshotScript walks the document and every reachable same-origin iframe,
// collecting geometry and identity for each element matching the selector.
// Generated selectors prefer an id, then a compacted class chain with an
// nth-of-type disambiguator, so later targeted lookups resolve the same node.
// Frame-local coordinates are offset by the frame's own position so all
// geometry is in top-document space.
const snapshotScript = `(() => {
	const pattern = %q;
	const out = [];
	const cssEscape = (s) => (window.CSS && CSS.escape) ? CSS.escape(s) : s.replace(/([^a-zA-Z0-9_-])/g, '\\$1');
	const selectorFor = (el) => {
		if (el.id) return '#' + cssEscape(el.id);
		let sel = el.tagName.toLowerCase();
		const cls = (typeof el.className === 'string') ? el.className.trim().split(/\s+/).filter(Boolean) : [];
		if (cls.length) sel += '.' + cls.slice(0, 3).map(cssEscape).join('.');
		const parent = el.parentElement;
		if (parent) {
			const siblings = Array.from(parent.children).filter(c => c.tagName === el.tagName);
			if (siblings.length > 1) sel += ':nth-of-type(' + (siblings.indexOf(el) + 1) + ')';
		}
		return sel;
	};
	const collect = (doc, offsetX, offsetY) => {
		let matches;
		try { matches = doc.querySelectorAll(pattern); } catch (e) { return; }
		for (const el of matches) {
			const r = el.getBoundingClientRect();
			const style = doc.defaultView ? doc.defaultView.getComputedStyle(el) : null;
			const visible = r.width > 0 && r.height > 0 &&
				(!style || (style.visibility !== 'hidden' && style.display !== 'none' && style.opacity !== '0'));
			out.push({
				selector: selectorFor(el),
				id: el.id || '',
				className: (typeof el.className === 'string') ? el.className : '',
				tag: el.tagName.toLowerCase(),
				text: (el.innerText || el.value || '').slice(0, 500),
				altText: el.getAttribute ? (el.getAttribute('alt') || '') : '',
				x: r.x + offsetX, y: r.y + offsetY,
				width: r.width, height: r.height,
				visible: visible,
			});
		}
		for (const frame of doc.querySelectorAll('iframe')) {
			const fr = frame.getBoundingClientRect();
			try {
				if (frame.contentDocument) collect(frame.contentDocument, offsetX + fr.x, offsetY + fr.y);
			} catch (e) { /* cross-origin */ }
		}
	};
	collect(document, 0, 0);
	return out;
})()`

// Inspector implements schemas.DOMInspector over the tab registry. Scan
// replaces the tab's snapshot; GetElements reads it. Callers that need
// freshness must Scan first.
type Inspector struct {
	manager *Manager
	logger  *zap.Logger
}

// NewInspector creates the DOM introspection collaborator.
func NewInspector(manager *Manager) *Inspector {
	return &Inspector{manager: manager, logger: manager.logger.Named("inspector")}
}

var _ schemas.DOMInspector = (*Inspector)(nil)

// Scan re-walks the DOM, including same-origin child frames, and replaces
// the context's element snapshot.
func (in *Inspector) Scan(ctx context.Context, contextID, selectorPattern string) error {
	tab, err := in.manager.Tab(contextID)
	if err != nil {
		return err
	}
	if selectorPattern == "" {
		selectorPattern = "*"
	}

	var records []elementRecord
	script := fmt.Sprintf(snapshotScript, selectorPattern)
	if err := tab.run(ctx, chromedp.Evaluate(script, &records)); err != nil {
		return fmt.Errorf("dom scan failed: %w", err)
	}

	tab.snapMu.Lock()
	tab.snapshot = records
	tab.snapMu.Unlock()
	in.logger.Debug("Snapshot refreshed",
		zap.String("context", contextID),
		zap.String("pattern", selectorPattern),
		zap.Int("elements", len(records)))
	return nil
}

// GetElements returns the latest snapshot for the context.
func (in *Inspector) GetElements(ctx context.Context, contextID string) ([]schemas.ElementInfo, error) {
	tab, err := in.manager.Tab(contextID)
	if err != nil {
		return nil, err
	}
	tab.snapMu.RLock()
	defer tab.snapMu.RUnlock()

	out := make([]schemas.ElementInfo, len(tab.snapshot))
	for i, rec := range tab.snapshot {
		out[i] = schemas.ElementInfo{
			Selector:  rec.Selector,
			ID:        rec.ID,
			ClassName: rec.ClassName,
			Tag:       rec.Tag,
			Text:      rec.Text,
			AltText:   rec.AltText,
			X:         rec.X,
			Y:         rec.Y,
			Width:     rec.Width,
			Height:    rec.Height,
			Visible:   rec.Visible,
		}
	}
	return out, nil
}
