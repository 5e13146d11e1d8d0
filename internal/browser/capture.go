package browser

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/gatecrash/api/schemas"
)

// Capturer implements schemas.ScreenCapturer for one tab. Returned captures
// carry the dimensions actually produced, which may be smaller than
// requested when the region exceeds the viewport; callers must trust these,
// not their request.
type Capturer struct {
	tab *Tab
}

// NewCapturer creates the screen capture collaborator bound to a tab.
func NewCapturer(tab *Tab) *Capturer {
	return &Capturer{tab: tab}
}

var _ schemas.ScreenCapturer = (*Capturer)(nil)

// CaptureRegion screenshots a viewport-space rectangle.
func (c *Capturer) CaptureRegion(ctx context.Context, x, y, w, h float64) (*Capture, error) {
	var buf []byte
	action := chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithClip(&page.Viewport{X: x, Y: y, Width: w, Height: h, Scale: 1}).
			Do(ctx)
		return err
	})
	if err := c.tab.run(ctx, action); err != nil {
		return nil, fmt.Errorf("region capture failed: %w", err)
	}
	return decodeCapture(buf)
}

// CaptureElement scrolls the first selector candidate into view and
// screenshots its padding box.
func (c *Capturer) CaptureElement(ctx context.Context, contextID, selectorList string) (*Capture, error) {
	if contextID != c.tab.ID {
		return nil, fmt.Errorf("capturer is bound to context %q, not %q", c.tab.ID, contextID)
	}
	var lastErr error
	for _, selector := range splitSelectorList(selectorList) {
		var buf []byte
		err := c.tab.run(ctx, chromedp.Tasks{
			chromedp.ScrollIntoView(selector, chromedp.ByQuery),
			chromedp.Screenshot(selector, &buf, chromedp.NodeVisible, chromedp.ByQuery),
		})
		if err == nil && len(buf) > 0 {
			return decodeCapture(buf)
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("element capture failed for all candidates: %w", lastErr)
}

// decodeCapture reads the actual pixel dimensions out of the PNG header so
// callers never trust requested geometry.
func decodeCapture(buf []byte) (*Capture, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("capture produced undecodable image: %w", err)
	}
	return &Capture{Data: buf, Width: cfg.Width, Height: cfg.Height}, nil
}

// Capture aliases the schema type for readability inside this package.
type Capture = schemas.Capture
