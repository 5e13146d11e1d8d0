package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
)

// Input implements schemas.InputSynthesizer for one tab by dispatching raw
// CDP input events. Raw dispatch, not element.click(), so the page observes
// the same event stream a physical pointer produces. Button presses are
// dispatched at the last moved-to position, tracked here because the CDP
// press event requires coordinates the contract does not carry.
type Input struct {
	tab    *Tab
	logger *zap.Logger

	mu    sync.Mutex
	lastX float64
	lastY float64
}

// NewInput creates the input synthesizer bound to a tab.
func NewInput(tab *Tab) *Input {
	return &Input{tab: tab, logger: tab.logger.Named("input")}
}

var _ schemas.InputSynthesizer = (*Input)(nil)

// MoveMouse dispatches a pointer move to absolute page coordinates.
func (i *Input) MoveMouse(ctx context.Context, x, y float64) error {
	if err := i.tab.run(ctx, input.DispatchMouseEvent(input.MouseMoved, x, y)); err != nil {
		return err
	}
	i.mu.Lock()
	i.lastX, i.lastY = x, y
	i.mu.Unlock()
	return nil
}

// MouseDown presses the button at the current pointer position.
func (i *Input) MouseDown(ctx context.Context, button string) error {
	x, y := i.position()
	return i.tab.run(ctx, input.DispatchMouseEvent(input.MousePressed, x, y).
		WithButton(input.MouseButton(button)).
		WithClickCount(1))
}

// MouseUp releases the button at the current pointer position.
func (i *Input) MouseUp(ctx context.Context, button string) error {
	x, y := i.position()
	return i.tab.run(ctx, input.DispatchMouseEvent(input.MouseReleased, x, y).
		WithButton(input.MouseButton(button)).
		WithClickCount(1))
}

// Click tries each selector in a comma separated candidate list until one
// resolves; templates frequently expose the same control under several
// selectors and only one of them is attached at any given moment.
func (i *Input) Click(ctx context.Context, selectorList string) error {
	var lastErr error
	for _, selector := range splitSelectorList(selectorList) {
		err := i.tab.run(ctx, chromedp.Tasks{
			chromedp.ScrollIntoView(selector, chromedp.ByQuery),
			chromedp.Click(selector, chromedp.ByQuery),
		})
		if err == nil {
			return nil
		}
		lastErr = err
		i.logger.Debug("Click candidate failed", zap.String("selector", selector), zap.Error(err))
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no selector candidates in %q", selectorList)
	}
	return fmt.Errorf("click failed for all candidates: %w", lastErr)
}

// ClickAt clicks absolute page coordinates with a raw press/release pair.
func (i *Input) ClickAt(ctx context.Context, x, y float64) error {
	err := i.tab.run(ctx,
		input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(input.Left).WithClickCount(1),
		input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(input.Left).WithClickCount(1),
	)
	if err != nil {
		return err
	}
	i.mu.Lock()
	i.lastX, i.lastY = x, y
	i.mu.Unlock()
	return nil
}

// TypeText focuses the first resolving selector candidate and sends the text
// as key events.
func (i *Input) TypeText(ctx context.Context, selectorList, text string) error {
	var lastErr error
	for _, selector := range splitSelectorList(selectorList) {
		err := i.tab.run(ctx, chromedp.Tasks{
			chromedp.ScrollIntoView(selector, chromedp.ByQuery),
			chromedp.Focus(selector, chromedp.ByQuery),
			chromedp.SendKeys(selector, text, chromedp.ByQuery),
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("type failed for all candidates: %w", lastErr)
}

func (i *Input) position() (float64, float64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastX, i.lastY
}
