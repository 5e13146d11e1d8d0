// Package providers contains the per-provider solving strategies and the
// registry that dispatches a classified challenge to one of them. Solvers are
// stateless strategy objects shared across invocations; everything mutable
// about one solve lives on the Session threaded through each call.
package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/captcha/assets"
	"github.com/xkilldash9x/gatecrash/internal/config"
	"github.com/xkilldash9x/gatecrash/internal/humanoid"
)

// ErrNoPerception is returned when a solver is asked to run without a
// perception client configured.
var ErrNoPerception = errors.New("providers: no perception client configured")

// minProviderScore is the weakest score a provider may report while still
// claiming the challenge; it doubles as the auto-detection floor below which
// the registry falls back to the generic solver.
const minProviderScore = 0.3

// Solver is the strategy contract every provider implements.
type Solver interface {
	// Type identifies the provider strategy.
	Type() schemas.ProviderType

	// Solve runs the attempt state machine against the session's browsing
	// context. All failure is data on the returned SolveResult; Solve only
	// returns early on context cancellation.
	Solve(ctx context.Context, sess *Session, classification schemas.ClassificationResult) schemas.SolveResult

	// DetectProvider scores how strongly this provider's markers are
	// present on the page, in [0,1]. Implementations must return exactly 0
	// when they positively identify a different provider's markers, so a
	// foreign challenge is never captured by the wrong strategy.
	DetectProvider(ctx context.Context, contextID string, classification schemas.ClassificationResult) float64
}

// Env bundles the collaborators every solver needs. One Env is shared by all
// cached solver instances; it carries no per-solve state.
type Env struct {
	DOM        schemas.DOMInspector
	Capture    schemas.ScreenCapturer
	Input      schemas.InputSynthesizer
	Annotator  schemas.Annotator
	Perception schemas.PerceptionClient
	Cameras    schemas.CameraRegistry
	Pumper     schemas.FramePumper

	Human *humanoid.Simulator

	Solver     config.SolverConfig
	Perceptive config.PerceptionConfig

	Logger *zap.Logger
}

// scanElements forces a fresh DOM scan and returns the resulting snapshot.
// Verification correctness depends on never trusting a stale snapshot.
func (e *Env) scanElements(ctx context.Context, contextID, pattern string) ([]schemas.ElementInfo, error) {
	if err := e.DOM.Scan(ctx, contextID, pattern); err != nil {
		return nil, err
	}
	return e.DOM.GetElements(ctx, contextID)
}

// waitForElement polls until an element matching the selector is present and
// visible, or the timeout elapses.
func (e *Env) waitForElement(ctx context.Context, contextID, selector string, timeout time.Duration) (*schemas.ElementInfo, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if ctx.Err() != nil {
			return nil, false
		}
		if els, err := e.scanElements(ctx, contextID, selector); err == nil {
			for i := range els {
				if els[i].Visible {
					return &els[i], true
				}
			}
		}
		if time.Now().After(deadline) {
			return nil, false
		}
		if err := sleepCtx(ctx, e.Solver.VerifyInterval); err != nil {
			return nil, false
		}
	}
}

// findVisible returns the first visible element among comma separated
// selector candidates, scanning fresh.
func (e *Env) findVisible(ctx context.Context, contextID, selectorList string) (*schemas.ElementInfo, bool) {
	for _, sel := range splitSelectors(selectorList) {
		if els, err := e.scanElements(ctx, contextID, sel); err == nil {
			for i := range els {
				if els[i].Visible {
					return &els[i], true
				}
			}
		}
	}
	return nil, false
}

// anyVisible reports whether any candidate selector resolves to a visible
// element, scanning fresh. Element absence may only be concluded from
// successful scans: if every candidate either scanned clean and came back
// invisible or failed to scan at all, the scan error is surfaced so callers
// can treat the page state as indeterminate rather than element-gone.
func (e *Env) anyVisible(ctx context.Context, contextID, selectorList string) (bool, error) {
	var scanErr error
	for _, sel := range splitSelectors(selectorList) {
		els, err := e.scanElements(ctx, contextID, sel)
		if err != nil {
			scanErr = err
			continue
		}
		for i := range els {
			if els[i].Visible {
				return true, nil
			}
		}
	}
	return false, scanErr
}

// resolveGridTiles turns a scanned tile set into a consistent grid: visible
// tiles ordered row-major, truncated to the nearest supported geometry. The
// selector count always equals the returned size, so overlay indices, the
// perception prompt and the click targets stay in agreement. Fewer than nine
// visible tiles is not a grid and yields nothing.
func resolveGridTiles(els []schemas.ElementInfo) ([]string, int) {
	tiles := make([]schemas.ElementInfo, 0, len(els))
	for _, el := range els {
		if el.Visible {
			tiles = append(tiles, el)
		}
	}
	if len(tiles) < gridSizeSmall {
		return nil, 0
	}

	size := gridSizeSmall
	if len(tiles) >= gridSizeLarge {
		size = gridSizeLarge
	}
	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].Y != tiles[j].Y {
			return tiles[i].Y < tiles[j].Y
		}
		return tiles[i].X < tiles[j].X
	})

	selectors := make([]string, 0, size)
	for _, t := range tiles[:size] {
		selectors = append(selectors, t.Selector)
	}
	return selectors, size
}

// providerMarkersPresent reports whether any iframe source marker of the
// named provider resolves on the page. Markers come from the embedded data
// tables; the check scans with an attribute selector because iframe sources
// are not part of the element snapshot.
func (e *Env) providerMarkersPresent(ctx context.Context, contextID, provider string) bool {
	for _, marker := range assets.ProviderIframeMarkers(provider) {
		selector := fmt.Sprintf("iframe[src*=%q]", marker)
		if els, err := e.scanElements(ctx, contextID, selector); err == nil && len(els) > 0 {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func splitSelectors(list string) []string {
	var out []string
	for _, sel := range strings.Split(list, ",") {
		if sel = strings.TrimSpace(sel); sel != "" {
			out = append(out, sel)
		}
	}
	return out
}
