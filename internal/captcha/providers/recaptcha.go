package providers

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
)

// Anchor widget candidates, label-ish targets first. The border div is the
// reliably clickable surface; the raw anchor span is frequently zero-sized.
const recaptchaAnchorSelectors = "div.recaptcha-checkbox-border, span.recaptcha-checkbox, #recaptcha-anchor, .g-recaptcha"

const recaptchaMarkerScore = 0.9

// Supported grid geometries (3x3 and 4x4).
const (
	gridSizeSmall = 9
	gridSizeLarge = 16
)

// RecaptchaSolver handles the Google widget: anchor checkbox first, then
// either the image grid (delegated to the shared attempt machinery) or the
// camera liveness sub-protocol when the page offers it.
type RecaptchaSolver struct {
	env      *Env
	liveness *livenessRunner
	logger   *zap.Logger
}

// NewRecaptchaSolver creates the reCAPTCHA strategy.
func NewRecaptchaSolver(env *Env) *RecaptchaSolver {
	return &RecaptchaSolver{
		env:      env,
		liveness: newLivenessRunner(env),
		logger:   env.Logger.Named("providers.recaptcha"),
	}
}

// Type implements Solver.
func (s *RecaptchaSolver) Type() schemas.ProviderType { return schemas.ProviderRecaptcha }

// DetectProvider scores high on reCAPTCHA iframe markers and exactly zero
// when another vendor's markers are present instead.
func (s *RecaptchaSolver) DetectProvider(ctx context.Context, contextID string, classification schemas.ClassificationResult) float64 {
	if s.env.providerMarkersPresent(ctx, contextID, "recaptcha") {
		return recaptchaMarkerScore
	}
	if s.env.providerMarkersPresent(ctx, contextID, "cloudflare") ||
		s.env.providerMarkersPresent(ctx, contextID, "hcaptcha") {
		return 0
	}
	// Widget class without an iframe marker: present on pages that lazy-load
	// the frame.
	if _, ok := s.env.findVisible(ctx, contextID, ".g-recaptcha"); ok {
		return 0.5
	}
	return 0
}

// Solve clicks the anchor checkbox, then dispatches to whichever challenge
// surface Google serves back: nothing (auto-verified), an image grid, or the
// liveness gesture flow.
func (s *RecaptchaSolver) Solve(ctx context.Context, sess *Session, classification schemas.ClassificationResult) schemas.SolveResult {
	logger := s.logger.With(zap.String("session", sess.ID), zap.String("context", sess.ContextID))

	if sess.ContextID == "" {
		return schemas.SolveResult{ErrorMessage: "invalid browsing context"}
	}
	if s.env.Perception == nil {
		return schemas.SolveResult{ErrorMessage: ErrNoPerception.Error()}
	}

	if done, result := s.env.preCheck(ctx, sess.ContextID, surfaceSelector(classification)); done {
		logger.Info("Widget auto-verified before interaction", zap.Float64("confidence", result.Confidence))
		return result
	}

	anchored := s.clickAnchor(ctx, sess, classification, logger)
	if anchored {
		switch s.env.pollVerification(ctx, sess.ContextID, "", 0, s.env.Solver.PreCheckWindow) {
		case verifyToken:
			logger.Info("Anchor click auto-verified")
			return schemas.SolveResult{Success: true, Confidence: confidenceToken, Attempts: sess.Attempts()}
		}
	}

	if s.livenessOffered(ctx, sess.ContextID) {
		logger.Info("Liveness challenge offered, entering gesture protocol")
		return s.liveness.run(ctx, sess, classification)
	}

	grid := s.gridClassification(ctx, sess.ContextID, classification)
	return s.env.runAttempts(ctx, sess, grid, logger)
}

// clickAnchor tries the anchor widget candidates, preferring the classified
// checkbox selector when the classifier found one.
func (s *RecaptchaSolver) clickAnchor(ctx context.Context, sess *Session, classification schemas.ClassificationResult, logger *zap.Logger) bool {
	candidates := recaptchaAnchorSelectors
	if classification.CheckboxSelector != "" {
		candidates = classification.CheckboxSelector + ", " + candidates
	}
	el, ok := s.env.findVisible(ctx, sess.ContextID, candidates)
	if !ok {
		logger.Debug("No anchor checkbox found")
		return false
	}
	if err := s.env.Human.Delay(ctx, sess.Human, s.env.Solver.ThinkDelayMin, s.env.Solver.ThinkDelayMax); err != nil {
		return false
	}
	if err := s.env.Human.ClickElement(ctx, sess.Human, *el); err != nil {
		logger.Debug("Anchor click failed", zap.Error(err))
		return false
	}
	return true
}

// livenessOffered reports whether the page surfaced the camera gesture flow
// instead of a grid: a visible gesture reference image, or intro copy
// mentioning the camera verification.
func (s *RecaptchaSolver) livenessOffered(ctx context.Context, contextID string) bool {
	elements, err := s.env.scanElements(ctx, contextID, "*")
	if err != nil {
		return false
	}
	if g := findGestureImage(elements); g != nil {
		return true
	}
	for _, el := range elements {
		if !el.Visible {
			continue
		}
		text := strings.ToLower(el.Text)
		if strings.Contains(text, "camera") && (strings.Contains(text, "verif") || strings.Contains(text, "gesture")) {
			return true
		}
	}
	return false
}

// gridClassification pins the classification to the image grid variant for
// the delegated attempt loop, filling in the stock bframe selectors when the
// classifier ran before the grid frame existed.
func (s *RecaptchaSolver) gridClassification(ctx context.Context, contextID string, classification schemas.ClassificationResult) schemas.ClassificationResult {
	grid := classification
	grid.Variant = schemas.VariantImageSelection

	if len(grid.GridItemSelectors) == 0 {
		if grid.ContainerSelector == "" {
			grid.ContainerSelector = "#rc-imageselect, .rc-imageselect-payload"
		}
		if grid.SkipSelector == "" {
			grid.SkipSelector = "#recaptcha-reload-button"
		}
		if grid.SubmitSelector == "" {
			grid.SubmitSelector = "#recaptcha-verify-button"
		}
		if els, err := s.env.scanElements(ctx, contextID, "td.rc-imageselect-tile, .rc-image-tile-wrapper"); err == nil {
			grid.GridItemSelectors, grid.GridSize = resolveGridTiles(els)
		}
	}
	if grid.TargetDescription == "" {
		if el, ok := s.env.findVisible(ctx, contextID, ".rc-imageselect-desc-no-canonical, .rc-imageselect-desc, .rc-imageselect-instructions"); ok {
			grid.TargetDescription = strings.TrimSpace(el.Text)
		}
	}
	return grid
}
