package providers

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
)

// Turnstile exposes its checkbox under a handful of selectors depending on
// widget mode.
const turnstileCheckboxSelectors = "input[type='checkbox'], label.cb-lb, .ctp-checkbox-label, #challenge-stage input"

const (
	cloudflareMarkerScore = 0.9
	// hCaptcha challenges are handled by this strategy too; Cloudflare
	// deployments served hCaptcha grids for years and the flows are
	// identical from this side.
	hcaptchaMarkerScore = 0.7
)

// CloudflareSolver handles Turnstile interstitials and the hCaptcha grids
// Cloudflare deployments fall back to. The checkbox usually auto-verifies;
// only the grid fallback needs perception.
type CloudflareSolver struct {
	env    *Env
	logger *zap.Logger
}

// NewCloudflareSolver creates the Cloudflare strategy.
func NewCloudflareSolver(env *Env) *CloudflareSolver {
	return &CloudflareSolver{env: env, logger: env.Logger.Named("providers.cloudflare")}
}

// Type implements Solver.
func (s *CloudflareSolver) Type() schemas.ProviderType { return schemas.ProviderCloudflare }

// DetectProvider scores Turnstile markers highest, hCaptcha markers as this
// strategy's secondary territory, and exactly zero when only reCAPTCHA
// markers are present.
func (s *CloudflareSolver) DetectProvider(ctx context.Context, contextID string, classification schemas.ClassificationResult) float64 {
	if s.env.providerMarkersPresent(ctx, contextID, "cloudflare") {
		return cloudflareMarkerScore
	}
	if s.env.providerMarkersPresent(ctx, contextID, "hcaptcha") {
		return hcaptchaMarkerScore
	}
	if s.env.providerMarkersPresent(ctx, contextID, "recaptcha") {
		return 0
	}
	return 0
}

// Solve clicks the Turnstile checkbox and waits for auto-verification,
// falling through to the shared grid machinery when a visual challenge is
// served instead.
func (s *CloudflareSolver) Solve(ctx context.Context, sess *Session, classification schemas.ClassificationResult) schemas.SolveResult {
	logger := s.logger.With(zap.String("session", sess.ID), zap.String("context", sess.ContextID))

	if sess.ContextID == "" {
		return schemas.SolveResult{ErrorMessage: "invalid browsing context"}
	}

	if done, result := s.env.preCheck(ctx, sess.ContextID, surfaceSelector(classification)); done {
		logger.Info("Interstitial auto-verified before interaction", zap.Float64("confidence", result.Confidence))
		return result
	}

	if s.clickTurnstile(ctx, sess, classification, logger) {
		switch s.env.pollVerification(ctx, sess.ContextID, interstitialWatch(classification), 0, s.env.Solver.VerifyTimeout) {
		case verifyToken:
			logger.Info("Turnstile verified with explicit marker")
			return schemas.SolveResult{Success: true, Confidence: confidenceToken, Attempts: sess.Attempts()}
		case verifyGone:
			// Interstitials normally clear without a marker.
			logger.Info("Interstitial cleared")
			return schemas.SolveResult{Success: true, Confidence: confidenceGone, Attempts: sess.Attempts()}
		}
	}

	// Grid fallback: an hCaptcha style image selection was served.
	grid := s.gridClassification(ctx, sess.ContextID, classification)
	if len(grid.GridItemSelectors) == 0 {
		return schemas.SolveResult{
			ErrorMessage: "turnstile did not verify and no visual challenge was served",
			Attempts:     sess.Attempts(),
		}
	}
	if s.env.Perception == nil {
		return schemas.SolveResult{ErrorMessage: ErrNoPerception.Error(), Attempts: sess.Attempts()}
	}
	logger.Info("Visual challenge served, delegating to grid machinery")
	return s.env.runAttempts(ctx, sess, grid, logger)
}

func (s *CloudflareSolver) clickTurnstile(ctx context.Context, sess *Session, classification schemas.ClassificationResult, logger *zap.Logger) bool {
	candidates := turnstileCheckboxSelectors
	if classification.CheckboxSelector != "" {
		candidates = classification.CheckboxSelector + ", " + candidates
	}
	el, ok := s.env.findVisible(ctx, sess.ContextID, candidates)
	if !ok {
		logger.Debug("No turnstile checkbox found")
		return false
	}
	if err := s.env.Human.Delay(ctx, sess.Human, s.env.Solver.ThinkDelayMin, s.env.Solver.ThinkDelayMax); err != nil {
		return false
	}
	if err := s.env.Human.ClickElement(ctx, sess.Human, *el); err != nil {
		logger.Debug("Turnstile click failed", zap.Error(err))
		return false
	}
	return true
}

// gridClassification pins the classification to the grid variant with stock
// hCaptcha selectors when the classifier ran before the grid existed.
func (s *CloudflareSolver) gridClassification(ctx context.Context, contextID string, classification schemas.ClassificationResult) schemas.ClassificationResult {
	grid := classification
	grid.Variant = schemas.VariantImageSelection

	if len(grid.GridItemSelectors) == 0 {
		if grid.ContainerSelector == "" {
			grid.ContainerSelector = ".challenge-container, .task-grid"
		}
		if grid.SkipSelector == "" {
			grid.SkipSelector = ".refresh.button, .button-submit.skip"
		}
		if grid.SubmitSelector == "" {
			grid.SubmitSelector = ".button-submit"
		}
		if els, err := s.env.scanElements(ctx, contextID, ".task-image, .task-grid .image"); err == nil {
			grid.GridItemSelectors, grid.GridSize = resolveGridTiles(els)
		}
	}
	if grid.TargetDescription == "" {
		if el, ok := s.env.findVisible(ctx, contextID, ".prompt-text, .challenge-prompt"); ok {
			grid.TargetDescription = strings.TrimSpace(el.Text)
		}
	}
	return grid
}

// interstitialWatch picks the element whose disappearance signals the
// interstitial cleared.
func interstitialWatch(classification schemas.ClassificationResult) string {
	if sel := surfaceSelector(classification); sel != "" {
		return sel
	}
	return "#challenge-stage"
}
