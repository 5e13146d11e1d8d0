package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/perception"
)

// solveState names the phases of the attempt state machine, for logging and
// tests; transitions are driven by the code below, not by a table.
type solveState string

const (
	stateIdle       solveState = "idle"
	stateScanning   solveState = "scanning"
	statePerceiving solveState = "perceiving"
	stateActing     solveState = "acting"
	stateSubmitting solveState = "submitting"
	stateVerifying  solveState = "verifying"
	stateSucceeded  solveState = "succeeded"
	stateRetrying   solveState = "retrying"
	stateFailed     solveState = "failed"
)

// Confidence attached to the ways a solve can conclude successfully. Full
// confidence requires an explicit success marker; inferring success from the
// challenge disappearing is weaker evidence.
const (
	confidenceToken      = 1.0
	confidenceGone       = 0.85
	confidenceNeverShown = 0.6
)

const (
	ocrSystemPrompt = "You are reading a distorted text verification image. " +
		"Respond with only the characters you see, nothing else."
	gridSystemPrompt = "You are identifying tiles in a numbered image grid. " +
		"Each tile carries a small index badge. Respond with the indices of every " +
		"matching tile separated by commas, or the word none if no tile matches. " +
		"Prefer including a borderline tile over omitting a match."

	fallbackTextTarget = "the characters shown in the image"
	fallbackGridTarget = "the object described by the challenge instruction"

	maxAnswerLen = 10
)

// OwlSolver is the generic, in-house challenge handler: it solves plain text
// entry and image grid challenges that carry no known vendor markers. It is
// also the conservative fallback when provider auto-detection is inconclusive.
type OwlSolver struct {
	env    *Env
	logger *zap.Logger
}

// NewOwlSolver creates the generic solver.
func NewOwlSolver(env *Env) *OwlSolver {
	return &OwlSolver{
		env:    env,
		logger: env.Logger.Named("providers.owl"),
	}
}

// Type implements Solver.
func (s *OwlSolver) Type() schemas.ProviderType { return schemas.ProviderOwl }

// DetectProvider scores the generic handler. Positive identification of any
// known vendor's iframe markers scores exactly 0 so the dedicated strategy
// wins, otherwise the score grows with classification confidence.
func (s *OwlSolver) DetectProvider(ctx context.Context, contextID string, classification schemas.ClassificationResult) float64 {
	for _, vendor := range []string{"recaptcha", "cloudflare", "hcaptcha"} {
		if s.env.providerMarkersPresent(ctx, contextID, vendor) {
			return 0
		}
	}
	if classification.Variant == schemas.VariantUnknown {
		return minProviderScore
	}
	score := minProviderScore + 0.3*classification.Confidence
	if score > 1 {
		score = 1
	}
	return score
}

// Solve runs the generic attempt state machine.
func (s *OwlSolver) Solve(ctx context.Context, sess *Session, classification schemas.ClassificationResult) schemas.SolveResult {
	logger := s.logger.With(zap.String("session", sess.ID), zap.String("context", sess.ContextID))

	if sess.ContextID == "" {
		return schemas.SolveResult{ErrorMessage: "invalid browsing context"}
	}
	if s.env.Perception == nil {
		return schemas.SolveResult{ErrorMessage: ErrNoPerception.Error()}
	}

	// Pre-check: the challenge may clear without interaction, or never
	// materialize at all.
	if done, result := s.env.preCheck(ctx, sess.ContextID, surfaceSelector(classification)); done {
		logger.Info("Challenge auto-verified before interaction",
			zap.Float64("confidence", result.Confidence))
		return result
	}

	if classification.Variant == schemas.VariantCheckbox || classification.CheckboxSelector != "" {
		if result, terminal := s.env.primeCheckbox(ctx, sess, classification, logger); terminal {
			return result
		}
	}

	return s.env.runAttempts(ctx, sess, classification, logger)
}

// -- shared machinery (also driven by the reCAPTCHA and Cloudflare solvers) --

// preCheck polls for auto-verification before any interaction: an explicit
// success marker, or a challenge surface that never appears within the
// window. Either case ends the solve as a success, the latter with reduced
// confidence.
func (e *Env) preCheck(ctx context.Context, contextID, surface string) (bool, schemas.SolveResult) {
	deadline := time.Now().Add(e.Solver.PreCheckWindow)
	surfaceSeen := false
	cleanScan := false

	for {
		if ctx.Err() != nil {
			return false, schemas.SolveResult{}
		}

		if elements, err := e.scanElements(ctx, contextID, "*"); err == nil {
			cleanScan = true
			if hasSuccessToken(elements) {
				return true, schemas.SolveResult{Success: true, Confidence: confidenceToken}
			}
		}
		if surface != "" && !surfaceSeen {
			if _, visible := e.findVisible(ctx, contextID, surface); visible {
				surfaceSeen = true
			}
		}
		if surfaceSeen {
			// Surface is up, there is work to do.
			return false, schemas.SolveResult{}
		}

		if time.Now().After(deadline) {
			// "Never shown" is a claim about the page, so at least one scan
			// must have actually succeeded to support it.
			if !surfaceSeen && cleanScan {
				return true, schemas.SolveResult{Success: true, Confidence: confidenceNeverShown}
			}
			return false, schemas.SolveResult{}
		}
		if err := sleepCtx(ctx, e.Solver.VerifyInterval); err != nil {
			return false, schemas.SolveResult{}
		}
	}
}

// primeCheckbox clicks the "I am not a robot" style checkbox through a
// prioritized candidate list: the label is tried before the raw input, since
// the input itself is frequently zero-sized or hidden. A click that reports
// success but produces neither a follow-up challenge nor a success marker is
// an error, not auto-verification.
func (e *Env) primeCheckbox(ctx context.Context, sess *Session, classification schemas.ClassificationResult, logger *zap.Logger) (schemas.SolveResult, bool) {
	candidates := e.checkboxCandidates(ctx, sess.ContextID, classification.CheckboxSelector)

	clicked := false
	for _, candidate := range candidates {
		el, visible := e.findVisible(ctx, sess.ContextID, candidate)
		if !visible {
			continue
		}
		if err := e.Human.Delay(ctx, sess.Human, e.Solver.ThinkDelayMin, e.Solver.ThinkDelayMax); err != nil {
			return schemas.SolveResult{ErrorMessage: err.Error()}, true
		}
		if err := e.Human.ClickElement(ctx, sess.Human, *el); err != nil {
			logger.Debug("checkbox candidate click failed", zap.String("selector", candidate), zap.Error(err))
			continue
		}
		clicked = true
		break
	}
	if !clicked {
		return schemas.SolveResult{ErrorMessage: "no clickable checkbox candidate"}, true
	}

	switch e.pollVerification(ctx, sess.ContextID, classification.CheckboxSelector, 0, e.Solver.PreCheckWindow) {
	case verifyToken:
		return schemas.SolveResult{Success: true, Confidence: confidenceToken, Attempts: sess.Attempts()}, true
	case verifyGone:
		// The checkbox went away; a follow-up challenge surface or nothing
		// at all may be behind it. If a surface materializes the caller's
		// attempt loop takes over, otherwise the click went nowhere.
		if surface := surfaceSelector(classification); surface != "" {
			if _, visible := e.findVisible(ctx, sess.ContextID, surface); visible {
				return schemas.SolveResult{}, false
			}
		}
		if elements, err := e.scanElements(ctx, sess.ContextID, "*"); err == nil && hasSuccessToken(elements) {
			return schemas.SolveResult{Success: true, Confidence: confidenceToken, Attempts: sess.Attempts()}, true
		}
		return schemas.SolveResult{ErrorMessage: "checkbox click produced neither challenge nor verification"}, true
	default:
		// Checkbox still visible: a challenge surface may have been added
		// alongside it.
		return schemas.SolveResult{}, false
	}
}

// checkboxCandidates builds the prioritized click-candidate list for a
// checkbox selector: its label first, the raw control last.
func (e *Env) checkboxCandidates(ctx context.Context, contextID, checkboxSelector string) []string {
	var candidates []string
	if el, ok := e.findVisible(ctx, contextID, checkboxSelector); ok && el.ID != "" {
		candidates = append(candidates, fmt.Sprintf("label[for=%q]", el.ID))
	}
	for _, sel := range splitSelectors(checkboxSelector) {
		candidates = append(candidates, sel)
	}
	return candidates
}

// runAttempts is the §-agnostic attempt loop shared by all providers: wait
// for the surface, perceive, act, submit, verify, and apply the classified
// remedy (refresh for text, skip for grids) between attempts.
func (e *Env) runAttempts(ctx context.Context, sess *Session, classification schemas.ClassificationResult, logger *zap.Logger) schemas.SolveResult {
	result := schemas.SolveResult{}
	state := stateIdle

	maxAttempts := e.Solver.MaxAttempts
	for sess.Attempts() < maxAttempts {
		if ctx.Err() != nil {
			result.ErrorMessage = ctx.Err().Error()
			break
		}
		attempt := sess.NextAttempt()
		result.Attempts = attempt
		logger.Info("Starting solve attempt", zap.Int("attempt", attempt), zap.String("variant", string(classification.Variant)))

		// Scanning: the challenge surface must materialize before anything
		// can be perceived. Failure here is a hard error for the attempt.
		state = stateScanning
		surface := surfaceSelector(classification)
		if _, ok := e.waitForElement(ctx, sess.ContextID, surface, e.Solver.SurfaceTimeout); !ok {
			result.ErrorMessage = fmt.Sprintf("challenge surface %q did not materialize", surface)
			logger.Warn("Surface never materialized", zap.Int("attempt", attempt))
			continue
		}

		// Perceiving.
		state = statePerceiving
		var answer string
		var indices []int
		var perceiveErr error
		switch classification.Variant {
		case schemas.VariantImageSelection:
			indices, perceiveErr = e.perceiveGrid(ctx, sess.ContextID, classification)
		default:
			answer, perceiveErr = e.perceiveText(ctx, sess.ContextID, classification)
		}
		if perceiveErr != nil {
			result.ErrorMessage = perceiveErr.Error()
			logger.Warn("Perception failed", zap.Int("attempt", attempt), zap.Error(perceiveErr))
			e.consumeRemedy(ctx, sess, classification, logger)
			continue
		}
		result.TargetDetected = targetDescription(classification)

		// An empty perception result is not a hard error: consume the
		// remedy control when one exists and move on to the next attempt.
		empty := (classification.Variant == schemas.VariantImageSelection && len(indices) == 0) ||
			(classification.Variant != schemas.VariantImageSelection && answer == "")
		if empty {
			logger.Info("Perception produced no answer", zap.Int("attempt", attempt))
			result.ErrorMessage = "perception produced no answer"
			e.consumeRemedy(ctx, sess, classification, logger)
			continue
		}

		// Acting.
		state = stateActing
		var actErr error
		if classification.Variant == schemas.VariantImageSelection {
			result.SelectedIndices = sortedCopy(indices)
			actErr = e.actOnGrid(ctx, sess, classification, indices)
		} else {
			actErr = e.actOnText(ctx, sess, classification, answer)
		}
		if actErr != nil {
			result.ErrorMessage = actErr.Error()
			logger.Warn("Action phase failed", zap.Int("attempt", attempt), zap.Error(actErr))
			continue
		}

		// Submitting.
		state = stateSubmitting
		if e.Solver.AutoSubmit && classification.SubmitSelector != "" {
			if el, ok := e.findVisible(ctx, sess.ContextID, classification.SubmitSelector); ok {
				if err := e.Human.ClickElement(ctx, sess.Human, *el); err != nil {
					logger.Debug("Submit click failed", zap.Error(err))
				}
			}
		}

		// Verifying.
		state = stateVerifying
		switch e.pollVerification(ctx, sess.ContextID, surface, 0, 0) {
		case verifyToken:
			state = stateSucceeded
			result.Success = true
			result.Confidence = confidenceToken
			result.ErrorMessage = ""
			logger.Info("Challenge solved", zap.Int("attempts", attempt))
			return result
		case verifyGone:
			state = stateSucceeded
			result.Success = true
			result.Confidence = confidenceGone
			result.ErrorMessage = ""
			logger.Info("Challenge cleared", zap.Int("attempts", attempt))
			return result
		default:
			state = stateRetrying
			result.ErrorMessage = "verification timed out"
			logger.Info("Verification failed, applying remedy", zap.Int("attempt", attempt))
			if sess.Attempts() < maxAttempts {
				e.consumeRemedy(ctx, sess, classification, logger)
			}
		}
	}

	state = stateFailed
	logger.Info("Solve failed", zap.String("state", string(state)), zap.Int("attempts", result.Attempts))
	result.Success = false
	if result.ErrorMessage == "" {
		result.ErrorMessage = "attempt budget exhausted"
	}
	// Tell the caller which escalation remains available.
	if classification.Variant == schemas.VariantImageSelection {
		result.NeedsSkip = true
	} else {
		result.NeedsRefresh = true
	}
	return result
}

// consumeRemedy clicks the provider's between-attempt remedy: refresh for
// text variants (same challenge re-rendered), skip for grids (new challenge).
func (e *Env) consumeRemedy(ctx context.Context, sess *Session, classification schemas.ClassificationResult, logger *zap.Logger) {
	var selector string
	if classification.Variant == schemas.VariantImageSelection {
		selector = classification.SkipSelector
	} else {
		selector = classification.RefreshSelector
	}
	if selector == "" {
		return
	}
	el, ok := e.findVisible(ctx, sess.ContextID, selector)
	if !ok {
		return
	}
	if err := e.Human.ClickElement(ctx, sess.Human, *el); err != nil {
		logger.Debug("Remedy click failed", zap.String("selector", selector), zap.Error(err))
		return
	}
	// Give the template a moment to swap the challenge in.
	_ = e.Human.Delay(ctx, sess.Human, e.Solver.InterClickDelayMin, e.Solver.InterClickDelayMax)
}

// perceiveText captures the challenge image and extracts the literal answer.
func (e *Env) perceiveText(ctx context.Context, contextID string, classification schemas.ClassificationResult) (string, error) {
	capture, err := e.captureChallenge(ctx, contextID, classification.ImageSelector, classification.ContainerSelector)
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf("Read %s and answer with the exact characters.", targetDescription(classification))
	resp, err := e.Perception.CompleteWithImage(ctx, prompt,
		base64.StdEncoding.EncodeToString(capture.Data),
		ocrSystemPrompt, e.Perceptive.MaxTokens, e.Perceptive.OCRTemperature)
	if err != nil {
		return "", fmt.Errorf("perception call failed: %w", err)
	}
	if !resp.Success {
		return "", fmt.Errorf("perception rejected request: %s", resp.Error)
	}
	return perception.ExtractText(resp.Content, maxAnswerLen), nil
}

// perceiveGrid annotates the tiles with index badges, captures the grid and
// parses the selected indices from the perception response.
func (e *Env) perceiveGrid(ctx context.Context, contextID string, classification schemas.ClassificationResult) ([]int, error) {
	if e.Annotator != nil {
		if err := e.Annotator.Annotate(ctx, contextID, classification.GridItemSelectors); err == nil {
			defer func() { _ = e.Annotator.ClearAnnotations(ctx, contextID) }()
		}
	}

	capture, err := e.captureChallenge(ctx, contextID, classification.ContainerSelector, classification.ImageSelector)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf("Select every tile showing %s. Tiles are numbered 0 to %d.",
		targetDescription(classification), classification.GridSize-1)
	resp, err := e.Perception.CompleteWithImage(ctx, prompt,
		base64.StdEncoding.EncodeToString(capture.Data),
		gridSystemPrompt, e.Perceptive.MaxTokens, e.Perceptive.GridTemperature)
	if err != nil {
		return nil, fmt.Errorf("perception call failed: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("perception rejected request: %s", resp.Error)
	}
	return perception.ParseGridIndices(resp.Content, classification.GridSize), nil
}

// captureChallenge captures the first selector that resolves, falling back
// to the alternate. The dimensions of the returned capture are authoritative;
// the capturer may clip to the viewport.
func (e *Env) captureChallenge(ctx context.Context, contextID string, selectors ...string) (*schemas.Capture, error) {
	for _, sel := range selectors {
		if sel == "" {
			continue
		}
		capture, err := e.Capture.CaptureElement(ctx, contextID, sel)
		if err == nil && len(capture.Data) > 0 {
			return capture, nil
		}
	}
	return nil, fmt.Errorf("no challenge region could be captured")
}

// actOnText types the extracted answer into the challenge input.
func (e *Env) actOnText(ctx context.Context, sess *Session, classification schemas.ClassificationResult, answer string) error {
	if classification.InputSelector == "" {
		return fmt.Errorf("text challenge has no input selector")
	}
	if el, ok := e.findVisible(ctx, sess.ContextID, classification.InputSelector); ok {
		if err := e.Human.ClickElement(ctx, sess.Human, *el); err != nil {
			return fmt.Errorf("failed to focus input: %w", err)
		}
	}
	if err := e.Human.Delay(ctx, sess.Human, e.Solver.ThinkDelayMin, e.Solver.ThinkDelayMax); err != nil {
		return err
	}
	if err := e.Input.TypeText(ctx, classification.InputSelector, answer); err != nil {
		return fmt.Errorf("failed to type answer: %w", err)
	}
	return nil
}

// actOnGrid clicks the selected tiles in shuffled order with randomized
// inter-click delays; a monotonic click sequence is trivially detectable.
func (e *Env) actOnGrid(ctx context.Context, sess *Session, classification schemas.ClassificationResult, indices []int) error {
	order := append([]int(nil), indices...)
	sess.Shuffle(order)

	if err := e.Human.Delay(ctx, sess.Human, e.Solver.ThinkDelayMin, e.Solver.ThinkDelayMax); err != nil {
		return err
	}

	clicked := 0
	for i, idx := range order {
		if idx < 0 || idx >= len(classification.GridItemSelectors) {
			continue
		}
		el, ok := e.findVisible(ctx, sess.ContextID, classification.GridItemSelectors[idx])
		if !ok {
			continue
		}
		if err := e.Human.ClickElement(ctx, sess.Human, *el); err != nil {
			return fmt.Errorf("tile %d click failed: %w", idx, err)
		}
		clicked++
		if i < len(order)-1 {
			if err := e.Human.Delay(ctx, sess.Human, e.Solver.InterClickDelayMin, e.Solver.InterClickDelayMax); err != nil {
				return err
			}
		}
	}
	if clicked == 0 {
		return fmt.Errorf("no selected tile could be clicked")
	}
	return nil
}

// surfaceSelector returns the selector that best represents the challenge
// surface for waiting and verification purposes.
func surfaceSelector(classification schemas.ClassificationResult) string {
	for _, sel := range []string{
		classification.ContainerSelector,
		classification.ImageSelector,
		classification.InputSelector,
		classification.CheckboxSelector,
	} {
		if sel != "" {
			return sel
		}
	}
	return ""
}

// targetDescription falls back from the classified description to a generic
// placeholder, never an empty prompt.
func targetDescription(classification schemas.ClassificationResult) string {
	if classification.TargetDescription != "" {
		return classification.TargetDescription
	}
	if classification.Variant == schemas.VariantImageSelection {
		return fallbackGridTarget
	}
	return fallbackTextTarget
}

// sortedCopy returns a sorted copy of the indices, for stable reporting.
func sortedCopy(indices []int) []int {
	out := append([]int(nil), indices...)
	sort.Ints(out)
	return out
}
