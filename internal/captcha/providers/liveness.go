package providers

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/gatecrash/api/schemas"
)

// Buttons that advance past the liveness intro screen.
const livenessNextSelectors = "button#next, [data-action='next'], .liveness-intro button, .rc-button-default"

// livenessRunner drives the camera gesture sub-protocol: show each requested
// reference gesture on a virtual camera feed until the page's recognition
// model accepts it or the attempt ceiling is reached.
type livenessRunner struct {
	env    *Env
	logger *zap.Logger
}

func newLivenessRunner(env *Env) *livenessRunner {
	return &livenessRunner{env: env, logger: env.Logger.Named("providers.liveness")}
}

// run executes AwaitIntro, Next, then the gesture loop. The frame pump
// goroutine is joined, not merely signalled, before run returns; a pump that
// outlives its browsing context keeps injecting frames into a page that no
// longer wants them.
func (r *livenessRunner) run(ctx context.Context, sess *Session, classification schemas.ClassificationResult) schemas.SolveResult {
	logger := r.logger.With(zap.String("session", sess.ID), zap.String("context", sess.ContextID))
	cfg := r.env.Solver.Liveness

	if r.env.Cameras == nil || r.env.Pumper == nil {
		return schemas.SolveResult{ErrorMessage: "liveness offered but no virtual camera available", Attempts: sess.Attempts()}
	}
	camera, err := r.env.Cameras.Acquire(sess.ContextID)
	if err != nil {
		return schemas.SolveResult{ErrorMessage: fmt.Sprintf("camera acquisition failed: %v", err), Attempts: sess.Attempts()}
	}
	defer r.env.Cameras.Release(sess.ContextID)
	defer func() {
		_ = camera.ClearOverlay()
		_ = camera.ClearBackground()
	}()

	pumpCtx, stopPump := context.WithCancel(ctx)
	group, pumpCtx := errgroup.WithContext(pumpCtx)
	group.Go(func() error {
		return r.pumpFrames(pumpCtx, sess.ContextID, camera)
	})
	defer func() {
		stopPump()
		if err := group.Wait(); err != nil && ctx.Err() == nil {
			logger.Debug("Frame pump exited with error", zap.Error(err))
		}
	}()

	r.advancePastIntro(ctx, sess, logger)

	var lastGesture schemas.GestureType
	for attempt := 1; attempt <= cfg.MaxGestureAttempts; attempt++ {
		if ctx.Err() != nil {
			return schemas.SolveResult{ErrorMessage: ctx.Err().Error(), Attempts: sess.Attempts()}
		}

		if done, result := r.checkComplete(ctx, sess, classification); done {
			logger.Info("Liveness completed", zap.Int("gesture_attempts", attempt-1))
			return result
		}

		elements, err := r.env.scanElements(ctx, sess.ContextID, "*")
		if err != nil {
			logger.Debug("Gesture scan failed", zap.Error(err))
			if err := sleepCtx(ctx, r.env.Solver.VerifyInterval); err != nil {
				return schemas.SolveResult{ErrorMessage: err.Error(), Attempts: sess.Attempts()}
			}
			continue
		}

		match := findGestureImage(elements)
		if match == nil {
			if err := sleepCtx(ctx, r.env.Solver.VerifyInterval); err != nil {
				return schemas.SolveResult{ErrorMessage: err.Error(), Attempts: sess.Attempts()}
			}
			continue
		}

		if match.Gesture.Name != lastGesture {
			logger.Info("Presenting gesture", zap.String("gesture", string(match.Gesture.Name)), zap.Int("attempt", attempt))
			if err := r.presentGesture(camera, match.Gesture.Image); err != nil {
				return schemas.SolveResult{ErrorMessage: err.Error(), Attempts: sess.Attempts()}
			}
			lastGesture = match.Gesture.Name
		}

		// Hold the reference image long enough for the recognition model to
		// register it before re-checking.
		if err := sleepCtx(ctx, cfg.GestureHold); err != nil {
			return schemas.SolveResult{ErrorMessage: err.Error(), Attempts: sess.Attempts()}
		}
	}

	if done, result := r.checkComplete(ctx, sess, classification); done {
		return result
	}
	return schemas.SolveResult{
		ErrorMessage: fmt.Sprintf("gesture attempt ceiling (%d) reached without completion", cfg.MaxGestureAttempts),
		Attempts:     sess.Attempts(),
	}
}

// pumpFrames pushes the current camera frame into the page's injected video
// source at the configured frame rate until the context is cancelled.
func (r *livenessRunner) pumpFrames(ctx context.Context, contextID string, camera schemas.VirtualCamera) error {
	cfg := r.env.Solver.Liveness
	limiter := rate.NewLimiter(rate.Limit(cfg.FrameRate), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
		frame, err := camera.GetCurrentFrameBase64JPEG(cfg.JPEGQuality)
		if err != nil {
			// Transient encode failures are expected around background swaps.
			continue
		}
		if err := r.env.Pumper.PushFrame(ctx, contextID, frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("frame push failed: %w", err)
		}
	}
}

// advancePastIntro clicks whatever intro button advances into the gesture
// loop. Absence of an intro screen is not an error.
func (r *livenessRunner) advancePastIntro(ctx context.Context, sess *Session, logger *zap.Logger) {
	el, ok := r.env.findVisible(ctx, sess.ContextID, livenessNextSelectors)
	if !ok {
		// Fall back to button text when the stock selectors miss.
		elements, err := r.env.scanElements(ctx, sess.ContextID, "button")
		if err != nil {
			return
		}
		for i := range elements {
			text := strings.ToLower(elements[i].Text)
			if elements[i].Visible && (strings.Contains(text, "next") || strings.Contains(text, "begin") || strings.Contains(text, "start")) {
				el, ok = &elements[i], true
				break
			}
		}
		if !ok {
			return
		}
	}
	if err := r.env.Human.Delay(ctx, sess.Human, r.env.Solver.ThinkDelayMin, r.env.Solver.ThinkDelayMax); err != nil {
		return
	}
	if err := r.env.Human.ClickElement(ctx, sess.Human, *el); err != nil {
		logger.Debug("Intro click failed", zap.Error(err))
	}
}

// presentGesture swaps the active reference image onto the camera feed.
func (r *livenessRunner) presentGesture(camera schemas.VirtualCamera, image string) error {
	if err := camera.ClearOverlay(); err != nil {
		return fmt.Errorf("overlay clear failed: %w", err)
	}
	path := filepath.Join(r.env.Solver.Liveness.AssetDir, image)
	if err := camera.SetBackgroundImage(path); err != nil {
		return fmt.Errorf("gesture image load failed: %w", err)
	}
	return nil
}

// checkComplete reports protocol completion: the challenge container is gone
// or a success token appeared.
func (r *livenessRunner) checkComplete(ctx context.Context, sess *Session, classification schemas.ClassificationResult) (bool, schemas.SolveResult) {
	if elements, err := r.env.scanElements(ctx, sess.ContextID, "*"); err == nil && hasSuccessToken(elements) {
		return true, schemas.SolveResult{Success: true, Confidence: confidenceToken, Attempts: sess.Attempts()}
	}
	if surface := surfaceSelector(classification); surface != "" {
		// Surface disappearance only counts when a scan actually succeeded.
		if visible, err := r.env.anyVisible(ctx, sess.ContextID, surface); err == nil && !visible {
			return true, schemas.SolveResult{Success: true, Confidence: confidenceGone, Attempts: sess.Attempts()}
		}
	}
	return false, schemas.SolveResult{}
}
