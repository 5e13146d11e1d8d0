// Package captcha wires the challenge pipeline end to end: detect whether a
// page carries an interactive challenge, classify its modality, pick a
// provider strategy, and run the solve.
package captcha

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/captcha/classifier"
	"github.com/xkilldash9x/gatecrash/internal/captcha/detector"
	"github.com/xkilldash9x/gatecrash/internal/captcha/providers"
)

// Pipeline is the facade the host application drives. It is safe for
// concurrent use across browsing contexts; all per-solve state lives on
// call-scoped sessions.
type Pipeline struct {
	detector   *detector.Detector
	classifier *classifier.Classifier
	registry   *providers.Registry
	logger     *zap.Logger
}

// New assembles the pipeline over a shared provider environment.
func New(env *providers.Env) *Pipeline {
	return &Pipeline{
		detector:   detector.New(env.DOM, env.Logger),
		classifier: classifier.New(env.DOM, env.Logger),
		registry:   providers.NewRegistry(env),
		logger:     env.Logger.Named("captcha"),
	}
}

// Detect reports whether the browsing context currently shows a challenge.
func (p *Pipeline) Detect(ctx context.Context, contextID string) schemas.DetectionResult {
	return p.detector.Detect(ctx, contextID)
}

// Classify narrows a positive detection to a challenge modality.
func (p *Pipeline) Classify(ctx context.Context, contextID string, detection schemas.DetectionResult) schemas.ClassificationResult {
	return p.classifier.Classify(ctx, contextID, detection)
}

// Solve runs the full pipeline. A page with no challenge is a successful
// no-op, not an error; callers invoke this opportunistically. The provider
// argument selects a strategy explicitly, or ProviderAuto to score the page
// against every registered strategy.
func (p *Pipeline) Solve(ctx context.Context, contextID string, provider schemas.ProviderType) schemas.SolveResult {
	logger := p.logger.With(zap.String("context", contextID))

	detection := p.detector.Detect(ctx, contextID)
	if !detection.HasChallenge {
		logger.Debug("No challenge detected")
		return schemas.SolveResult{Success: true, Confidence: detection.Confidence}
	}
	logger.Info("Challenge detected",
		zap.Float64("confidence", detection.Confidence),
		zap.Strings("indicators", detection.Indicators))

	classification := p.classifier.Classify(ctx, contextID, detection)
	logger.Info("Challenge classified",
		zap.String("variant", string(classification.Variant)),
		zap.Float64("confidence", classification.Confidence))

	solver, err := p.resolveSolver(ctx, contextID, provider, classification)
	if err != nil {
		return schemas.SolveResult{ErrorMessage: err.Error()}
	}

	sess := providers.NewSession(contextID)
	logger.Info("Dispatching solve",
		zap.String("provider", string(solver.Type())), zap.String("session", sess.ID))
	result := solver.Solve(ctx, sess, classification)
	logger.Info("Solve finished",
		zap.Bool("success", result.Success),
		zap.Int("attempts", result.Attempts),
		zap.String("error", result.ErrorMessage))
	return result
}

func (p *Pipeline) resolveSolver(ctx context.Context, contextID string, provider schemas.ProviderType, classification schemas.ClassificationResult) (providers.Solver, error) {
	if provider == "" || provider == schemas.ProviderAuto {
		return p.registry.DetectAndCreate(ctx, contextID, classification)
	}
	return p.registry.Create(provider)
}
