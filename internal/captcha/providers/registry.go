package providers

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
)

// Registry creates and caches solver strategies, one instance per provider
// type for the life of the process. Caching is safe because solvers carry no
// per-solve state; everything mutable rides on the Session.
type Registry struct {
	env    *Env
	logger *zap.Logger

	mu    sync.Mutex
	cache map[schemas.ProviderType]Solver
}

// NewRegistry creates a solver registry over the shared environment.
func NewRegistry(env *Env) *Registry {
	return &Registry{
		env:    env,
		logger: env.Logger.Named("providers.registry"),
		cache:  make(map[schemas.ProviderType]Solver),
	}
}

// Create returns the cached solver for the type, constructing it on first
// use. ProviderAuto is not constructible here; use DetectAndCreate.
func (r *Registry) Create(providerType schemas.ProviderType) (Solver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if solver, ok := r.cache[providerType]; ok {
		return solver, nil
	}

	var solver Solver
	switch providerType {
	case schemas.ProviderOwl:
		solver = NewOwlSolver(r.env)
	case schemas.ProviderRecaptcha:
		solver = NewRecaptchaSolver(r.env)
	case schemas.ProviderCloudflare, schemas.ProviderHCaptcha:
		solver = NewCloudflareSolver(r.env)
	default:
		return nil, fmt.Errorf("providers: no solver for provider type %q", providerType)
	}
	r.cache[providerType] = solver
	return solver, nil
}

// DetectAndCreate scores every registered strategy against the page and
// returns the best match. Scores below the floor fall back to the generic
// solver rather than giving up at dispatch; ties also favor the generic
// solver, the cheapest and most conservative option.
func (r *Registry) DetectAndCreate(ctx context.Context, contextID string, classification schemas.ClassificationResult) (Solver, error) {
	best, err := r.Create(schemas.ProviderOwl)
	if err != nil {
		return nil, err
	}
	bestScore := best.DetectProvider(ctx, contextID, classification)

	for _, providerType := range []schemas.ProviderType{schemas.ProviderRecaptcha, schemas.ProviderCloudflare} {
		solver, err := r.Create(providerType)
		if err != nil {
			return nil, err
		}
		score := solver.DetectProvider(ctx, contextID, classification)
		r.logger.Debug("Provider detection score",
			zap.String("provider", string(providerType)), zap.Float64("score", score))
		if score > bestScore {
			best, bestScore = solver, score
		}
	}

	if bestScore < minProviderScore {
		r.logger.Info("No provider scored above the detection floor, using generic solver",
			zap.Float64("best_score", bestScore))
		return r.Create(schemas.ProviderOwl)
	}
	r.logger.Info("Provider selected",
		zap.String("provider", string(best.Type())), zap.Float64("score", bestScore))
	return best, nil
}
