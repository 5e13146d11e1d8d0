// Package humanoid generates human-plausible pointer paths and timing for the
// challenge solvers. Movement follows a bowed cubic Bezier with per-step
// micro-jitter and non-uniform step delay; clicks land at a randomized offset
// inside the target, never its exact center.
package humanoid

import (
	"context"
	"fmt"
	"time"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/config"
)

const minPathSteps = 8

// Simulator produces human-like interactions through an InputSynthesizer.
// It is a stateless strategy object: all per-invocation state (cursor
// position, RNG) lives on the Session threaded through every call.
type Simulator struct {
	cfg    config.HumanoidConfig
	input  schemas.InputSynthesizer
	logger *zap.Logger

	noiseX *perlin.Perlin
	noiseY *perlin.Perlin
}

// New creates a Simulator over the given input synthesizer.
func New(cfg config.HumanoidConfig, input schemas.InputSynthesizer, logger *zap.Logger) *Simulator {
	alpha, beta, n := 2.0, 2.0, int32(3)
	seed := time.Now().UnixNano()
	return &Simulator{
		cfg:    cfg,
		input:  input,
		logger: logger.Named("humanoid"),
		noiseX: perlin.NewPerlin(alpha, beta, n, seed),
		noiseY: perlin.NewPerlin(alpha, beta, n, seed+1),
	}
}

// MoveTo moves the session cursor to the target along a generated trajectory,
// dispatching intermediate mouse moves with eased step timing.
func (sim *Simulator) MoveTo(ctx context.Context, s *Session, target Vector2D) error {
	start := s.Cursor()
	dist := start.Dist(target)
	if dist < 1.0 {
		return nil
	}

	path := sim.generatePath(s, start, target)
	totalMs := sim.fittsDuration(s, dist)

	startTime := time.Now()
	for i, point := range path {
		if err := ctx.Err(); err != nil {
			return err
		}

		t := float64(i) / float64(len(path)-1)
		eased := easeInOutCubic(t)

		// Low-frequency drift plus high-frequency tremor on every step.
		elapsed := time.Since(startTime).Seconds()
		jitter := Vector2D{
			X: sim.noiseX.Noise1D(elapsed*0.8)*sim.cfg.PerlinAmplitude + s.randNorm()*sim.cfg.GaussianStrength,
			Y: sim.noiseY.Noise1D(elapsed*0.8)*sim.cfg.PerlinAmplitude + s.randNorm()*sim.cfg.GaussianStrength,
		}
		// The final step lands exactly on target.
		pos := point
		if i < len(path)-1 {
			pos = point.Add(jitter)
		}

		if err := sim.input.MoveMouse(ctx, pos.X, pos.Y); err != nil {
			if ctx.Err() == nil {
				sim.logger.Warn("mouse move dispatch failed", zap.Error(err))
			}
			return err
		}
		s.setCursor(pos)

		// Sleep toward the eased target time for this step.
		stepDeadline := startTime.Add(time.Duration(eased * totalMs * float64(time.Millisecond)))
		if wait := time.Until(stepDeadline); wait > 0 {
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	return nil
}

// ClickElement moves to a randomized point inside the element and clicks it.
// The click point is drawn from a Gaussian around the center, scaled to the
// element's size and clamped inside its box.
func (sim *Simulator) ClickElement(ctx context.Context, s *Session, el schemas.ElementInfo) error {
	if el.Width <= 0 || el.Height <= 0 {
		return fmt.Errorf("humanoid: element %q has no geometry", el.Selector)
	}

	cx, cy := el.Center()
	target := Vector2D{
		X: clamp(cx+s.randNorm()*el.Width/2*sim.cfg.ClickSpread, el.X+1, el.X+el.Width-1),
		Y: clamp(cy+s.randNorm()*el.Height/2*sim.cfg.ClickSpread, el.Y+1, el.Y+el.Height-1),
	}

	if err := sim.MoveTo(ctx, s, target); err != nil {
		return err
	}
	return sim.clickAt(ctx, s, target)
}

// ClickPoint moves to the exact coordinate with path simulation and clicks.
func (sim *Simulator) ClickPoint(ctx context.Context, s *Session, x, y float64) error {
	target := Vector2D{X: x, Y: y}
	if err := sim.MoveTo(ctx, s, target); err != nil {
		return err
	}
	return sim.clickAt(ctx, s, target)
}

func (sim *Simulator) clickAt(ctx context.Context, s *Session, target Vector2D) error {
	if err := sim.input.MouseDown(ctx, "left"); err != nil {
		return err
	}

	hold := s.randDuration(
		time.Duration(sim.cfg.ClickHoldMinMs)*time.Millisecond,
		time.Duration(sim.cfg.ClickHoldMaxMs)*time.Millisecond,
	)
	if err := sleep(ctx, hold); err != nil {
		// Release even when cancelled mid-hold so the page is not left with
		// a stuck button.
		_ = sim.input.MouseUp(context.WithoutCancel(ctx), "left")
		return err
	}

	return sim.input.MouseUp(ctx, "left")
}

// Delay sleeps for a uniform random duration within [min,max], respecting
// context cancellation. Used for pre-click think pauses and inter-click gaps.
func (sim *Simulator) Delay(ctx context.Context, s *Session, min, max time.Duration) error {
	return sleep(ctx, s.randDuration(min, max))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
