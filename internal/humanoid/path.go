package humanoid

import "math"

// easeInOutCubic provides a smooth acceleration and deceleration profile, so
// step timing is slower at the start and end of a path.
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// generatePath builds a curved trajectory from start to end: a cubic Bezier
// whose control points are displaced perpendicular to the travel direction by
// a randomized bow, sampled at a step count proportional to the distance.
func (sim *Simulator) generatePath(s *Session, start, end Vector2D) []Vector2D {
	delta := end.Sub(start)
	dist := delta.Mag()
	if dist < 1.0 {
		return []Vector2D{end}
	}

	numSteps := int(dist * sim.cfg.StepsPerPixel)
	if numSteps < minPathSteps {
		numSteps = minPathSteps
	}

	dir := delta.Normalize()
	perp := dir.Perp()

	// Both control points bow to the same randomized side; a path that
	// changes curvature direction mid-flight reads as mechanical.
	side := 1.0
	if s.randFloat() < 0.5 {
		side = -1.0
	}
	bow1 := side * dist * sim.cfg.BowFactor * (0.4 + s.randFloat()*0.6)
	bow2 := side * dist * sim.cfg.BowFactor * (0.2 + s.randFloat()*0.5)

	p0 := start
	p1 := start.Add(dir.Mul(dist / 3.0)).Add(perp.Mul(bow1))
	p2 := start.Add(dir.Mul(dist * 2.0 / 3.0)).Add(perp.Mul(bow2))
	p3 := end

	path := make([]Vector2D, numSteps)
	for i := 0; i < numSteps; i++ {
		t := float64(i) / float64(numSteps-1)
		omt := 1.0 - t
		omt2 := omt * omt
		omt3 := omt2 * omt
		t2 := t * t
		t3 := t2 * t

		path[i] = p0.Mul(omt3).
			Add(p1.Mul(3 * omt2 * t)).
			Add(p2.Mul(3 * omt * t2)).
			Add(p3.Mul(t3))
	}
	return path
}

// fittsDuration derives a movement duration from Fitts's law with a +/- 15%
// randomization, matching observed human pointing variance.
func (sim *Simulator) fittsDuration(s *Session, distance float64) float64 {
	const targetWidth = 30.0

	id := math.Log2(1.0 + distance/targetWidth)
	mt := sim.cfg.FittsA + sim.cfg.FittsB*id
	mt += mt * (s.randFloat()*0.3 - 0.15)
	if mt < 0 {
		mt = 0
	}
	return mt
}
