// Tunable parameters for the humanoid interaction simulator. These control the
// models that generate realistic pointer behavior: movement timing, trajectory
// curvature, tremor noise, and click dynamics. Loaded via Viper so a persona
// can be adjusted without touching the simulation code.
package config

import "github.com/spf13/viper"

// HumanoidConfig holds the interaction simulator tunables.
type HumanoidConfig struct {
	// Fitts's law coefficients for movement duration (ms): MT = A + B*log2(1+D/W).
	FittsA float64 `mapstructure:"fitts_a" yaml:"fitts_a"`
	FittsB float64 `mapstructure:"fitts_b" yaml:"fitts_b"`

	// PerlinAmplitude scales the low-frequency drift applied along a path;
	// GaussianStrength scales the high-frequency tremor.
	PerlinAmplitude  float64 `mapstructure:"perlin_amplitude" yaml:"perlin_amplitude"`
	GaussianStrength float64 `mapstructure:"gaussian_strength" yaml:"gaussian_strength"`

	// BowFactor bounds the randomized perpendicular displacement of the
	// trajectory control points, as a fraction of the path length.
	BowFactor float64 `mapstructure:"bow_factor" yaml:"bow_factor"`

	// StepsPerPixel controls path resolution; step count grows with distance.
	StepsPerPixel float64 `mapstructure:"steps_per_pixel" yaml:"steps_per_pixel"`

	ClickHoldMinMs int `mapstructure:"click_hold_min_ms" yaml:"click_hold_min_ms"`
	ClickHoldMaxMs int `mapstructure:"click_hold_max_ms" yaml:"click_hold_max_ms"`

	// ClickSpread is the fraction of the target's half-extent used as the
	// standard deviation of the click-point offset.
	ClickSpread float64 `mapstructure:"click_spread" yaml:"click_spread"`
}

func setHumanoidDefaults(v *viper.Viper) {
	v.SetDefault("humanoid.fitts_a", 100.0)
	v.SetDefault("humanoid.fitts_b", 120.0)
	v.SetDefault("humanoid.perlin_amplitude", 2.5)
	v.SetDefault("humanoid.gaussian_strength", 0.5)
	v.SetDefault("humanoid.bow_factor", 0.18)
	v.SetDefault("humanoid.steps_per_pixel", 0.12)
	v.SetDefault("humanoid.click_hold_min_ms", 50)
	v.SetDefault("humanoid.click_hold_max_ms", 120)
	v.SetDefault("humanoid.click_spread", 0.30)
}
