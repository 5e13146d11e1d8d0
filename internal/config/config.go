package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Humanoid   HumanoidConfig   `mapstructure:"humanoid" yaml:"humanoid"`
	Perception PerceptionConfig `mapstructure:"perception" yaml:"perception"`
	Solver     SolverConfig     `mapstructure:"solver" yaml:"solver"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the terminal color names for each log level.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration  `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
}

// PerceptionConfig defines the vision-language model used to read challenges.
type PerceptionConfig struct {
	Model      string        `mapstructure:"model" yaml:"model"`
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxTokens  int           `mapstructure:"max_tokens" yaml:"max_tokens"`

	// OCRTemperature is used for deterministic character reads, and
	// GridTemperature for recall-oriented tile selection.
	OCRTemperature  float64           `mapstructure:"ocr_temperature" yaml:"ocr_temperature"`
	GridTemperature float64           `mapstructure:"grid_temperature" yaml:"grid_temperature"`
	SafetyFilters   map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
}

// SolverConfig tunes the challenge solving pipeline.
type SolverConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	AutoSubmit     bool          `mapstructure:"auto_submit" yaml:"auto_submit"`
	PreCheckWindow time.Duration `mapstructure:"pre_check_window" yaml:"pre_check_window"`

	VerifyInterval time.Duration `mapstructure:"verify_interval" yaml:"verify_interval"`
	VerifyTimeout  time.Duration `mapstructure:"verify_timeout" yaml:"verify_timeout"`
	SurfaceTimeout time.Duration `mapstructure:"surface_timeout" yaml:"surface_timeout"`

	// Bounds for the randomized pre-click think pause and inter-click gaps.
	ThinkDelayMin      time.Duration `mapstructure:"think_delay_min" yaml:"think_delay_min"`
	ThinkDelayMax      time.Duration `mapstructure:"think_delay_max" yaml:"think_delay_max"`
	InterClickDelayMin time.Duration `mapstructure:"inter_click_delay_min" yaml:"inter_click_delay_min"`
	InterClickDelayMax time.Duration `mapstructure:"inter_click_delay_max" yaml:"inter_click_delay_max"`

	Liveness LivenessConfig `mapstructure:"liveness" yaml:"liveness"`
}

// LivenessConfig tunes the reCAPTCHA gesture sub-protocol.
type LivenessConfig struct {
	MaxGestureAttempts int           `mapstructure:"max_gesture_attempts" yaml:"max_gesture_attempts"`
	GestureHold        time.Duration `mapstructure:"gesture_hold" yaml:"gesture_hold"`
	FrameRate          float64       `mapstructure:"frame_rate" yaml:"frame_rate"`
	JPEGQuality        int           `mapstructure:"jpeg_quality" yaml:"jpeg_quality"`
	AssetDir           string        `mapstructure:"asset_dir" yaml:"asset_dir"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "gatecrash")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.post_load_wait", "2s")

	// -- Humanoid --
	setHumanoidDefaults(v)

	// -- Perception --
	v.SetDefault("perception.model", "gemini-2.5-flash")
	v.SetDefault("perception.api_timeout", "45s")
	v.SetDefault("perception.max_tokens", 256)
	v.SetDefault("perception.ocr_temperature", 0.1)
	v.SetDefault("perception.grid_temperature", 0.4)

	// -- Solver --
	v.SetDefault("solver.max_attempts", 3)
	v.SetDefault("solver.auto_submit", true)
	v.SetDefault("solver.pre_check_window", "6s")
	v.SetDefault("solver.verify_interval", "200ms")
	v.SetDefault("solver.verify_timeout", "10s")
	v.SetDefault("solver.surface_timeout", "8s")
	v.SetDefault("solver.think_delay_min", "400ms")
	v.SetDefault("solver.think_delay_max", "1200ms")
	v.SetDefault("solver.inter_click_delay_min", "250ms")
	v.SetDefault("solver.inter_click_delay_max", "900ms")
	v.SetDefault("solver.liveness.max_gesture_attempts", 10)
	v.SetDefault("solver.liveness.gesture_hold", "2500ms")
	v.SetDefault("solver.liveness.frame_rate", 30.0)
	v.SetDefault("solver.liveness.jpeg_quality", 80)
	v.SetDefault("solver.liveness.asset_dir", "assets/gestures")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	v.BindEnv("perception.api_key", "GATECRASH_PERCEPTION_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Perception.APIKey == "" {
		cfg.Perception.APIKey = os.Getenv("GATECRASH_PERCEPTION_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Solver.MaxAttempts <= 0 {
		return fmt.Errorf("solver.max_attempts must be a positive integer")
	}
	if c.Solver.VerifyInterval <= 0 {
		return fmt.Errorf("solver.verify_interval must be a positive duration")
	}
	if c.Solver.VerifyTimeout < c.Solver.VerifyInterval {
		return fmt.Errorf("solver.verify_timeout must be at least one verify interval")
	}
	if c.Solver.ThinkDelayMin > c.Solver.ThinkDelayMax {
		return fmt.Errorf("solver.think_delay_min must not exceed solver.think_delay_max")
	}
	if c.Solver.InterClickDelayMin > c.Solver.InterClickDelayMax {
		return fmt.Errorf("solver.inter_click_delay_min must not exceed solver.inter_click_delay_max")
	}
	if c.Solver.Liveness.MaxGestureAttempts <= 0 {
		return fmt.Errorf("solver.liveness.max_gesture_attempts must be a positive integer")
	}
	if c.Solver.Liveness.FrameRate <= 0 {
		return fmt.Errorf("solver.liveness.frame_rate must be positive")
	}
	if c.Perception.OCRTemperature < 0 || c.Perception.OCRTemperature > 2 {
		return fmt.Errorf("perception.ocr_temperature out of range")
	}
	return nil
}
