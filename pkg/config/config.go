package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kardelitaitu/auto-ai-sub003/pkg/types"
)

// SessionConfig is the top-level YAML configuration for an autopilot session.
type SessionConfig struct {
	// Session-level pacing
	Session SessionSettings `yaml:"session" json:"session"`

	// Per-category engagement limits. Missing categories default, limit <= 0
	// means unbounded.
	Limits map[string]int `yaml:"limits" json:"limits"`

	// Dive execution tuning
	Dive DiveSettings `yaml:"dive" json:"dive"`

	// Circuit breaker thresholds for inference endpoints
	Breaker BreakerSettings `yaml:"breaker" json:"breaker"`

	// Inference backends
	Inference InferenceSettings `yaml:"inference" json:"inference"`

	// Browser automation
	Browser BrowserSettings `yaml:"browser" json:"browser"`

	// Target filtering
	Targets TargetSettings `yaml:"targets" json:"targets"`

	// Logging configuration
	Logging LoggingSettings `yaml:"logging" json:"logging"`
}

// SessionSettings controls overall session pacing.
type SessionSettings struct {
	// Duration bounds the whole session. Zero means run until interrupted.
	Duration time.Duration `yaml:"duration" json:"duration"`

	// Goal is the free-text instruction fed into page-analysis prompts.
	Goal string `yaml:"goal" json:"goal"`

	// PersonaFile points at the persona definition used for generated text.
	PersonaFile string `yaml:"persona_file" json:"persona_file"`

	// QuickModeThreshold is the fraction of session time remaining below
	// which dive timeouts tighten (e.g. 0.15 = last 15%).
	QuickModeThreshold float64 `yaml:"quick_mode_threshold" json:"quick_mode_threshold"`

	// ScrollInterval paces the background feed scroll.
	ScrollInterval time.Duration `yaml:"scroll_interval" json:"scroll_interval"`

	// DiveInterval paces how often the session considers a new dive.
	DiveInterval time.Duration `yaml:"dive_interval" json:"dive_interval"`
}

// DiveSettings tunes the single-flight dive queue.
type DiveSettings struct {
	MaxQueueSize   int           `yaml:"max_queue_size" json:"max_queue_size"`
	DefaultTimeout time.Duration `yaml:"default_timeout" json:"default_timeout"`
	QuickTimeout   time.Duration `yaml:"quick_timeout" json:"quick_timeout"`
	ReturnTimeout  time.Duration `yaml:"return_timeout" json:"return_timeout"`
}

// BreakerSettings tunes the inference circuit breaker.
type BreakerSettings struct {
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown" json:"cooldown"`
	MaxCooldown      time.Duration `yaml:"max_cooldown" json:"max_cooldown"`
	BackoffFactor    float64       `yaml:"backoff_factor" json:"backoff_factor"`
}

// InferenceSettings configures the local and cloud backends.
type InferenceSettings struct {
	LocalEnabled bool            `yaml:"local_enabled" json:"local_enabled"`
	Local        BackendSettings `yaml:"local" json:"local"`
	Cloud        BackendSettings `yaml:"cloud" json:"cloud"`

	// PromptTokenBudget trims prompts before dispatch. Zero disables trimming.
	PromptTokenBudget int `yaml:"prompt_token_budget" json:"prompt_token_budget"`

	// MaxConcurrent and MaxWaiting size the per-backend request queues.
	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent"`
	MaxWaiting    int `yaml:"max_waiting" json:"max_waiting"`
}

// BackendSettings identifies one inference endpoint. The API key is named by
// environment variable so config files stay free of secrets.
type BackendSettings struct {
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	Model     string        `yaml:"model" json:"model"`
	APIKeyEnv string        `yaml:"api_key_env" json:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// APIKey resolves the backend's API key from the environment.
func (b BackendSettings) APIKey() string {
	if b.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(b.APIKeyEnv)
}

// BrowserSettings configures the playwright session.
type BrowserSettings struct {
	Headless    bool   `yaml:"headless" json:"headless"`
	UserDataDir string `yaml:"user_data_dir" json:"user_data_dir"`
	BaseURL     string `yaml:"base_url" json:"base_url"`
}

// TargetSettings holds allow/deny glob patterns matched against post URLs
// and author handles. Denied patterns take precedence; an empty allow list
// allows everything not denied.
type TargetSettings struct {
	AllowedPatterns []string `yaml:"allowed_patterns" json:"allowed_patterns"`
	DeniedPatterns  []string `yaml:"denied_patterns" json:"denied_patterns"`
}

// LoggingSettings configures the session log.
type LoggingSettings struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" json:"level"`
}

// Load reads and parses a YAML config file, applies defaults, and validates.
func Load(path string) (*SessionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &SessionConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with working defaults.
func (c *SessionConfig) ApplyDefaults() {
	if c.Session.QuickModeThreshold == 0 {
		c.Session.QuickModeThreshold = 0.15
	}
	if c.Session.ScrollInterval == 0 {
		c.Session.ScrollInterval = 8 * time.Second
	}
	if c.Session.DiveInterval == 0 {
		c.Session.DiveInterval = 45 * time.Second
	}
	if c.Session.Goal == "" {
		c.Session.Goal = "browse the feed and engage naturally with interesting posts"
	}

	if c.Limits == nil {
		c.Limits = make(map[string]int)
	}
	for _, cat := range types.AllCategories {
		if _, ok := c.Limits[string(cat)]; !ok {
			c.Limits[string(cat)] = defaultLimits[cat]
		}
	}

	if c.Dive.MaxQueueSize == 0 {
		c.Dive.MaxQueueSize = 10
	}
	if c.Dive.DefaultTimeout == 0 {
		c.Dive.DefaultTimeout = 45 * time.Second
	}
	if c.Dive.QuickTimeout == 0 {
		c.Dive.QuickTimeout = c.Dive.DefaultTimeout / 3
	}
	if c.Dive.ReturnTimeout == 0 {
		c.Dive.ReturnTimeout = 10 * time.Second
	}

	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.Cooldown == 0 {
		c.Breaker.Cooldown = 30 * time.Second
	}
	if c.Breaker.MaxCooldown == 0 {
		c.Breaker.MaxCooldown = 5 * time.Minute
	}
	if c.Breaker.BackoffFactor == 0 {
		c.Breaker.BackoffFactor = 2
	}

	if c.Inference.MaxConcurrent == 0 {
		c.Inference.MaxConcurrent = 1
	}
	if c.Inference.MaxWaiting == 0 {
		c.Inference.MaxWaiting = 2 * c.Inference.MaxConcurrent
	}
	if c.Inference.Local.BaseURL == "" {
		c.Inference.Local.BaseURL = "http://127.0.0.1:8080"
	}
	if c.Inference.Local.Timeout == 0 {
		c.Inference.Local.Timeout = 60 * time.Second
	}
	if c.Inference.Cloud.Timeout == 0 {
		c.Inference.Cloud.Timeout = 30 * time.Second
	}

	if c.Browser.BaseURL == "" {
		c.Browser.BaseURL = "https://x.com/home"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

var defaultLimits = map[types.EngagementCategory]int{
	types.CategoryReply:    10,
	types.CategoryRetweet:  15,
	types.CategoryQuote:    5,
	types.CategoryLike:     40,
	types.CategoryFollow:   8,
	types.CategoryBookmark: 20,
}

// Validate checks the configuration for internal consistency.
func (c *SessionConfig) Validate() error {
	if c.Session.Duration < 0 {
		return fmt.Errorf("session duration cannot be negative")
	}
	if c.Session.QuickModeThreshold < 0 || c.Session.QuickModeThreshold >= 1 {
		return fmt.Errorf("quick_mode_threshold must be in [0, 1), got %v", c.Session.QuickModeThreshold)
	}

	for name := range c.Limits {
		if !types.EngagementCategory(name).Valid() {
			return fmt.Errorf("unknown engagement category in limits: %q", name)
		}
	}

	if c.Dive.MaxQueueSize < 1 {
		return fmt.Errorf("dive max_queue_size must be at least 1")
	}
	if c.Dive.QuickTimeout > c.Dive.DefaultTimeout {
		return fmt.Errorf("dive quick_timeout (%v) cannot exceed default_timeout (%v)", c.Dive.QuickTimeout, c.Dive.DefaultTimeout)
	}

	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker failure_threshold must be at least 1")
	}
	if c.Breaker.BackoffFactor < 1 {
		return fmt.Errorf("breaker backoff_factor must be at least 1")
	}
	if c.Breaker.MaxCooldown < c.Breaker.Cooldown {
		return fmt.Errorf("breaker max_cooldown (%v) cannot be below cooldown (%v)", c.Breaker.MaxCooldown, c.Breaker.Cooldown)
	}

	if c.Inference.LocalEnabled && c.Inference.Local.BaseURL == "" {
		return fmt.Errorf("inference.local.base_url is required when local inference is enabled")
	}
	if c.Inference.Cloud.BaseURL == "" {
		return fmt.Errorf("inference.cloud.base_url is required")
	}
	if c.Inference.Cloud.Model == "" {
		return fmt.Errorf("inference.cloud.model is required")
	}

	// Fail early on malformed globs rather than at first match.
	if _, err := NewTargetFilter(c.Targets); err != nil {
		return err
	}

	return nil
}

// CategoryLimits converts the string-keyed YAML map into typed limits.
func (c *SessionConfig) CategoryLimits() map[types.EngagementCategory]int {
	out := make(map[types.EngagementCategory]int, len(c.Limits))
	for name, limit := range c.Limits {
		out[types.EngagementCategory(name)] = limit
	}
	return out
}

// DefaultConfig returns a configuration suitable for a dry local run.
func DefaultConfig() *SessionConfig {
	cfg := &SessionConfig{
		Session: SessionSettings{
			Duration: 30 * time.Minute,
		},
		Inference: InferenceSettings{
			LocalEnabled: true,
			Cloud: BackendSettings{
				BaseURL:   "https://api.openai.com/v1",
				Model:     "gpt-4o-mini",
				APIKeyEnv: "OPENAI_API_KEY",
			},
		},
		Browser: BrowserSettings{
			Headless: true,
		},
	}
	cfg.ApplyDefaults()
	return cfg
}
