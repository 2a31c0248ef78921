package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kardelitaitu/auto-ai-sub003/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
session:
  duration: 45m
  goal: "engage with golang posts"
  quick_mode_threshold: 0.2
limits:
  reply: 5
  like: 100
dive:
  max_queue_size: 4
  default_timeout: 30s
breaker:
  failure_threshold: 3
  cooldown: 10s
  max_cooldown: 2m
inference:
  local_enabled: true
  local:
    base_url: "http://127.0.0.1:11434"
    model: "qwen2.5vl"
  cloud:
    base_url: "https://api.openai.com/v1"
    model: "gpt-4o-mini"
    api_key_env: "OPENAI_API_KEY"
targets:
  denied_patterns:
    - "*crypto*"
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Minute, cfg.Session.Duration)
	assert.Equal(t, "engage with golang posts", cfg.Session.Goal)
	assert.Equal(t, 0.2, cfg.Session.QuickModeThreshold)
	assert.Equal(t, 5, cfg.Limits["reply"])
	assert.Equal(t, 100, cfg.Limits["like"])
	assert.Equal(t, 4, cfg.Dive.MaxQueueSize)
	assert.Equal(t, 30*time.Second, cfg.Dive.DefaultTimeout)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.True(t, cfg.Inference.LocalEnabled)
	assert.Equal(t, "http://127.0.0.1:11434", cfg.Inference.Local.BaseURL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
inference:
  cloud:
    base_url: "https://api.openai.com/v1"
    model: "gpt-4o-mini"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Dive.MaxQueueSize)
	assert.Equal(t, 45*time.Second, cfg.Dive.DefaultTimeout)
	assert.Equal(t, 15*time.Second, cfg.Dive.QuickTimeout, "quick timeout defaults to a third of the dive timeout")
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.Cooldown)
	assert.Equal(t, 0.15, cfg.Session.QuickModeThreshold)
	assert.Equal(t, "info", cfg.Logging.Level)

	// Every category gets a default limit.
	for _, cat := range types.AllCategories {
		_, ok := cfg.Limits[string(cat)]
		assert.True(t, ok, "missing default limit for %s", cat)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "session: [not: a: mapping")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SessionConfig)
		wantErr string
	}{
		{
			name:    "unknown category",
			mutate:  func(c *SessionConfig) { c.Limits["superlike"] = 3 },
			wantErr: "unknown engagement category",
		},
		{
			name:    "quick timeout above default",
			mutate:  func(c *SessionConfig) { c.Dive.QuickTimeout = c.Dive.DefaultTimeout * 2 },
			wantErr: "quick_timeout",
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *SessionConfig) { c.Session.QuickModeThreshold = 1.5 },
			wantErr: "quick_mode_threshold",
		},
		{
			name:    "negative queue size",
			mutate:  func(c *SessionConfig) { c.Dive.MaxQueueSize = -1 },
			wantErr: "max_queue_size",
		},
		{
			name:    "missing cloud model",
			mutate:  func(c *SessionConfig) { c.Inference.Cloud.Model = "" },
			wantErr: "inference.cloud.model",
		},
		{
			name:    "backoff below one",
			mutate:  func(c *SessionConfig) { c.Breaker.BackoffFactor = 0.5 },
			wantErr: "backoff_factor",
		},
		{
			name:    "malformed glob",
			mutate:  func(c *SessionConfig) { c.Targets.DeniedPatterns = []string{"[bad"} },
			wantErr: "invalid denied target pattern",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestCategoryLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits["reply"] = 7
	cfg.Limits["like"] = 0

	limits := cfg.CategoryLimits()
	assert.Equal(t, 7, limits[types.CategoryReply])
	assert.Equal(t, 0, limits[types.CategoryLike], "zero carries through as unbounded")
}

func TestBackendAPIKeyFromEnv(t *testing.T) {
	t.Setenv("AUTOPILOT_TEST_KEY", "sk-test")

	b := BackendSettings{APIKeyEnv: "AUTOPILOT_TEST_KEY"}
	assert.Equal(t, "sk-test", b.APIKey())

	assert.Empty(t, BackendSettings{}.APIKey())
}
