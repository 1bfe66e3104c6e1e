package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, 3, s.MaxRebuildAttempts)
	assert.Equal(t, 70.0, s.ReviewThreshold)
	assert.Equal(t, 7.0, s.ScoreThreshold)
	assert.Equal(t, 30*time.Second, s.HITLTimeout)
	assert.Equal(t, 4, s.DevParallelism)
	require.NoError(t, s.Validate())
}

func TestLoadSettingsFromEnv(t *testing.T) {
	t.Setenv("MAX_REBUILD_ATTEMPTS", "5")
	t.Setenv("REVIEW_THRESHOLD", "85")
	t.Setenv("SCORE_THRESHOLD", "6.5")
	t.Setenv("HITL_TIMEOUT_SECONDS", "10")
	t.Setenv("DEV_PARALLELISM", "8")
	t.Setenv("REVIEW_BRANCH_NAME", "auto-review")

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, 5, s.MaxRebuildAttempts)
	assert.Equal(t, 85.0, s.ReviewThreshold)
	assert.Equal(t, 6.5, s.ScoreThreshold)
	assert.Equal(t, 10*time.Second, s.HITLTimeout)
	assert.Equal(t, 8, s.DevParallelism)
	assert.Equal(t, "auto-review", s.ReviewBranchName)
}

func TestValidateRanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"negative rebuild attempts", func(s *Settings) { s.MaxRebuildAttempts = -1 }},
		{"review threshold over 100", func(s *Settings) { s.ReviewThreshold = 101 }},
		{"score threshold over 10", func(s *Settings) { s.ScoreThreshold = 11 }},
		{"zero parallelism", func(s *Settings) { s.DevParallelism = 0 }},
		{"empty branch", func(s *Settings) { s.ReviewBranchName = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestLoadAgentsConfigBuiltin(t *testing.T) {
	t.Setenv("PLANNER_MODEL", "gpt-4o")
	t.Setenv("PLANNER_KEY", "sk-test")

	cfg, err := LoadAgentsConfig(nil)
	require.NoError(t, err)
	planner := cfg.ForAgent(AgentPlanner)
	assert.Equal(t, "gpt-4o", planner.Model)
	assert.Equal(t, "sk-test", planner.APIKey)
	assert.Equal(t, 4096, planner.MaxTokens)
}

func TestLoadAgentsConfigUserOverlay(t *testing.T) {
	user := []byte(`
agents:
  developer:
    model: "claude-sonnet"
    max_tokens: 16384
`)
	cfg, err := LoadAgentsConfig(user)
	require.NoError(t, err)
	dev := cfg.ForAgent(AgentDeveloper)
	assert.Equal(t, "claude-sonnet", dev.Model)
	assert.Equal(t, 16384, dev.MaxTokens)
	// Untouched agents keep builtin values.
	assert.Equal(t, 4096, cfg.ForAgent(AgentReviewer).MaxTokens)
}

func TestForAgentUnknownFallsBackToDeveloper(t *testing.T) {
	cfg, err := LoadAgentsConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.ForAgent(AgentDeveloper), cfg.ForAgent("rebuilder"))
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_EXPAND_HOST", "db.example.com")
	out := ExpandEnv([]byte("host: {{.TEST_EXPAND_HOST}}\npattern: ^secret.*$"))
	assert.Equal(t, "host: db.example.com\npattern: ^secret.*$", string(out))
}

func TestExpandEnvMissingVarEmpty(t *testing.T) {
	out := ExpandEnv([]byte("key: {{.DOES_NOT_EXIST_XYZ}}"))
	assert.Equal(t, "key: ", string(out))
}
