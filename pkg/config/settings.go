// Package config loads and validates the process configuration: env-backed
// runtime settings and the per-agent LLM configuration merged from builtin
// defaults and an optional user agents.yaml.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Settings holds the env-backed runtime configuration of the pipeline.
type Settings struct {
	MaxRebuildAttempts int
	ReviewThreshold    float64
	ScoreThreshold     float64
	HITLTimeout        time.Duration
	DevParallelism     int
	ReviewBranchName   string

	TrackerBaseURL string
	TrackerProject string
	TrackerEmail   string
	TrackerToken   string

	RepoBaseURL   string
	RepoOwner     string
	RepoName      string
	RepoToken     string
	DefaultBranch string

	QualityBaseURL string
	QualityProject string
	QualityToken   string

	LintBaseURL string

	StagingDir string

	ListenAddr string
	LogLevel   string

	Database DatabaseSettings
}

// DatabaseSettings configures the metrics store connection.
type DatabaseSettings struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() *Settings {
	return &Settings{
		MaxRebuildAttempts: 3,
		ReviewThreshold:    70,
		ScoreThreshold:     7.0,
		HITLTimeout:        30 * time.Second,
		DevParallelism:     4,
		ReviewBranchName:   "code-review",
		DefaultBranch:      "main",
		StagingDir:         "staging",
		ListenAddr:         ":8080",
		LogLevel:           "info",
		Database: DatabaseSettings{
			Host:     "localhost",
			Port:     5432,
			User:     "taskforge",
			Database: "taskforge",
			SSLMode:  "disable",
		},
	}
}

// LoadSettings builds Settings from the environment on top of the defaults.
func LoadSettings() (*Settings, error) {
	s := DefaultSettings()

	s.MaxRebuildAttempts = getEnvInt("MAX_REBUILD_ATTEMPTS", s.MaxRebuildAttempts)
	s.ReviewThreshold = getEnvFloat("REVIEW_THRESHOLD", s.ReviewThreshold)
	s.ScoreThreshold = getEnvFloat("SCORE_THRESHOLD", s.ScoreThreshold)
	if v := getEnvInt("HITL_TIMEOUT_SECONDS", int(s.HITLTimeout/time.Second)); v >= 0 {
		s.HITLTimeout = time.Duration(v) * time.Second
	}
	s.DevParallelism = getEnvInt("DEV_PARALLELISM", s.DevParallelism)
	s.ReviewBranchName = getEnv("REVIEW_BRANCH_NAME", s.ReviewBranchName)

	s.TrackerBaseURL = getEnv("TRACKER_BASE_URL", s.TrackerBaseURL)
	s.TrackerProject = getEnv("TRACKER_PROJECT", s.TrackerProject)
	s.TrackerEmail = getEnv("TRACKER_EMAIL", s.TrackerEmail)
	s.TrackerToken = getEnv("TRACKER_TOKEN", s.TrackerToken)

	s.RepoBaseURL = getEnv("REPO_BASE_URL", "https://api.github.com")
	s.RepoOwner = getEnv("REPO_OWNER", s.RepoOwner)
	s.RepoName = getEnv("REPO_NAME", s.RepoName)
	s.RepoToken = getEnv("REPO_TOKEN", s.RepoToken)
	s.DefaultBranch = getEnv("REPO_DEFAULT_BRANCH", s.DefaultBranch)

	s.QualityBaseURL = getEnv("QUALITY_BASE_URL", s.QualityBaseURL)
	s.QualityProject = getEnv("QUALITY_PROJECT", s.QualityProject)
	s.QualityToken = getEnv("QUALITY_TOKEN", s.QualityToken)

	s.LintBaseURL = getEnv("LINT_BASE_URL", s.LintBaseURL)

	s.StagingDir = getEnv("STAGING_DIR", s.StagingDir)
	s.ListenAddr = getEnv("LISTEN_ADDR", s.ListenAddr)
	s.LogLevel = getEnv("LOG_LEVEL", s.LogLevel)

	s.Database.Host = getEnv("DB_HOST", s.Database.Host)
	s.Database.Port = getEnvInt("DB_PORT", s.Database.Port)
	s.Database.User = getEnv("DB_USER", s.Database.User)
	s.Database.Password = getEnv("DB_PASSWORD", s.Database.Password)
	s.Database.Database = getEnv("DB_NAME", s.Database.Database)
	s.Database.SSLMode = getEnv("DB_SSLMODE", s.Database.SSLMode)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks value ranges. Endpoint and credential fields may be empty;
// the ports fail at call time with a clear error instead.
func (s *Settings) Validate() error {
	if s.MaxRebuildAttempts < 0 {
		return fmt.Errorf("MAX_REBUILD_ATTEMPTS must be >= 0, got %d", s.MaxRebuildAttempts)
	}
	if s.ReviewThreshold < 0 || s.ReviewThreshold > 100 {
		return fmt.Errorf("REVIEW_THRESHOLD must be in [0,100], got %v", s.ReviewThreshold)
	}
	if s.ScoreThreshold < 0 || s.ScoreThreshold > 10 {
		return fmt.Errorf("SCORE_THRESHOLD must be in [0,10], got %v", s.ScoreThreshold)
	}
	if s.HITLTimeout < 0 {
		return fmt.Errorf("HITL_TIMEOUT_SECONDS must be >= 0, got %v", s.HITLTimeout)
	}
	if s.DevParallelism < 1 {
		return fmt.Errorf("DEV_PARALLELISM must be >= 1, got %d", s.DevParallelism)
	}
	if s.ReviewBranchName == "" {
		return fmt.Errorf("REVIEW_BRANCH_NAME must not be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
