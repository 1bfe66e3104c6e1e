package api

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taskforge/taskforge/pkg/config"
)

// envKeys are the setting variables exposed by GET /api/env. Secrets are
// masked before leaving the process.
var envKeys = []string{
	"MAX_REBUILD_ATTEMPTS",
	"REVIEW_THRESHOLD",
	"SCORE_THRESHOLD",
	"HITL_TIMEOUT_SECONDS",
	"DEV_PARALLELISM",
	"REVIEW_BRANCH_NAME",
	"TRACKER_BASE_URL",
	"TRACKER_PROJECT",
	"TRACKER_EMAIL",
	"TRACKER_TOKEN",
	"REPO_OWNER",
	"REPO_NAME",
	"REPO_TOKEN",
	"QUALITY_BASE_URL",
	"QUALITY_PROJECT",
	"QUALITY_TOKEN",
	"LINT_BASE_URL",
	"PLANNER_MODEL",
	"ASSEMBLER_MODEL",
	"DEVELOPER_MODEL",
	"REVIEWER_MODEL",
}

var secretMarkers = []string{"TOKEN", "KEY", "PASSWORD", "SECRET"}

func maskSecret(key, value string) string {
	if value == "" {
		return ""
	}
	for _, marker := range secretMarkers {
		if strings.Contains(key, marker) {
			if len(value) <= 4 {
				return "****"
			}
			return "****" + value[len(value)-4:]
		}
	}
	return value
}

// envHandler handles GET /api/env.
func (s *Server) envHandler(c *gin.Context) {
	env := make(map[string]string, len(envKeys))
	for _, key := range envKeys {
		env[key] = maskSecret(key, os.Getenv(key))
	}
	c.JSON(http.StatusOK, gin.H{"env": env})
}

// envUpdateHandler handles POST /api/env/update: an in-process settings
// update for thresholds and models. Changes apply to subsequent runs; a
// value failing validation rejects the whole update.
func (s *Server) envUpdateHandler(c *gin.Context) {
	var updates map[string]string
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	candidate := *s.settings
	for key, value := range updates {
		if err := applySetting(&candidate, key, value); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if err := candidate.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	*s.settings = candidate

	for key, value := range updates {
		os.Setenv(key, value)
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "applied": len(updates)})
}

func applySetting(s *config.Settings, key, value string) error {
	switch key {
	case "MAX_REBUILD_ATTEMPTS":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer", key)
		}
		s.MaxRebuildAttempts = n
	case "REVIEW_THRESHOLD":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number", key)
		}
		s.ReviewThreshold = f
	case "SCORE_THRESHOLD":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number", key)
		}
		s.ScoreThreshold = f
	case "HITL_TIMEOUT_SECONDS":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%s must be a non-negative integer", key)
		}
		s.HITLTimeout = time.Duration(n) * time.Second
	case "DEV_PARALLELISM":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer", key)
		}
		s.DevParallelism = n
	case "REVIEW_BRANCH_NAME":
		s.ReviewBranchName = value
	case "PLANNER_MODEL", "ASSEMBLER_MODEL", "DEVELOPER_MODEL", "REVIEWER_MODEL":
		// Model overrides land in the environment only; the agents config
		// re-reads them on the next process start.
	default:
		return fmt.Errorf("setting %s is not updatable", key)
	}
	return nil
}
