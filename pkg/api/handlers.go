package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taskforge/taskforge/pkg/database"
	"github.com/taskforge/taskforge/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// statusHandler handles GET /api/status.
func (s *Server) statusHandler(c *gin.Context) {
	resp := gin.H{
		"status": s.session.Status(),
		"runs":   s.session.Runs(),
	}
	if last := s.session.LastRun(); !last.IsZero() {
		resp["last_run"] = last.UTC().Format(time.RFC3339)
	}
	if s.gate != nil {
		resp["pending_approvals"] = s.gate.Pending()
	}
	c.JSON(http.StatusOK, resp)
}

// statsHandler handles GET /api/stats.
func (s *Server) statsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.tel.Snapshot())
}

// activityHandler handles GET /api/activity.
func (s *Server) activityHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"activity": s.tel.Activity()})
}

// healthHandler handles GET /api/health. Only the process's own
// dependencies are checked; a missing database degrades rather than
// fails, because the in-memory store keeps the pipeline functional.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := healthStatusHealthy
	checks := gin.H{}
	if s.db == nil {
		status = healthStatusDegraded
		checks["database"] = gin.H{"status": "not configured"}
	} else if _, err := database.Health(ctx, s.db.DB()); err != nil {
		status = healthStatusUnhealthy
		checks["database"] = gin.H{"status": healthStatusUnhealthy, "error": err.Error()}
	} else {
		checks["database"] = gin.H{"status": healthStatusHealthy}
	}

	code := http.StatusOK
	if status == healthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":  status,
		"version": version.Full(),
		"checks":  checks,
	})
}

// configHandler handles GET /api/config: the effective runtime settings
// and each agent's model id. Credentials are never included.
func (s *Server) configHandler(c *gin.Context) {
	s.mu.Lock()
	settings := *s.settings
	s.mu.Unlock()

	agentModels := make(map[string]string, len(s.agents.Agents))
	for name, cfg := range s.agents.Agents {
		agentModels[name] = cfg.Model
	}

	c.JSON(http.StatusOK, gin.H{
		"max_rebuild_attempts": settings.MaxRebuildAttempts,
		"review_threshold":     settings.ReviewThreshold,
		"score_threshold":      settings.ScoreThreshold,
		"hitl_timeout_seconds": int(settings.HITLTimeout / time.Second),
		"dev_parallelism":      settings.DevParallelism,
		"review_branch_name":   settings.ReviewBranchName,
		"tracker_project":      settings.TrackerProject,
		"agent_models":         agentModels,
	})
}

// startAutomationHandler handles POST /api/start-automation. Starting is
// idempotent: a running session reports "already running".
func (s *Server) startAutomationHandler(c *gin.Context) {
	if !s.session.Start(context.Background()) {
		c.JSON(http.StatusOK, gin.H{"status": "already running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

// stopAutomationHandler handles POST /api/stop-automation. Stop joins the
// runner within its grace period before responding.
func (s *Server) stopAutomationHandler(c *gin.Context) {
	s.session.Stop()
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// resetStatsHandler handles POST /api/reset-stats.
func (s *Server) resetStatsHandler(c *gin.Context) {
	s.tel.Reset()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}
