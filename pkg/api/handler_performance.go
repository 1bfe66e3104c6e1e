package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taskforge/taskforge/pkg/metrics"
	"github.com/taskforge/taskforge/pkg/models"
)

// performanceDataHandler handles GET /api/performance-data: the last
// seven daily metrics documents, newest first.
func (s *Server) performanceDataHandler(c *gin.Context) {
	days, err := s.store.GetLastNDays(c.Request.Context(), 7)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}

// performanceRealtimeHandler handles GET /api/performance/realtime:
// today's document. A day with no activity yet returns an empty document
// rather than an error.
func (s *Server) performanceRealtimeHandler(c *gin.Context) {
	date := time.Now().UTC().Format("2006-01-02")
	day, err := s.store.GetDaily(c.Request.Context(), date)
	if errors.Is(err, metrics.ErrNotFound) {
		day = &models.DailyMetrics{Date: date, AgentActivities: map[string]models.AgentActivity{}}
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, day)
}

// performanceAgentsHandler handles GET /api/performance/agents.
func (s *Server) performanceAgentsHandler(c *gin.Context) {
	summary, err := s.store.GetAgentsSummary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": summary})
}
