// Package api is the HTTP control surface: read-only status, stats,
// activity and performance views plus automation session control. All
// responses are JSON and CORS is permissive.
package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/taskforge/taskforge/pkg/config"
	"github.com/taskforge/taskforge/pkg/database"
	"github.com/taskforge/taskforge/pkg/metrics"
	"github.com/taskforge/taskforge/pkg/pipeline"
	"github.com/taskforge/taskforge/pkg/telemetry"
)

// Server holds the control surface dependencies. db may be nil when the
// process runs without a database; store is then the in-memory fallback.
type Server struct {
	mu       sync.Mutex
	settings *config.Settings
	agents   *config.AgentsConfig
	session  *pipeline.Session
	gate     *pipeline.HITLGate
	tel      *telemetry.Telemetry
	store    metrics.Store
	db       *database.Client
}

// NewServer wires the control surface.
func NewServer(settings *config.Settings, agents *config.AgentsConfig, session *pipeline.Session, gate *pipeline.HITLGate, tel *telemetry.Telemetry, store metrics.Store, db *database.Client) *Server {
	return &Server{
		settings: settings,
		agents:   agents,
		session:  session,
		gate:     gate,
		tel:      tel,
		store:    store,
		db:       db,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	api := r.Group("/api")
	{
		api.GET("/status", s.statusHandler)
		api.GET("/stats", s.statsHandler)
		api.GET("/activity", s.activityHandler)
		api.GET("/health", s.healthHandler)
		api.GET("/config", s.configHandler)
		api.GET("/env", s.envHandler)
		api.GET("/performance-data", s.performanceDataHandler)
		api.GET("/performance/realtime", s.performanceRealtimeHandler)
		api.GET("/performance/agents", s.performanceAgentsHandler)

		api.POST("/start-automation", s.startAutomationHandler)
		api.POST("/stop-automation", s.stopAutomationHandler)
		api.POST("/reset-stats", s.resetStatsHandler)
		api.POST("/env/update", s.envUpdateHandler)
	}
	return r
}

// corsMiddleware allows any origin; the dashboard is served from a
// different host in every deployment.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
