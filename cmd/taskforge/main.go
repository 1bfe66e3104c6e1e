// TaskForge orchestrator server — drives work-tracker issues through the
// multi-agent pipeline and serves the HTTP control surface.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/taskforge/taskforge/pkg/agent"
	"github.com/taskforge/taskforge/pkg/api"
	"github.com/taskforge/taskforge/pkg/config"
	"github.com/taskforge/taskforge/pkg/database"
	"github.com/taskforge/taskforge/pkg/lint"
	"github.com/taskforge/taskforge/pkg/llm"
	"github.com/taskforge/taskforge/pkg/metrics"
	"github.com/taskforge/taskforge/pkg/pipeline"
	"github.com/taskforge/taskforge/pkg/prompt"
	"github.com/taskforge/taskforge/pkg/quality"
	"github.com/taskforge/taskforge/pkg/repo"
	"github.com/taskforge/taskforge/pkg/telemetry"
	"github.com/taskforge/taskforge/pkg/tracker"
	"github.com/taskforge/taskforge/pkg/version"
)

func main() {
	envPath := flag.String("env", ".env", "Path to the .env file")
	agentsPath := flag.String("agents", "", "Path to an optional agents.yaml overlay")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envPath, "error", err)
	}

	settings, err := config.LoadSettings()
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
		os.Exit(1)
	}
	setupLogging(settings.LogLevel)
	slog.Info("Starting TaskForge", "version", version.Full(), "addr", settings.ListenAddr)

	var userAgentsYAML []byte
	if *agentsPath != "" {
		userAgentsYAML, err = os.ReadFile(*agentsPath)
		if err != nil {
			slog.Error("Failed to read agents overlay", "path", *agentsPath, "error", err)
			os.Exit(1)
		}
	}
	agentsCfg, err := config.LoadAgentsConfig(userAgentsYAML)
	if err != nil {
		slog.Error("Failed to load agents config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// The database is optional: without it the in-memory store keeps the
	// pipeline fully functional, minus durable daily metrics.
	var store metrics.Store = metrics.NewMemoryStore()
	var dbClient *database.Client
	if os.Getenv("DB_HOST") != "" {
		dbClient, err = database.NewClient(ctx, database.Config{
			Host:     settings.Database.Host,
			Port:     settings.Database.Port,
			User:     settings.Database.User,
			Password: settings.Database.Password,
			Database: settings.Database.Database,
			SSLMode:  settings.Database.SSLMode,
		})
		if err != nil {
			slog.Warn("Database unavailable, falling back to in-memory metrics", "error", err)
		} else {
			defer func() {
				if err := dbClient.Close(); err != nil {
					slog.Error("Error closing database client", "error", err)
				}
			}()
			store = metrics.NewPostgresStore(dbClient)
			slog.Info("Connected to PostgreSQL database")
		}
	}

	tel := telemetry.New(store)
	llmClient := llm.NewHTTPClient(agentsCfg)
	prompts := prompt.NewRegistry()
	memory := agent.NewProjectMemory()

	var lintPort lint.Port
	if settings.LintBaseURL != "" {
		lintPort = lint.NewClient(settings.LintBaseURL)
	}
	var qualityPort quality.Port
	if settings.QualityBaseURL != "" {
		qualityPort = quality.NewClient(settings.QualityBaseURL, settings.QualityProject, settings.QualityToken)
	}

	agentModels := make(map[string]string, len(agentsCfg.Agents))
	for name, cfg := range agentsCfg.Agents {
		agentModels[name] = cfg.Model
	}
	agentModels["rebuilder"] = agentsCfg.ForAgent(config.AgentDeveloper).Model

	pipe := pipeline.New(pipeline.Options{
		Settings:  settings,
		Planner:   agent.NewPlanner(llmClient, prompts, settings.ScoreThreshold),
		Assembler: agent.NewAssembler(llmClient, prompts),
		Developer: agent.NewDeveloper(llmClient, prompts, memory, settings.DevParallelism, settings.StagingDir),
		Reviewer:  agent.NewReviewer(llmClient, prompts, lintPort, store, settings.ReviewThreshold),
		Tracker: tracker.NewClient(settings.TrackerBaseURL, settings.TrackerEmail, settings.TrackerToken),
		Repo: repo.NewClient(settings.RepoBaseURL, settings.RepoOwner, settings.RepoName,
			settings.RepoToken, settings.DefaultBranch),
		Quality:     qualityPort,
		Telemetry:   tel,
		AgentModels: agentModels,
	})
	session := pipeline.NewSession(pipe)

	server := api.NewServer(settings, agentsCfg, session, pipe.Gate(), tel, store, dbClient)
	httpServer := &http.Server{
		Addr:         settings.ListenAddr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", settings.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	session.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	slog.Info("Shutdown complete")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
