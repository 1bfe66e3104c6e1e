package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// stopGrace is the maximum time Stop waits for the runner to finish.
const stopGrace = 5 * time.Second

// SessionStatus represents the current state of the automation session.
type SessionStatus string

// Session status constants.
const (
	SessionStatusIdle    SessionStatus = "idle"
	SessionStatusRunning SessionStatus = "running"
)

// Session owns the single background automation runner. One pipeline run
// executes at a time; Start while running is a no-op and Stop joins the
// runner within a bounded grace period.
type Session struct {
	pipeline *Pipeline

	mu       sync.Mutex
	status   SessionStatus
	cancel   context.CancelFunc
	done     chan struct{}
	lastRun  time.Time
	runCount int
}

// NewSession builds an idle session over the given pipeline.
func NewSession(p *Pipeline) *Session {
	return &Session{pipeline: p, status: SessionStatusIdle}
}

// Start launches one automation run in the background. It is idempotent:
// a second Start while running reports false and changes nothing.
func (s *Session) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == SessionStatusRunning {
		return false
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.status = SessionStatusRunning
	s.cancel = cancel
	s.done = done
	s.lastRun = time.Now().UTC()
	s.runCount++

	go func() {
		defer close(done)
		defer cancel()
		if _, err := s.pipeline.Run(runCtx); err != nil {
			slog.Error("automation run failed", "error", err)
		}
		s.mu.Lock()
		s.status = SessionStatusIdle
		s.mu.Unlock()
	}()

	slog.Info("automation session started")
	return true
}

// Stop cancels the current run and waits for the runner to exit, up to
// the grace period. It is safe to call when idle and to call repeatedly.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()

	select {
	case <-done:
		slog.Info("automation session stopped")
	case <-time.After(stopGrace):
		slog.Warn("automation session did not stop within grace period")
	}
}

// Status returns the session state.
func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Runs returns how many runs have been started.
func (s *Session) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runCount
}

// LastRun returns when the most recent run started; zero when never run.
func (s *Session) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}
