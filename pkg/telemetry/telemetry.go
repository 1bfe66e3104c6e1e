// Package telemetry owns the in-process pipeline counters and the bounded
// activity ring surfaced by the control surface. Durable daily aggregates
// flow through the metrics store; persistence failures are logged only.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/taskforge/pkg/metrics"
	"github.com/taskforge/taskforge/pkg/models"
)

// activityRingSize bounds the retained activity events.
const activityRingSize = 50

// Stats is a snapshot of the in-process counters.
type Stats struct {
	WorkflowsExecuted int            `json:"workflows_executed"`
	IssuesProcessed   int            `json:"issues_processed"`
	PRsCreated        int            `json:"code_prs_created"`
	TokensUsed        int            `json:"tokens_used"`
	AgentTokens       map[string]int `json:"agent_tokens"`
	RebuildCycles     int            `json:"rebuild_cycles"`
	SuccessfulReviews int            `json:"successful_reviews"`
	TasksCompleted    int            `json:"tasks_completed"`
	TasksFailed       int            `json:"tasks_failed"`
	Errors            int            `json:"errors"`
	AvgQualityScore   float64        `json:"avg_quality_score"`
}

// Telemetry aggregates counters and activity under a single mutex.
// Critical sections are O(1) updates; it is safe for concurrent use.
type Telemetry struct {
	mu           sync.Mutex
	stats        Stats
	qualitySum   float64
	qualityCount int
	ring         []models.ActivityEvent
	store        metrics.Store
}

// New builds a Telemetry over the given metrics store. A nil store
// disables durable daily updates.
func New(store metrics.Store) *Telemetry {
	return &Telemetry{
		stats: Stats{AgentTokens: make(map[string]int)},
		store: store,
	}
}

// LogActivity appends an event at the front of the ring, evicting the
// oldest entry beyond the bound.
func (t *Telemetry) LogActivity(agent, action, details string, status models.ActivityStatus, issueID string, payload map[string]any) {
	event := models.ActivityEvent{
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Agent:     agent,
		Action:    action,
		Details:   details,
		Status:    status,
		IssueID:   issueID,
		Payload:   payload,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.ring = append([]models.ActivityEvent{event}, t.ring...)
	if len(t.ring) > activityRingSize {
		t.ring = t.ring[:activityRingSize]
	}
}

// Activity returns a copy of the ring, newest first.
func (t *Telemetry) Activity() []models.ActivityEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.ActivityEvent, len(t.ring))
	copy(out, t.ring)
	return out
}

// Update applies a mutation to the counters under the lock.
func (t *Telemetry) Update(fn func(*Stats)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.stats)
}

// AddTokens accrues tokens to an agent's sub-total and the global total.
func (t *Telemetry) AddTokens(agent string, tokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.TokensUsed += tokens
	t.stats.AgentTokens[agent] += tokens
}

// RecordQualityScore folds one quality score into the running average.
func (t *Telemetry) RecordQualityScore(score float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.qualitySum += score
	t.qualityCount++
}

// Snapshot returns a copy of the current counters.
func (t *Telemetry) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.stats
	out.AgentTokens = make(map[string]int, len(t.stats.AgentTokens))
	for agent, tokens := range t.stats.AgentTokens {
		out.AgentTokens[agent] = tokens
	}
	if t.qualityCount > 0 {
		out.AvgQualityScore = models.Round1(t.qualitySum / float64(t.qualityCount))
	}
	return out
}

// Reset zeroes all counters and clears the activity ring.
func (t *Telemetry) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = Stats{AgentTokens: make(map[string]int)}
	t.qualitySum = 0
	t.qualityCount = 0
	t.ring = nil
}

// EmitDaily writes a durable daily-metrics delta for today. Failures are
// logged, never fatal.
func (t *Telemetry) EmitDaily(ctx context.Context, delta models.MetricsDelta) {
	if t.store == nil {
		return
	}
	date := time.Now().UTC().Format("2006-01-02")
	if err := t.store.UpsertDaily(ctx, date, delta); err != nil {
		slog.Warn("failed to persist daily metrics", "date", date, "error", err)
	}
}
