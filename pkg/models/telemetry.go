package models

import "time"

// ActivityStatus classifies an activity event.
type ActivityStatus string

const (
	ActivityInfo     ActivityStatus = "info"
	ActivityStarting ActivityStatus = "starting"
	ActivitySuccess  ActivityStatus = "success"
	ActivityWarning  ActivityStatus = "warning"
	ActivityError    ActivityStatus = "error"
)

// ActivityEvent is one bounded, newest-first log record surfaced to the
// control surface.
type ActivityEvent struct {
	EventID   string         `json:"event_id"`
	Timestamp time.Time      `json:"timestamp"`
	Agent     string         `json:"agent"`
	Action    string         `json:"action"`
	Details   string         `json:"details,omitempty"`
	Status    ActivityStatus `json:"status"`
	IssueID   string         `json:"issue_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// AgentActivity is the per-agent slice of a daily metrics document.
// Field names match the persisted document layout.
type AgentActivity struct {
	TasksCompleted int    `json:"Task_completed"`
	LLMModelUsed   string `json:"LLM_model_used"`
	TokensUsed     int    `json:"tokens_used"`
}

// DailyMetrics is the per-calendar-day aggregate maintained in the metrics
// store. Monotonic within a day; a new day writes a new document.
type DailyMetrics struct {
	Date                string                   `json:"date"`
	TasksCompleted      int                      `json:"tasks_completed"`
	PullRequestsCreated int                      `json:"pull_requests_created"`
	TokensConsumed      int                      `json:"tokens_consumed"`
	CodeQualityScores   float64                  `json:"code_quality_scores"`
	NumScores           int                      `json:"num_scores"`
	TotalQualityScore   float64                  `json:"total_quality_score"`
	SuccessCount        int                      `json:"success_count"`
	FailureCount        int                      `json:"failure_count"`
	AgentActivities     map[string]AgentActivity `json:"agent_activities"`
	LastUpdated         string                   `json:"last_updated"`
}

// MetricsDelta is one additive daily-metrics update. Idempotent at zero:
// applying an all-zero delta leaves the document unchanged.
type MetricsDelta struct {
	TasksCompleted      int
	PullRequestsCreated int
	TokensConsumed      int
	QualityScore        *float64
	SuccessCount        int
	FailureCount        int
	Agent               string
	AgentTasks          int
	AgentTokens         int
	AgentModel          string
}

// AgentSummary is the per-agent aggregate served by the control surface.
type AgentSummary struct {
	Agent       string  `json:"agent"`
	Tasks       int     `json:"tasks"`
	Tokens      int     `json:"tokens"`
	SuccessRate float64 `json:"success_rate"`
	Model       string  `json:"model"`
}

// ReviewDocument is the persisted record of one review pass.
type ReviewDocument struct {
	IssueKey     string    `json:"issue_key"`
	AgentID      string    `json:"agent_id"`
	Iteration    int       `json:"iteration"`
	Completeness float64   `json:"completeness_score"`
	Security     float64   `json:"security_score"`
	Standards    float64   `json:"standards_score"`
	Lint         float64   `json:"lint_score"`
	Overall      float64   `json:"overall_score"`
	Approved     bool      `json:"approved"`
	Mistakes     []string  `json:"mistakes,omitempty"`
	TokensUsed   int       `json:"tokens_used"`
	CreatedAt    time.Time `json:"created_at"`
}
