package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/taskforge/pkg/database"
	"github.com/taskforge/taskforge/pkg/models"
)

// PostgresStore implements Store on the shared database client.
type PostgresStore struct {
	client *database.Client
}

// NewPostgresStore wraps the database client.
func NewPostgresStore(client *database.Client) *PostgresStore {
	return &PostgresStore{client: client}
}

// RecordReview inserts one review document.
func (s *PostgresStore) RecordReview(ctx context.Context, doc models.ReviewDocument) error {
	mistakes, err := json.Marshal(doc.Mistakes)
	if err != nil {
		return fmt.Errorf("failed to encode mistakes: %w", err)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	_, err = s.client.DB().ExecContext(ctx, `
		INSERT INTO reviews (
			id, issue_key, agent_id, iteration,
			completeness_score, security_score, standards_score, lint_score,
			overall_score, approved, mistakes, tokens_used, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		uuid.NewString(), doc.IssueKey, doc.AgentID, doc.Iteration,
		doc.Completeness, doc.Security, doc.Standards, doc.Lint,
		doc.Overall, doc.Approved, mistakes, doc.TokensUsed, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert review: %w", err)
	}
	return nil
}

// UpsertDaily applies an additive delta to the day's row and, when the
// delta names an agent, to that agent's activity row.
func (s *PostgresStore) UpsertDaily(ctx context.Context, date string, delta models.MetricsDelta) error {
	tx, err := s.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var qualityDelta float64
	var scoreIncrement int
	if delta.QualityScore != nil {
		qualityDelta = *delta.QualityScore
		scoreIncrement = 1
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_metrics (
			date, tasks_completed, pull_requests_created, tokens_consumed,
			total_quality_score, num_scores, success_count, failure_count, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (date) DO UPDATE SET
			tasks_completed       = daily_metrics.tasks_completed + EXCLUDED.tasks_completed,
			pull_requests_created = daily_metrics.pull_requests_created + EXCLUDED.pull_requests_created,
			tokens_consumed       = daily_metrics.tokens_consumed + EXCLUDED.tokens_consumed,
			total_quality_score   = daily_metrics.total_quality_score + EXCLUDED.total_quality_score,
			num_scores            = daily_metrics.num_scores + EXCLUDED.num_scores,
			success_count         = daily_metrics.success_count + EXCLUDED.success_count,
			failure_count         = daily_metrics.failure_count + EXCLUDED.failure_count,
			last_updated          = now()`,
		date, delta.TasksCompleted, delta.PullRequestsCreated, delta.TokensConsumed,
		qualityDelta, scoreIncrement, delta.SuccessCount, delta.FailureCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily metrics: %w", err)
	}

	if delta.Agent != "" {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO daily_agent_activities (date, agent, tasks_completed, tokens_used, llm_model_used)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (date, agent) DO UPDATE SET
				tasks_completed = daily_agent_activities.tasks_completed + EXCLUDED.tasks_completed,
				tokens_used     = daily_agent_activities.tokens_used + EXCLUDED.tokens_used,
				llm_model_used  = CASE WHEN EXCLUDED.llm_model_used <> ''
					THEN EXCLUDED.llm_model_used
					ELSE daily_agent_activities.llm_model_used END`,
			date, delta.Agent, delta.AgentTasks, delta.AgentTokens, delta.AgentModel,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert agent activity: %w", err)
		}
	}

	return tx.Commit()
}

// GetDaily returns one day's document with agent activities attached.
func (s *PostgresStore) GetDaily(ctx context.Context, date string) (*models.DailyMetrics, error) {
	day := &models.DailyMetrics{Date: date, AgentActivities: make(map[string]models.AgentActivity)}
	var lastUpdated time.Time
	err := s.client.DB().QueryRowContext(ctx, `
		SELECT tasks_completed, pull_requests_created, tokens_consumed,
			total_quality_score, num_scores, success_count, failure_count, last_updated
		FROM daily_metrics WHERE date = $1`, date,
	).Scan(
		&day.TasksCompleted, &day.PullRequestsCreated, &day.TokensConsumed,
		&day.TotalQualityScore, &day.NumScores, &day.SuccessCount, &day.FailureCount, &lastUpdated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query daily metrics: %w", err)
	}
	day.CodeQualityScores = meanQuality(day.TotalQualityScore, day.NumScores)
	day.LastUpdated = lastUpdated.UTC().Format(time.RFC3339)

	if err := s.loadAgentActivities(ctx, day); err != nil {
		return nil, err
	}
	return day, nil
}

func (s *PostgresStore) loadAgentActivities(ctx context.Context, day *models.DailyMetrics) error {
	rows, err := s.client.DB().QueryContext(ctx, `
		SELECT agent, tasks_completed, tokens_used, llm_model_used
		FROM daily_agent_activities WHERE date = $1`, day.Date)
	if err != nil {
		return fmt.Errorf("failed to query agent activities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var agent string
		var activity models.AgentActivity
		if err := rows.Scan(&agent, &activity.TasksCompleted, &activity.TokensUsed, &activity.LLMModelUsed); err != nil {
			return fmt.Errorf("failed to scan agent activity: %w", err)
		}
		day.AgentActivities[agent] = activity
	}
	return rows.Err()
}

// GetLastNDays returns up to n most recent documents, newest first.
func (s *PostgresStore) GetLastNDays(ctx context.Context, n int) ([]models.DailyMetrics, error) {
	rows, err := s.client.DB().QueryContext(ctx, `
		SELECT date FROM daily_metrics ORDER BY date DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent days: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, err
		}
		dates = append(dates, date)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.DailyMetrics, 0, len(dates))
	for _, date := range dates {
		day, err := s.GetDaily(ctx, date)
		if err != nil {
			return nil, err
		}
		out = append(out, *day)
	}
	return out, nil
}

// GetAgentsSummary aggregates agent activity across all stored days.
func (s *PostgresStore) GetAgentsSummary(ctx context.Context) ([]models.AgentSummary, error) {
	var success, failure int
	err := s.client.DB().QueryRowContext(ctx, `
		SELECT COALESCE(SUM(success_count), 0), COALESCE(SUM(failure_count), 0)
		FROM daily_metrics`).Scan(&success, &failure)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	rate := 100.0
	if success+failure > 0 {
		rate = models.Round1(100 * float64(success) / float64(success+failure))
	}

	rows, err := s.client.DB().QueryContext(ctx, `
		SELECT agent, SUM(tasks_completed), SUM(tokens_used),
			(SELECT a2.llm_model_used FROM daily_agent_activities a2
			 WHERE a2.agent = a.agent AND a2.llm_model_used <> ''
			 ORDER BY a2.date DESC LIMIT 1)
		FROM daily_agent_activities a
		GROUP BY agent ORDER BY agent`)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent summary: %w", err)
	}
	defer rows.Close()

	var out []models.AgentSummary
	for rows.Next() {
		var summary models.AgentSummary
		var model sql.NullString
		if err := rows.Scan(&summary.Agent, &summary.Tasks, &summary.Tokens, &model); err != nil {
			return nil, err
		}
		summary.Model = model.String
		summary.SuccessRate = rate
		out = append(out, summary)
	}
	return out, rows.Err()
}
