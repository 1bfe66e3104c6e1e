package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/taskforge/pkg/models"
)

func TestUpsertDailyAccumulates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	q1 := 88.0
	require.NoError(t, s.UpsertDaily(ctx, "2026-08-24", models.MetricsDelta{
		TasksCompleted: 1, PullRequestsCreated: 1, TokensConsumed: 1200,
		SuccessCount: 1, QualityScore: &q1,
		Agent: "developer", AgentTasks: 1, AgentTokens: 800, AgentModel: "gpt-4o",
	}))
	q2 := 92.0
	require.NoError(t, s.UpsertDaily(ctx, "2026-08-24", models.MetricsDelta{
		TasksCompleted: 1, TokensConsumed: 500, QualityScore: &q2,
		Agent: "developer", AgentTasks: 1, AgentTokens: 300,
	}))

	day, err := s.GetDaily(ctx, "2026-08-24")
	require.NoError(t, err)
	assert.Equal(t, 2, day.TasksCompleted)
	assert.Equal(t, 1, day.PullRequestsCreated)
	assert.Equal(t, 1700, day.TokensConsumed)
	assert.Equal(t, 2, day.NumScores)
	assert.Equal(t, 90.0, day.CodeQualityScores)

	dev := day.AgentActivities["developer"]
	assert.Equal(t, 2, dev.TasksCompleted)
	assert.Equal(t, 1100, dev.TokensUsed)
	// Last non-empty model wins.
	assert.Equal(t, "gpt-4o", dev.LLMModelUsed)
}

func TestUpsertDailyZeroDeltaIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.UpsertDaily(ctx, "2026-08-24", models.MetricsDelta{TasksCompleted: 3}))
	before, err := s.GetDaily(ctx, "2026-08-24")
	require.NoError(t, err)

	require.NoError(t, s.UpsertDaily(ctx, "2026-08-24", models.MetricsDelta{}))
	after, err := s.GetDaily(ctx, "2026-08-24")
	require.NoError(t, err)

	assert.Equal(t, before.TasksCompleted, after.TasksCompleted)
	assert.Equal(t, before.NumScores, after.NumScores)
	assert.Equal(t, before.TokensConsumed, after.TokensConsumed)
}

func TestGetDailyNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetDaily(context.Background(), "1999-01-01")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetLastNDaysNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, date := range []string{"2026-08-20", "2026-08-22", "2026-08-21"} {
		require.NoError(t, s.UpsertDaily(ctx, date, models.MetricsDelta{TasksCompleted: 1}))
	}

	days, err := s.GetLastNDays(ctx, 2)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "2026-08-22", days[0].Date)
	assert.Equal(t, "2026-08-21", days[1].Date)
}

func TestGetAgentsSummary(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.UpsertDaily(ctx, "2026-08-23", models.MetricsDelta{
		SuccessCount: 3, Agent: "planner", AgentTasks: 3, AgentTokens: 900, AgentModel: "gpt-4o",
	}))
	require.NoError(t, s.UpsertDaily(ctx, "2026-08-24", models.MetricsDelta{
		SuccessCount: 1, FailureCount: 1, Agent: "planner", AgentTasks: 2, AgentTokens: 600, AgentModel: "gpt-4o-mini",
	}))

	summaries, err := s.GetAgentsSummary(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "planner", summaries[0].Agent)
	assert.Equal(t, 5, summaries[0].Tasks)
	assert.Equal(t, 1500, summaries[0].Tokens)
	assert.Equal(t, "gpt-4o-mini", summaries[0].Model)
	assert.Equal(t, 80.0, summaries[0].SuccessRate)
}

func TestRecordReview(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.RecordReview(context.Background(), models.ReviewDocument{
		IssueKey: "DEMO-1", AgentID: "001", Iteration: 1, Overall: 93.2, Approved: true,
	}))
	reviews := s.Reviews()
	require.Len(t, reviews, 1)
	assert.Equal(t, "001", reviews[0].AgentID)
}
