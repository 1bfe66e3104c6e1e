package metrics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/taskforge/taskforge/pkg/models"
)

// MemoryStore is the in-process Store used when no database is configured
// and by tests. Semantics match the Postgres store.
type MemoryStore struct {
	mu      sync.Mutex
	days    map[string]*models.DailyMetrics
	reviews []models.ReviewDocument
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{days: make(map[string]*models.DailyMetrics)}
}

// RecordReview appends a review document.
func (s *MemoryStore) RecordReview(_ context.Context, doc models.ReviewDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews = append(s.reviews, doc)
	return nil
}

// Reviews returns a copy of the stored review documents.
func (s *MemoryStore) Reviews() []models.ReviewDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ReviewDocument, len(s.reviews))
	copy(out, s.reviews)
	return out
}

// UpsertDaily applies an additive delta to the day's document.
func (s *MemoryStore) UpsertDaily(_ context.Context, date string, delta models.MetricsDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	day, ok := s.days[date]
	if !ok {
		day = &models.DailyMetrics{
			Date:            date,
			AgentActivities: make(map[string]models.AgentActivity),
		}
		s.days[date] = day
	}

	day.TasksCompleted += delta.TasksCompleted
	day.PullRequestsCreated += delta.PullRequestsCreated
	day.TokensConsumed += delta.TokensConsumed
	day.SuccessCount += delta.SuccessCount
	day.FailureCount += delta.FailureCount
	if delta.QualityScore != nil {
		day.TotalQualityScore += *delta.QualityScore
		day.NumScores++
	}
	if delta.Agent != "" {
		activity := day.AgentActivities[delta.Agent]
		activity.TasksCompleted += delta.AgentTasks
		activity.TokensUsed += delta.AgentTokens
		if delta.AgentModel != "" {
			activity.LLMModelUsed = delta.AgentModel
		}
		day.AgentActivities[delta.Agent] = activity
	}
	day.CodeQualityScores = meanQuality(day.TotalQualityScore, day.NumScores)
	day.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	return nil
}

// GetDaily returns one day's document.
func (s *MemoryStore) GetDaily(_ context.Context, date string) (*models.DailyMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day, ok := s.days[date]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *day
	cp.AgentActivities = make(map[string]models.AgentActivity, len(day.AgentActivities))
	for k, v := range day.AgentActivities {
		cp.AgentActivities[k] = v
	}
	return &cp, nil
}

// GetLastNDays returns up to n most recent documents, newest first.
func (s *MemoryStore) GetLastNDays(_ context.Context, n int) ([]models.DailyMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dates := make([]string, 0, len(s.days))
	for date := range s.days {
		dates = append(dates, date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if len(dates) > n {
		dates = dates[:n]
	}

	out := make([]models.DailyMetrics, 0, len(dates))
	for _, date := range dates {
		out = append(out, *s.days[date])
	}
	return out, nil
}

// GetAgentsSummary aggregates agent activity across all stored days.
func (s *MemoryStore) GetAgentsSummary(_ context.Context) ([]models.AgentSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var success, failure int
	byAgent := make(map[string]*models.AgentSummary)
	dates := make([]string, 0, len(s.days))
	for date := range s.days {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	for _, date := range dates {
		day := s.days[date]
		success += day.SuccessCount
		failure += day.FailureCount
		for agent, activity := range day.AgentActivities {
			summary, ok := byAgent[agent]
			if !ok {
				summary = &models.AgentSummary{Agent: agent}
				byAgent[agent] = summary
			}
			summary.Tasks += activity.TasksCompleted
			summary.Tokens += activity.TokensUsed
			if activity.LLMModelUsed != "" {
				summary.Model = activity.LLMModelUsed
			}
		}
	}

	rate := 100.0
	if success+failure > 0 {
		rate = models.Round1(100 * float64(success) / float64(success+failure))
	}

	names := make([]string, 0, len(byAgent))
	for name := range byAgent {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]models.AgentSummary, 0, len(names))
	for _, name := range names {
		summary := byAgent[name]
		summary.SuccessRate = rate
		out = append(out, *summary)
	}
	return out, nil
}
