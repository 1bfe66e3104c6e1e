// Package metrics persists review documents and daily aggregate metrics.
// The Store interface is the metrics port consumed by the pipeline; the
// Postgres implementation backs it in production and MemoryStore stands in
// when no database is configured.
package metrics

import (
	"context"
	"errors"

	"github.com/taskforge/taskforge/pkg/models"
)

// ErrNotFound indicates the requested document does not exist.
var ErrNotFound = errors.New("metrics document not found")

// Store is the metrics port. Daily updates are idempotent per (date,
// agent): increments are additive, the last-written model id wins, and
// quality is kept as running sum/count for exact averaging.
type Store interface {
	RecordReview(ctx context.Context, doc models.ReviewDocument) error
	UpsertDaily(ctx context.Context, date string, delta models.MetricsDelta) error
	GetDaily(ctx context.Context, date string) (*models.DailyMetrics, error)
	GetLastNDays(ctx context.Context, n int) ([]models.DailyMetrics, error)
	GetAgentsSummary(ctx context.Context) ([]models.AgentSummary, error)
}

// meanQuality derives the rolling average from the running sum and count.
func meanQuality(total float64, num int) float64 {
	if num == 0 {
		return 0
	}
	return models.Round1(total / float64(num))
}
