// Package quality adapts the external code-quality service and computes
// the composite 0-100 quality score recorded after the last issue.
package quality

import (
	"context"
	"errors"

	"github.com/taskforge/taskforge/pkg/models"
)

// ErrUnavailable indicates the quality service could not be reached.
var ErrUnavailable = errors.New("quality service unavailable")

// PullRequest identifies a PR known to the quality service.
type PullRequest struct {
	Key       string `json:"key"`
	Title     string `json:"title"`
	Branch    string `json:"branch"`
	UpdatedAt string `json:"updated_at"`
}

// IssueCounts are the per-type finding counts on a PR.
type IssueCounts struct {
	Bugs             int
	Vulnerabilities  int
	CodeSmells       int
	SecurityHotspots int
}

// Measures are the metric values used by the score formula.
type Measures struct {
	SqaleRating           float64
	ReliabilityRating     float64
	SecurityRating        float64
	Coverage              float64
	DuplicatedLinesDensity float64
	AlertStatus           string
}

// Port is the quality-service capability interface.
type Port interface {
	LatestPR(ctx context.Context) (*PullRequest, error)
	Issues(ctx context.Context, prKey string) (IssueCounts, error)
	Measures(ctx context.Context, project string, metricKeys []string) (Measures, error)
	PRFiles(ctx context.Context, prKey string) ([]string, error)
}

// Score combines ratings, gate status, coverage, finding counts and
// duplication into a 0-100 score:
//
//	0.5·mean((6-r)·20) + 0.3·gate + 0.2·min(100, coverage)
//	- min(50, 10·bugs + 15·vulns + 2·smells + 5·hotspots)
//	- min(20, duplicated_lines_density)
//
// clamped to [0,100] and rounded to one decimal.
func Score(m Measures, counts IssueCounts) float64 {
	ratings := (ratingScore(m.SqaleRating) + ratingScore(m.ReliabilityRating) + ratingScore(m.SecurityRating)) / 3

	var gate float64
	switch m.AlertStatus {
	case "OK":
		gate = 100
	case "WARN":
		gate = 70
	default:
		gate = 0
	}

	coverage := m.Coverage
	if coverage > 100 {
		coverage = 100
	}

	penalty := float64(10*counts.Bugs + 15*counts.Vulnerabilities + 2*counts.CodeSmells + 5*counts.SecurityHotspots)
	if penalty > 50 {
		penalty = 50
	}

	dup := m.DuplicatedLinesDensity
	if dup > 20 {
		dup = 20
	}

	score := 0.5*ratings + 0.3*gate + 0.2*coverage - penalty - dup
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return models.Round1(score)
}

// ratingScore converts a 1 (best) to 5 (worst) rating to 0-100.
func ratingScore(r float64) float64 {
	if r < 1 {
		r = 1
	}
	if r > 5 {
		r = 5
	}
	return (6 - r) * 20
}
