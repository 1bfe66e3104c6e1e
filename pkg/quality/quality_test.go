package quality

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		m      Measures
		counts IssueCounts
		want   float64
	}{
		{
			name: "perfect project",
			m: Measures{
				SqaleRating: 1, ReliabilityRating: 1, SecurityRating: 1,
				Coverage: 100, AlertStatus: "OK",
			},
			want: 100,
		},
		{
			name: "warn gate with findings",
			// ratings mean: ((6-2)*20 + (6-1)*20 + (6-3)*20)/3 = 80
			// 0.5*80 + 0.3*70 + 0.2*50 = 71; penalty 10*1+2*5 = 20; dup 4
			m: Measures{
				SqaleRating: 2, ReliabilityRating: 1, SecurityRating: 3,
				Coverage: 50, DuplicatedLinesDensity: 4, AlertStatus: "WARN",
			},
			counts: IssueCounts{Bugs: 1, CodeSmells: 5},
			want:   47,
		},
		{
			name: "penalty capped at 50",
			m: Measures{
				SqaleRating: 1, ReliabilityRating: 1, SecurityRating: 1,
				Coverage: 100, AlertStatus: "OK",
			},
			counts: IssueCounts{Bugs: 10, Vulnerabilities: 10},
			want:   50,
		},
		{
			name: "duplication capped at 20",
			m: Measures{
				SqaleRating: 1, ReliabilityRating: 1, SecurityRating: 1,
				Coverage: 100, DuplicatedLinesDensity: 35, AlertStatus: "OK",
			},
			want: 80,
		},
		{
			name: "clamped at zero",
			m: Measures{
				SqaleRating: 5, ReliabilityRating: 5, SecurityRating: 5,
				Coverage: 0, DuplicatedLinesDensity: 20, AlertStatus: "ERROR",
			},
			counts: IssueCounts{Bugs: 5},
			want:   0,
		},
		{
			name: "coverage capped at 100",
			m: Measures{
				SqaleRating: 1, ReliabilityRating: 1, SecurityRating: 1,
				Coverage: 120, AlertStatus: "OK",
			},
			want: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.m, tt.counts))
		})
	}
}

func TestClientMeasuresAndIssues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/measures/component":
			json.NewEncoder(w).Encode(map[string]any{
				"component": map[string]any{
					"measures": []map[string]any{
						{"metric": "sqale_rating", "value": "2.0"},
						{"metric": "coverage", "value": "83.5"},
						{"metric": "alert_status", "value": "OK"},
					},
				},
			})
		case "/api/issues/search":
			json.NewEncoder(w).Encode(map[string]any{
				"facets": []map[string]any{
					{
						"property": "types",
						"values": []map[string]any{
							{"val": "BUG", "count": 2},
							{"val": "CODE_SMELL", "count": 7},
						},
					},
				},
			})
		case "/api/project_pull_requests/list":
			json.NewEncoder(w).Encode(map[string]any{
				"pullRequests": []map[string]any{
					{"key": "1", "title": "old", "branch": "b1", "analysisDate": "2026-08-01"},
					{"key": "2", "title": "new", "branch": "b2", "analysisDate": "2026-08-20"},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "widget", "token")
	ctx := context.Background()

	m, err := c.Measures(ctx, "widget", MetricKeys)
	require.NoError(t, err)
	assert.Equal(t, 2.0, m.SqaleRating)
	assert.Equal(t, 83.5, m.Coverage)
	assert.Equal(t, "OK", m.AlertStatus)

	counts, err := c.Issues(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Bugs)
	assert.Equal(t, 7, counts.CodeSmells)

	pr, err := c.LatestPR(ctx)
	require.NoError(t, err)
	require.NotNil(t, pr)
	assert.Equal(t, "2", pr.Key)
}

func TestClientUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "widget", "token")
	_, err := c.LatestPR(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}
