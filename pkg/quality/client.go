package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// MetricKeys are the measures requested for the score formula.
var MetricKeys = []string{
	"sqale_rating", "reliability_rating", "security_rating",
	"coverage", "duplicated_lines_density", "alert_status",
}

// Client is the SonarQube-flavored REST adapter implementing Port.
type Client struct {
	baseURL    string
	project    string
	token      string
	httpClient *http.Client
}

// NewClient builds a quality client for one project.
func NewClient(baseURL, project, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		project:    project,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// LatestPR returns the most recently analyzed pull request, or nil when
// the service knows none.
func (c *Client) LatestPR(ctx context.Context) (*PullRequest, error) {
	endpoint := fmt.Sprintf("%s/api/project_pull_requests/list?project=%s", c.baseURL, url.QueryEscape(c.project))
	var parsed struct {
		PullRequests []struct {
			Key        string `json:"key"`
			Title      string `json:"title"`
			Branch     string `json:"branch"`
			AnalysisDate string `json:"analysisDate"`
		} `json:"pullRequests"`
	}
	if err := c.get(ctx, endpoint, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.PullRequests) == 0 {
		return nil, nil
	}
	latest := parsed.PullRequests[0]
	for _, pr := range parsed.PullRequests[1:] {
		if pr.AnalysisDate > latest.AnalysisDate {
			latest = pr
		}
	}
	return &PullRequest{
		Key:       latest.Key,
		Title:     latest.Title,
		Branch:    latest.Branch,
		UpdatedAt: latest.AnalysisDate,
	}, nil
}

// Issues returns the per-type finding counts for a PR via the type facet.
func (c *Client) Issues(ctx context.Context, prKey string) (IssueCounts, error) {
	endpoint := fmt.Sprintf("%s/api/issues/search?componentKeys=%s&pullRequest=%s&facets=types&ps=1",
		c.baseURL, url.QueryEscape(c.project), url.QueryEscape(prKey))
	var parsed struct {
		Facets []struct {
			Property string `json:"property"`
			Values   []struct {
				Val   string `json:"val"`
				Count int    `json:"count"`
			} `json:"values"`
		} `json:"facets"`
	}
	if err := c.get(ctx, endpoint, &parsed); err != nil {
		return IssueCounts{}, err
	}

	var counts IssueCounts
	for _, facet := range parsed.Facets {
		if facet.Property != "types" {
			continue
		}
		for _, v := range facet.Values {
			switch v.Val {
			case "BUG":
				counts.Bugs = v.Count
			case "VULNERABILITY":
				counts.Vulnerabilities = v.Count
			case "CODE_SMELL":
				counts.CodeSmells = v.Count
			case "SECURITY_HOTSPOT":
				counts.SecurityHotspots = v.Count
			}
		}
	}
	return counts, nil
}

// Measures returns the requested metric values for the project.
func (c *Client) Measures(ctx context.Context, project string, metricKeys []string) (Measures, error) {
	endpoint := fmt.Sprintf("%s/api/measures/component?component=%s&metricKeys=%s",
		c.baseURL, url.QueryEscape(project), url.QueryEscape(strings.Join(metricKeys, ",")))
	var parsed struct {
		Component struct {
			Measures []struct {
				Metric string `json:"metric"`
				Value  string `json:"value"`
			} `json:"measures"`
		} `json:"component"`
	}
	if err := c.get(ctx, endpoint, &parsed); err != nil {
		return Measures{}, err
	}

	var m Measures
	for _, measure := range parsed.Component.Measures {
		switch measure.Metric {
		case "sqale_rating":
			m.SqaleRating = parseFloat(measure.Value)
		case "reliability_rating":
			m.ReliabilityRating = parseFloat(measure.Value)
		case "security_rating":
			m.SecurityRating = parseFloat(measure.Value)
		case "coverage":
			m.Coverage = parseFloat(measure.Value)
		case "duplicated_lines_density":
			m.DuplicatedLinesDensity = parseFloat(measure.Value)
		case "alert_status":
			m.AlertStatus = measure.Value
		}
	}
	return m, nil
}

// PRFiles lists the file paths touched by a PR's findings.
func (c *Client) PRFiles(ctx context.Context, prKey string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/api/issues/search?componentKeys=%s&pullRequest=%s&ps=500",
		c.baseURL, url.QueryEscape(c.project), url.QueryEscape(prKey))
	var parsed struct {
		Issues []struct {
			Component string `json:"component"`
		} `json:"issues"`
	}
	if err := c.get(ctx, endpoint, &parsed); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var paths []string
	for _, issue := range parsed.Issues {
		path := issue.Component
		if idx := strings.IndexByte(path, ':'); idx >= 0 {
			path = path[idx+1:]
		}
		if !seen[path] {
			seen[path] = true
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.SetBasicAuth(c.token, "")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return json.Unmarshal(data, out)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
