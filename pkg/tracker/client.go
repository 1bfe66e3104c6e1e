package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/taskforge/taskforge/pkg/models"
)

// Client is the Jira-flavored REST adapter implementing Port.
type Client struct {
	baseURL    string
	email      string
	token      string
	httpClient *http.Client
}

// NewClient builds a tracker client. baseURL is the site root, e.g.
// "https://example.atlassian.net".
func NewClient(baseURL, email, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		email:      email,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type searchResponse struct {
	Issues []struct {
		Key    string `json:"key"`
		Fields struct {
			Summary     string `json:"summary"`
			Description any    `json:"description"`
			Status      struct {
				Name string `json:"name"`
			} `json:"status"`
			Priority struct {
				Name string `json:"name"`
			} `json:"priority"`
			IssueType struct {
				Name string `json:"name"`
			} `json:"issuetype"`
			Labels  []string `json:"labels"`
			Created string   `json:"created"`
			Updated string   `json:"updated"`
		} `json:"fields"`
	} `json:"issues"`
}

// ListTodo returns the project's "To Do" issues in tracker order.
func (c *Client) ListTodo(ctx context.Context, project string) ([]models.Issue, error) {
	jql := fmt.Sprintf(`project = %s AND status = "To Do" ORDER BY created ASC`, project)
	endpoint := fmt.Sprintf("%s/rest/api/3/search?jql=%s&maxResults=50", c.baseURL, url.QueryEscape(jql))

	var parsed searchResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &parsed); err != nil {
		return nil, fmt.Errorf("%w: list todo: %v", ErrUnavailable, err)
	}

	issues := make([]models.Issue, 0, len(parsed.Issues))
	for _, raw := range parsed.Issues {
		issue := models.Issue{
			Key:         raw.Key,
			Title:       raw.Fields.Summary,
			Description: FlattenDescription(raw.Fields.Description),
			Status:      raw.Fields.Status.Name,
			Priority:    raw.Fields.Priority.Name,
			Type:        raw.Fields.IssueType.Name,
			Labels:      raw.Fields.Labels,
		}
		if t, err := time.Parse("2006-01-02T15:04:05.000-0700", raw.Fields.Created); err == nil {
			issue.Created = t
		}
		if t, err := time.Parse("2006-01-02T15:04:05.000-0700", raw.Fields.Updated); err == nil {
			issue.Updated = t
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

type transitionsResponse struct {
	Transitions []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"transitions"`
}

// Transition moves an issue through the named workflow transition. The
// transition id is resolved by case-insensitive name lookup.
func (c *Client) Transition(ctx context.Context, issueKey, transitionName string) error {
	endpoint := fmt.Sprintf("%s/rest/api/3/issue/%s/transitions", c.baseURL, url.PathEscape(issueKey))

	var available transitionsResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &available); err != nil {
		return fmt.Errorf("%w: list transitions for %s: %v", ErrUnavailable, issueKey, err)
	}

	var id string
	for _, t := range available.Transitions {
		if strings.EqualFold(t.Name, transitionName) {
			id = t.ID
			break
		}
	}
	if id == "" {
		return fmt.Errorf("issue %s has no transition named %q", issueKey, transitionName)
	}

	body := map[string]any{"transition": map[string]string{"id": id}}
	if err := c.do(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return fmt.Errorf("%w: transition %s to %s: %v", ErrUnavailable, issueKey, transitionName, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.email, c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(data, 200))
	}
	if out != nil && len(data) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
