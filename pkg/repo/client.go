package repo

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is the GitHub-flavored REST adapter implementing Port.
type Client struct {
	baseURL       string
	owner         string
	repo          string
	token         string
	defaultBranch string
	httpClient    *http.Client
}

// NewClient builds a repo client. baseURL is the API root, e.g.
// "https://api.github.com".
func NewClient(baseURL, owner, repo, token, defaultBranch string) *Client {
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		owner:         owner,
		repo:          repo,
		token:         token,
		defaultBranch: defaultBranch,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

type refResponse struct {
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

// EnsureBranch creates the branch from the default branch when missing.
// An existing branch is left untouched.
func (c *Client) EnsureBranch(ctx context.Context, name string) error {
	_, status, err := c.do(ctx, http.MethodGet, c.repoPath("git/ref/heads/"+name), nil)
	if err != nil {
		return fmt.Errorf("%w: get ref %s: %v", ErrUnavailable, name, err)
	}
	if status == http.StatusOK {
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("%w: get ref %s: status %d", ErrUnavailable, name, status)
	}

	data, status, err := c.do(ctx, http.MethodGet, c.repoPath("git/ref/heads/"+c.defaultBranch), nil)
	if err != nil || status != http.StatusOK {
		return fmt.Errorf("%w: resolve default branch %s: status %d err %v", ErrUnavailable, c.defaultBranch, status, err)
	}
	var base refResponse
	if err := json.Unmarshal(data, &base); err != nil {
		return fmt.Errorf("%w: decode default branch ref: %v", ErrUnavailable, err)
	}

	body := map[string]string{"ref": "refs/heads/" + name, "sha": base.Object.SHA}
	_, status, err = c.do(ctx, http.MethodPost, c.repoPath("git/refs"), body)
	if err != nil {
		return fmt.Errorf("%w: create branch %s: %v", ErrUnavailable, name, err)
	}
	// 422 means the branch appeared between the check and the create.
	if status != http.StatusCreated && status != http.StatusUnprocessableEntity {
		return fmt.Errorf("%w: create branch %s: status %d", ErrUnavailable, name, status)
	}
	return nil
}

// PutFile creates or updates one file on the branch via the contents API.
func (c *Client) PutFile(ctx context.Context, branch, path, content string) error {
	endpoint := c.repoPath("contents/" + escapePath(path))

	var sha string
	data, status, err := c.do(ctx, http.MethodGet, endpoint+"?ref="+url.QueryEscape(branch), nil)
	if err != nil {
		return fmt.Errorf("%w: get file %s: %v", ErrUnavailable, path, err)
	}
	if status == http.StatusOK {
		var existing struct {
			SHA string `json:"sha"`
		}
		if err := json.Unmarshal(data, &existing); err == nil {
			sha = existing.SHA
		}
	}

	body := map[string]string{
		"message": "Update " + path,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
		"branch":  branch,
	}
	if sha == "" {
		body["message"] = "Add " + path
	} else {
		body["sha"] = sha
	}

	_, status, err = c.do(ctx, http.MethodPut, endpoint, body)
	if err != nil {
		return fmt.Errorf("%w: put file %s: %v", ErrUnavailable, path, err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("%w: put file %s: status %d", ErrUnavailable, path, status)
	}
	return nil
}

type prResponse struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// UpsertPR opens a PR from branch to base, or updates the existing open PR
// for that head. Returns the PR URL.
func (c *Client) UpsertPR(ctx context.Context, branch, base, title, body string) (string, error) {
	query := fmt.Sprintf("pulls?head=%s&base=%s&state=open",
		url.QueryEscape(c.owner+":"+branch), url.QueryEscape(base))
	data, status, err := c.do(ctx, http.MethodGet, c.repoPath(query), nil)
	if err != nil || status != http.StatusOK {
		return "", fmt.Errorf("%w: list prs: status %d err %v", ErrUnavailable, status, err)
	}
	var open []prResponse
	if err := json.Unmarshal(data, &open); err != nil {
		return "", fmt.Errorf("%w: decode pr list: %v", ErrUnavailable, err)
	}

	payload := map[string]string{"title": title, "body": body}
	if len(open) > 0 {
		endpoint := c.repoPath(fmt.Sprintf("pulls/%d", open[0].Number))
		data, status, err = c.do(ctx, http.MethodPatch, endpoint, payload)
		if err != nil || status != http.StatusOK {
			return "", fmt.Errorf("%w: update pr #%d: status %d err %v", ErrUnavailable, open[0].Number, status, err)
		}
	} else {
		payload["head"] = branch
		payload["base"] = base
		data, status, err = c.do(ctx, http.MethodPost, c.repoPath("pulls"), payload)
		if err != nil || status != http.StatusCreated {
			return "", fmt.Errorf("%w: create pr: status %d err %v", ErrUnavailable, status, err)
		}
	}

	var pr prResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		return "", fmt.Errorf("%w: decode pr: %v", ErrUnavailable, err)
	}
	return pr.HTMLURL, nil
}

func (c *Client) repoPath(suffix string) string {
	return fmt.Sprintf("%s/repos/%s/%s/%s", c.baseURL, c.owner, c.repo, suffix)
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// do performs one request and returns the body and status. Transport
// errors are returned as-is; HTTP status handling is the caller's job.
func (c *Client) do(ctx context.Context, method, endpoint string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return data, resp.StatusCode, nil
}
