// Package lint adapts the external static-analysis service and filters
// cosmetic findings before they reach the reviewer.
package lint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/taskforge/taskforge/pkg/models"
)

// ErrUnavailable indicates the lint service could not be reached.
var ErrUnavailable = errors.New("lint service unavailable")

// Port lints a file set and returns findings.
type Port interface {
	Lint(ctx context.Context, files models.GeneratedFileSet) ([]models.LintFinding, error)
}

// cosmeticIDs are finding classes dropped before LLM scoring: line length,
// trailing whitespace and missing final newline.
var cosmeticIDs = map[string]bool{
	"C0301": true,
	"C0303": true,
	"C0304": true,
}

var cosmeticSymbols = map[string]bool{
	"line-too-long":         true,
	"trailing-whitespace":   true,
	"missing-final-newline": true,
}

// FilterCosmetic drops findings in the ignorable-symbols set.
func FilterCosmetic(findings []models.LintFinding) []models.LintFinding {
	kept := make([]models.LintFinding, 0, len(findings))
	for _, f := range findings {
		if cosmeticIDs[f.MessageID] || cosmeticSymbols[f.Symbol] {
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

// Lintable reports whether a filename belongs to the lint-supported
// language (Python, per the analyzer behind the port).
func Lintable(filename string) bool {
	return strings.HasSuffix(filename, ".py")
}

// Client is the HTTP adapter implementing Port. It posts the file set to
// a lint service and receives findings.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a lint client over the given service base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Lint submits the lintable subset of files and returns raw findings.
func (c *Client) Lint(ctx context.Context, files models.GeneratedFileSet) ([]models.LintFinding, error) {
	payload := map[string]any{"files": files}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/lint", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, truncate(data, 200))
	}

	var parsed struct {
		Findings []models.LintFinding `json:"findings"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode findings: %v", ErrUnavailable, err)
	}
	return parsed.Findings, nil
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
