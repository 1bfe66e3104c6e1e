// Package llm provides the single-call LLM adapter used by every agent.
// The adapter is stateless and safe for concurrent use; per-agent model
// identity and credentials come from the agents configuration.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/taskforge/taskforge/pkg/config"
)

// ErrUnavailable indicates the LLM could not be reached after retries.
// Rate limiting surfaces as this error once retries are exhausted.
var ErrUnavailable = errors.New("llm unavailable")

const (
	defaultMaxRetries = 3
	callTimeout       = 120 * time.Second
	// charsPerToken is the heuristic used when the provider reports no
	// usage, so telemetry is always non-zero.
	charsPerToken = 4
)

// Options are per-call overrides on top of the agent's configuration.
type Options struct {
	MaxTokens   int
	Temperature *float64
	Model       string
}

// Client is the single-call LLM contract: prompt in, text and tokens out.
type Client interface {
	Call(ctx context.Context, prompt, agentName string, opts *Options) (string, int, error)
}

// HTTPClient talks to an OpenAI-compatible chat-completions endpoint.
type HTTPClient struct {
	agents      *config.AgentsConfig
	httpClient  *http.Client
	maxRetries  uint64
	maxInterval time.Duration
}

// NewHTTPClient builds a client over the given agents configuration.
func NewHTTPClient(agents *config.AgentsConfig) *HTTPClient {
	return &HTTPClient{
		agents:      agents,
		httpClient:  &http.Client{Timeout: callTimeout},
		maxRetries:  defaultMaxRetries,
		maxInterval: 30 * time.Second,
	}
}

func (c *HTTPClient) newPolicy(ctx context.Context) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	exp.MaxInterval = c.maxInterval
	if c.maxInterval < exp.InitialInterval {
		exp.InitialInterval = c.maxInterval
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, c.maxRetries), ctx)
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Call sends one prompt for the named agent and returns the response text
// with the tokens consumed. Transient failures and rate limits are retried
// with exponential backoff; exhaustion returns ErrUnavailable.
func (c *HTTPClient) Call(ctx context.Context, prompt, agentName string, opts *Options) (string, int, error) {
	cfg := c.agents.ForAgent(agentName)

	model := cfg.Model
	maxTokens := cfg.MaxTokens
	temperature := cfg.Temperature
	if opts != nil {
		if opts.Model != "" {
			model = opts.Model
		}
		if opts.MaxTokens > 0 {
			maxTokens = opts.MaxTokens
		}
		if opts.Temperature != nil {
			temperature = *opts.Temperature
		}
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to encode llm request: %w", err)
	}

	var text string
	var tokens int
	operation := func() error {
		text, tokens, err = c.doCall(ctx, cfg, body)
		return err
	}

	if err := backoff.Retry(operation, c.newPolicy(ctx)); err != nil {
		return "", 0, fmt.Errorf("%w: agent %s: %v", ErrUnavailable, agentName, err)
	}

	if tokens == 0 {
		tokens = estimateTokens(prompt, text)
	}
	slog.Debug("llm call complete", "agent", agentName, "model", model, "tokens", tokens)
	return text, tokens, nil
}

func (c *HTTPClient) doCall(ctx context.Context, cfg config.AgentLLMConfig, body []byte) (string, int, error) {
	url := cfg.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", 0, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", 0, fmt.Errorf("llm returned status %d", resp.StatusCode)
	default:
		return "", 0, backoff.Permanent(fmt.Errorf("llm returned status %d: %s", resp.StatusCode, truncate(data, 200)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", 0, backoff.Permanent(fmt.Errorf("failed to decode llm response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return "", 0, backoff.Permanent(errors.New("llm response has no choices"))
	}
	return parsed.Choices[0].Message.Content, parsed.Usage.TotalTokens, nil
}

func estimateTokens(prompt, response string) int {
	n := (len(prompt) + len(response)) / charsPerToken
	if n < 1 {
		n = 1
	}
	return n
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
