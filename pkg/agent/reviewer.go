package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taskforge/taskforge/pkg/config"
	"github.com/taskforge/taskforge/pkg/jsonx"
	"github.com/taskforge/taskforge/pkg/lint"
	"github.com/taskforge/taskforge/pkg/llm"
	"github.com/taskforge/taskforge/pkg/metrics"
	"github.com/taskforge/taskforge/pkg/models"
	"github.com/taskforge/taskforge/pkg/prompt"
)

// Conservative defaults applied when a single analysis dimension fails.
// Review fails hard only when all three core dimensions fail.
const (
	fallbackCompleteness = 75.0
	fallbackSecurity     = 70.0
	fallbackStandards    = 80.0
)

// Reviewer runs the multi-dimensional review over a generated file set.
type Reviewer struct {
	llm       llm.Client
	prompts   *prompt.Registry
	lint      lint.Port
	store     metrics.Store
	knowledge *KnowledgeBase
	threshold float64
}

// ReviewInput carries everything one review pass needs.
type ReviewInput struct {
	IssueKey           string
	Files              models.GeneratedFileSet
	FileTypes          []string
	ProjectDescription string
	Iteration          int
}

// NewReviewer builds a reviewer. lintPort and store may be nil; the lint
// stage is then skipped and persistence disabled.
func NewReviewer(client llm.Client, prompts *prompt.Registry, lintPort lint.Port, store metrics.Store, threshold float64) *Reviewer {
	return &Reviewer{
		llm:       client,
		prompts:   prompts,
		lint:      lintPort,
		store:     store,
		knowledge: NewKnowledgeBase(),
		threshold: threshold,
	}
}

// Review runs the nine ordered stages: format, knowledge load, static
// lint, completeness, security, standards, aggregate, persist, finalize.
func (r *Reviewer) Review(ctx context.Context, in ReviewInput) (*models.ReviewResult, error) {
	if len(in.Files) == 0 {
		return nil, fmt.Errorf("%w: no files to review", ErrReviewFailed)
	}

	formatted := FormatFiles(in.Files)
	security := r.knowledge.SecurityGuidelines()
	standards := r.knowledge.StandardsFor(in.FileTypes)

	result := &models.ReviewResult{Iteration: in.Iteration}

	result.Lint, result.TokensUsed = r.lintStage(ctx, in)

	failures := 0
	result.Completeness = r.dimension(ctx, prompt.ReviewerCompleteness, map[string]string{
		"description": in.ProjectDescription,
		"files":       formatted,
	}, fallbackCompleteness, "completeness analysis failed", &failures, result)
	result.Security = r.dimension(ctx, prompt.ReviewerSecurity, map[string]string{
		"guidelines": security,
		"files":      formatted,
	}, fallbackSecurity, "security analysis failed", &failures, result)
	result.Standards = r.dimension(ctx, prompt.ReviewerStandards, map[string]string{
		"standards": standards,
		"files":     formatted,
	}, fallbackStandards, "standards analysis failed", &failures, result)

	if failures == 3 {
		return nil, fmt.Errorf("%w: all analysis dimensions failed", ErrReviewFailed)
	}

	result.Overall = models.OverallScore(result.Completeness.Score, result.Security.Score, result.Standards.Score)
	result.Approved = result.Overall >= r.threshold
	result.Mistakes = unionMistakes(result.Completeness, result.Security, result.Standards, result.Lint)

	r.persist(ctx, in, result)

	slog.Info("review complete",
		"issue", in.IssueKey,
		"overall", result.Overall,
		"approved", result.Approved,
		"iteration", in.Iteration,
	)
	return result, nil
}

// dimension runs one LLM analysis with the fail-soft policy.
func (r *Reviewer) dimension(ctx context.Context, template string, vars map[string]string, fallback float64, failureNote string, failures *int, result *models.ReviewResult) models.DimensionResult {
	text, err := r.prompts.Format(template, vars)
	if err != nil {
		*failures++
		return models.DimensionResult{Score: fallback, Mistakes: []string{failureNote}, Reasoning: err.Error()}
	}
	response, tokens, err := r.llm.Call(ctx, text, config.AgentReviewer, nil)
	result.TokensUsed += tokens
	if err != nil {
		slog.Warn("review dimension failed", "template", template, "error", err)
		*failures++
		return models.DimensionResult{Score: fallback, Mistakes: []string{failureNote}, Reasoning: err.Error()}
	}

	var parsed struct {
		Score     float64  `json:"score"`
		Mistakes  []string `json:"mistakes"`
		Reasoning string   `json:"reasoning"`
	}
	if err := jsonx.Extract(response, &parsed); err != nil {
		slog.Warn("review dimension unparseable", "template", template, "error", err)
		*failures++
		return models.DimensionResult{Score: fallback, Mistakes: []string{failureNote}, Reasoning: err.Error()}
	}
	return models.DimensionResult{
		Score:     clampScore(parsed.Score, 0, 100),
		Mistakes:  parsed.Mistakes,
		Reasoning: parsed.Reasoning,
	}
}

// lintStage lints the supported files, filters cosmetic classes and asks
// the model for a 0-100 score over the remainder. Lint is report-only.
func (r *Reviewer) lintStage(ctx context.Context, in ReviewInput) (models.DimensionResult, int) {
	lintable := make(models.GeneratedFileSet)
	for name, content := range in.Files {
		if lint.Lintable(name) {
			lintable[name] = content
		}
	}
	if r.lint == nil || len(lintable) == 0 {
		return models.DimensionResult{Score: 100, Reasoning: "no lintable files"}, 0
	}

	findings, err := r.lint.Lint(ctx, lintable)
	if err != nil {
		slog.Warn("lint stage failed", "error", err)
		return models.DimensionResult{Score: fallbackStandards, Reasoning: "lint unavailable"}, 0
	}
	findings = lint.FilterCosmetic(findings)
	if len(findings) == 0 {
		return models.DimensionResult{Score: 100, Reasoning: "no findings"}, 0
	}

	var b strings.Builder
	for _, f := range findings {
		fmt.Fprintf(&b, "%s:%d:%d %s %s (%s)\n", f.File, f.Line, f.Column, f.Severity, f.Message, f.MessageID)
	}
	text, err := r.prompts.Format(prompt.ReviewerLint, map[string]string{"findings": b.String()})
	if err != nil {
		return models.DimensionResult{Score: fallbackStandards, Reasoning: err.Error()}, 0
	}
	response, tokens, err := r.llm.Call(ctx, text, config.AgentReviewer, nil)
	if err != nil {
		slog.Warn("lint scoring failed", "error", err)
		return models.DimensionResult{Score: fallbackStandards, Reasoning: "lint scoring unavailable"}, tokens
	}

	var parsed struct {
		Score     float64 `json:"score"`
		Reasoning string  `json:"reasoning"`
	}
	if err := jsonx.Extract(response, &parsed); err != nil {
		return models.DimensionResult{Score: fallbackStandards, Reasoning: "lint score unparseable"}, tokens
	}
	mistakes := make([]string, 0, len(findings))
	for _, f := range findings {
		mistakes = append(mistakes, fmt.Sprintf("%s line %d: %s", f.File, f.Line, f.Message))
	}
	return models.DimensionResult{
		Score:     clampScore(parsed.Score, 0, 100),
		Mistakes:  mistakes,
		Reasoning: parsed.Reasoning,
	}, tokens
}

// persist records the full review via the metrics port. Failure is logged
// but never fails the review. The agent id is "001" on the first
// iteration and "003" on later ones.
func (r *Reviewer) persist(ctx context.Context, in ReviewInput, result *models.ReviewResult) {
	if r.store == nil {
		return
	}
	agentID := "001"
	if in.Iteration > 1 {
		agentID = "003"
	}
	doc := models.ReviewDocument{
		IssueKey:     in.IssueKey,
		AgentID:      agentID,
		Iteration:    in.Iteration,
		Completeness: result.Completeness.Score,
		Security:     result.Security.Score,
		Standards:    result.Standards.Score,
		Lint:         result.Lint.Score,
		Overall:      result.Overall,
		Approved:     result.Approved,
		Mistakes:     result.Mistakes,
		TokensUsed:   result.TokensUsed,
	}
	if err := r.store.RecordReview(ctx, doc); err != nil {
		slog.Warn("failed to persist review", "issue", in.IssueKey, "error", err)
	}
}

func unionMistakes(dims ...models.DimensionResult) []string {
	seen := map[string]bool{}
	var out []string
	for _, dim := range dims {
		for _, mistake := range dim.Mistakes {
			if mistake != "" && !seen[mistake] {
				seen[mistake] = true
				out = append(out, mistake)
			}
		}
	}
	return out
}
