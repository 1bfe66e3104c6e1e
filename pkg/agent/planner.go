// Package agent implements the five pipeline agents: planner, assembler,
// developer, reviewer and the rebuilder (the developer in correction mode).
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taskforge/taskforge/pkg/config"
	"github.com/taskforge/taskforge/pkg/jsonx"
	"github.com/taskforge/taskforge/pkg/llm"
	"github.com/taskforge/taskforge/pkg/models"
	"github.com/taskforge/taskforge/pkg/prompt"
)

// defaultSubtaskScore fills in for missing or malformed scoring entries so
// the pipeline never stalls on scoring alone.
const defaultSubtaskScore = 7.5

// linearOverallScore is the trusted score assigned to linear plans.
const linearOverallScore = 10.0

// Planner decomposes an issue into scored, merged subtasks.
type Planner struct {
	llm            llm.Client
	prompts        *prompt.Registry
	scoreThreshold float64
}

// PlanResult is the planner subgraph output.
type PlanResult struct {
	Method       models.PlanningMethod
	Subtasks     []models.Subtask
	OverallScore float64
	NeedsHuman   bool
	TokensUsed   int
}

// NewPlanner builds a planner. scoreThreshold is the minimum overall score
// that bypasses the human gate.
func NewPlanner(client llm.Client, prompts *prompt.Registry, scoreThreshold float64) *Planner {
	return &Planner{llm: client, prompts: prompts, scoreThreshold: scoreThreshold}
}

// Plan runs method choice, then the linear or graph path, and reports
// whether a human decision is needed.
func (p *Planner) Plan(ctx context.Context, issue models.Issue) (*PlanResult, error) {
	result := &PlanResult{}

	method, tokens, err := p.chooseMethod(ctx, issue)
	if err != nil {
		return nil, fmt.Errorf("%w: method choice: %v", ErrPlanningFailed, err)
	}
	result.Method = method
	result.TokensUsed += tokens
	slog.Info("planning method chosen", "issue", issue.Key, "method", method)

	switch method {
	case models.MethodLinear:
		err = p.planLinear(ctx, issue, result)
	default:
		err = p.planGraph(ctx, issue, result)
	}
	if err != nil {
		return nil, err
	}
	if len(result.Subtasks) == 0 {
		return nil, fmt.Errorf("%w: empty subtask list", ErrPlanningFailed)
	}

	result.NeedsHuman = result.OverallScore < p.scoreThreshold
	return result, nil
}

// chooseMethod classifies the issue as linear or graph. Ambiguity defaults
// to graph.
func (p *Planner) chooseMethod(ctx context.Context, issue models.Issue) (models.PlanningMethod, int, error) {
	text, err := p.prompts.Format(prompt.PlannerMethod, map[string]string{
		"title":       issue.Title,
		"description": issue.Description,
	})
	if err != nil {
		return "", 0, err
	}
	response, tokens, err := p.llm.Call(ctx, text, config.AgentPlanner, nil)
	if err != nil {
		return "", tokens, err
	}

	var parsed struct {
		Method string `json:"method"`
	}
	if err := jsonx.Extract(response, &parsed); err != nil {
		slog.Warn("method choice unparseable, defaulting to graph", "issue", issue.Key, "error", err)
		return models.MethodGraph, tokens, nil
	}
	switch strings.ToLower(strings.TrimSpace(parsed.Method)) {
	case "linear":
		return models.MethodLinear, tokens, nil
	case "graph":
		return models.MethodGraph, tokens, nil
	default:
		return models.MethodGraph, tokens, nil
	}
}

type subtaskList struct {
	Subtasks []models.Subtask `json:"subtasks"`
	Edges    []models.Edge    `json:"edges,omitempty"`
}

// planLinear emits one ordered subtask list; planning is trusted without
// further scoring.
func (p *Planner) planLinear(ctx context.Context, issue models.Issue, result *PlanResult) error {
	text, err := p.prompts.Format(prompt.PlannerLinear, map[string]string{
		"title":       issue.Title,
		"description": issue.Description,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPlanningFailed, err)
	}
	response, tokens, err := p.llm.Call(ctx, text, config.AgentPlanner, nil)
	result.TokensUsed += tokens
	if err != nil {
		return fmt.Errorf("%w: linear generation: %v", ErrPlanningFailed, err)
	}

	var parsed subtaskList
	if err := jsonx.Extract(response, &parsed); err != nil {
		return fmt.Errorf("%w: %v", ErrPlanningFailed, err)
	}
	for i := range parsed.Subtasks {
		parsed.Subtasks[i].Score = linearOverallScore
	}
	result.Subtasks = parsed.Subtasks
	result.OverallScore = linearOverallScore
	return nil
}

// planGraph runs generation, batched scoring and merging.
func (p *Planner) planGraph(ctx context.Context, issue models.Issue, result *PlanResult) error {
	graph, tokens, err := p.generateGraph(ctx, issue)
	result.TokensUsed += tokens
	if err != nil {
		return err
	}

	tokens = p.scoreGraph(ctx, issue, graph)
	result.TokensUsed += tokens

	merged, overall, tokens, err := p.mergeGraph(ctx, issue, graph)
	result.TokensUsed += tokens
	if err != nil {
		return err
	}
	result.Subtasks = merged
	result.OverallScore = overall
	return nil
}

// generateGraph emits the node set. Edges default to a chain over sorted
// ids unless the model supplies an explicit edge set.
func (p *Planner) generateGraph(ctx context.Context, issue models.Issue) (*models.SubtaskGraph, int, error) {
	text, err := p.prompts.Format(prompt.PlannerGenerate, map[string]string{
		"title":       issue.Title,
		"description": issue.Description,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrPlanningFailed, err)
	}
	response, tokens, err := p.llm.Call(ctx, text, config.AgentPlanner, nil)
	if err != nil {
		return nil, tokens, fmt.Errorf("%w: graph generation: %v", ErrPlanningFailed, err)
	}

	var parsed subtaskList
	if err := jsonx.Extract(response, &parsed); err != nil {
		return nil, tokens, fmt.Errorf("%w: %v", ErrPlanningFailed, err)
	}
	if len(parsed.Subtasks) == 0 {
		return nil, tokens, fmt.Errorf("%w: empty subtask list", ErrPlanningFailed)
	}

	graph := &models.SubtaskGraph{Nodes: make(map[int]*models.Subtask, len(parsed.Subtasks))}
	for i := range parsed.Subtasks {
		st := parsed.Subtasks[i]
		graph.Nodes[st.ID] = &parsed.Subtasks[i]
	}

	if len(parsed.Edges) > 0 {
		// Drop edges with unknown endpoints or self-loops.
		for _, e := range parsed.Edges {
			if e.From == e.To {
				continue
			}
			if _, ok := graph.Nodes[e.From]; !ok {
				continue
			}
			if _, ok := graph.Nodes[e.To]; !ok {
				continue
			}
			graph.Edges = append(graph.Edges, e)
		}
	}
	if len(graph.Edges) == 0 {
		ids := graph.NodeIDs()
		for i := 0; i+1 < len(ids); i++ {
			graph.Edges = append(graph.Edges, models.Edge{From: ids[i], To: ids[i+1]})
		}
	}
	return graph, tokens, nil
}

// scoreGraph scores all subtasks in one batched call. Missing or malformed
// entries default to 7.5; a fully unparseable response defaults every node.
func (p *Planner) scoreGraph(ctx context.Context, issue models.Issue, graph *models.SubtaskGraph) int {
	text, err := p.prompts.Format(prompt.PlannerScore, map[string]string{
		"title":    issue.Title,
		"subtasks": formatSubtasks(graph),
	})
	if err != nil {
		p.applyDefaultScores(graph)
		return 0
	}
	response, tokens, err := p.llm.Call(ctx, text, config.AgentPlanner, nil)
	if err != nil {
		slog.Warn("subtask scoring failed, applying defaults", "issue", issue.Key, "error", err)
		p.applyDefaultScores(graph)
		return tokens
	}

	var rawList []any
	if err := jsonx.Extract(response, &rawList); err != nil {
		slog.Warn("subtask scoring unparseable, applying defaults", "issue", issue.Key, "error", err)
		p.applyDefaultScores(graph)
		return tokens
	}
	// A top-level list containing one nested list is unwrapped once.
	if len(rawList) == 1 {
		if nested, ok := rawList[0].([]any); ok {
			rawList = nested
		}
	}

	scored := make(map[int]bool)
	for _, item := range rawList {
		entry, ok := item.(map[string]any)
		if !ok {
			// Non-dict items are discarded.
			continue
		}
		id, ok := toInt(entry["id"])
		if !ok {
			continue
		}
		node, ok := graph.Nodes[id]
		if !ok {
			continue
		}
		if score, ok := toFloat(entry["score"]); ok {
			node.Score = clampScore(score, 0, 10)
		} else {
			node.Score = defaultSubtaskScore
		}
		if reasoning, ok := entry["reasoning"].(string); ok {
			node.ScoreReasoning = reasoning
		}
		if reqs, ok := entry["requirements_covered"].([]any); ok {
			node.RequirementsCovered = node.RequirementsCovered[:0]
			for _, r := range reqs {
				if n, ok := toInt(r); ok {
					node.RequirementsCovered = append(node.RequirementsCovered, n)
				}
			}
		}
		scored[id] = true
	}

	for id, node := range graph.Nodes {
		if !scored[id] {
			node.Score = defaultSubtaskScore
			node.ScoreReasoning = "default"
		}
		slog.Info("subtask scored", "issue", issue.Key, "subtask", id, "score", node.Score)
	}
	return tokens
}

func (p *Planner) applyDefaultScores(graph *models.SubtaskGraph) {
	for _, node := range graph.Nodes {
		node.Score = defaultSubtaskScore
		node.ScoreReasoning = "default"
	}
}

// mergeGraph consolidates the scored graph into a smaller ordered list of
// main subtasks. A merged subtask's score is the unweighted average of its
// covered sources, falling back to textual match, then the global average.
func (p *Planner) mergeGraph(ctx context.Context, issue models.Issue, graph *models.SubtaskGraph) ([]models.Subtask, float64, int, error) {
	text, err := p.prompts.Format(prompt.PlannerMerge, map[string]string{
		"title":    issue.Title,
		"subtasks": formatSubtasks(graph),
	})
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrPlanningFailed, err)
	}
	response, tokens, err := p.llm.Call(ctx, text, config.AgentPlanner, nil)
	if err != nil {
		return nil, 0, tokens, fmt.Errorf("%w: merge: %v", ErrPlanningFailed, err)
	}

	var parsed subtaskList
	if err := jsonx.Extract(response, &parsed); err != nil {
		return nil, 0, tokens, fmt.Errorf("%w: %v", ErrPlanningFailed, err)
	}
	if len(parsed.Subtasks) == 0 {
		return nil, 0, tokens, fmt.Errorf("%w: merge produced no subtasks", ErrPlanningFailed)
	}

	globalAvg := globalAverage(graph)
	for i := range parsed.Subtasks {
		merged := &parsed.Subtasks[i]
		merged.Score = p.mergedScore(merged, graph, globalAvg)
	}

	var sum float64
	for _, st := range parsed.Subtasks {
		sum += st.Score
	}
	overall := sum / float64(len(parsed.Subtasks))
	return parsed.Subtasks, overall, tokens, nil
}

func (p *Planner) mergedScore(merged *models.Subtask, graph *models.SubtaskGraph, globalAvg float64) float64 {
	var sum float64
	var count int
	for _, id := range merged.CoveredSubtasks {
		if node, ok := graph.Nodes[id]; ok {
			sum += node.Score
			count++
		}
	}
	if count > 0 {
		return sum / float64(count)
	}

	// First textual match wins.
	needle := strings.ToLower(strings.TrimSpace(merged.Description))
	for _, id := range graph.NodeIDs() {
		node := graph.Nodes[id]
		if strings.ToLower(strings.TrimSpace(node.Description)) == needle {
			return node.Score
		}
	}
	return globalAvg
}

func globalAverage(graph *models.SubtaskGraph) float64 {
	if len(graph.Nodes) == 0 {
		return defaultSubtaskScore
	}
	var sum float64
	for _, node := range graph.Nodes {
		sum += node.Score
	}
	return sum / float64(len(graph.Nodes))
}

func formatSubtasks(graph *models.SubtaskGraph) string {
	var b strings.Builder
	for _, id := range graph.NodeIDs() {
		node := graph.Nodes[id]
		fmt.Fprintf(&b, "%d. %s (priority %d, score %.1f)\n", node.ID, node.Description, node.Priority, node.Score)
	}
	return b.String()
}

func clampScore(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
