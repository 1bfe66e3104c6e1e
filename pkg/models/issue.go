// Package models defines the data types shared across the pipeline:
// issues, subtask graphs, deployment documents, review results and
// telemetry records.
package models

import "time"

// Issue is a unit of work read from the external tracker. It is immutable
// through the pipeline; the core treats it as input data.
type Issue struct {
	Key         string    `json:"key"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status,omitempty"`
	Priority    string    `json:"priority,omitempty"`
	Type        string    `json:"type,omitempty"`
	Components  []string  `json:"components,omitempty"`
	Labels      []string  `json:"labels,omitempty"`
	Created     time.Time `json:"created,omitempty"`
	Updated     time.Time `json:"updated,omitempty"`
}

// Subtask is a planner-produced decomposition of an issue's work.
// Score is assigned by scoring and re-computed as an average during merging.
type Subtask struct {
	ID                   int     `json:"id"`
	Description          string  `json:"description"`
	Priority             int     `json:"priority"`
	RequirementsCovered  []int   `json:"requirements_covered,omitempty"`
	Reasoning            string  `json:"reasoning,omitempty"`
	Score                float64 `json:"score"`
	ScoreReasoning       string  `json:"score_reasoning,omitempty"`
	CoveredSubtasks      []int   `json:"covered_subtasks,omitempty"`
}

// Edge is a directed dependency between two subtasks.
type Edge struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// SubtaskGraph holds the planner's subtasks keyed by id plus an ordered
// edge set. For linear planning the graph degenerates to a chain.
type SubtaskGraph struct {
	Nodes map[int]*Subtask `json:"nodes"`
	Edges []Edge           `json:"edges"`
}

// NodeIDs returns the node ids in ascending order. Merging treats the
// graph as a DAG via this order even when the model produced cycles.
func (g *SubtaskGraph) NodeIDs() []int {
	ids := make([]int, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

// PlanningMethod records how the planner decomposed an issue.
type PlanningMethod string

const (
	// MethodLinear is chain-of-thought planning: one ordered subtask list.
	MethodLinear PlanningMethod = "linear"
	// MethodGraph is graph-of-thought planning: generate, score, merge.
	MethodGraph PlanningMethod = "graph"
)
