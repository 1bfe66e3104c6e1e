package models

// Stage names the pipeline node currently (or last) executing for an issue.
type Stage string

const (
	StageTrigger     Stage = "trigger"
	StageFetchTodo   Stage = "fetch_todo"
	StageNextIssue   Stage = "next_issue"
	StagePlanner     Stage = "planner"
	StageHITL        Stage = "hitl"
	StageAssembler   Stage = "assembler"
	StageDeveloper   Stage = "developer"
	StageReviewer    Stage = "reviewer"
	StageRebuilder   Stage = "rebuilder"
	StagePR          Stage = "pull_request"
	StageQualityScan Stage = "quality_scan"
	StageFinalize    Stage = "finalize"
	StageError       Stage = "error"
)

// AgentTokens tracks token consumption per logical agent.
type AgentTokens struct {
	Planner   int `json:"planner_tokens"`
	Assembler int `json:"assembler_tokens"`
	Developer int `json:"developer_tokens"`
	Reviewer  int `json:"reviewer_tokens"`
	Rebuilder int `json:"rebuilder_tokens"`
}

// Total sums the per-agent token counts.
func (a AgentTokens) Total() int {
	return a.Planner + a.Assembler + a.Developer + a.Reviewer + a.Rebuilder
}

// IssuePipelineState is the transient per-issue state threaded through
// the orchestrator. A non-empty Error diverts routing to the error terminal.
type IssuePipelineState struct {
	ThreadID          string              `json:"thread_id"`
	TodoIssues        []Issue             `json:"todo_issues"`
	CurrentIssueIndex int                 `json:"current_issue_index"`
	CurrentIssue      *Issue              `json:"current_issue,omitempty"`
	PlanningMethod    PlanningMethod      `json:"planning_method,omitempty"`
	ApprovedSubtasks  []Subtask           `json:"approved_subtasks,omitempty"`
	PlanningScore     float64             `json:"planning_score"`
	NeedsHuman        bool                `json:"needs_human"`
	HumanDecision     string              `json:"human_decision,omitempty"`
	Document          *DeploymentDocument `json:"deployment_document,omitempty"`
	DocumentMarkdown  string              `json:"document_markdown,omitempty"`
	GeneratedFiles    GeneratedFileSet    `json:"generated_files,omitempty"`
	FileTypes         []string            `json:"file_types,omitempty"`
	Review            *ReviewResult       `json:"review_result,omitempty"`
	RebuildAttempts   int                 `json:"rebuild_attempts"`
	PRCreated         bool                `json:"code_pr_created"`
	PRURL             string              `json:"code_pr_url,omitempty"`
	QualityScore      float64             `json:"quality_score"`
	TokensUsed        int                 `json:"tokens_used"`
	AgentTokens       AgentTokens         `json:"agent_tokens"`
	ProcessingStage   Stage               `json:"processing_stage"`
	Error             string              `json:"error,omitempty"`
	FinalResult       string              `json:"final_result,omitempty"`
}
