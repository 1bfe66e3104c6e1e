// Package pipeline is the top-level orchestrator: a state machine over
// IssuePipelineState that drives each to-do issue through planner, human
// gate, assembler, developer, reviewer, rebuild cycle and pull request,
// with a quality scan after the last issue.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/taskforge/pkg/agent"
	"github.com/taskforge/taskforge/pkg/config"
	"github.com/taskforge/taskforge/pkg/models"
	"github.com/taskforge/taskforge/pkg/quality"
	"github.com/taskforge/taskforge/pkg/repo"
	"github.com/taskforge/taskforge/pkg/telemetry"
	"github.com/taskforge/taskforge/pkg/tracker"
)

// handoffTimeout bounds the reviewer's wait on the developer handoff
// channel before falling back to the files in pipeline state.
const handoffTimeout = 300 * time.Second

// doneTransition is the tracker transition applied after a successful PR.
const doneTransition = "Done"

// Options wires the orchestrator's collaborators. Quality may be nil to
// skip the final scan; HITL may be nil to always auto-approve.
type Options struct {
	Settings  *config.Settings
	Planner   *agent.Planner
	Assembler *agent.Assembler
	Developer *agent.Developer
	Reviewer  *agent.Reviewer
	Tracker   tracker.Port
	Repo      repo.Port
	Quality   quality.Port
	Telemetry *telemetry.Telemetry
	HITL      *HITLGate

	// AgentModels stamps the daily metrics with each agent's model id.
	AgentModels map[string]string
}

// Pipeline executes one automation run over the tracker's to-do list.
type Pipeline struct {
	settings  *config.Settings
	planner   *agent.Planner
	assembler *agent.Assembler
	developer *agent.Developer
	reviewer  *agent.Reviewer
	tracker   tracker.Port
	repo      repo.Port
	quality   quality.Port
	tel       *telemetry.Telemetry
	hitl      *HITLGate
	models    map[string]string

	handoffTimeout time.Duration
}

// New builds a pipeline from its wired collaborators.
func New(opts Options) *Pipeline {
	hitl := opts.HITL
	if hitl == nil {
		hitl = NewHITLGate()
	}
	return &Pipeline{
		settings:       opts.Settings,
		planner:        opts.Planner,
		assembler:      opts.Assembler,
		developer:      opts.Developer,
		reviewer:       opts.Reviewer,
		tracker:        opts.Tracker,
		repo:           opts.Repo,
		quality:        opts.Quality,
		tel:            opts.Telemetry,
		hitl:           hitl,
		models:         opts.AgentModels,
		handoffTimeout: handoffTimeout,
	}
}

// Gate exposes the human approval gate for the control surface.
func (p *Pipeline) Gate() *HITLGate {
	return p.hitl
}

// Run executes one full automation session: fetch the to-do list, drive
// every issue through the graph in order, then run the quality scan. An
// empty to-do list finalizes without entering the planner. Per-issue
// failures are terminal for that issue only.
func (p *Pipeline) Run(ctx context.Context) (*models.IssuePipelineState, error) {
	state := &models.IssuePipelineState{
		ThreadID:        uuid.NewString(),
		ProcessingStage: models.StageTrigger,
	}
	p.tel.Update(func(s *telemetry.Stats) { s.WorkflowsExecuted++ })
	p.tel.LogActivity("pipeline", "session started", "", models.ActivityStarting, "", nil)

	state.ProcessingStage = models.StageFetchTodo
	issues, err := p.tracker.ListTodo(ctx, p.settings.TrackerProject)
	if err != nil {
		p.fail(ctx, state, models.StageFetchTodo, fmt.Errorf("fetch todo: %w", err))
		return state, err
	}
	state.TodoIssues = issues
	p.tel.LogActivity("pipeline", "fetched todo list", fmt.Sprintf("%d issues", len(issues)), models.ActivityInfo, "", nil)

	for i := range issues {
		if ctx.Err() != nil {
			p.fail(ctx, state, state.ProcessingStage, fmt.Errorf("%w: %v", agent.ErrCancelled, ctx.Err()))
			return state, agent.ErrCancelled
		}
		state.CurrentIssueIndex = i
		p.runIssue(ctx, state, issues[i])
	}

	p.qualityScan(ctx, state)

	state.FinalResult = fmt.Sprintf("processed %d issues", len(issues))
	if state.Error == "" {
		state.ProcessingStage = models.StageFinalize
		p.tel.LogActivity("pipeline", "session finished", state.FinalResult, models.ActivitySuccess, "", nil)
	} else {
		p.tel.LogActivity("pipeline", "session finished with errors", state.Error, models.ActivityWarning, "", nil)
	}
	return state, nil
}

// runIssue drives a single issue through planner, gate, assembler,
// developer and the review/rebuild cycle to the PR node. A node failure
// ends this issue at the error terminal; sibling issues are unaffected.
func (p *Pipeline) runIssue(ctx context.Context, state *models.IssuePipelineState, issue models.Issue) {
	state.CurrentIssue = &issue
	state.Error = ""
	state.NeedsHuman = false
	state.HumanDecision = ""
	state.RebuildAttempts = 0
	state.Review = nil
	state.PRCreated = false
	state.PRURL = ""

	if !p.planNode(ctx, state, issue) {
		return
	}
	if !p.assembleNode(ctx, state, issue) {
		return
	}
	handoff := make(chan agent.Handoff, 1)
	if !p.developNode(ctx, state, issue, handoff) {
		return
	}
	if !p.reviewCycle(ctx, state, issue, handoff) {
		return
	}
	p.prNode(ctx, state, issue)
}

// planNode runs the planner and the human gate. A rejected plan retries
// planning, bounded by the rebuild cap.
func (p *Pipeline) planNode(ctx context.Context, state *models.IssuePipelineState, issue models.Issue) bool {
	for {
		state.ProcessingStage = models.StagePlanner
		p.tel.LogActivity("planner", "planning", issue.Title, models.ActivityStarting, issue.Key, nil)

		result, err := p.planner.Plan(ctx, issue)
		if err != nil {
			p.fail(ctx, state, models.StagePlanner, err)
			return false
		}
		state.AgentTokens.Planner += result.TokensUsed
		p.accrue(state, config.AgentPlanner, result.TokensUsed)
		state.PlanningMethod = result.Method
		state.ApprovedSubtasks = result.Subtasks
		state.PlanningScore = result.OverallScore
		state.NeedsHuman = result.NeedsHuman
		p.tel.LogActivity("planner", "plan ready",
			fmt.Sprintf("method=%s subtasks=%d score=%.1f", result.Method, len(result.Subtasks), result.OverallScore),
			models.ActivitySuccess, issue.Key, nil)

		if !result.NeedsHuman {
			return true
		}

		state.ProcessingStage = models.StageHITL
		approved, auto := p.hitl.Await(ctx, state.ThreadID, p.settings.HITLTimeout)
		if approved {
			if auto {
				state.HumanDecision = "auto-approved"
				p.tel.LogActivity("hitl", "HITL auto-approve",
					fmt.Sprintf("score %.1f below threshold, no decision within %s", result.OverallScore, p.settings.HITLTimeout),
					models.ActivityWarning, issue.Key, nil)
			} else {
				state.HumanDecision = "approved"
				p.tel.LogActivity("hitl", "HITL approve", "", models.ActivityInfo, issue.Key, nil)
			}
			return true
		}

		state.HumanDecision = "rejected"
		state.RebuildAttempts++
		p.tel.LogActivity("hitl", "HITL reject", "replanning", models.ActivityWarning, issue.Key, nil)
		if state.RebuildAttempts > p.settings.MaxRebuildAttempts {
			p.fail(ctx, state, models.StageHITL, agent.ErrHumanRejected)
			return false
		}
	}
}

func (p *Pipeline) assembleNode(ctx context.Context, state *models.IssuePipelineState, issue models.Issue) bool {
	state.ProcessingStage = models.StageAssembler
	p.tel.LogActivity("assembler", "assembling document", "", models.ActivityStarting, issue.Key, nil)

	result, err := p.assembler.Assemble(ctx, issue, state.ApprovedSubtasks)
	if err != nil {
		p.fail(ctx, state, models.StageAssembler, err)
		return false
	}
	state.AgentTokens.Assembler += result.TokensUsed
	p.accrue(state, config.AgentAssembler, result.TokensUsed)
	state.Document = result.Document
	state.DocumentMarkdown = result.Markdown
	state.FileTypes = result.Document.FileStructure.FileTypes
	p.tel.LogActivity("assembler", "document ready",
		fmt.Sprintf("%d files planned", len(result.Document.FileStructure.Files)),
		models.ActivitySuccess, issue.Key, nil)
	return true
}

func (p *Pipeline) developNode(ctx context.Context, state *models.IssuePipelineState, issue models.Issue, handoff chan<- agent.Handoff) bool {
	state.ProcessingStage = models.StageDeveloper
	p.tel.LogActivity("developer", "generating code", "", models.ActivityStarting, issue.Key, nil)

	result, err := p.developer.Generate(ctx, state.Document, issue, state.ThreadID, handoff)
	if err != nil {
		p.fail(ctx, state, models.StageDeveloper, err)
		return false
	}
	state.AgentTokens.Developer += result.TokensUsed
	p.accrue(state, config.AgentDeveloper, result.TokensUsed)
	state.GeneratedFiles = result.Files
	p.tel.LogActivity("developer", "code generated",
		fmt.Sprintf("%d files", len(result.Files)), models.ActivitySuccess, issue.Key, nil)
	return true
}

// reviewCycle runs reviewer and rebuilder until approval, rebuild
// exhaustion or a hard review failure. The reviewer is entered at most
// MaxRebuildAttempts+1 times.
func (p *Pipeline) reviewCycle(ctx context.Context, state *models.IssuePipelineState, issue models.Issue, handoff <-chan agent.Handoff) bool {
	files := p.receiveHandoff(ctx, state, handoff)

	for iteration := 1; ; iteration++ {
		state.ProcessingStage = models.StageReviewer
		p.tel.LogActivity("reviewer", "reviewing", fmt.Sprintf("iteration %d", iteration), models.ActivityStarting, issue.Key, nil)

		review, err := p.reviewer.Review(ctx, agent.ReviewInput{
			IssueKey:           issue.Key,
			Files:              files,
			FileTypes:          state.FileTypes,
			ProjectDescription: state.Document.ProjectOverview.Description,
			Iteration:          iteration,
		})
		if err != nil {
			p.fail(ctx, state, models.StageReviewer, err)
			return false
		}
		state.AgentTokens.Reviewer += review.TokensUsed
		p.accrue(state, config.AgentReviewer, review.TokensUsed)
		state.Review = review

		if review.Approved {
			p.tel.Update(func(s *telemetry.Stats) { s.SuccessfulReviews++ })
			p.tel.LogActivity("reviewer", "approved",
				fmt.Sprintf("overall %.1f", review.Overall), models.ActivitySuccess, issue.Key, nil)
			state.GeneratedFiles = files
			return true
		}
		p.tel.LogActivity("reviewer", "rejected",
			fmt.Sprintf("overall %.1f, %d mistakes", review.Overall, len(review.Mistakes)),
			models.ActivityWarning, issue.Key, nil)

		if state.RebuildAttempts >= p.settings.MaxRebuildAttempts {
			p.fail(ctx, state, models.StageReviewer,
				fmt.Errorf("%w: unreviewable after %d attempts", agent.ErrRebuildExhausted, state.RebuildAttempts))
			return false
		}

		state.ProcessingStage = models.StageRebuilder
		state.RebuildAttempts++
		p.tel.Update(func(s *telemetry.Stats) { s.RebuildCycles++ })
		p.tel.LogActivity("rebuilder", "correcting code",
			fmt.Sprintf("attempt %d", state.RebuildAttempts), models.ActivityStarting, issue.Key, nil)

		corrected, err := p.developer.Correct(ctx, files, review.Mistakes, issue)
		if err != nil {
			p.fail(ctx, state, models.StageRebuilder, err)
			return false
		}
		state.AgentTokens.Rebuilder += corrected.TokensUsed
		p.accrue(state, "rebuilder", corrected.TokensUsed)
		files = corrected.Files
		state.GeneratedFiles = files
	}
}

// receiveHandoff waits for the developer's handoff message, falling back
// to the files carried in pipeline state after the receive bound.
func (p *Pipeline) receiveHandoff(ctx context.Context, state *models.IssuePipelineState, handoff <-chan agent.Handoff) models.GeneratedFileSet {
	timer := time.NewTimer(p.handoffTimeout)
	defer timer.Stop()
	select {
	case msg := <-handoff:
		return msg.Files
	case <-timer.C:
	case <-ctx.Done():
	}
	slog.Warn("handoff receive timed out, using state files", "thread_id", state.ThreadID)
	return state.GeneratedFiles
}

// prNode pushes the approved files and opens or updates the pull request.
// PR failure is recorded but not fatal; the issue simply stays
// un-transitioned. Tracker transition failures are logged only.
func (p *Pipeline) prNode(ctx context.Context, state *models.IssuePipelineState, issue models.Issue) {
	state.ProcessingStage = models.StagePR
	branch := p.settings.ReviewBranchName
	p.tel.LogActivity("pull_request", "opening PR", branch, models.ActivityStarting, issue.Key, nil)

	if err := p.pushPR(ctx, state, issue, branch); err != nil {
		slog.Error("PR creation failed", "issue", issue.Key, "error", err)
		p.tel.Update(func(s *telemetry.Stats) { s.Errors++ })
		p.tel.LogActivity("pull_request", "PR failed", err.Error(), models.ActivityError, issue.Key, nil)
	} else {
		state.PRCreated = true
		p.tel.Update(func(s *telemetry.Stats) { s.PRsCreated++ })
		p.tel.LogActivity("pull_request", "PR ready", state.PRURL, models.ActivitySuccess, issue.Key, nil)

		if err := p.tracker.Transition(ctx, issue.Key, doneTransition); err != nil {
			slog.Warn("tracker transition failed", "issue", issue.Key, "error", err)
		}
	}

	p.tel.Update(func(s *telemetry.Stats) {
		s.IssuesProcessed++
		s.TasksCompleted++
	})
	p.emitIssueMetrics(ctx, state)
}

func (p *Pipeline) pushPR(ctx context.Context, state *models.IssuePipelineState, issue models.Issue, branch string) error {
	if err := p.repo.EnsureBranch(ctx, branch); err != nil {
		return fmt.Errorf("ensure branch: %w", err)
	}
	names := make([]string, 0, len(state.GeneratedFiles))
	for name := range state.GeneratedFiles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		path := issue.Key + "/" + name
		if err := p.repo.PutFile(ctx, branch, path, state.GeneratedFiles[name]); err != nil {
			return fmt.Errorf("put file %s: %w", name, err)
		}
	}

	title := fmt.Sprintf("Code for %s: %s", issue.Key, strings.Join(names, ", "))
	body := fmt.Sprintf("Generated code for %s (%s).\n\nFiles:\n- %s",
		issue.Key, issue.Title, strings.Join(names, "\n- "))
	url, err := p.repo.UpsertPR(ctx, branch, p.settings.DefaultBranch, title, body)
	if err != nil {
		return fmt.Errorf("upsert PR: %w", err)
	}
	state.PRURL = url
	return nil
}

// emitIssueMetrics writes the durable daily deltas for one finished issue.
func (p *Pipeline) emitIssueMetrics(ctx context.Context, state *models.IssuePipelineState) {
	prs := 0
	if state.PRCreated {
		prs = 1
	}
	p.tel.EmitDaily(ctx, models.MetricsDelta{
		TasksCompleted:      1,
		PullRequestsCreated: prs,
		TokensConsumed:      state.TokensUsed,
		SuccessCount:        1,
	})
	agents := map[string]int{
		config.AgentPlanner:   state.AgentTokens.Planner,
		config.AgentAssembler: state.AgentTokens.Assembler,
		config.AgentDeveloper: state.AgentTokens.Developer,
		config.AgentReviewer:  state.AgentTokens.Reviewer,
		"rebuilder":           state.AgentTokens.Rebuilder,
	}
	for name, tokens := range agents {
		if tokens == 0 {
			continue
		}
		p.tel.EmitDaily(ctx, models.MetricsDelta{
			Agent:       name,
			AgentTasks:  1,
			AgentTokens: tokens,
			AgentModel:  p.models[name],
		})
	}
}

// qualityScan runs once after the last issue and folds the composite score
// into telemetry and the daily metrics.
func (p *Pipeline) qualityScan(ctx context.Context, state *models.IssuePipelineState) {
	if p.quality == nil {
		return
	}
	state.ProcessingStage = models.StageQualityScan
	p.tel.LogActivity("quality_scan", "scanning", "", models.ActivityStarting, "", nil)

	pr, err := p.quality.LatestPR(ctx)
	if err != nil {
		p.scanFailed(state, err)
		return
	}
	counts, err := p.quality.Issues(ctx, pr.Key)
	if err != nil {
		p.scanFailed(state, err)
		return
	}
	measures, err := p.quality.Measures(ctx, p.settings.QualityProject, quality.MetricKeys)
	if err != nil {
		p.scanFailed(state, err)
		return
	}

	score := quality.Score(measures, counts)
	state.QualityScore = score
	p.tel.RecordQualityScore(score)
	p.tel.EmitDaily(ctx, models.MetricsDelta{QualityScore: &score})
	p.tel.LogActivity("quality_scan", "scan complete",
		fmt.Sprintf("score %.1f", score), models.ActivitySuccess, "", nil)
}

func (p *Pipeline) scanFailed(state *models.IssuePipelineState, err error) {
	slog.Error("quality scan failed", "error", err)
	state.Error = err.Error()
	p.tel.Update(func(s *telemetry.Stats) { s.Errors++ })
	p.tel.LogActivity("quality_scan", "error", err.Error(), models.ActivityError, "", nil)
}

// fail is the error terminal: it records the failure and finalizes the
// current issue without advancing it.
func (p *Pipeline) fail(ctx context.Context, state *models.IssuePipelineState, stage models.Stage, err error) {
	state.Error = err.Error()
	state.ProcessingStage = models.StageError

	issueKey := ""
	if state.CurrentIssue != nil {
		issueKey = state.CurrentIssue.Key
	}
	slog.Error("pipeline node failed", "stage", stage, "issue", issueKey, "error", err)
	p.tel.Update(func(s *telemetry.Stats) {
		s.Errors++
		s.TasksFailed++
	})
	p.tel.LogActivity(string(stage), "error", err.Error(), models.ActivityError, issueKey, nil)
	p.tel.EmitDaily(ctx, models.MetricsDelta{FailureCount: 1})
}

// accrue keeps the token-conservation invariant: the state total always
// equals the sum of the per-agent sub-totals.
func (p *Pipeline) accrue(state *models.IssuePipelineState, agentName string, tokens int) {
	state.TokensUsed = state.AgentTokens.Total()
	p.tel.AddTokens(agentName, tokens)
}
