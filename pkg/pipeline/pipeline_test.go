package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/taskforge/pkg/agent"
	"github.com/taskforge/taskforge/pkg/config"
	"github.com/taskforge/taskforge/pkg/llm"
	"github.com/taskforge/taskforge/pkg/metrics"
	"github.com/taskforge/taskforge/pkg/models"
	"github.com/taskforge/taskforge/pkg/prompt"
	"github.com/taskforge/taskforge/pkg/quality"
	"github.com/taskforge/taskforge/pkg/telemetry"
)

type scriptedLLM struct {
	mu      sync.Mutex
	calls   int
	handler func(prompt string) (string, int, error)
}

func (f *scriptedLLM) Call(_ context.Context, p, _ string, _ *llm.Options) (string, int, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.handler(p)
}

func (f *scriptedLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// reviewScript feeds successive review passes their three core scores.
// The last round repeats once exhausted.
type reviewScript struct {
	mu     sync.Mutex
	pass   int
	rounds [][3]float64
}

func (r *reviewScript) begin() [3]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pass < len(r.rounds)-1 {
		r.pass++
	} else {
		r.pass = len(r.rounds) - 1
	}
	return r.rounds[r.pass]
}

func (r *reviewScript) current() [3]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rounds[r.pass]
}

func (r *reviewScript) passes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pass + 1
}

func newReviewScript(rounds ...[3]float64) *reviewScript {
	return &reviewScript{pass: -1, rounds: rounds}
}

const pipelineDoc = `{
	"metadata": {"issue_key": "DEMO-1", "version": "1.0"},
	"project_overview": {"title": "Version flag", "description": "CLI version printing"},
	"implementation_plan": [{"phase": "build", "tasks": ["write the flag"]}],
	"file_structure": {"files": [{"filename": "cli.py", "type": "python", "description": "entry"}], "file_types": ["python"]}
}`

// pipelineDispatch answers every agent prompt in a full pipeline run.
// planScore selects the planner path: >= the threshold stays linear
// (trusted 10.0), lower values run the graph path at that score.
func pipelineDispatch(planScore float64, script *reviewScript) func(string) (string, int, error) {
	mistakes := `["tighten error handling"]`
	return func(p string) (string, int, error) {
		switch {
		case strings.Contains(p, "planning strategist"):
			if planScore >= 10 {
				return `{"method": "linear"}`, 10, nil
			}
			return `{"method": "graph"}`, 10, nil
		case strings.Contains(p, "planning critic"):
			return fmt.Sprintf(`[{"id": 1, "score": %.1f}, {"id": 2, "score": %.1f}]`, planScore, planScore), 10, nil
		case strings.Contains(p, "planning consolidator"):
			return `{"subtasks": [{"id": 1, "description": "do the work", "priority": 1, "covered_subtasks": [1, 2]}]}`, 10, nil
		case strings.Contains(p, "graph-of-thought"):
			return `{"subtasks": [
				{"id": 1, "description": "parse flag", "priority": 1},
				{"id": 2, "description": "print version", "priority": 2}
			]}`, 10, nil
		case strings.Contains(p, "software planning agent"):
			return `{"subtasks": [
				{"id": 1, "description": "parse flag", "priority": 1},
				{"id": 2, "description": "print version", "priority": 2},
				{"id": 3, "description": "add test", "priority": 3}
			]}`, 10, nil
		case strings.Contains(p, "deployment architect"):
			return pipelineDoc, 20, nil
		case strings.Contains(p, "fixing review findings"):
			return "print('corrected')", 8, nil
		case strings.Contains(p, "senior developer"):
			return "```python\nprint('1.0')\n```", 12, nil
		case strings.Contains(p, "checking completeness"):
			s := script.begin()
			return fmt.Sprintf(`{"score": %.0f, "mistakes": %s, "reasoning": "r"}`, s[0], mistakes), 10, nil
		case strings.Contains(p, "security reviewer"):
			s := script.current()
			return fmt.Sprintf(`{"score": %.0f, "mistakes": [], "reasoning": "r"}`, s[1]), 10, nil
		case strings.Contains(p, "checking coding standards"):
			s := script.current()
			return fmt.Sprintf(`{"score": %.0f, "mistakes": [], "reasoning": "r"}`, s[2]), 10, nil
		default:
			return "", 0, errors.New("unexpected prompt")
		}
	}
}

type fakeTracker struct {
	mu          sync.Mutex
	issues      []models.Issue
	listErr     error
	listDelay   time.Duration
	transitions []string
}

func (f *fakeTracker) ListTodo(ctx context.Context, _ string) ([]models.Issue, error) {
	if f.listDelay > 0 {
		select {
		case <-time.After(f.listDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.issues, nil
}

func (f *fakeTracker) Transition(_ context.Context, issueKey, transitionName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, issueKey+":"+transitionName)
	return nil
}

func (f *fakeTracker) transitioned() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.transitions))
	copy(out, f.transitions)
	return out
}

type fakeRepo struct {
	mu       sync.Mutex
	branches map[string]bool
	files    map[string]string
	prTitles map[string]string
	prCount  int
	putErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		branches: make(map[string]bool),
		files:    make(map[string]string),
		prTitles: make(map[string]string),
	}
}

func (f *fakeRepo) EnsureBranch(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.branches[name] = true
	return nil
}

func (f *fakeRepo) PutFile(_ context.Context, branch, path, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.files[branch+"/"+path] = content
	return nil
}

func (f *fakeRepo) UpsertPR(_ context.Context, branch, _, title, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.prTitles[branch]; !ok {
		f.prCount++
	}
	f.prTitles[branch] = title
	return "https://example.test/pr/1", nil
}

type fakeQuality struct {
	measures quality.Measures
	counts   quality.IssueCounts
	err      error
}

func (f *fakeQuality) LatestPR(_ context.Context) (*quality.PullRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &quality.PullRequest{Key: "PR-1", Branch: "code-review"}, nil
}

func (f *fakeQuality) Issues(_ context.Context, _ string) (quality.IssueCounts, error) {
	return f.counts, f.err
}

func (f *fakeQuality) Measures(_ context.Context, _ string, _ []string) (quality.Measures, error) {
	return f.measures, f.err
}

func (f *fakeQuality) PRFiles(_ context.Context, _ string) ([]string, error) {
	return nil, f.err
}

type fixture struct {
	pipeline *Pipeline
	client   *scriptedLLM
	tracker  *fakeTracker
	repo     *fakeRepo
	store    *metrics.MemoryStore
	tel      *telemetry.Telemetry
	settings *config.Settings
}

func newFixture(t *testing.T, issues []models.Issue, client *scriptedLLM, q quality.Port, mutate func(*config.Settings)) *fixture {
	t.Helper()
	settings := config.DefaultSettings()
	settings.HITLTimeout = 20 * time.Millisecond
	settings.TrackerProject = "DEMO"
	if mutate != nil {
		mutate(settings)
	}

	store := metrics.NewMemoryStore()
	tel := telemetry.New(store)
	prompts := prompt.NewRegistry()
	tr := &fakeTracker{issues: issues}
	rp := newFakeRepo()

	p := New(Options{
		Settings:  settings,
		Planner:   agent.NewPlanner(client, prompts, settings.ScoreThreshold),
		Assembler: agent.NewAssembler(client, prompts),
		Developer: agent.NewDeveloper(client, prompts, agent.NewProjectMemory(), settings.DevParallelism, ""),
		Reviewer:  agent.NewReviewer(client, prompts, nil, store, settings.ReviewThreshold),
		Tracker:   tr,
		Repo:      rp,
		Quality:   q,
		Telemetry: tel,
	})
	return &fixture{pipeline: p, client: client, tracker: tr, repo: rp, store: store, tel: tel, settings: settings}
}

func demoIssues(keys ...string) []models.Issue {
	out := make([]models.Issue, 0, len(keys))
	for _, key := range keys {
		out = append(out, models.Issue{
			Key:         key,
			Title:       "Add CLI --version flag",
			Description: "Print the program version when --version is passed.",
		})
	}
	return out
}

func TestRunSingleIssueApprovedFirstTry(t *testing.T) {
	script := newReviewScript([3]float64{95, 92, 90})
	client := &scriptedLLM{handler: pipelineDispatch(10, script)}
	f := newFixture(t, demoIssues("DEMO-1"), client, nil, nil)

	state, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StageFinalize, state.ProcessingStage)
	assert.Empty(t, state.Error)
	assert.True(t, state.PRCreated)
	assert.Equal(t, "https://example.test/pr/1", state.PRURL)
	assert.Equal(t, state.AgentTokens.Total(), state.TokensUsed)
	assert.Zero(t, state.AgentTokens.Rebuilder)

	assert.Equal(t, "Code for DEMO-1: cli.py", f.repo.prTitles["code-review"])
	assert.Contains(t, f.repo.files, "code-review/DEMO-1/cli.py")
	assert.Equal(t, []string{"DEMO-1:Done"}, f.tracker.transitioned())

	stats := f.tel.Snapshot()
	assert.Equal(t, 1, stats.IssuesProcessed)
	assert.Equal(t, 1, stats.PRsCreated)
	assert.Equal(t, 1, stats.SuccessfulReviews)
	assert.Equal(t, 0, stats.RebuildCycles)
	assert.Equal(t, 0, stats.Errors)
}

func TestRunEmptyTodoFinalizesWithoutPlanner(t *testing.T) {
	client := &scriptedLLM{handler: pipelineDispatch(10, newReviewScript([3]float64{90, 90, 90}))}
	f := newFixture(t, nil, client, nil, nil)

	state, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StageFinalize, state.ProcessingStage)
	assert.Equal(t, "processed 0 issues", state.FinalResult)
	assert.Equal(t, 0, client.callCount())
}

func TestRunSecondIssueNeedsOneRebuild(t *testing.T) {
	// Both issues share the script: pass 1 approves issue A, pass 2
	// rejects issue B (overall 55.0), pass 3 approves the correction.
	script := newReviewScript(
		[3]float64{95, 92, 90},
		[3]float64{50, 60, 55},
		[3]float64{85, 82, 80},
	)
	client := &scriptedLLM{handler: pipelineDispatch(10, script)}
	f := newFixture(t, demoIssues("DEMO-1", "DEMO-2"), client, nil, nil)

	state, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.Error)
	assert.ElementsMatch(t, []string{"DEMO-1:Done", "DEMO-2:Done"}, f.tracker.transitioned())
	assert.Positive(t, state.AgentTokens.Rebuilder)

	stats := f.tel.Snapshot()
	assert.Equal(t, 1, stats.RebuildCycles)
	assert.Equal(t, 2, stats.TasksCompleted)
	assert.Equal(t, 2, stats.PRsCreated)
	assert.Equal(t, 3, script.passes())
}

func TestRunRebuildExhaustion(t *testing.T) {
	script := newReviewScript([3]float64{50, 50, 50})
	client := &scriptedLLM{handler: pipelineDispatch(10, script)}
	f := newFixture(t, demoIssues("DEMO-1"), client, nil, func(s *config.Settings) {
		s.MaxRebuildAttempts = 2
	})

	state, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StageError, state.ProcessingStage)
	assert.Contains(t, state.Error, "unreviewable after 2 attempts")
	assert.Equal(t, 0, f.repo.prCount)
	assert.Empty(t, f.tracker.transitioned())

	stats := f.tel.Snapshot()
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.TasksFailed)
	assert.Equal(t, 2, stats.RebuildCycles)
}

func TestRunZeroRebuildBudgetFailsOnFirstRejection(t *testing.T) {
	script := newReviewScript([3]float64{50, 50, 50})
	client := &scriptedLLM{handler: pipelineDispatch(10, script)}
	f := newFixture(t, demoIssues("DEMO-1"), client, nil, func(s *config.Settings) {
		s.MaxRebuildAttempts = 0
	})

	state, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StageError, state.ProcessingStage)
	assert.Equal(t, 1, script.passes())
	assert.Equal(t, 0, f.tel.Snapshot().RebuildCycles)
}

func TestRunHITLTimeoutAutoApproves(t *testing.T) {
	script := newReviewScript([3]float64{95, 92, 90})
	client := &scriptedLLM{handler: pipelineDispatch(6.0, script)}
	f := newFixture(t, demoIssues("DEMO-1"), client, nil, nil)

	state, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.Error)
	assert.True(t, state.PRCreated)
	assert.Equal(t, "auto-approved", state.HumanDecision)

	var autoEvents int
	for _, event := range f.tel.Activity() {
		if event.Action == "HITL auto-approve" {
			autoEvents++
		}
	}
	assert.Equal(t, 1, autoEvents)
}

func TestRunHITLRejectWithZeroBudget(t *testing.T) {
	script := newReviewScript([3]float64{95, 92, 90})
	client := &scriptedLLM{handler: pipelineDispatch(6.0, script)}
	f := newFixture(t, demoIssues("DEMO-1"), client, nil, func(s *config.Settings) {
		s.MaxRebuildAttempts = 0
		s.HITLTimeout = 2 * time.Second
	})

	go func() {
		for {
			for _, id := range f.pipeline.Gate().Pending() {
				f.pipeline.Gate().Decide(id, false)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	state, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StageError, state.ProcessingStage)
	assert.Contains(t, state.Error, "rejected")
	assert.Equal(t, 0, f.repo.prCount)
}

func TestRunTrackerUnavailableFailsSession(t *testing.T) {
	client := &scriptedLLM{handler: pipelineDispatch(10, newReviewScript([3]float64{90, 90, 90}))}
	f := newFixture(t, nil, client, nil, nil)
	f.tracker.listErr = errors.New("tracker unavailable")

	state, err := f.pipeline.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.StageError, state.ProcessingStage)
	assert.Contains(t, state.Error, "tracker unavailable")
}

func TestRunPRFailureIsNotFatal(t *testing.T) {
	script := newReviewScript([3]float64{95, 92, 90})
	client := &scriptedLLM{handler: pipelineDispatch(10, script)}
	f := newFixture(t, demoIssues("DEMO-1"), client, nil, nil)
	f.repo.putErr = errors.New("host down")

	state, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StageFinalize, state.ProcessingStage)
	assert.False(t, state.PRCreated)
	assert.Empty(t, f.tracker.transitioned())

	stats := f.tel.Snapshot()
	assert.Equal(t, 1, stats.IssuesProcessed)
	assert.Equal(t, 0, stats.PRsCreated)
	assert.Equal(t, 1, stats.Errors)
}

func TestRunQualityScanRecordsScore(t *testing.T) {
	script := newReviewScript([3]float64{95, 92, 90})
	client := &scriptedLLM{handler: pipelineDispatch(10, script)}
	q := &fakeQuality{measures: quality.Measures{
		SqaleRating:       1,
		ReliabilityRating: 1,
		SecurityRating:    1,
		Coverage:          80,
		AlertStatus:       "OK",
	}}
	f := newFixture(t, demoIssues("DEMO-1"), client, q, nil)

	state, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	// 0.5*100 + 0.3*100 + 0.2*80 = 96.0
	assert.Equal(t, 96.0, state.QualityScore)
	assert.Equal(t, 96.0, f.tel.Snapshot().AvgQualityScore)

	day, err := f.store.GetDaily(context.Background(), time.Now().UTC().Format("2006-01-02"))
	require.NoError(t, err)
	assert.Equal(t, 96.0, day.CodeQualityScores)
	assert.Equal(t, 1, day.NumScores)
}

func TestRunEmitsDailyMetrics(t *testing.T) {
	script := newReviewScript([3]float64{95, 92, 90})
	client := &scriptedLLM{handler: pipelineDispatch(10, script)}
	f := newFixture(t, demoIssues("DEMO-1"), client, nil, nil)

	state, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)

	day, err := f.store.GetDaily(context.Background(), time.Now().UTC().Format("2006-01-02"))
	require.NoError(t, err)
	assert.Equal(t, 1, day.TasksCompleted)
	assert.Equal(t, 1, day.PullRequestsCreated)
	assert.Equal(t, state.TokensUsed, day.TokensConsumed)
	assert.Equal(t, 1, day.SuccessCount)
	assert.Contains(t, day.AgentActivities, "planner")
	assert.Contains(t, day.AgentActivities, "developer")
	assert.NotContains(t, day.AgentActivities, "rebuilder")
}
