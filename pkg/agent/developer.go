package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/taskforge/taskforge/pkg/config"
	"github.com/taskforge/taskforge/pkg/llm"
	"github.com/taskforge/taskforge/pkg/models"
	"github.com/taskforge/taskforge/pkg/prompt"
)

// Handoff is the single message the developer publishes for the reviewer
// after a successful generation.
type Handoff struct {
	Files    models.GeneratedFileSet
	Issue    models.Issue
	ThreadID string
}

// Developer generates code files from a deployment document and corrects
// them from review feedback. The same instance serves the rebuilder.
type Developer struct {
	llm         llm.Client
	prompts     *prompt.Registry
	memory      *ProjectMemory
	parallelism int
	stagingDir  string
}

// GenerateResult is the developer subgraph output.
type GenerateResult struct {
	Files      models.GeneratedFileSet
	TokensUsed int
}

// NewDeveloper builds a developer. parallelism bounds the per-file fan-out;
// stagingDir may be empty to disable local staging.
func NewDeveloper(client llm.Client, prompts *prompt.Registry, memory *ProjectMemory, parallelism int, stagingDir string) *Developer {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Developer{
		llm:         client,
		prompts:     prompts,
		memory:      memory,
		parallelism: parallelism,
		stagingDir:  stagingDir,
	}
}

// Generate produces every file listed in the document's file structure,
// fanning out up to the configured parallelism. On success the files are
// staged, remembered, and published once on the handoff channel when one
// was supplied.
func (d *Developer) Generate(ctx context.Context, doc *models.DeploymentDocument, issue models.Issue, threadID string, handoff chan<- Handoff) (*GenerateResult, error) {
	entries := doc.FileStructure.Files
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: document lists no files", ErrGenerationFailed)
	}

	related := d.memory.RelatedFiles(issue.Title)
	plan := formatPlan(doc)
	structure := formatStructure(doc)

	files := make(models.GeneratedFileSet, len(entries))
	var tokens int
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(d.parallelism)
	for _, entry := range entries {
		group.Go(func() error {
			content, used, err := d.generateFile(groupCtx, entry, doc, plan, structure, related)
			if err != nil {
				return fmt.Errorf("file %s: %w", entry.Filename, err)
			}
			mu.Lock()
			files[entry.Filename] = content
			tokens += used
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	if err := d.stage(issue.Key, files); err != nil {
		slog.Warn("failed to stage generated files", "issue", issue.Key, "error", err)
	}
	d.memory.AddFiles(issue.Key, files)

	if handoff != nil {
		handoff <- Handoff{Files: files, Issue: issue, ThreadID: threadID}
	}

	slog.Info("generation complete", "issue", issue.Key, "files", len(files), "tokens", tokens)
	return &GenerateResult{Files: files, TokensUsed: tokens}, nil
}

func (d *Developer) generateFile(ctx context.Context, entry models.FileEntry, doc *models.DeploymentDocument, plan, structure string, related map[string]string) (string, int, error) {
	spec := doc.TechnicalSpecifications[entry.Filename]
	if spec == "" {
		spec = entry.Description
	}
	text, err := d.prompts.Format(prompt.DeveloperFile, map[string]string{
		"filename":       entry.Filename,
		"file_type":      entry.Type,
		"spec":           spec,
		"plan":           plan,
		"file_structure": structure,
		"related_files":  FormatFiles(related),
	})
	if err != nil {
		return "", 0, err
	}
	response, tokens, err := d.llm.Call(ctx, text, config.AgentDeveloper, nil)
	if err != nil {
		return "", tokens, err
	}
	return StripCodeFence(response), tokens, nil
}

// Correct rewrites every file against the cumulative review feedback. The
// corrected map replaces the previous output wholesale, and the applied
// feedback moves to the resolved set.
func (d *Developer) Correct(ctx context.Context, files models.GeneratedFileSet, feedback []string, issue models.Issue) (*GenerateResult, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files to correct", ErrGenerationFailed)
	}

	cumulative := d.memory.AddMistakes(feedback)
	feedbackText := "- " + strings.Join(cumulative, "\n- ")

	corrected := make(models.GeneratedFileSet, len(files))
	var tokens int
	for _, name := range sortedFilenames(files) {
		others := make(map[string]string, len(files)-1)
		for other, content := range files {
			if other != name {
				others[other] = content
			}
		}
		text, err := d.prompts.Format(prompt.DeveloperCorrection, map[string]string{
			"filename":    name,
			"content":     files[name],
			"feedback":    feedbackText,
			"other_files": FormatFiles(others),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
		}
		response, used, err := d.llm.Call(ctx, text, config.AgentDeveloper, nil)
		tokens += used
		if err != nil {
			return nil, fmt.Errorf("%w: file %s: %v", ErrGenerationFailed, name, err)
		}
		corrected[name] = StripCodeFence(response)
	}

	if err := d.stage(issue.Key, corrected); err != nil {
		slog.Warn("failed to stage corrected files", "issue", issue.Key, "error", err)
	}
	d.memory.ResolveMistakes(cumulative)

	slog.Info("correction complete", "issue", issue.Key, "files", len(corrected), "tokens", tokens)
	return &GenerateResult{Files: corrected, TokensUsed: tokens}, nil
}

// stage writes the files to the per-issue staging area.
func (d *Developer) stage(issueKey string, files models.GeneratedFileSet) error {
	if d.stagingDir == "" {
		return nil
	}
	dir := filepath.Join(d.stagingDir, issueKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// StripCodeFence removes a surrounding markdown code fence from generated
// source, tolerating a language tag on the opening fence.
func StripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	start := strings.Index(trimmed, "```")
	if start < 0 {
		return trimmed
	}
	rest := trimmed[start+3:]
	if idx := strings.IndexByte(rest, '\n'); idx >= 0 {
		first := strings.TrimSpace(rest[:idx])
		if first == "" || isLanguageTag(first) {
			rest = rest[idx+1:]
		}
	}
	if end := strings.LastIndex(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		if !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '+' || r == '#') {
			return false
		}
	}
	return true
}

// FormatFiles renders a file map for prompt inclusion with filename markers.
func FormatFiles(files map[string]string) string {
	if len(files) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, name := range sortedFilenames(files) {
		fmt.Fprintf(&b, "=== %s ===\n%s\n\n", name, files[name])
	}
	return strings.TrimRight(b.String(), "\n")
}

func sortedFilenames(files map[string]string) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}

func formatPlan(doc *models.DeploymentDocument) string {
	var b strings.Builder
	for i, phase := range doc.ImplementationPlan {
		fmt.Fprintf(&b, "%d. %s\n", i+1, phase.Phase)
		for _, task := range phase.Tasks {
			fmt.Fprintf(&b, "   - %s\n", task)
		}
	}
	return b.String()
}

func formatStructure(doc *models.DeploymentDocument) string {
	var b strings.Builder
	for _, f := range doc.FileStructure.Files {
		fmt.Fprintf(&b, "- %s (%s): %s\n", f.Filename, f.Type, f.Description)
	}
	return b.String()
}
