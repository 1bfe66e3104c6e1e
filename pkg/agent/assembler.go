package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taskforge/taskforge/pkg/config"
	"github.com/taskforge/taskforge/pkg/jsonx"
	"github.com/taskforge/taskforge/pkg/llm"
	"github.com/taskforge/taskforge/pkg/models"
	"github.com/taskforge/taskforge/pkg/prompt"
)

// Assembler synthesizes the deployment document from approved subtasks.
type Assembler struct {
	llm     llm.Client
	prompts *prompt.Registry
}

// AssembleResult is the assembler subgraph output.
type AssembleResult struct {
	Document   *models.DeploymentDocument
	Markdown   string
	TokensUsed int
}

// NewAssembler builds an assembler.
func NewAssembler(client llm.Client, prompts *prompt.Registry) *Assembler {
	return &Assembler{llm: client, prompts: prompts}
}

// Assemble constructs and validates the deployment document, then renders
// its markdown view. The document is the sole input to the developer.
func (a *Assembler) Assemble(ctx context.Context, issue models.Issue, subtasks []models.Subtask) (*AssembleResult, error) {
	text, err := a.prompts.Format(prompt.AssemblerDocument, map[string]string{
		"issue_key":   issue.Key,
		"title":       issue.Title,
		"description": issue.Description,
		"subtasks":    formatSubtaskList(subtasks),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssemblyFailed, err)
	}

	response, tokens, err := a.llm.Call(ctx, text, config.AgentAssembler, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssemblyFailed, err)
	}

	doc := &models.DeploymentDocument{}
	if err := jsonx.Extract(response, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssemblyFailed, err)
	}

	normalizeDocument(doc, issue)

	return &AssembleResult{
		Document:   doc,
		Markdown:   RenderMarkdown(doc),
		TokensUsed: tokens,
	}, nil
}

// normalizeDocument fills missing fields with empty defaults, synthesizes
// a default file entry when file_structure.files is empty and drops
// technical specifications that name unknown files.
func normalizeDocument(doc *models.DeploymentDocument, issue models.Issue) {
	if doc.Metadata.IssueKey == "" {
		doc.Metadata.IssueKey = issue.Key
	}
	if doc.Metadata.Version == "" {
		doc.Metadata.Version = "1.0"
	}
	if doc.Metadata.Timestamp == "" {
		doc.Metadata.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if doc.ProjectOverview.Title == "" {
		slog.Warn("deployment document missing project overview title", "issue", issue.Key)
		doc.ProjectOverview.Title = issue.Title
	}
	if doc.ProjectOverview.Description == "" {
		doc.ProjectOverview.Description = issue.Description
	}

	if len(doc.FileStructure.Files) == 0 {
		slog.Warn("deployment document has no files, synthesizing default", "issue", issue.Key)
		doc.FileStructure.Files = []models.FileEntry{{
			Filename:    defaultFilename(issue.Title),
			Type:        "python",
			Description: issue.Title,
		}}
	}
	if len(doc.FileStructure.FileTypes) == 0 {
		seen := map[string]bool{}
		for _, f := range doc.FileStructure.Files {
			if f.Type != "" && !seen[f.Type] {
				seen[f.Type] = true
				doc.FileStructure.FileTypes = append(doc.FileStructure.FileTypes, f.Type)
			}
		}
	}

	if len(doc.TechnicalSpecifications) > 0 {
		known := make(map[string]bool, len(doc.FileStructure.Files))
		for _, f := range doc.FileStructure.Files {
			known[f.Filename] = true
		}
		for name := range doc.TechnicalSpecifications {
			if !known[name] {
				slog.Warn("dropping technical specification for unknown file", "issue", issue.Key, "file", name)
				delete(doc.TechnicalSpecifications, name)
			}
		}
	}
}

// defaultFilename derives a filename slug from the issue title.
func defaultFilename(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case 'a' <= r && r <= 'z', '0' <= r && r <= '9':
			b.WriteRune(r)
		default:
			if n := b.Len(); n > 0 && b.String()[n-1] != '_' {
				b.WriteByte('_')
			}
		}
	}
	slug := strings.Trim(b.String(), "_")
	if slug == "" {
		slug = "main"
	}
	return slug + ".py"
}

// RenderMarkdown produces the deterministic markdown view of a document.
func RenderMarkdown(doc *models.DeploymentDocument) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Deployment Document: %s\n\n", doc.ProjectOverview.Title)
	fmt.Fprintf(&b, "**Issue:** %s  \n**Version:** %s  \n**Generated:** %s\n\n",
		doc.Metadata.IssueKey, doc.Metadata.Version, doc.Metadata.Timestamp)

	b.WriteString("## Project Overview\n\n")
	fmt.Fprintf(&b, "%s\n\n", doc.ProjectOverview.Description)
	if doc.ProjectOverview.ProjectType != "" {
		fmt.Fprintf(&b, "- **Type:** %s\n", doc.ProjectOverview.ProjectType)
	}
	if doc.ProjectOverview.Architecture != "" {
		fmt.Fprintf(&b, "- **Architecture:** %s\n", doc.ProjectOverview.Architecture)
	}
	b.WriteString("\n## Implementation Plan\n\n")
	for i, phase := range doc.ImplementationPlan {
		fmt.Fprintf(&b, "%d. **%s**\n", i+1, phase.Phase)
		for _, task := range phase.Tasks {
			fmt.Fprintf(&b, "   - %s\n", task)
		}
	}
	b.WriteString("\n## File Structure\n\n")
	for _, f := range doc.FileStructure.Files {
		fmt.Fprintf(&b, "- `%s` (%s): %s\n", f.Filename, f.Type, f.Description)
	}
	if len(doc.DeploymentInstructions) > 0 {
		b.WriteString("\n## Deployment Instructions\n\n")
		for i, step := range doc.DeploymentInstructions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
	}
	return b.String()
}

func formatSubtaskList(subtasks []models.Subtask) string {
	var b strings.Builder
	for _, st := range subtasks {
		fmt.Fprintf(&b, "%d. %s (priority %d, score %.1f)\n", st.ID, st.Description, st.Priority, st.Score)
	}
	return b.String()
}
