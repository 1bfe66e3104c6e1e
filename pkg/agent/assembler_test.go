package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/taskforge/pkg/jsonx"
	"github.com/taskforge/taskforge/pkg/models"
	"github.com/taskforge/taskforge/pkg/prompt"
)

const assemblerResponse = `{
	"metadata": {"issue_key": "DEMO-1", "version": "1.0", "timestamp": "2026-08-24T10:00:00Z"},
	"project_overview": {"title": "Version flag", "description": "CLI version printing", "project_type": "cli", "architecture": "single module"},
	"implementation_plan": [{"phase": "implement", "tasks": ["add flag", "print version"]}],
	"file_structure": {"files": [{"filename": "cli.py", "type": "python", "description": "entry point"}], "file_types": ["python"]},
	"technical_specifications": {"cli.py": "argparse with --version"},
	"deployment_instructions": ["run python cli.py"]
}`

func TestAssembleBuildsDocument(t *testing.T) {
	client := &fakeLLM{handler: func(_, _ string) (string, int, error) {
		return "```json\n" + assemblerResponse + "\n```", 30, nil
	}}
	a := NewAssembler(client, prompt.NewRegistry())

	result, err := a.Assemble(context.Background(), testIssue, []models.Subtask{
		{ID: 1, Description: "add flag", Priority: 1, Score: 9},
	})
	require.NoError(t, err)
	assert.Equal(t, "DEMO-1", result.Document.Metadata.IssueKey)
	require.Len(t, result.Document.FileStructure.Files, 1)
	assert.Equal(t, "cli.py", result.Document.FileStructure.Files[0].Filename)
	assert.Equal(t, 30, result.TokensUsed)

	assert.Contains(t, result.Markdown, "# Deployment Document: Version flag")
	assert.Contains(t, result.Markdown, "`cli.py`")
	assert.Contains(t, result.Markdown, "## Implementation Plan")
}

func TestAssembleSynthesizesDefaultFile(t *testing.T) {
	client := &fakeLLM{handler: func(_, _ string) (string, int, error) {
		return `{"metadata": {}, "project_overview": {}, "implementation_plan": [], "file_structure": {"files": []}}`, 5, nil
	}}
	a := NewAssembler(client, prompt.NewRegistry())

	result, err := a.Assemble(context.Background(), testIssue, nil)
	require.NoError(t, err)
	require.Len(t, result.Document.FileStructure.Files, 1)
	assert.Equal(t, "add_cli_version_flag.py", result.Document.FileStructure.Files[0].Filename)
	assert.Equal(t, testIssue.Title, result.Document.ProjectOverview.Title)
}

func TestAssembleDropsUnknownTechnicalSpecs(t *testing.T) {
	client := &fakeLLM{handler: func(_, _ string) (string, int, error) {
		return `{
			"metadata": {"issue_key": "DEMO-1"},
			"project_overview": {"title": "x", "description": "y"},
			"implementation_plan": [],
			"file_structure": {"files": [{"filename": "cli.py", "type": "python", "description": "d"}]},
			"technical_specifications": {"cli.py": "ok", "ghost.py": "not listed"}
		}`, 5, nil
	}}
	a := NewAssembler(client, prompt.NewRegistry())

	result, err := a.Assemble(context.Background(), testIssue, nil)
	require.NoError(t, err)
	assert.Contains(t, result.Document.TechnicalSpecifications, "cli.py")
	assert.NotContains(t, result.Document.TechnicalSpecifications, "ghost.py")
}

func TestAssembleMalformedOutputFails(t *testing.T) {
	client := &fakeLLM{handler: func(_, _ string) (string, int, error) {
		return "I cannot produce a document.", 5, nil
	}}
	a := NewAssembler(client, prompt.NewRegistry())

	_, err := a.Assemble(context.Background(), testIssue, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAssemblyFailed)
}

func TestDocumentJSONRoundTrip(t *testing.T) {
	var doc models.DeploymentDocument
	require.NoError(t, jsonx.Extract(assemblerResponse, &doc))

	rendered, err := json.Marshal(doc)
	require.NoError(t, err)

	var again models.DeploymentDocument
	require.NoError(t, jsonx.Extract(string(rendered), &again))
	assert.Equal(t, doc, again)
}
