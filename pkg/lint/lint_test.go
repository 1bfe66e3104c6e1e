package lint

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/taskforge/pkg/models"
)

func TestFilterCosmetic(t *testing.T) {
	findings := []models.LintFinding{
		{File: "a.py", MessageID: "C0301", Symbol: "line-too-long"},
		{File: "a.py", MessageID: "C0303", Symbol: "trailing-whitespace"},
		{File: "a.py", MessageID: "C0304", Symbol: "missing-final-newline"},
		{File: "a.py", MessageID: "E0602", Symbol: "undefined-variable", Message: "Undefined variable 'x'"},
		{File: "a.py", MessageID: "W0611", Symbol: "unused-import"},
	}
	kept := FilterCosmetic(findings)
	require.Len(t, kept, 2)
	assert.Equal(t, "E0602", kept[0].MessageID)
	assert.Equal(t, "W0611", kept[1].MessageID)
}

func TestLintable(t *testing.T) {
	assert.True(t, Lintable("cli.py"))
	assert.False(t, Lintable("index.html"))
	assert.False(t, Lintable("main.go"))
}

func TestClientLint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Files map[string]string `json:"files"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Files, "cli.py")
		json.NewEncoder(w).Encode(map[string]any{
			"findings": []map[string]any{
				{"file": "cli.py", "line": 3, "severity": "error", "message_id": "E0602"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	findings, err := c.Lint(context.Background(), models.GeneratedFileSet{"cli.py": "print(x)"})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "E0602", findings[0].MessageID)
}

func TestClientLintUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Lint(context.Background(), models.GeneratedFileSet{"a.py": ""})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}
