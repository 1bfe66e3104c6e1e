package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenDescriptionPlainText(t *testing.T) {
	assert.Equal(t, "just text", FlattenDescription("just text"))
}

func TestFlattenDescriptionNil(t *testing.T) {
	assert.Equal(t, "", FlattenDescription(nil))
}

func TestFlattenDescriptionStructured(t *testing.T) {
	doc := map[string]any{
		"type": "doc",
		"content": []any{
			map[string]any{
				"type": "heading",
				"content": []any{
					map[string]any{"type": "text", "text": "Requirements"},
				},
			},
			map[string]any{
				"type": "paragraph",
				"content": []any{
					map[string]any{"type": "text", "text": "Build a "},
					map[string]any{"type": "text", "text": "CLI tool."},
				},
			},
			map[string]any{
				"type": "bulletList",
				"content": []any{
					map[string]any{
						"type": "listItem",
						"content": []any{
							map[string]any{
								"type": "paragraph",
								"content": []any{
									map[string]any{"type": "text", "text": "flag parsing"},
								},
							},
						},
					},
				},
			},
		},
	}
	got := FlattenDescription(doc)
	assert.Equal(t, "Requirements\nBuild a CLI tool.\nflag parsing", got)
}

func TestFlattenDescriptionCollapsesBlankRuns(t *testing.T) {
	assert.Equal(t, "a\n\nb", FlattenDescription("a\n\n\n\n\nb"))
}

func TestListTodo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("jql"), "DEMO")
		resp := map[string]any{
			"issues": []map[string]any{
				{
					"key": "DEMO-1",
					"fields": map[string]any{
						"summary": "Add CLI --version flag",
						"description": map[string]any{
							"type": "doc",
							"content": []any{
								map[string]any{
									"type": "paragraph",
									"content": []any{
										map[string]any{"type": "text", "text": "Print the program version."},
									},
								},
							},
						},
						"status":    map[string]any{"name": "To Do"},
						"priority":  map[string]any{"name": "High"},
						"issuetype": map[string]any{"name": "Task"},
					},
				},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bot@example.com", "token")
	issues, err := c.ListTodo(context.Background(), "DEMO")
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "DEMO-1", issues[0].Key)
	assert.Equal(t, "Add CLI --version flag", issues[0].Title)
	assert.Equal(t, "Print the program version.", issues[0].Description)
}

func TestListTodoUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bot@example.com", "token")
	_, err := c.ListTodo(context.Background(), "DEMO")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestTransitionResolvesByName(t *testing.T) {
	var posted map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"transitions": []map[string]any{
					{"id": "11", "name": "In Progress"},
					{"id": "31", "name": "Done"},
				},
			})
		case http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bot@example.com", "token")
	require.NoError(t, c.Transition(context.Background(), "DEMO-1", "done"))
	assert.Equal(t, map[string]any{"transition": map[string]any{"id": "31"}}, posted)
}

func TestTransitionUnknownName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"transitions": []map[string]any{}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bot@example.com", "token")
	err := c.Transition(context.Background(), "DEMO-1", "done")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no transition")
}
