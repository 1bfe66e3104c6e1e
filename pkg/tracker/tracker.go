// Package tracker adapts the external work tracker. The core consumes the
// Port interface; the HTTP adapter speaks a Jira-flavored REST API.
package tracker

import (
	"context"
	"errors"

	"github.com/taskforge/taskforge/pkg/models"
)

// ErrUnavailable indicates the tracker could not be reached.
var ErrUnavailable = errors.New("tracker unavailable")

// Port lists to-do issues and transitions issue status. Transition
// failures are logged by callers but never fail the pipeline.
type Port interface {
	ListTodo(ctx context.Context, project string) ([]models.Issue, error)
	Transition(ctx context.Context, issueKey, transitionName string) error
}
