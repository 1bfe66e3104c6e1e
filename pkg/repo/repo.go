// Package repo adapts the source repository host. The core consumes the
// Port interface; the HTTP adapter speaks a GitHub-flavored REST API.
package repo

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the repository host could not be reached.
var ErrUnavailable = errors.New("repo unavailable")

// Port covers the three repository operations the pipeline needs. All
// operations are idempotent: ensuring an existing branch, re-putting the
// same file and re-upserting an identical PR are no-ops.
type Port interface {
	EnsureBranch(ctx context.Context, name string) error
	PutFile(ctx context.Context, branch, path, content string) error
	UpsertPR(ctx context.Context, branch, base, title, body string) (string, error)
}
