package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskforge/taskforge/pkg/llm"
	"github.com/taskforge/taskforge/pkg/models"
)

// fakeLLM dispatches on prompt content and tracks concurrency.
type fakeLLM struct {
	mu          sync.Mutex
	calls       int
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
	handler     func(prompt, agentName string) (string, int, error)
}

func (f *fakeLLM) Call(ctx context.Context, prompt, agentName string, _ *llm.Options) (string, int, error) {
	cur := f.inFlight.Add(1)
	for {
		max := f.maxInFlight.Load()
		if cur <= max || f.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	defer f.inFlight.Add(-1)

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", 0, ctx.Err()
		}
	}

	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.handler(prompt, agentName)
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func simpleDoc(files ...models.FileEntry) *models.DeploymentDocument {
	return &models.DeploymentDocument{
		Metadata:        models.Metadata{IssueKey: "DEMO-1", Version: "1.0"},
		ProjectOverview: models.ProjectOverview{Title: "demo", Description: "demo project"},
		ImplementationPlan: []models.Phase{
			{Phase: "build", Tasks: []string{"write code"}},
		},
		FileStructure: models.FileStructure{Files: files, FileTypes: []string{"python"}},
	}
}
