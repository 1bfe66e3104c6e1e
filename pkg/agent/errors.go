package agent

import "errors"

// Subgraph-level failure taxonomy. Each node sets the pipeline state's
// error from one of these; routing then diverts to the error terminal.
var (
	ErrPlanningFailed   = errors.New("planning failed")
	ErrAssemblyFailed   = errors.New("assembly failed")
	ErrGenerationFailed = errors.New("generation failed")
	ErrReviewFailed     = errors.New("review failed")
	ErrRebuildExhausted = errors.New("unreviewable after maximum rebuild attempts")
	ErrHumanRejected    = errors.New("rejected by human reviewer")
	ErrCancelled        = errors.New("cancelled")
)
