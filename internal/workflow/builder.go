// Package workflow holds the phase state machine and the context
// builder: the orchestration core that drives the capture, analyze,
// clarify, continuation, and enhancement cycle for one session.
package workflow

import (
	"context"

	"screendoc/internal/ledger"
	"screendoc/internal/types"
)

// DefaultWindowSize bounds the context window when no size is configured.
const DefaultWindowSize = 5

// TypeInferrer classifies the overall activity from the full ledger.
// Implemented by the analysis gateway; failures yield "Unknown".
type TypeInferrer interface {
	InferWorkflowType(ctx context.Context, steps []types.Step) string
}

// Builder assembles bounded context windows from the step ledger. The
// window is a snapshot: ledger mutations after Snapshot returns never
// change a window already handed to an in-flight analysis call.
type Builder struct {
	ledger   *ledger.Ledger
	inferrer TypeInferrer
	window   int
}

// NewBuilder creates a context builder over the given ledger. A window
// size below 1 falls back to the default.
func NewBuilder(l *ledger.Ledger, inf TypeInferrer, window int) *Builder {
	if window < 1 {
		window = DefaultWindowSize
	}
	return &Builder{ledger: l, inferrer: inf, window: window}
}

// Snapshot returns the most-recent-N steps plus a workflow-type label
// recomputed from the entire ledger. The type inference is non-critical:
// it only runs once two steps exist, and its failure mode is the
// "Unknown" label, never a stall.
func (b *Builder) Snapshot(ctx context.Context) types.ContextWindow {
	steps := b.ledger.Recent(b.window)
	total := b.ledger.Len()

	workflowType := ""
	if total >= 2 && b.inferrer != nil {
		workflowType = b.inferrer.InferWorkflowType(ctx, b.ledger.All())
	}

	return types.ContextWindow{
		Steps:        steps,
		WorkflowType: workflowType,
		TotalSteps:   total,
	}
}
