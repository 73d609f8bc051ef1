package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"screendoc/internal/logging"
	"screendoc/internal/types"
)

// Error marks a transport-level gateway failure after retry exhaustion.
// The state machine treats it as "skip this capture, continue loop".
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsGatewayError reports whether err is a transport-level gateway failure.
func IsGatewayError(err error) bool {
	var ge *Error
	return errors.As(err, &ge)
}

// call retry bounds; backoff doubles per attempt.
const (
	maxAttempts    = 3
	initialBackoff = time.Second
)

// Gateway normalizes the external analysis capability into structured
// step candidates and clarification judgments.
type Gateway struct {
	client      LLMClient
	sensitivity string
}

// New creates a gateway over the given client.
func New(client LLMClient, sensitivity string) *Gateway {
	if sensitivity == "" {
		sensitivity = "conservative"
	}
	return &Gateway{client: client, sensitivity: sensitivity}
}

// Analyze interprets one capture in context. On a well-formed reply the
// candidate maps the reply fields; on an unparseable reply the candidate
// is degraded (confidence 0, sentinel action, raw reply preserved) and
// err is nil; degraded candidates are appended, never dropped. A
// non-nil error means transport failure after retries: skip the tick.
func (g *Gateway) Analyze(ctx context.Context, ref types.CaptureRef, window types.ContextWindow) (*types.StepCandidate, error) {
	timer := logging.StartTimer(logging.CategoryGateway, "Analyze")
	defer timer.Stop()

	prompt := buildAnalysisPrompt(window)

	reply, err := g.callWithRetry(ctx, "analyze", func(ctx context.Context) (string, error) {
		return g.client.CompleteWithVision(ctx, analysisSystem, prompt, ref.Path)
	})
	if err != nil {
		return nil, err
	}

	var parsed analysisReply
	if err := decodeReply(reply, &parsed); err != nil {
		logging.GatewayWarn("analysis reply unparseable, degrading: %v", err)
		return degradedCandidate(reply), nil
	}
	if parsed.Action == "" {
		// Parsed JSON but not our schema; treat as tier-3 failure.
		logging.GatewayWarn("analysis reply missing action field, degrading")
		return degradedCandidate(reply), nil
	}

	ui := parsed.UIElements
	if ui == nil {
		ui = []string{}
	}
	return &types.StepCandidate{
		Action:      parsed.Action,
		Motivation:  parsed.Motivation,
		UIElements:  ui,
		Confidence:  certaintyToScore(parsed.CertaintyLevel),
		Progression: parsed.Progression,
		Rationale:   parsed.AnalysisNotes,
	}, nil
}

// ShouldClarify judges whether the step is ambiguous enough to warrant
// a human question. Any failure here defaults to (false, ""): the
// pipeline never blocks on clarification assessment.
func (g *Gateway) ShouldClarify(ctx context.Context, cand types.StepCandidate, window types.ContextWindow) (bool, string) {
	prompt := buildClarifyPrompt(cand, window, g.sensitivity)

	reply, err := g.callWithRetry(ctx, "should_clarify", func(ctx context.Context) (string, error) {
		return g.client.CompleteWithSystem(ctx, clarifySystem, prompt)
	})
	if err != nil {
		logging.GatewayWarn("clarification assessment failed, assuming none needed: %v", err)
		return false, ""
	}

	var parsed clarifyReply
	if err := decodeReply(reply, &parsed); err != nil {
		logging.GatewayWarn("clarification reply unparseable, assuming none needed: %v", err)
		return false, ""
	}
	if !parsed.NeedsClarification || parsed.Question == "" {
		return false, ""
	}
	logging.Gateway("clarification requested (focus=%s)", parsed.Focus)
	return true, parsed.Question
}

// IntegrateAnswer rewrites a candidate from a human clarification
// answer. Confidence is forced to 1.0: the human said so. On any
// failure the raw answer becomes the motivation behind a sentinel
// action, so the answer is never lost.
func (g *Gateway) IntegrateAnswer(ctx context.Context, question, answer string, window types.ContextWindow) *types.StepCandidate {
	prompt := buildIntegrationPrompt(question, answer, window)

	reply, err := g.callWithRetry(ctx, "integrate", func(ctx context.Context) (string, error) {
		return g.client.CompleteWithSystem(ctx, integrationSystem, prompt)
	})
	if err == nil {
		var parsed integrationReply
		if perr := decodeReply(reply, &parsed); perr == nil && parsed.Action != "" {
			ui := parsed.UIElements
			if ui == nil {
				ui = []string{}
			}
			return &types.StepCandidate{
				Action:      parsed.Action,
				Motivation:  parsed.Motivation,
				UIElements:  ui,
				Confidence:  1.0,
				Progression: parsed.Integration,
				Rationale:   parsed.Rationale,
			}
		}
	}

	logging.GatewayWarn("answer integration failed, falling back to raw answer")
	return &types.StepCandidate{
		Action:     "USER_PROVIDED_ACTION",
		Motivation: answer,
		UIElements: []string{},
		Confidence: 1.0,
	}
}

// InferWorkflowType classifies the overall activity from the full
// ledger. Non-critical: any failure returns "Unknown" without retrying
// beyond the usual bounds, and the pipeline carries on.
func (g *Gateway) InferWorkflowType(ctx context.Context, steps []types.Step) string {
	if len(steps) == 0 {
		return "Unknown"
	}
	reply, err := g.client.Complete(ctx, buildWorkflowTypePrompt(steps))
	if err != nil || reply == "" {
		logging.GatewayDebug("workflow type inference failed: %v", err)
		return "Unknown"
	}
	return reply
}

// Client exposes the underlying LLM client for collaborators that issue
// their own instructions (the enhancement engine).
func (g *Gateway) Client() LLMClient {
	return g.client
}

// callWithRetry runs one gateway call with bounded exponential backoff.
// Cancellation is observed at retry boundaries, not mid-call: an
// already-sent request is allowed to finish.
func (g *Gateway) callWithRetry(ctx context.Context, op string, call func(context.Context) (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := initialBackoff << uint(attempt-1)
			select {
			case <-ctx.Done():
				return "", &Error{Op: op, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}
		reply, err := call(ctx)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		logging.GatewayWarn("%s attempt %d/%d failed: %v", op, attempt+1, maxAttempts, err)
	}
	return "", &Error{Op: op, Err: lastErr}
}
