package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screendoc/internal/types"
)

// fakeClient scripts replies per call; an empty script returns an error.
type fakeClient struct {
	replies []string
	errs    []error
	calls   int
}

func (f *fakeClient) next() (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return "", errors.New("no scripted reply")
}

func (f *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	return f.next()
}

func (f *fakeClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	return f.next()
}

func (f *fakeClient) CompleteWithVision(ctx context.Context, system, user, imagePath string) (string, error) {
	return f.next()
}

var testRef = types.CaptureRef{ID: "cap_1", Path: "/tmp/cap_1.png"}

func TestAnalyzeWellFormed(t *testing.T) {
	g := New(&fakeClient{replies: []string{wellFormedReply}}, "conservative")

	cand, err := g.Analyze(context.Background(), testRef, types.ContextWindow{})
	require.NoError(t, err)

	assert.Equal(t, "USER SELECTED FROM DROPDOWN", cand.Action)
	assert.Equal(t, 0.9, cand.Confidence)
	assert.Equal(t, "narrows the report scope", cand.Progression)
}

func TestAnalyzeDegradesOnUnparseable(t *testing.T) {
	raw := "I see a browser window but cannot describe it in your format."
	g := New(&fakeClient{replies: []string{raw}}, "conservative")

	cand, err := g.Analyze(context.Background(), testRef, types.ContextWindow{})
	require.NoError(t, err, "degraded candidates come back with nil error")

	assert.Equal(t, types.DegradedAction, cand.Action)
	assert.Equal(t, 0.0, cand.Confidence)
	assert.Equal(t, raw, cand.Rationale)
}

func TestAnalyzeDegradesOnWrongSchema(t *testing.T) {
	g := New(&fakeClient{replies: []string{`{"something": "else"}`}}, "conservative")

	cand, err := g.Analyze(context.Background(), testRef, types.ContextWindow{})
	require.NoError(t, err)
	assert.Equal(t, types.DegradedAction, cand.Action)
}

func TestAnalyzeRetriesThenSucceeds(t *testing.T) {
	boom := errors.New("transport down")
	client := &fakeClient{
		errs:    []error{boom, boom, nil},
		replies: []string{"", "", wellFormedReply},
	}
	g := New(client, "conservative")

	cand, err := g.Analyze(context.Background(), testRef, types.ContextWindow{})
	require.NoError(t, err)
	assert.Equal(t, "USER SELECTED FROM DROPDOWN", cand.Action)
	assert.Equal(t, 3, client.calls)
}

func TestAnalyzeExhaustionReturnsGatewayError(t *testing.T) {
	boom := errors.New("transport down")
	client := &fakeClient{errs: []error{boom, boom, boom}}
	g := New(client, "conservative")

	_, err := g.Analyze(context.Background(), testRef, types.ContextWindow{})
	require.Error(t, err)
	assert.True(t, IsGatewayError(err))
	assert.Equal(t, maxAttempts, client.calls)
}

func TestShouldClarifyYes(t *testing.T) {
	reply := `{
  "needs_clarification": true,
  "confidence_assessment": "motivation is ambiguous",
  "clarification_question": "Why did you open the settings page?",
  "clarification_focus": "motivation"
}`
	g := New(&fakeClient{replies: []string{reply}}, "balanced")

	need, question := g.ShouldClarify(context.Background(), types.StepCandidate{Action: "OPENED SETTINGS"}, types.ContextWindow{})
	assert.True(t, need)
	assert.Equal(t, "Why did you open the settings page?", question)
}

func TestShouldClarifyFailureDefaultsToNo(t *testing.T) {
	g := New(&fakeClient{errs: []error{errors.New("down"), errors.New("down"), errors.New("down")}}, "conservative")

	need, question := g.ShouldClarify(context.Background(), types.StepCandidate{}, types.ContextWindow{})
	assert.False(t, need)
	assert.Empty(t, question)
}

func TestShouldClarifyUnparseableDefaultsToNo(t *testing.T) {
	g := New(&fakeClient{replies: []string{"hmm, maybe?"}}, "conservative")

	need, _ := g.ShouldClarify(context.Background(), types.StepCandidate{}, types.ContextWindow{})
	assert.False(t, need)
}

func TestIntegrateAnswer(t *testing.T) {
	reply := `{
  "action": "USER CONFIGURED EXPORT FORMAT",
  "motivation": "preparing a monthly report for the team",
  "ui_elements": ["dialog"],
  "workflow_integration": "sets up the final export",
  "confidence_rationale": "stated directly by the user"
}`
	g := New(&fakeClient{replies: []string{reply}}, "conservative")

	cand := g.IntegrateAnswer(context.Background(), "What were you doing?", "setting up the monthly export", types.ContextWindow{})
	require.NotNil(t, cand)
	assert.Equal(t, "USER CONFIGURED EXPORT FORMAT", cand.Action)
	assert.Equal(t, 1.0, cand.Confidence, "human answers are authoritative")
}

func TestIntegrateAnswerFallsBackToRawAnswer(t *testing.T) {
	g := New(&fakeClient{errs: []error{errors.New("down"), errors.New("down"), errors.New("down")}}, "conservative")

	cand := g.IntegrateAnswer(context.Background(), "q", "I was renaming the project", types.ContextWindow{})
	require.NotNil(t, cand)
	assert.Equal(t, "USER_PROVIDED_ACTION", cand.Action)
	assert.Equal(t, "I was renaming the project", cand.Motivation)
	assert.Equal(t, 1.0, cand.Confidence)
}

func TestInferWorkflowType(t *testing.T) {
	g := New(&fakeClient{replies: []string{"data entry process"}}, "conservative")

	steps := []types.Step{{Seq: 1, Action: "OPENED FORM"}, {Seq: 2, Action: "FILLED FIELD"}}
	assert.Equal(t, "data entry process", g.InferWorkflowType(context.Background(), steps))
}

func TestInferWorkflowTypeFailureIsUnknown(t *testing.T) {
	g := New(&fakeClient{errs: []error{errors.New("down")}}, "conservative")

	steps := []types.Step{{Seq: 1, Action: "OPENED FORM"}}
	assert.Equal(t, "Unknown", g.InferWorkflowType(context.Background(), steps))

	assert.Equal(t, "Unknown", g.InferWorkflowType(context.Background(), nil), "empty ledger short-circuits")
}

func TestCallWithRetryObservesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	boom := errors.New("transport down")
	calls := 0
	g := New(&fakeClient{}, "conservative")
	_, err := g.callWithRetry(ctx, "test", func(ctx context.Context) (string, error) {
		calls++
		cancel() // cancel after the first attempt; the retry boundary must notice
		return "", boom
	})

	require.Error(t, err)
	assert.True(t, IsGatewayError(err))
	assert.Equal(t, 1, calls, "cancellation is observed at the retry boundary")
}
