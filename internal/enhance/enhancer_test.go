package enhance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screendoc/internal/types"
)

// fakeClient returns scripted replies in order.
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

func testDoc(n int) types.LedgerDocument {
	doc := types.LedgerDocument{SessionID: "sess"}
	for i := 1; i <= n; i++ {
		doc.Steps = append(doc.Steps, types.Step{Seq: i, Action: "ACTION", Motivation: "m", Confidence: 0.8})
	}
	return doc
}

const completenessReplyFixture = `{
  "is_complete": false,
  "clarity_score": 0.72,
  "workflow_type": "report generation",
  "issues": ["step 3 motivation is vague"],
  "suggestions": ["explain why the filter was applied"],
  "unclear_steps": [3, "step 1", "the last one", 99],
  "generalizability": "transfers to similar reporting tools"
}`

func TestAnalyzeParsesReply(t *testing.T) {
	e := New(&fakeClient{replies: []string{completenessReplyFixture}})

	result := e.Analyze(context.Background(), testDoc(4))

	assert.False(t, result.Complete)
	assert.Equal(t, 0.72, result.ClarityScore)
	assert.Equal(t, "report generation", result.WorkflowType)
	assert.Equal(t, []string{"step 3 motivation is vague"}, result.Issues)
	assert.Equal(t, []int{3, 1}, result.UnclearSteps,
		"string refs coerced, unresolvable and out-of-range refs dropped")
}

func TestAnalyzeEmptyLedgerShortCircuits(t *testing.T) {
	client := &fakeClient{}
	e := New(client)

	result := e.Analyze(context.Background(), testDoc(0))

	assert.True(t, result.Complete)
	assert.Equal(t, 0, client.calls, "no analysis call for an empty ledger")
}

func TestAnalyzeDegradesOnTransportFailure(t *testing.T) {
	e := New(&fakeClient{errs: []error{errors.New("down")}})

	result := e.Analyze(context.Background(), testDoc(2))

	assert.False(t, result.Complete)
	assert.Equal(t, 0.5, result.ClarityScore)
	assert.NotEmpty(t, result.Issues)
}

func TestAnalyzeDegradesOnUnparseableReply(t *testing.T) {
	e := New(&fakeClient{replies: []string{"the workflow looks fine to me"}})

	result := e.Analyze(context.Background(), testDoc(2))
	assert.False(t, result.Complete)
	assert.NotEmpty(t, result.Issues)
}

func TestAnalyzeClampsScore(t *testing.T) {
	e := New(&fakeClient{replies: []string{`{"is_complete": true, "clarity_score": 7.5}`}})

	result := e.Analyze(context.Background(), testDoc(1))
	assert.Equal(t, 1.0, result.ClarityScore)
}

func TestGenerateQuestions(t *testing.T) {
	e := New(&fakeClient{replies: []string{`{"questions": ["q1", "q2", "q3", "q4"]}`}})

	questions := e.GenerateQuestions(context.Background(), testDoc(3), types.EnhancementResult{})
	assert.Equal(t, []string{"q1", "q2", "q3", "q4"}, questions)
}

func TestGenerateQuestionsClampsToMax(t *testing.T) {
	e := New(&fakeClient{replies: []string{
		`{"questions": ["1","2","3","4","5","6","7","8","9"]}`,
	}})

	questions := e.GenerateQuestions(context.Background(), testDoc(3), types.EnhancementResult{})
	assert.Len(t, questions, maxQuestions)
}

func TestGenerateQuestionsFallback(t *testing.T) {
	e := New(&fakeClient{errs: []error{errors.New("down")}})

	result := types.EnhancementResult{UnclearSteps: []int{2}}
	questions := e.GenerateQuestions(context.Background(), testDoc(3), result)

	require.NotEmpty(t, questions)
	assert.GreaterOrEqual(t, len(questions), minQuestions)
	assert.Contains(t, questions[len(questions)-1], "Step 2")
}

func TestRefineMergesAnswers(t *testing.T) {
	e := New(&fakeClient{replies: []string{`{
  "is_complete": true,
  "clarity_score": 0.9,
  "issues": [],
  "suggestions": [],
  "unclear_steps": [],
  "generalizability": "broadly applicable"
}`}})

	prev := types.EnhancementResult{
		Complete:     false,
		ClarityScore: 0.6,
		WorkflowType: "report generation",
		Issues:       []string{"vague"},
		Round:        1,
	}
	answers := []types.QA{{Question: "q", Answer: "a"}}

	result := e.Refine(context.Background(), testDoc(2), answers, prev)

	assert.True(t, result.Complete)
	assert.Equal(t, 0.9, result.ClarityScore)
	assert.Empty(t, result.Issues)
	assert.Equal(t, "report generation", result.WorkflowType, "missing type carries over from the previous round")
	assert.Equal(t, 1, result.Round, "the machine owns round numbering")
}

func TestRefineKeepsPreviousResultOnFailure(t *testing.T) {
	prev := types.EnhancementResult{
		Complete:     false,
		ClarityScore: 0.6,
		Issues:       []string{"vague"},
	}

	e := New(&fakeClient{errs: []error{errors.New("down")}})
	result := e.Refine(context.Background(), testDoc(2), nil, prev)
	assert.Equal(t, prev, result)

	e = New(&fakeClient{replies: []string{"not json at all"}})
	result = e.Refine(context.Background(), testDoc(2), nil, prev)
	assert.Equal(t, prev, result)
}

func TestCoerceStepRefs(t *testing.T) {
	refs := []interface{}{
		float64(2),
		"step 5",
		"Step #1",
		"no digits",
		float64(0),   // below range
		float64(100), // above range
		float64(2),   // duplicate
		true,         // wrong type
	}
	assert.Equal(t, []int{2, 5, 1}, coerceStepRefs(refs, 10))
}
