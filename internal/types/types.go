// Package types defines the shared data model for workflow documentation:
// steps, capture references, context windows, and enhancement results.
// All persisted documents serialize from these types.
package types

import "time"

// CaptureRef is an opaque handle to a captured screen artifact.
// The capture collaborator owns the underlying file; everything else
// treats the ref as read-only.
type CaptureRef struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// StepCandidate is an analyzed observation before the ledger assigns
// a sequence number. Produced by the analysis gateway, possibly degraded.
type StepCandidate struct {
	Action      string   `json:"action"`
	Motivation  string   `json:"motivation"`
	UIElements  []string `json:"ui_elements"`
	Confidence  float64  `json:"confidence_score"`
	Progression string   `json:"workflow_progression,omitempty"`
	Rationale   string   `json:"analysis_notes,omitempty"`
}

// Step is one accepted observation in the ledger. Immutable once appended,
// except for a single clarification merge (see ledger.AttachClarification).
type Step struct {
	Seq           int        `json:"step_number"`
	Action        string     `json:"action"`
	Motivation    string     `json:"motivation"`
	UIElements    []string   `json:"ui_elements"`
	Capture       CaptureRef `json:"screenshot"`
	Timestamp     time.Time  `json:"timestamp"`
	Confidence    float64    `json:"confidence_score"`
	Progression   string     `json:"workflow_progression,omitempty"`
	Rationale     string     `json:"analysis_notes,omitempty"`
	Clarification string     `json:"clarification,omitempty"`
}

// Degraded reports whether this step came from the fallback extraction
// tier rather than a well-formed analysis reply.
func (s Step) Degraded() bool {
	return s.Action == DegradedAction
}

// DegradedAction is the sentinel action for steps whose analysis reply
// could not be parsed. Such steps keep the raw reply in Rationale.
const DegradedAction = "UNPARSEABLE"

// ContextWindow is a bounded snapshot of the most recent steps plus a
// workflow-type label inferred from the full ledger. It is derived state:
// later ledger mutations never change a window already handed out.
type ContextWindow struct {
	Steps        []Step `json:"steps"`
	WorkflowType string `json:"workflow_type,omitempty"`
	TotalSteps   int    `json:"total_steps"`
}

// ClarificationRequest asks the human to explain an ambiguous step.
// Seq is 0 while the target step has not been appended yet.
type ClarificationRequest struct {
	Seq      int       `json:"step_number"`
	Question string    `json:"question"`
	RaisedAt time.Time `json:"raised_at"`
}

// EnhancementResult is the outcome of one enhancement analysis round
// over a complete session. Persisted separately from the step ledger.
type EnhancementResult struct {
	Complete         bool     `json:"is_complete"`
	ClarityScore     float64  `json:"clarity_score"`
	WorkflowType     string   `json:"workflow_type,omitempty"`
	Issues           []string `json:"issues"`
	Suggestions      []string `json:"suggestions"`
	UnclearSteps     []int    `json:"unclear_steps"`
	Generalizability string   `json:"generalizability,omitempty"`
	Round            int      `json:"round"`
}

// LedgerDocument is the persisted form of a session's step ledger.
type LedgerDocument struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	Steps     []Step    `json:"steps"`
}

// EnhancementDocument is the persisted form of an enhancement run,
// including the question/answer context the refinement rounds gathered.
type EnhancementDocument struct {
	SessionID  string            `json:"session_id"`
	EnhancedAt time.Time         `json:"enhanced_at"`
	Result     EnhancementResult `json:"result"`
	Context    []QA              `json:"enhancement_context,omitempty"`
}

// QA is one refinement question and the human answer to it.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
