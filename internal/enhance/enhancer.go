// Package enhance re-analyzes a completed session as a whole: it judges
// how well the step ledger documents the workflow, generates targeted
// refinement questions for the human, and folds their answers back into
// an improved assessment.
package enhance

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"screendoc/internal/gateway"
	"screendoc/internal/logging"
	"screendoc/internal/types"
)

// question count bounds per refinement round.
const (
	minQuestions = 3
	maxQuestions = 7
)

// Enhancer runs whole-session analysis through the shared LLM client.
type Enhancer struct {
	client gateway.LLMClient
}

// New creates an enhancer over the given client.
func New(client gateway.LLMClient) *Enhancer {
	return &Enhancer{client: client}
}

// completenessReply is the schema the completeness instruction asks for.
// unclear_steps arrives as numbers or strings like "step 3" depending on
// the model's mood, so it is decoded loosely.
type completenessReply struct {
	IsComplete       bool          `json:"is_complete"`
	ClarityScore     float64       `json:"clarity_score"`
	WorkflowType     string        `json:"workflow_type"`
	Issues           []string      `json:"issues"`
	Suggestions      []string      `json:"suggestions"`
	UnclearSteps     []interface{} `json:"unclear_steps"`
	Generalizability string        `json:"generalizability"`
}

type questionsReply struct {
	Questions []string `json:"questions"`
}

// Analyze evaluates how completely the ledger documents the workflow.
// Never fails: an empty ledger short-circuits, and transport or parse
// problems degrade into a conservative incomplete result.
func (e *Enhancer) Analyze(ctx context.Context, doc types.LedgerDocument) types.EnhancementResult {
	timer := logging.StartTimer(logging.CategoryEnhance, "Analyze")
	defer timer.Stop()

	if len(doc.Steps) == 0 {
		return types.EnhancementResult{
			Complete:     true,
			ClarityScore: 0,
			Issues:       []string{"workflow has no recorded steps"},
		}
	}

	reply, err := e.client.CompleteWithSystem(ctx, completenessSystem, buildCompletenessPrompt(doc))
	if err != nil {
		logging.Get(logging.CategoryEnhance).Warn("completeness analysis failed: %v", err)
		return fallbackResult(doc)
	}

	var parsed completenessReply
	if perr := gateway.DecodeLoose(reply, &parsed); perr != nil {
		logging.Get(logging.CategoryEnhance).Warn("completeness reply unparseable: %v", perr)
		return fallbackResult(doc)
	}

	result := types.EnhancementResult{
		Complete:         parsed.IsComplete,
		ClarityScore:     clampScore(parsed.ClarityScore),
		WorkflowType:     parsed.WorkflowType,
		Issues:           parsed.Issues,
		Suggestions:      parsed.Suggestions,
		UnclearSteps:     coerceStepRefs(parsed.UnclearSteps, len(doc.Steps)),
		Generalizability: parsed.Generalizability,
	}
	logging.Enhance("completeness: complete=%v clarity=%.2f issues=%d unclear=%d",
		result.Complete, result.ClarityScore, len(result.Issues), len(result.UnclearSteps))
	return result
}

// GenerateQuestions asks for 3-7 prioritized refinement questions about
// the result's weak spots. Falls back to generic template questions when
// the reply is unusable, so refinement is never silently skipped.
func (e *Enhancer) GenerateQuestions(ctx context.Context, doc types.LedgerDocument, result types.EnhancementResult) []string {
	reply, err := e.client.CompleteWithSystem(ctx, questionsSystem, buildQuestionsPrompt(doc, result))
	if err != nil {
		logging.Get(logging.CategoryEnhance).Warn("question generation failed: %v", err)
		return fallbackQuestions(result)
	}

	var parsed questionsReply
	if perr := gateway.DecodeLoose(reply, &parsed); perr != nil || len(parsed.Questions) == 0 {
		logging.EnhanceDebug("question reply unparseable, using fallback questions")
		return fallbackQuestions(result)
	}

	questions := parsed.Questions
	if len(questions) > maxQuestions {
		questions = questions[:maxQuestions]
	}
	return questions
}

// Refine folds the accumulated question/answer context into an improved
// assessment. On any failure the previous result is returned unchanged,
// so a refinement round can never make the assessment worse through a
// transport hiccup.
func (e *Enhancer) Refine(ctx context.Context, doc types.LedgerDocument, answers []types.QA, prev types.EnhancementResult) types.EnhancementResult {
	timer := logging.StartTimer(logging.CategoryEnhance, "Refine")
	defer timer.Stop()

	reply, err := e.client.CompleteWithSystem(ctx, refineSystem, buildRefinePrompt(doc, answers, prev))
	if err != nil {
		logging.Get(logging.CategoryEnhance).Warn("refinement call failed, keeping previous result: %v", err)
		return prev
	}

	var parsed completenessReply
	if perr := gateway.DecodeLoose(reply, &parsed); perr != nil {
		logging.Get(logging.CategoryEnhance).Warn("refinement reply unparseable, keeping previous result: %v", perr)
		return prev
	}

	result := types.EnhancementResult{
		Complete:         parsed.IsComplete,
		ClarityScore:     clampScore(parsed.ClarityScore),
		WorkflowType:     parsed.WorkflowType,
		Issues:           parsed.Issues,
		Suggestions:      parsed.Suggestions,
		UnclearSteps:     coerceStepRefs(parsed.UnclearSteps, len(doc.Steps)),
		Generalizability: parsed.Generalizability,
		Round:            prev.Round,
	}
	if result.WorkflowType == "" {
		result.WorkflowType = prev.WorkflowType
	}
	logging.Enhance("refined: complete=%v clarity=%.2f issues=%d (was %d)",
		result.Complete, result.ClarityScore, len(result.Issues), len(prev.Issues))
	return result
}

// fallbackResult is the degraded assessment when the analysis itself
// could not run: incomplete, middle clarity, one honest issue.
func fallbackResult(doc types.LedgerDocument) types.EnhancementResult {
	return types.EnhancementResult{
		Complete:     false,
		ClarityScore: 0.5,
		Issues:       []string{"automated completeness analysis was unavailable"},
		Suggestions:  []string{fmt.Sprintf("manually review the %d recorded steps for clarity", len(doc.Steps))},
	}
}

// fallbackQuestions are generic but still useful when question
// generation fails; unclear-step references get a targeted question.
func fallbackQuestions(result types.EnhancementResult) []string {
	questions := []string{
		"What was the overall goal of this workflow?",
		"Were any important steps missing from the recording?",
		"Which parts of this workflow would differ on another system or account?",
	}
	for _, seq := range result.UnclearSteps {
		if len(questions) >= maxQuestions {
			break
		}
		questions = append(questions, fmt.Sprintf("Step %d was unclear - what were you doing there, and why?", seq))
	}
	return questions
}

var stepRefDigits = regexp.MustCompile(`\d+`)

// coerceStepRefs normalizes unclear-step references to sequence numbers.
// Accepts raw numbers and strings like "step 3"; anything outside the
// ledger's assigned range is dropped.
func coerceStepRefs(refs []interface{}, total int) []int {
	var out []int
	seen := make(map[int]bool)
	for _, ref := range refs {
		var seq int
		switch v := ref.(type) {
		case float64:
			seq = int(v)
		case string:
			match := stepRefDigits.FindString(v)
			if match == "" {
				continue
			}
			seq, _ = strconv.Atoi(match)
		default:
			continue
		}
		if seq < 1 || seq > total || seen[seq] {
			continue
		}
		seen[seq] = true
		out = append(out, seq)
	}
	return out
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

const completenessSystem = `You are a workflow documentation analyst reviewing a recorded sequence of user steps.
Evaluate the documentation against five criteria: workflow coherence, action clarity, motivation depth, generalizability, and overall documentation quality.
Respond with ONLY a JSON object, no prose, no markdown fences.`

func buildCompletenessPrompt(doc types.LedgerDocument) string {
	var sb strings.Builder
	sb.WriteString("## Recorded Workflow\n\n")
	sb.WriteString(renderLedger(doc))
	sb.WriteString("\n\n## Task\n\n")
	sb.WriteString("Assess how completely and clearly these steps document the workflow.\n")
	sb.WriteString("Respond in exactly this JSON format:\n")
	sb.WriteString(`{
  "is_complete": false,
  "clarity_score": 0.0,
  "workflow_type": "general classification of this workflow",
  "issues": ["specific problems with the documentation"],
  "suggestions": ["concrete improvements"],
  "unclear_steps": [1, 2],
  "generalizability": "how well this would transfer to other systems"
}`)
	return sb.String()
}

const questionsSystem = `You generate refinement questions that help a human improve workflow documentation.
Prioritize questions by impact: unclear steps first, then missing motivations, then generalization gaps.
Respond with ONLY a JSON object, no prose, no markdown fences.`

func buildQuestionsPrompt(doc types.LedgerDocument, result types.EnhancementResult) string {
	var sb strings.Builder
	sb.WriteString("## Recorded Workflow\n\n")
	sb.WriteString(renderLedger(doc))
	sb.WriteString("\n\n## Documentation Assessment\n\n")
	fmt.Fprintf(&sb, "Clarity score: %.2f\n", result.ClarityScore)
	for _, issue := range result.Issues {
		fmt.Fprintf(&sb, "Issue: %s\n", issue)
	}
	for _, seq := range result.UnclearSteps {
		fmt.Fprintf(&sb, "Unclear step: %d\n", seq)
	}
	fmt.Fprintf(&sb, "\nGenerate between %d and %d prioritized questions for the user.\n", minQuestions, maxQuestions)
	sb.WriteString("Respond in exactly this JSON format:\n")
	sb.WriteString(`{"questions": ["question 1", "question 2", "question 3"]}`)
	return sb.String()
}

const refineSystem = `You improve a workflow documentation assessment using answers the user provided.
Resolve issues the answers address, keep issues they do not, and update the clarity score honestly.
Respond with ONLY a JSON object, no prose, no markdown fences.`

func buildRefinePrompt(doc types.LedgerDocument, answers []types.QA, prev types.EnhancementResult) string {
	var sb strings.Builder
	sb.WriteString("## Recorded Workflow\n\n")
	sb.WriteString(renderLedger(doc))
	sb.WriteString("\n\n## Previous Assessment\n\n")
	fmt.Fprintf(&sb, "Complete: %v, clarity: %.2f\n", prev.Complete, prev.ClarityScore)
	for _, issue := range prev.Issues {
		fmt.Fprintf(&sb, "Issue: %s\n", issue)
	}
	sb.WriteString("\n## User Answers\n\n")
	for _, qa := range answers {
		fmt.Fprintf(&sb, "Q: %s\nA: %s\n\n", qa.Question, qa.Answer)
	}
	sb.WriteString("Re-assess the documentation with this new context.\n")
	sb.WriteString("Respond in exactly this JSON format:\n")
	sb.WriteString(`{
  "is_complete": false,
  "clarity_score": 0.0,
  "workflow_type": "general classification of this workflow",
  "issues": ["remaining problems"],
  "suggestions": ["remaining improvements"],
  "unclear_steps": [],
  "generalizability": "updated transferability assessment"
}`)
	return sb.String()
}

// renderLedger renders the ledger steps as prompt text.
func renderLedger(doc types.LedgerDocument) string {
	var sb strings.Builder
	for _, step := range doc.Steps {
		fmt.Fprintf(&sb, "Step %d: %s\n", step.Seq, step.Action)
		fmt.Fprintf(&sb, "  Motivation: %s\n", step.Motivation)
		fmt.Fprintf(&sb, "  Confidence: %.2f\n", step.Confidence)
		if step.Clarification != "" {
			fmt.Fprintf(&sb, "  User clarification: %s\n", step.Clarification)
		}
	}
	return sb.String()
}
