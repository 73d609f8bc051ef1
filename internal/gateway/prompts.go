package gateway

import (
	"fmt"
	"strings"

	"screendoc/internal/types"
)

const analysisSystem = `You are analyzing a screenshot as part of an ongoing workflow documentation process.
Describe actions in GENERAL terms (e.g. "USER SELECTED FROM DROPDOWN", not the specific value chosen).
Focus on the user's intent and motivation, using the workflow context to infer purpose.
Be honest about uncertainty: if motivation is unclear from context, say so.
Respond with ONLY a JSON object, no prose, no markdown fences.`

const analysisSchema = `{
  "action": "general description of the UI action that occurred",
  "motivation": "the likely reason behind this action based on context",
  "ui_elements": ["list", "of", "ui", "element", "types"],
  "workflow_progression": "how this step advances the overall workflow",
  "certainty_level": "high|medium|low",
  "analysis_notes": "observations, assumptions, areas of uncertainty"
}`

// buildAnalysisPrompt assembles the user prompt for one capture.
func buildAnalysisPrompt(window types.ContextWindow) string {
	var sb strings.Builder
	sb.WriteString("## Workflow Context\n\n")
	sb.WriteString(renderWindow(window))
	sb.WriteString("\n\n## Task\n\n")
	sb.WriteString("Analyze the attached screenshot to understand what happened and why.\n")
	sb.WriteString("Respond in exactly this JSON format:\n")
	sb.WriteString(analysisSchema)
	return sb.String()
}

// renderWindow renders a context window as prompt text.
func renderWindow(window types.ContextWindow) string {
	if len(window.Steps) == 0 {
		return "This is the first step in the workflow - no previous context available."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "WORKFLOW PROGRESS: %d steps completed so far\n", window.TotalSteps)
	sb.WriteString("\nRECENT STEPS:\n")
	for _, step := range window.Steps {
		fmt.Fprintf(&sb, "  Step %d: %s\n", step.Seq, step.Action)
		fmt.Fprintf(&sb, "    Motivation: %s\n", step.Motivation)
	}
	if window.WorkflowType != "" {
		fmt.Fprintf(&sb, "\nWORKFLOW PATTERN OBSERVED:\n  The user appears to be engaged in: %s\n", window.WorkflowType)
	}
	return sb.String()
}

const clarifySystem = `You review a workflow step analysis and judge whether a human clarification would genuinely improve the documentation.
Only request clarification if it would meaningfully improve workflow understanding.
Respond with ONLY a JSON object, no prose, no markdown fences.`

// sensitivityGuidance tunes how eagerly the assessment interrupts the
// user. Mirrors the CLI sensitivity levels.
func sensitivityGuidance(sensitivity string) string {
	switch sensitivity {
	case "frequent":
		return "Prefer asking: when in doubt, request clarification."
	case "balanced":
		return "Ask when the motivation is genuinely ambiguous; otherwise make a reasonable assumption."
	default: // conservative
		return "Be conservative - prefer reasonable assumptions over interrupting the user."
	}
}

// buildClarifyPrompt assembles the clarification-assessment prompt.
func buildClarifyPrompt(cand types.StepCandidate, window types.ContextWindow, sensitivity string) string {
	var sb strings.Builder
	sb.WriteString("## Step Analysis Under Review\n\n")
	fmt.Fprintf(&sb, "Action: %s\nMotivation: %s\nConfidence: %.2f\n", cand.Action, cand.Motivation, cand.Confidence)
	if cand.Rationale != "" {
		fmt.Fprintf(&sb, "Notes: %s\n", cand.Rationale)
	}
	sb.WriteString("\n## Workflow Context\n\n")
	sb.WriteString(renderWindow(window))
	sb.WriteString("\n\n## Evaluation Criteria\n\n")
	sb.WriteString("1. Is the motivation clear and well-reasoned given the context?\n")
	sb.WriteString("2. Does the action make logical sense in the workflow progression?\n")
	sb.WriteString("3. Are there multiple plausible interpretations of the user's intent?\n\n")
	sb.WriteString(sensitivityGuidance(sensitivity))
	sb.WriteString("\n\nRespond in exactly this JSON format:\n")
	sb.WriteString(`{
  "needs_clarification": true,
  "confidence_assessment": "why clarification is or is not needed",
  "clarification_question": "specific question to ask (only if needed)",
  "clarification_focus": "motivation|action|context|purpose"
}`)
	return sb.String()
}

const integrationSystem = `You create a complete workflow step that integrates a human clarification with the visual context.
Use the human's explanation to understand the true motivation, and generalize the action (avoid specific values or text).
Respond with ONLY a JSON object, no prose, no markdown fences.`

// buildIntegrationPrompt assembles the human-answer integration prompt.
func buildIntegrationPrompt(question, answer string, window types.ContextWindow) string {
	var sb strings.Builder
	sb.WriteString("## Workflow Context\n\n")
	sb.WriteString(renderWindow(window))
	sb.WriteString("\n\n## Original Question Asked\n\n")
	sb.WriteString(question)
	sb.WriteString("\n\n## Human Clarification Provided\n\n")
	sb.WriteString(answer)
	sb.WriteString("\n\nRespond in exactly this JSON format:\n")
	sb.WriteString(`{
  "action": "general action description based on the clarification",
  "motivation": "clear motivation derived from the human input",
  "ui_elements": ["inferred", "ui", "elements"],
  "workflow_integration": "how this step fits into the overall workflow",
  "confidence_rationale": "why this interpretation is reliable"
}`)
	return sb.String()
}

// buildWorkflowTypePrompt asks for a single-label classification of the
// whole ledger.
func buildWorkflowTypePrompt(steps []types.Step) string {
	var sb strings.Builder
	sb.WriteString("Based on these workflow steps, what type of process is the user performing?\n\nSTEPS:\n")
	for _, step := range steps {
		fmt.Fprintf(&sb, "Step %d: %s (%s)\n", step.Seq, step.Action, step.Motivation)
	}
	sb.WriteString("\nProvide a brief, general description of the workflow type (e.g. \"data entry process\", \"system configuration\", \"content creation workflow\").\n")
	sb.WriteString("Respond with just the workflow type description, nothing else.")
	return sb.String()
}
