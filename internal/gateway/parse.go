package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"screendoc/internal/types"
)

// analysisReply is the schema the analysis instruction asks for.
type analysisReply struct {
	Action         string   `json:"action"`
	Motivation     string   `json:"motivation"`
	UIElements     []string `json:"ui_elements"`
	Progression    string   `json:"workflow_progression"`
	CertaintyLevel string   `json:"certainty_level"`
	AnalysisNotes  string   `json:"analysis_notes"`
}

// clarifyReply is the schema the clarification-assessment instruction asks for.
type clarifyReply struct {
	NeedsClarification bool   `json:"needs_clarification"`
	Assessment         string `json:"confidence_assessment"`
	Question           string `json:"clarification_question"`
	Focus              string `json:"clarification_focus"`
}

// integrationReply is the schema the human-answer integration instruction asks for.
type integrationReply struct {
	Action      string   `json:"action"`
	Motivation  string   `json:"motivation"`
	UIElements  []string `json:"ui_elements"`
	Integration string   `json:"workflow_integration"`
	Rationale   string   `json:"confidence_rationale"`
}

// stripFences removes a markdown code fence wrapper if the reply starts
// with one. Models routinely wrap JSON in ```json blocks despite being
// told not to.
func stripFences(reply string) string {
	text := strings.TrimSpace(reply)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}
	return text
}

// extractJSON finds the first balanced JSON object in a reply that
// wrapped its answer in explanatory prose. Returns "" when no balanced
// object exists.
func extractJSON(reply string) string {
	start := strings.Index(reply, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(reply); i++ {
		ch := reply[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return reply[start : i+1]
				}
			}
		}
	}
	return ""
}

// decodeStrict decodes a reply into out after stripping fences.
// Tier 1 of the parser.
func decodeStrict(reply string, out interface{}) error {
	return json.Unmarshal([]byte(stripFences(reply)), out)
}

// decodeReply applies the first two parser tiers: strict decode, then
// one balanced-block extraction and strict re-parse. Tier 3 (degraded
// candidate synthesis) is the caller's business since it is specific to
// the analysis schema.
func decodeReply(reply string, out interface{}) error {
	if err := decodeStrict(reply, out); err == nil {
		return nil
	}
	block := extractJSON(reply)
	if block == "" {
		return fmt.Errorf("no JSON object found in reply")
	}
	if err := json.Unmarshal([]byte(block), out); err != nil {
		return fmt.Errorf("fallback parse failed: %w", err)
	}
	return nil
}

// DecodeLoose exposes the two-tier decode for collaborators that issue
// their own instructions through the same client (the enhancement
// engine). Same semantics as the gateway's internal reply handling.
func DecodeLoose(reply string, out interface{}) error {
	return decodeReply(reply, out)
}

// certaintyToScore converts the reply's certainty level to a confidence
// score. Unknown levels map to the middle of the scale.
func certaintyToScore(level string) float64 {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "high":
		return 0.9
	case "medium":
		return 0.7
	case "low":
		return 0.4
	default:
		return 0.5
	}
}

// degradedCandidate is parser tier 3: the reply was unusable, so the
// candidate carries zero confidence, the sentinel action, and the raw
// reply preserved verbatim for later inspection. It is still appended
// to the ledger so sequence numbers stay dense.
func degradedCandidate(raw string) *types.StepCandidate {
	return &types.StepCandidate{
		Action:     types.DegradedAction,
		Motivation: "Analysis reply could not be parsed",
		UIElements: []string{},
		Confidence: 0.0,
		Rationale:  raw,
	}
}
