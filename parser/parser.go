package parser

import (
	"encoding/json"
	"errors"
	"strings"
)

// Assessment is the structured result expected from the semantic assessor.
type Assessment struct {
	VisualChangeDetected bool     `json:"visual_change_detected"`
	ChangeDescription    string   `json:"change_description"`
	ImprovementVisible   bool     `json:"improvement_visible"`
	WorkCompletionScore  int      `json:"work_completion_score"`
	IssuesDetected       []string `json:"issues_detected"`
	MeetsStandards       bool     `json:"meets_standards"`
	ManipulationDetected bool     `json:"manipulation_detected"`
	FraudRiskScore       float64  `json:"fraud_risk_score"`
	Recommendation       string   `json:"recommendation"`
	Explanation          string   `json:"explanation"`
}

// Recommendation tags the assessor may return.
const (
	RecommendApprove     = "approve"
	RecommendReject      = "reject"
	RecommendHumanReview = "human_review"
)

// ExtractJSONFromMarkdown strips markdown code fences around a JSON object,
// or falls back to the outermost brace pair when no fences are present.
func ExtractJSONFromMarkdown(response string) string {
	startMarker := "```"
	endMarker := "```"

	startIdx := strings.Index(response, startMarker)
	if startIdx == -1 {
		// No code block found, try to find JSON object directly
		startIdx = strings.Index(response, "{")
		if startIdx == -1 {
			return response
		}
		endIdx := strings.LastIndex(response, "}")
		if endIdx == -1 {
			return response
		}
		return strings.TrimSpace(response[startIdx : endIdx+1])
	}

	// Find the end of the first code block
	endIdx := strings.Index(response[startIdx+len(startMarker):], endMarker)
	if endIdx == -1 {
		return response
	}
	endIdx += startIdx + len(startMarker)

	content := response[startIdx+len(startMarker) : endIdx]

	// Remove the language identifier if present (e.g., "json")
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > 0 && (strings.TrimSpace(lines[0]) == "json" || strings.TrimSpace(lines[0]) == "") {
		content = strings.Join(lines[1:], "\n")
	}

	return strings.TrimSpace(content)
}

// ParseAssessment parses the assessor response, tolerating markdown fencing,
// and validates field ranges. Callers substitute ConservativeDefault when it
// fails; verification never fails outright on malformed assessor output.
func ParseAssessment(response string) (*Assessment, error) {
	cleaned := strings.TrimSpace(response)
	jsonContent := ExtractJSONFromMarkdown(cleaned)

	var result Assessment
	if err := json.Unmarshal([]byte(jsonContent), &result); err != nil {
		return nil, errors.New("failed to parse JSON response: " + err.Error())
	}

	if result.WorkCompletionScore < 1 || result.WorkCompletionScore > 10 {
		return nil, errors.New("work_completion_score must be between 1 and 10")
	}
	if result.FraudRiskScore < 0 || result.FraudRiskScore > 1 {
		return nil, errors.New("fraud_risk_score must be between 0 and 1")
	}
	switch result.Recommendation {
	case RecommendApprove, RecommendReject, RecommendHumanReview:
	default:
		return nil, errors.New("unknown recommendation: " + result.Recommendation)
	}

	return &result, nil
}

// ConservativeDefault is the fixed substitute used when the assessor output
// cannot be parsed: minimum completion score, flagged for human review.
func ConservativeDefault(reason string) *Assessment {
	return &Assessment{
		VisualChangeDetected: false,
		ChangeDescription:    "Error parsing assessor response",
		ImprovementVisible:   false,
		WorkCompletionScore:  1,
		IssuesDetected:       []string{"assessor processing error"},
		MeetsStandards:       false,
		ManipulationDetected: false,
		FraudRiskScore:       0.5,
		Recommendation:       RecommendHumanReview,
		Explanation:          "Failed to parse assessor output, requires manual review: " + reason,
	}
}
