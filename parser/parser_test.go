package parser

import (
	"testing"
)

func TestParseAssessment(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantErr  bool
		expected *Assessment
	}{
		{
			name: "valid JSON response",
			response: `{
				"visual_change_detected": true,
				"change_description": "The pile of litter by the bench has been removed; the pavement is clear.",
				"improvement_visible": true,
				"work_completion_score": 9,
				"issues_detected": [],
				"meets_standards": true,
				"manipulation_detected": false,
				"fraud_risk_score": 0.05,
				"recommendation": "approve",
				"explanation": "Before image shows scattered litter; after image shows the same bench and pavement with the litter gone."
			}`,
			wantErr: false,
			expected: &Assessment{
				VisualChangeDetected: true,
				ChangeDescription:    "The pile of litter by the bench has been removed; the pavement is clear.",
				ImprovementVisible:   true,
				WorkCompletionScore:  9,
				IssuesDetected:       []string{},
				MeetsStandards:       true,
				ManipulationDetected: false,
				FraudRiskScore:       0.05,
				Recommendation:       "approve",
				Explanation:          "Before image shows scattered litter; after image shows the same bench and pavement with the litter gone.",
			},
		},
		{
			name: "JSON wrapped in markdown code block",
			response: "```json\n" + `{
				"visual_change_detected": false,
				"change_description": "No visible difference between the two photos.",
				"improvement_visible": false,
				"work_completion_score": 2,
				"issues_detected": ["litter still present"],
				"meets_standards": false,
				"manipulation_detected": false,
				"fraud_risk_score": 0.4,
				"recommendation": "reject",
				"explanation": "The reported debris is still visible in the after photo."
			}` + "\n```",
			wantErr: false,
			expected: &Assessment{
				ChangeDescription:   "No visible difference between the two photos.",
				WorkCompletionScore: 2,
				IssuesDetected:      []string{"litter still present"},
				FraudRiskScore:      0.4,
				Recommendation:      "reject",
				Explanation:         "The reported debris is still visible in the after photo.",
			},
		},
		{
			name: "JSON with surrounding prose",
			response: `Here is my assessment: {"visual_change_detected": true, "change_description": "cleared",
				"improvement_visible": true, "work_completion_score": 7, "issues_detected": [],
				"meets_standards": true, "manipulation_detected": false, "fraud_risk_score": 0.1,
				"recommendation": "human_review", "explanation": "mostly cleared"} Hope that helps!`,
			wantErr: false,
			expected: &Assessment{
				VisualChangeDetected: true,
				ChangeDescription:    "cleared",
				ImprovementVisible:   true,
				WorkCompletionScore:  7,
				IssuesDetected:       []string{},
				MeetsStandards:       true,
				FraudRiskScore:       0.1,
				Recommendation:       "human_review",
				Explanation:          "mostly cleared",
			},
		},
		{
			name:     "not JSON at all",
			response: "I am sorry, I cannot assess these images.",
			wantErr:  true,
		},
		{
			name: "work completion score out of range",
			response: `{"work_completion_score": 11, "fraud_risk_score": 0.1,
				"recommendation": "approve", "change_description": "x", "explanation": "x"}`,
			wantErr: true,
		},
		{
			name: "work completion score zero",
			response: `{"work_completion_score": 0, "fraud_risk_score": 0.1,
				"recommendation": "approve", "change_description": "x", "explanation": "x"}`,
			wantErr: true,
		},
		{
			name: "fraud risk out of range",
			response: `{"work_completion_score": 5, "fraud_risk_score": 1.5,
				"recommendation": "approve", "change_description": "x", "explanation": "x"}`,
			wantErr: true,
		},
		{
			name: "unknown recommendation",
			response: `{"work_completion_score": 5, "fraud_risk_score": 0.5,
				"recommendation": "escalate", "change_description": "x", "explanation": "x"}`,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAssessment(tc.response)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAssessment failed: %v", err)
			}
			if got.WorkCompletionScore != tc.expected.WorkCompletionScore {
				t.Errorf("work_completion_score = %d, want %d", got.WorkCompletionScore, tc.expected.WorkCompletionScore)
			}
			if got.Recommendation != tc.expected.Recommendation {
				t.Errorf("recommendation = %q, want %q", got.Recommendation, tc.expected.Recommendation)
			}
			if got.ChangeDescription != tc.expected.ChangeDescription {
				t.Errorf("change_description = %q, want %q", got.ChangeDescription, tc.expected.ChangeDescription)
			}
			if got.FraudRiskScore != tc.expected.FraudRiskScore {
				t.Errorf("fraud_risk_score = %v, want %v", got.FraudRiskScore, tc.expected.FraudRiskScore)
			}
			if got.VisualChangeDetected != tc.expected.VisualChangeDetected {
				t.Errorf("visual_change_detected = %v", got.VisualChangeDetected)
			}
			if len(got.IssuesDetected) != len(tc.expected.IssuesDetected) {
				t.Errorf("issues_detected = %v, want %v", got.IssuesDetected, tc.expected.IssuesDetected)
			}
		})
	}
}

func TestExtractJSONFromMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain JSON", input: `{"a": 1}`, expected: `{"a": 1}`},
		{name: "fenced with language", input: "```json\n{\"a\": 1}\n```", expected: `{"a": 1}`},
		{name: "fenced without language", input: "```\n{\"a\": 1}\n```", expected: `{"a": 1}`},
		{name: "prose around object", input: `sure: {"a": 1} done`, expected: `{"a": 1}`},
		{name: "no JSON", input: "nothing here", expected: "nothing here"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractJSONFromMarkdown(tc.input); got != tc.expected {
				t.Errorf("got %q, want %q", got, tc.expected)
			}
		})
	}
}

func TestConservativeDefault(t *testing.T) {
	d := ConservativeDefault("unexpected token")
	if d.WorkCompletionScore != 1 {
		t.Errorf("work_completion_score = %d, want 1", d.WorkCompletionScore)
	}
	if d.Recommendation != RecommendHumanReview {
		t.Errorf("recommendation = %q, want human_review", d.Recommendation)
	}
	if d.MeetsStandards {
		t.Error("conservative default must not meet standards")
	}
	// The default itself must survive validation round-tripping.
	if d.FraudRiskScore < 0 || d.FraudRiskScore > 1 {
		t.Errorf("fraud_risk_score = %v out of range", d.FraudRiskScore)
	}
}
