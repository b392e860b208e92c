package vlm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const openAIEndpoint = "https://api.openai.com/v1/chat/completions"

const systemPrompt = "You are an expert work verification agent. Analyze before and after images to verify work completion. Return ONLY valid JSON without any markdown formatting or code blocks."

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type imageURL struct {
	URL string `json:"url"`
}

type imageContent struct {
	Type     string   `json:"type"`
	ImageURL imageURL `json:"image_url"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content any `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// OpenAIAssessor calls a GPT-4 class vision model over the chat completions
// API.
type OpenAIAssessor struct {
	apiKey string
	model  string
	client *http.Client
}

// NewOpenAIAssessor creates an assessor backed by the OpenAI API.
func NewOpenAIAssessor(apiKey, model string, timeout time.Duration) *OpenAIAssessor {
	return &OpenAIAssessor{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

// SourceName identifies this provider in saved reports.
func (a *OpenAIAssessor) SourceName() string {
	return "ChatGPT"
}

func buildPrompt(meta Metadata, examples []string) string {
	var sb strings.Builder

	if len(examples) > 0 {
		sb.WriteString("CONTEXT: Here are verified examples for reference:\n")
		for i, ex := range examples {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&sb, "\nEXAMPLE %d: %s\n", i+1, ex)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("TASK:\nCompare BEFORE image with PROOF (AFTER) image to verify work completion.\n\n")
	sb.WriteString("Metadata:\n")
	fmt.Fprintf(&sb, "- Complaint Timestamp: %s\n", meta.ComplaintTimestamp)
	fmt.Fprintf(&sb, "- Proof Timestamp: %s\n", meta.ProofTimestamp)
	fmt.Fprintf(&sb, "- Distance from complaint location: %.1f meters\n", meta.DistanceMeters)
	fmt.Fprintf(&sb, "- Embedding Similarity: %.3f\n", meta.EmbeddingSim)
	fmt.Fprintf(&sb, "- SSIM: %.3f\n", meta.SSIM)
	fmt.Fprintf(&sb, "- Pixel Difference: %.3f\n", meta.PixelDiffNorm)
	fmt.Fprintf(&sb, "- Manipulation Probability: %.3f\n", meta.ManipulationProbability)
	fmt.Fprintf(&sb, "- Recycled Photo Flag: %t\n", meta.RecycledFlag)
	fmt.Fprintf(&sb, "- Issue Type: %s\n", meta.IssueType)

	sb.WriteString(`
Return STRICT JSON (no markdown, no code blocks, just raw JSON):
{
  "visual_change_detected": boolean,
  "change_description": "short text (max 40 words)",
  "improvement_visible": boolean,
  "work_completion_score": int (1-10),
  "issues_detected": ["list of issues"],
  "meets_standards": boolean,
  "manipulation_detected": boolean,
  "fraud_risk_score": float (0-1),
  "recommendation": "approve"|"reject"|"human_review",
  "explanation": "detailed reasoning referencing visible cues and metadata"
}
`)
	return sb.String()
}

// AssessPair sends both thumbnails plus the metadata block and returns the
// raw model text.
func (a *OpenAIAssessor) AssessPair(ctx context.Context, beforeB64, afterB64 string, meta Metadata, examples []string) (string, error) {
	reqBody := chatRequest{
		Model: a.model,
		Messages: []message{
			{
				Role:    "system",
				Content: systemPrompt,
			},
			{
				Role: "user",
				Content: []any{
					textContent{Type: "text", Text: buildPrompt(meta, examples)},
					imageContent{Type: "image_url", ImageURL: imageURL{
						URL: "data:image/jpeg;base64," + beforeB64,
					}},
					imageContent{Type: "image_url", ImageURL: imageURL{
						URL: "data:image/jpeg;base64," + afterB64,
					}},
				},
			},
		},
		MaxTokens:   1000,
		Temperature: 0.2,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIEndpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := chatResp.Choices[0].Message.Content
	if contentStr, ok := content.(string); ok {
		return contentStr, nil
	}

	// Some responses nest structured content; round-trip it back to JSON.
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("failed to marshal content: %w", err)
	}
	return string(contentJSON), nil
}
