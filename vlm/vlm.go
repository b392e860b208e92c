// Package vlm abstracts the semantic assessor: an external vision model that
// compares a before/after image pair and returns a structured quality
// assessment as JSON text.
package vlm

import "context"

// Metadata is the contextual record sent to the assessor alongside the two
// images. All signals are computed before the assessor runs.
type Metadata struct {
	ComplaintTimestamp      string  `json:"complaint_ts"`
	ProofTimestamp          string  `json:"proof_ts"`
	DistanceMeters          float64 `json:"distance_m"`
	EmbeddingSim            float64 `json:"embedding_sim"`
	SSIM                    float64 `json:"ssim"`
	PixelDiffNorm           float64 `json:"pixel_diff_norm"`
	ManipulationProbability float64 `json:"manip_prob"`
	RecycledFlag            bool    `json:"recycled_flag"`
	IssueType               string  `json:"issue_type"`
}

// Assessor compares a before/after pair. Implementations must be
// concurrency-safe. The response is raw model text; callers parse it and
// degrade to a conservative default when parsing fails.
type Assessor interface {
	// AssessPair takes both images as base64 JPEG, the metadata record, and
	// up to three few-shot example descriptions.
	AssessPair(ctx context.Context, beforeB64, afterB64 string, meta Metadata, examples []string) (string, error)
	// SourceName returns a short provider label recorded with the report.
	SourceName() string
}
