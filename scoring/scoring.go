// Package scoring converts the verification signal set into a composite
// score, a verdict and a deterministic explanation. It performs no I/O.
package scoring

import (
	"fmt"
	"strings"
)

// Verdicts.
const (
	DecisionVerified     = "VERIFIED"
	DecisionQuestionable = "QUESTIONABLE"
	DecisionRejected     = "REJECTED"
)

// Weighted component weights; the five positive weights sum to 1.0.
const (
	weightVisualSimilarity = 0.35
	weightVisualDiff       = 0.20
	weightVLMQuality       = 0.20
	weightSpatialProximity = 0.10
	weightAuthenticity     = 0.10

	penaltyRecycled     = -0.5
	penaltyManipulation = -0.3
)

// Decision thresholds and critical limits.
const (
	thresholdVerified     = 0.70
	thresholdQuestionable = 0.45

	// MaxDistanceMeters is the acceptance radius around the complaint
	// location. Beyond it the proof is rejected outright.
	MaxDistanceMeters = 50.0

	// ManipulationRejectThreshold is the manipulation probability at which a
	// proof is rejected outright and the penalty applies.
	ManipulationRejectThreshold = 0.85
)

// Signals is the full input to the scoring engine.
type Signals struct {
	EmbeddingSim            float64 `json:"embedding_sim"`
	SSIM                    float64 `json:"ssim"`
	PixelDiffNorm           float64 `json:"pixel_diff_norm"`
	VLMWorkCompletionScore  int     `json:"vlm_work_completion_score"`
	DistanceMeters          float64 `json:"distance_m"`
	ManipulationProbability float64 `json:"manipulation_probability"`
	RecycledFlag            bool    `json:"recycled_flag"`
}

// Components breaks the composite score down per weighted term.
type Components struct {
	VisualSimilarityScore float64 `json:"visual_similarity_score"`
	VisualDiffScore       float64 `json:"visual_diff_score"`
	VLMQualityScore       float64 `json:"vlm_quality_score"`
	SpatialProximityScore float64 `json:"spatial_proximity_score"`
	AuthenticityScore     float64 `json:"authenticity_score"`
	RecycledPenalty       float64 `json:"recycled_penalty"`
	ManipulationPenalty   float64 `json:"manipulation_penalty"`
}

// Breakdown is the scored result before the decision is applied.
type Breakdown struct {
	CompositeScore float64    `json:"composite_score"`
	Components     Components `json:"components"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ComputeCompositeScore folds the signal set into a clamped [0,1] score.
// Penalties apply additively and can drive the raw sum negative before the
// clamp.
func ComputeCompositeScore(s Signals) Breakdown {
	c := Components{
		VisualSimilarityScore: clamp01(s.EmbeddingSim) * weightVisualSimilarity,
		VisualDiffScore:       clamp01(1.0-s.SSIM) * weightVisualDiff,
		VLMQualityScore:       clamp01(float64(s.VLMWorkCompletionScore)/10.0) * weightVLMQuality,
		AuthenticityScore:     clamp01(1.0-s.ManipulationProbability) * weightAuthenticity,
	}

	if s.DistanceMeters <= MaxDistanceMeters {
		c.SpatialProximityScore = weightSpatialProximity
	}
	if s.RecycledFlag {
		c.RecycledPenalty = penaltyRecycled
	}
	if s.ManipulationProbability >= ManipulationRejectThreshold {
		c.ManipulationPenalty = penaltyManipulation
	}

	composite := c.VisualSimilarityScore + c.VisualDiffScore + c.VLMQualityScore +
		c.SpatialProximityScore + c.AuthenticityScore +
		c.RecycledPenalty + c.ManipulationPenalty

	return Breakdown{
		CompositeScore: clamp01(composite),
		Components:     c,
	}
}

// MakeDecision applies the critical-failure checks first, then the score
// thresholds. The ordering is deliberate: hard fraud or location evidence
// rejects the proof no matter how high the composite score is.
func MakeDecision(compositeScore float64, s Signals) string {
	if s.RecycledFlag {
		return DecisionRejected
	}
	if s.ManipulationProbability >= ManipulationRejectThreshold {
		return DecisionRejected
	}
	if s.DistanceMeters > MaxDistanceMeters {
		return DecisionRejected
	}

	switch {
	case compositeScore >= thresholdVerified:
		return DecisionVerified
	case compositeScore >= thresholdQuestionable:
		return DecisionQuestionable
	default:
		return DecisionRejected
	}
}

// Explain renders a deterministic, human-readable account of the decision:
// critical failures first (when any fired), then every weighted component's
// contribution in a fixed order.
func Explain(decision string, b Breakdown, s Signals) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Verification Decision: %s (Score: %.2f)\n\n", decision, b.CompositeScore)

	if decision == DecisionRejected {
		if s.RecycledFlag {
			sb.WriteString("Critical Failure: Recycled photo detected\n")
		}
		if s.ManipulationProbability >= ManipulationRejectThreshold {
			sb.WriteString("Critical Failure: High manipulation probability detected\n")
		}
		if s.DistanceMeters > MaxDistanceMeters {
			sb.WriteString("Critical Failure: Location mismatch (beyond 50m radius)\n")
		}
	}

	sb.WriteString("\nScore Breakdown:\n")
	fmt.Fprintf(&sb, "- Visual Similarity: %.3f\n", b.Components.VisualSimilarityScore)
	fmt.Fprintf(&sb, "- Visual Change: %.3f\n", b.Components.VisualDiffScore)
	fmt.Fprintf(&sb, "- VLM Quality Assessment: %.3f\n", b.Components.VLMQualityScore)
	fmt.Fprintf(&sb, "- Spatial Proximity: %.3f\n", b.Components.SpatialProximityScore)
	fmt.Fprintf(&sb, "- Authenticity: %.3f\n", b.Components.AuthenticityScore)

	if b.Components.RecycledPenalty < 0 {
		fmt.Fprintf(&sb, "- Recycled Penalty: %.3f\n", b.Components.RecycledPenalty)
	}
	if b.Components.ManipulationPenalty < 0 {
		fmt.Fprintf(&sb, "- Manipulation Penalty: %.3f\n", b.Components.ManipulationPenalty)
	}

	return sb.String()
}
