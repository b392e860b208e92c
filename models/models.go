// Package models holds the API-facing data model of the verification
// pipeline.
package models

import "proof-verify-pipeline/scoring"

// ComplaintRecord is the before-state evidence for a reported issue.
// Immutable once written; many proofs may later reference it.
type ComplaintRecord struct {
	ComplaintID    string   `json:"complaint_id"`
	MediaID        string   `json:"media_id"`
	Timestamp      string   `json:"ts_iso"`
	Lat            float64  `json:"lat"`
	Lon            float64  `json:"lon"`
	PerceptualHash string   `json:"phash"`
	IssueType      string   `json:"issue_type"`
	ChunkRefs      []string `json:"chunks"`
	ThumbnailRef   string   `json:"thumb_chunk"`
	CellToken      string   `json:"s2_cell"`
}

// ProofRecord is the worker-submitted after-state evidence. The recycled
// flag is decided once at ingestion and never revised.
type ProofRecord struct {
	ProofID        string   `json:"proof_id"`
	ComplaintID    string   `json:"complaint_id"`
	WorkerID       string   `json:"worker_id"`
	Timestamp      string   `json:"ts_iso"`
	Lat            float64  `json:"lat"`
	Lon            float64  `json:"lon"`
	PerceptualHash string   `json:"phash"`
	ChunkRefs      []string `json:"chunks"`
	ThumbnailRef   string   `json:"thumb_chunk"`
	RecycledFlag   bool     `json:"recycled_flag"`
	SizeBytes      int      `json:"size_bytes"`
	CellToken      string   `json:"s2_cell"`
}

// ComplaintIngestResult is returned by complaint ingestion.
type ComplaintIngestResult struct {
	ComplaintID string `json:"complaint_id"`
	MediaID     string `json:"media_id"`
	Status      string `json:"status"`
}

// ProofIngestResult is returned by proof ingestion.
type ProofIngestResult struct {
	ProofID      string `json:"proof_id"`
	Status       string `json:"status"`
	RecycledFlag bool   `json:"recycled_flag"`
}

// LocationValidation describes the spatial check between complaint and proof.
type LocationValidation struct {
	DistanceFromComplaintMeters float64 `json:"distance_from_complaint_meters"`
	WithinAcceptableRadius      bool    `json:"within_acceptable_radius"`
	ValidationPassed            bool    `json:"validation_passed"`
}

// BeforeAfterComparison carries the assessor's visual-change findings.
type BeforeAfterComparison struct {
	VisualChangeDetected bool   `json:"visual_change_detected"`
	ChangeDescription    string `json:"change_description"`
	ImprovementVisible   bool   `json:"improvement_visible"`
}

// QualityAssessment carries the assessor's work-quality findings.
type QualityAssessment struct {
	WorkCompletionScore int      `json:"work_completion_score"`
	IssuesDetected      []string `json:"issues_detected"`
	MeetsStandards      bool     `json:"meets_standards"`
}

// AuthenticityCheck aggregates the fraud signals.
type AuthenticityCheck struct {
	IsOriginalPhoto       bool    `json:"is_original_photo"`
	RecycledPhotoDetected bool    `json:"recycled_photo_detected"`
	ManipulationDetected  bool    `json:"manipulation_detected"`
	FraudRiskScore        float64 `json:"fraud_risk_score"`
}

// ImageAnalysis groups the image-derived report sections.
type ImageAnalysis struct {
	BeforeAfterComparison BeforeAfterComparison `json:"before_after_comparison"`
	QualityAssessment     QualityAssessment     `json:"quality_assessment"`
	AuthenticityCheck     AuthenticityCheck     `json:"authenticity_check"`
}

// TimelineValidation is a placeholder section until worker traces land.
type TimelineValidation struct {
	WorkerAtLocation   bool `json:"worker_at_location"`
	TimeSpentMinutes   int  `json:"time_spent_minutes"`
	ReasonableDuration bool `json:"reasonable_duration"`
}

// VerificationReport is the terminal artifact of a verification run.
// Write-once; persisted as an audit record.
type VerificationReport struct {
	ProofID               string             `json:"proof_id"`
	ComplaintID           string             `json:"complaint_id"`
	VerificationStatus    string             `json:"verification_status"`
	VerificationTimestamp string             `json:"verification_timestamp"`
	LocationValidation    LocationValidation `json:"location_validation"`
	ImageAnalysis         ImageAnalysis      `json:"image_analysis"`
	TimelineValidation    TimelineValidation `json:"timeline_validation"`
	Signals               scoring.Signals    `json:"signals"`
	Scoring               scoring.Breakdown  `json:"scoring"`
	Explanation           string             `json:"explanation"`
	VLMExplanation        string             `json:"vlm_explanation"`
	Recommendation        string             `json:"recommendation"`
	FlaggedForReview      bool               `json:"flagged_for_review"`
	ProcessingTimeMs      int64              `json:"processing_time_ms"`
}
