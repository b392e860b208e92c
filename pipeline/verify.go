package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"proof-verify-pipeline/chunker"
	"proof-verify-pipeline/embedding"
	"proof-verify-pipeline/evidence"
	"proof-verify-pipeline/geoutil"
	"proof-verify-pipeline/imageproc"
	"proof-verify-pipeline/metrics"
	"proof-verify-pipeline/models"
	"proof-verify-pipeline/parser"
	"proof-verify-pipeline/scoring"
	"proof-verify-pipeline/vlm"
)

const fewShotLimit = 3

// VerifyProof runs the full decision procedure for an ingested proof and
// persists the resulting report as an audit record.
func (p *Pipeline) VerifyProof(ctx context.Context, proofID string) (*models.VerificationReport, error) {
	start := time.Now()

	proofEntry, err := p.store.Get(ctx, evidence.CollectionProofs, proofKey(proofID))
	if err != nil {
		if errors.Is(err, evidence.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProofNotFound, proofID)
		}
		return nil, fmt.Errorf("fetching proof record: %w", err)
	}
	proof := proofFromPayload(proofEntry.Payload)
	proofVector := proofEntry.Vector

	complaint, complaintVector, err := p.resolveComplaint(ctx, proof.ComplaintID, proofVector)
	if err != nil {
		return nil, err
	}

	beforeThumb, beforeB64, err := p.fetchThumb(ctx, complaint.ThumbnailRef)
	if err != nil {
		return nil, fmt.Errorf("reading complaint thumbnail: %w", err)
	}
	afterThumb, afterB64, err := p.fetchThumb(ctx, proof.ThumbnailRef)
	if err != nil {
		return nil, fmt.Errorf("reading proof thumbnail: %w", err)
	}

	embeddingSim := embedding.CosineSimilarity(proofVector, complaintVector)
	visual := imageproc.Similarity(beforeThumb, afterThumb)
	distanceM := geoutil.HaversineMeters(complaint.Lat, complaint.Lon, proof.Lat, proof.Lon)

	// full-resolution forensic analysis only when a cheaper signal already
	// raised suspicion
	manipProb := 0.0
	if proof.RecycledFlag || distanceM > scoring.MaxDistanceMeters {
		full, err := p.reconstructImage(ctx, proof.ChunkRefs)
		if err != nil {
			return nil, fmt.Errorf("reconstructing proof image: %w", err)
		}
		manipProb, err = p.detector.Score(full)
		if err != nil {
			return nil, fmt.Errorf("scoring manipulation: %w", err)
		}
	}

	examples := p.fetchReferenceExamples(ctx, proofVector)

	meta := vlm.Metadata{
		ComplaintTimestamp:      complaint.Timestamp,
		ProofTimestamp:          proof.Timestamp,
		DistanceMeters:          distanceM,
		EmbeddingSim:            embeddingSim,
		SSIM:                    visual.SSIM,
		PixelDiffNorm:           visual.PixelDiffNorm,
		ManipulationProbability: manipProb,
		RecycledFlag:            proof.RecycledFlag,
		IssueType:               complaint.IssueType,
	}
	assessment := p.assess(ctx, beforeB64, afterB64, meta, examples)

	signals := scoring.Signals{
		EmbeddingSim:            embeddingSim,
		SSIM:                    visual.SSIM,
		PixelDiffNorm:           visual.PixelDiffNorm,
		VLMWorkCompletionScore:  assessment.WorkCompletionScore,
		DistanceMeters:          distanceM,
		ManipulationProbability: manipProb,
		RecycledFlag:            proof.RecycledFlag,
	}
	breakdown := scoring.ComputeCompositeScore(signals)
	decision := scoring.MakeDecision(breakdown.CompositeScore, signals)
	explanation := scoring.Explain(decision, breakdown, signals)

	report := buildReport(proof, complaint, decision, signals, breakdown, explanation, assessment)
	report.ProcessingTimeMs = time.Since(start).Milliseconds()

	auditID, err := p.persistAudit(ctx, report)
	if err != nil {
		return nil, err
	}

	p.afterVerdict(ctx, report, proofVector, assessment)

	metrics.VerificationsTotal.WithLabelValues(decision).Inc()
	metrics.VerificationDurationSeconds.Observe(time.Since(start).Seconds())
	log.WithFields(log.Fields{
		"proof_id":     proofID,
		"complaint_id": proof.ComplaintID,
		"verdict":      decision,
		"score":        breakdown.CompositeScore,
		"audit_id":     auditID,
		"duration_ms":  report.ProcessingTimeMs,
	}).Info("proof verified")

	return report, nil
}

// resolveComplaint picks the most relevant complaint media for the id via a
// filtered top-1 similarity query against the proof's embedding.
func (p *Pipeline) resolveComplaint(ctx context.Context, complaintID string, probe []float32) (models.ComplaintRecord, []float32, error) {
	matches, err := p.store.Query(ctx, evidence.CollectionComplaints, probe, 1,
		map[string]interface{}{"complaint_id": complaintID})
	if err != nil {
		return models.ComplaintRecord{}, nil, fmt.Errorf("querying complaint records: %w", err)
	}
	if len(matches) == 0 {
		return models.ComplaintRecord{}, nil, fmt.Errorf("%w: %s", ErrComplaintNotFound, complaintID)
	}
	m := matches[0]
	vector := m.Vector
	if len(vector) == 0 {
		entry, err := p.store.Get(ctx, evidence.CollectionComplaints, m.Key)
		if err != nil {
			return models.ComplaintRecord{}, nil, fmt.Errorf("fetching complaint record: %w", err)
		}
		vector = entry.Vector
	}
	return complaintFromPayload(m.Payload), vector, nil
}

// fetchThumb fetches a thumbnail chunk and returns both raw bytes and the
// stored base64.
func (p *Pipeline) fetchThumb(ctx context.Context, ref string) ([]byte, string, error) {
	entry, err := p.store.Get(ctx, evidence.CollectionChunks, ref)
	if err != nil {
		if errors.Is(err, evidence.ErrNotFound) {
			return nil, "", fmt.Errorf("%w: %s", chunker.ErrMissingChunk, ref)
		}
		return nil, "", err
	}
	b64 := asString(entry.Payload["b64"])
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, "", fmt.Errorf("decoding thumbnail chunk %s: %w", ref, err)
	}
	return raw, b64, nil
}

// reconstructImage fetches all full-image chunks and reassembles the bytes.
func (p *Pipeline) reconstructImage(ctx context.Context, refs []string) ([]byte, error) {
	chunks := make([]chunker.Chunk, 0, len(refs))
	for _, ref := range refs {
		entry, err := p.store.Get(ctx, evidence.CollectionChunks, ref)
		if err != nil {
			if errors.Is(err, evidence.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", chunker.ErrMissingChunk, ref)
			}
			return nil, err
		}
		chunks = append(chunks, chunker.Chunk{
			Index:    int(asFloat(entry.Payload["chunk_index"])),
			B64:      asString(entry.Payload["b64"]),
			BytesLen: int(asFloat(entry.Payload["bytes_len"])),
		})
	}
	return chunker.Reconstruct(chunks)
}

// fetchReferenceExamples retrieves up to three prior verified pairs for
// few-shot grounding. Best-effort: any failure yields zero examples.
func (p *Pipeline) fetchReferenceExamples(ctx context.Context, probe []float32) []string {
	matches, err := p.store.Query(ctx, evidence.CollectionReferencePairs, probe, fewShotLimit, nil)
	if err != nil {
		log.WithError(err).Debug("reference example retrieval failed, continuing without examples")
		return nil
	}
	examples := make([]string, 0, len(matches))
	for _, m := range matches {
		if text := asString(m.Payload["example_text"]); text != "" {
			examples = append(examples, text)
		}
	}
	return examples
}

// assess calls the semantic assessor and parses its output, substituting the
// conservative default if either step fails. Verification never fails on
// assessor misbehavior.
func (p *Pipeline) assess(ctx context.Context, beforeB64, afterB64 string, meta vlm.Metadata, examples []string) *parser.Assessment {
	raw, err := p.assessor.AssessPair(ctx, beforeB64, afterB64, meta, examples)
	if err != nil {
		metrics.AssessorFallbackTotal.Inc()
		log.WithError(err).WithField("source", p.assessor.SourceName()).
			Warn("assessor call failed, using conservative default")
		return parser.ConservativeDefault(fmt.Sprintf("assessor call failed: %v", err))
	}
	assessment, err := parser.ParseAssessment(raw)
	if err != nil {
		metrics.AssessorFallbackTotal.Inc()
		log.WithError(err).WithField("source", p.assessor.SourceName()).
			Warn("assessor output unparseable, using conservative default")
		return parser.ConservativeDefault(fmt.Sprintf("assessor output unparseable: %v", err))
	}
	return assessment
}

func buildReport(proof models.ProofRecord, complaint models.ComplaintRecord, decision string, signals scoring.Signals, breakdown scoring.Breakdown, explanation string, assessment *parser.Assessment) *models.VerificationReport {
	flagged := decision == scoring.DecisionQuestionable ||
		assessment.Recommendation == parser.RecommendHumanReview
	return &models.VerificationReport{
		ProofID:               proof.ProofID,
		ComplaintID:           proof.ComplaintID,
		VerificationStatus:    decision,
		VerificationTimestamp: nowISO(),
		LocationValidation: models.LocationValidation{
			DistanceFromComplaintMeters: signals.DistanceMeters,
			WithinAcceptableRadius:      signals.DistanceMeters <= scoring.MaxDistanceMeters,
			ValidationPassed:            signals.DistanceMeters <= scoring.MaxDistanceMeters,
		},
		ImageAnalysis: models.ImageAnalysis{
			BeforeAfterComparison: models.BeforeAfterComparison{
				VisualChangeDetected: assessment.VisualChangeDetected,
				ChangeDescription:    assessment.ChangeDescription,
				ImprovementVisible:   assessment.ImprovementVisible,
			},
			QualityAssessment: models.QualityAssessment{
				WorkCompletionScore: assessment.WorkCompletionScore,
				IssuesDetected:      assessment.IssuesDetected,
				MeetsStandards:      assessment.MeetsStandards,
			},
			AuthenticityCheck: models.AuthenticityCheck{
				IsOriginalPhoto:       !proof.RecycledFlag,
				RecycledPhotoDetected: proof.RecycledFlag,
				ManipulationDetected:  signals.ManipulationProbability >= scoring.ManipulationRejectThreshold || assessment.ManipulationDetected,
				FraudRiskScore:        assessment.FraudRiskScore,
			},
		},
		TimelineValidation: models.TimelineValidation{
			WorkerAtLocation:   signals.DistanceMeters <= scoring.MaxDistanceMeters,
			ReasonableDuration: true,
		},
		Signals:          signals,
		Scoring:          breakdown,
		Explanation:      explanation,
		VLMExplanation:   assessment.Explanation,
		Recommendation:   assessment.Recommendation,
		FlaggedForReview: flagged,
	}
}

// persistAudit stores the report as an opaque base64 payload plus the verdict
// for cheap filtering, keyed by a fresh audit id.
func (p *Pipeline) persistAudit(ctx context.Context, report *models.VerificationReport) (string, error) {
	raw, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}
	auditID := uuid.New().String()
	payload := map[string]interface{}{
		"audit_id":     auditID,
		"proof_id":     report.ProofID,
		"complaint_id": report.ComplaintID,
		"verdict":      report.VerificationStatus,
		"report_b64":   base64.StdEncoding.EncodeToString(raw),
		"created_at":   nowISO(),
	}
	if err := p.store.Put(ctx, evidence.CollectionAudits, auditKey(auditID), evidence.PlaceholderVector(), payload); err != nil {
		return "", fmt.Errorf("persisting audit record: %w", err)
	}
	return auditID, nil
}

func decodeAuditReport(payload map[string]interface{}) (*models.VerificationReport, error) {
	raw, err := base64.StdEncoding.DecodeString(asString(payload["report_b64"]))
	if err != nil {
		return nil, fmt.Errorf("decoding audit payload: %w", err)
	}
	var report models.VerificationReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("decoding audit report: %w", err)
	}
	return &report, nil
}

// afterVerdict runs the best-effort post-decision side effects: review queue
// insertion, reference-pair capture on VERIFIED, report publishing.
func (p *Pipeline) afterVerdict(ctx context.Context, report *models.VerificationReport, proofVector []float32, assessment *parser.Assessment) {
	if report.FlaggedForReview && p.review != nil {
		if err := p.review.Enqueue(ctx, *report); err != nil {
			log.WithError(err).WithField("proof_id", report.ProofID).
				Error("review queue insert failed")
		} else {
			metrics.ReviewQueueInsertsTotal.Inc()
		}
	}

	if report.VerificationStatus == scoring.DecisionVerified {
		text := referenceExampleText(report, assessment)
		payload := map[string]interface{}{
			"proof_id":     report.ProofID,
			"complaint_id": report.ComplaintID,
			"example_text": text,
			"created_at":   nowISO(),
		}
		key := fmt.Sprintf("refpair::%s", report.ProofID)
		if err := p.store.Put(ctx, evidence.CollectionReferencePairs, key, proofVector, payload); err != nil {
			log.WithError(err).WithField("proof_id", report.ProofID).
				Warn("reference pair capture failed")
		}
	}

	if p.publisher != nil {
		if err := p.publisher.PublishReport(*report); err != nil {
			log.WithError(err).WithField("proof_id", report.ProofID).
				Error("report publish failed")
		}
	}
}

// referenceExampleText renders a verified pair into the one-line exemplar
// format fed back to the assessor as few-shot grounding.
func referenceExampleText(report *models.VerificationReport, assessment *parser.Assessment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Verified remediation (score %d/10, distance %.0fm): ",
		assessment.WorkCompletionScore, report.Signals.DistanceMeters)
	if assessment.ChangeDescription != "" {
		b.WriteString(assessment.ChangeDescription)
	} else {
		b.WriteString("visible improvement between before and after images")
	}
	return b.String()
}
