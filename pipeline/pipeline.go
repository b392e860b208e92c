// Package pipeline orchestrates evidence ingestion and proof verification.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"proof-verify-pipeline/chunker"
	"proof-verify-pipeline/dedup"
	"proof-verify-pipeline/embedding"
	"proof-verify-pipeline/evidence"
	"proof-verify-pipeline/geoutil"
	"proof-verify-pipeline/imageproc"
	"proof-verify-pipeline/manipulation"
	"proof-verify-pipeline/metrics"
	"proof-verify-pipeline/models"
	"proof-verify-pipeline/vlm"
)

// ReviewQueue receives reports whose verdict needs a human decision.
type ReviewQueue interface {
	Enqueue(ctx context.Context, report models.VerificationReport) error
}

// ReportPublisher fans completed reports out to downstream consumers.
type ReportPublisher interface {
	PublishReport(report models.VerificationReport) error
}

// Pipeline wires the evidence store and the model collaborators together.
// Construct once at startup; safe for concurrent callers.
type Pipeline struct {
	store    evidence.Store
	embedder embedding.Embedder
	detector manipulation.Detector
	assessor vlm.Assessor
	dedup    *dedup.Detector

	// both optional
	review    ReviewQueue
	publisher ReportPublisher
}

// New builds a Pipeline. ReviewQueue and ReportPublisher are attached
// separately because both are optional in smaller deployments.
func New(store evidence.Store, embedder embedding.Embedder, detector manipulation.Detector, assessor vlm.Assessor) *Pipeline {
	return &Pipeline{
		store:    store,
		embedder: embedder,
		detector: detector,
		assessor: assessor,
		dedup:    dedup.New(store),
	}
}

// WithDuplicateThreshold overrides the duplicate-similarity threshold.
func (p *Pipeline) WithDuplicateThreshold(threshold float64) *Pipeline {
	p.dedup = dedup.NewWithThreshold(p.store, threshold)
	return p
}

// WithReviewQueue attaches a review queue for QUESTIONABLE verdicts.
func (p *Pipeline) WithReviewQueue(q ReviewQueue) *Pipeline {
	p.review = q
	return p
}

// WithPublisher attaches a report publisher.
func (p *Pipeline) WithPublisher(pub ReportPublisher) *Pipeline {
	p.publisher = pub
	return p
}

// ComplaintInput is the caller-facing complaint ingestion request.
type ComplaintInput struct {
	ComplaintID string
	Image       []byte
	Lat         float64
	Lon         float64
	Timestamp   string
	IssueType   string
}

// ProofInput is the caller-facing proof ingestion request.
type ProofInput struct {
	ProofID     string
	ComplaintID string
	WorkerID    string
	Image       []byte
	Lat         float64
	Lon         float64
	Timestamp   string
}

func validateCoords(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: coordinates out of range", ErrValidation)
	}
	return nil
}

// prepared holds everything derived from one image before persistence.
type prepared struct {
	vector    []float32
	hash      string
	thumb     chunker.Chunk
	chunks    []chunker.Chunk
	sizeBytes int
}

func (p *Pipeline) prepareImage(data []byte) (*prepared, error) {
	vector, err := p.embedder.Embed(data)
	if err != nil {
		return nil, fmt.Errorf("embedding image: %w", err)
	}
	hash, err := imageproc.Fingerprint(data)
	if err != nil {
		return nil, fmt.Errorf("fingerprinting image: %w", err)
	}
	thumb, err := imageproc.Thumbnail(data)
	if err != nil {
		return nil, fmt.Errorf("building thumbnail: %w", err)
	}
	return &prepared{
		vector: vector,
		hash:   hash,
		// the thumbnail is stored whole as the index -1 chunk, whatever its
		// size; only the full image is split
		thumb: chunker.Chunk{
			Index:    chunker.ThumbnailIndex,
			B64:      base64.StdEncoding.EncodeToString(thumb),
			BytesLen: len(thumb),
		},
		chunks:    chunker.Split(data, chunker.DefaultChunkSize),
		sizeBytes: len(data),
	}, nil
}

// persistChunks writes the full-image chunks plus the thumbnail chunk under
// parentKey and returns the chunk refs in order.
func (p *Pipeline) persistChunks(ctx context.Context, parentKey string, prep *prepared) ([]string, string, error) {
	refs := make([]string, 0, len(prep.chunks))
	for _, c := range prep.chunks {
		key := chunkKey(parentKey, c.Index)
		payload := map[string]interface{}{
			"parent":      parentKey,
			"chunk_index": c.Index,
			"b64":         c.B64,
			"bytes_len":   c.BytesLen,
		}
		if err := p.store.Put(ctx, evidence.CollectionChunks, key, evidence.PlaceholderVector(), payload); err != nil {
			return nil, "", fmt.Errorf("persisting chunk %d: %w", c.Index, err)
		}
		refs = append(refs, key)
	}
	tk := thumbKey(parentKey)
	payload := map[string]interface{}{
		"parent":      parentKey,
		"chunk_index": prep.thumb.Index,
		"b64":         prep.thumb.B64,
		"bytes_len":   prep.thumb.BytesLen,
	}
	if err := p.store.Put(ctx, evidence.CollectionChunks, tk, evidence.PlaceholderVector(), payload); err != nil {
		return nil, "", fmt.Errorf("persisting thumbnail chunk: %w", err)
	}
	return refs, tk, nil
}

// IngestComplaint stores the before-state evidence. All-or-nothing from the
// caller's perspective: any persistence failure fails the whole call.
func (p *Pipeline) IngestComplaint(ctx context.Context, in ComplaintInput) (*models.ComplaintIngestResult, error) {
	if in.ComplaintID == "" || len(in.Image) == 0 || in.Timestamp == "" {
		return nil, fmt.Errorf("%w: complaint_id, image and timestamp are required", ErrValidation)
	}
	if err := validateCoords(in.Lat, in.Lon); err != nil {
		return nil, err
	}

	prep, err := p.prepareImage(in.Image)
	if err != nil {
		metrics.IngestsTotal.WithLabelValues("complaint", "error").Inc()
		return nil, err
	}

	mediaID := uuid.New().String()
	key := complaintKey(in.ComplaintID, mediaID)
	refs, thumbRef, err := p.persistChunks(ctx, key, prep)
	if err != nil {
		metrics.IngestsTotal.WithLabelValues("complaint", "error").Inc()
		return nil, err
	}

	rec := models.ComplaintRecord{
		ComplaintID:    in.ComplaintID,
		MediaID:        mediaID,
		Timestamp:      in.Timestamp,
		Lat:            in.Lat,
		Lon:            in.Lon,
		PerceptualHash: prep.hash,
		IssueType:      in.IssueType,
		ChunkRefs:      refs,
		ThumbnailRef:   thumbRef,
		CellToken:      geoutil.CellToken(in.Lat, in.Lon),
	}
	if err := p.store.Put(ctx, evidence.CollectionComplaints, key, prep.vector, complaintPayload(rec)); err != nil {
		metrics.IngestsTotal.WithLabelValues("complaint", "error").Inc()
		return nil, fmt.Errorf("persisting complaint record: %w", err)
	}

	metrics.IngestsTotal.WithLabelValues("complaint", "ok").Inc()
	log.WithFields(log.Fields{
		"complaint_id": in.ComplaintID,
		"media_id":     mediaID,
		"chunks":       len(refs),
	}).Info("complaint ingested")

	return &models.ComplaintIngestResult{
		ComplaintID: in.ComplaintID,
		MediaID:     mediaID,
		Status:      "ingested",
	}, nil
}

// IngestProof stores the after-state evidence. The recycled flag is decided
// here, once, against the phash index; the index entry for this proof is the
// last write so a failed ingestion never leaves an index entry referencing a
// proof that was never stored.
func (p *Pipeline) IngestProof(ctx context.Context, in ProofInput) (*models.ProofIngestResult, error) {
	if in.ProofID == "" || in.ComplaintID == "" || len(in.Image) == 0 || in.Timestamp == "" {
		return nil, fmt.Errorf("%w: proof_id, complaint_id, image and timestamp are required", ErrValidation)
	}
	if err := validateCoords(in.Lat, in.Lon); err != nil {
		return nil, err
	}

	prep, err := p.prepareImage(in.Image)
	if err != nil {
		metrics.IngestsTotal.WithLabelValues("proof", "error").Inc()
		return nil, err
	}

	recycled, matched, err := p.dedup.Check(ctx, prep.hash)
	if err != nil {
		metrics.IngestsTotal.WithLabelValues("proof", "error").Inc()
		return nil, err
	}
	if recycled {
		metrics.RecycledDetectedTotal.Inc()
		log.WithFields(log.Fields{
			"proof_id":     in.ProofID,
			"matched_hash": matched,
		}).Warn("recycled photo detected")
	}

	key := proofKey(in.ProofID)
	refs, thumbRef, err := p.persistChunks(ctx, key, prep)
	if err != nil {
		metrics.IngestsTotal.WithLabelValues("proof", "error").Inc()
		return nil, err
	}

	rec := models.ProofRecord{
		ProofID:        in.ProofID,
		ComplaintID:    in.ComplaintID,
		WorkerID:       in.WorkerID,
		Timestamp:      in.Timestamp,
		Lat:            in.Lat,
		Lon:            in.Lon,
		PerceptualHash: prep.hash,
		ChunkRefs:      refs,
		ThumbnailRef:   thumbRef,
		RecycledFlag:   recycled,
		SizeBytes:      prep.sizeBytes,
		CellToken:      geoutil.CellToken(in.Lat, in.Lon),
	}
	if err := p.store.Put(ctx, evidence.CollectionProofs, key, prep.vector, proofPayload(rec)); err != nil {
		metrics.IngestsTotal.WithLabelValues("proof", "error").Inc()
		return nil, fmt.Errorf("persisting proof record: %w", err)
	}

	if err := p.dedup.Record(ctx, prep.hash, in.ProofID); err != nil {
		metrics.IngestsTotal.WithLabelValues("proof", "error").Inc()
		return nil, err
	}

	metrics.IngestsTotal.WithLabelValues("proof", "ok").Inc()
	log.WithFields(log.Fields{
		"proof_id":      in.ProofID,
		"complaint_id":  in.ComplaintID,
		"recycled_flag": recycled,
	}).Info("proof ingested")

	return &models.ProofIngestResult{
		ProofID:      in.ProofID,
		Status:       "ingested",
		RecycledFlag: recycled,
	}, nil
}

// FetchAudit resolves an audit record by id and decodes the stored report.
func (p *Pipeline) FetchAudit(ctx context.Context, auditID string) (*models.VerificationReport, error) {
	entry, err := p.store.Get(ctx, evidence.CollectionAudits, auditKey(auditID))
	if err != nil {
		if errors.Is(err, evidence.ErrNotFound) {
			return nil, ErrAuditNotFound
		}
		return nil, fmt.Errorf("fetching audit record: %w", err)
	}
	return decodeAuditReport(entry.Payload)
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
