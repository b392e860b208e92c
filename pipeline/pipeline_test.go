package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"

	"proof-verify-pipeline/chunker"
	"proof-verify-pipeline/embedding"
	"proof-verify-pipeline/evidence"
	"proof-verify-pipeline/manipulation"
	"proof-verify-pipeline/models"
	"proof-verify-pipeline/parser"
	"proof-verify-pipeline/scoring"
	"proof-verify-pipeline/vlm"
)

const (
	baseLat = 37.7749
	baseLon = -122.4194
)

func testJPEG(t *testing.T, w, h int, paint func(x, y int) color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, paint(x, y))
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func gradientPainter(x, y int) color.Color {
	return color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: uint8((x + y) % 256), A: 255}
}

func checkerPainter(x, y int) color.Color {
	if (x/8+y/8)%2 == 0 {
		return color.RGBA{R: 230, G: 230, B: 230, A: 255}
	}
	return color.RGBA{R: 20, G: 20, B: 20, A: 255}
}

func newTestPipeline(manipProb float64) (*Pipeline, *evidence.MemStore) {
	store := evidence.NewMemStore()
	p := New(store, embedding.NewPixelEmbedder(),
		&manipulation.FixedDetector{Probability: manipProb}, vlm.NewStubAssessor())
	return p, store
}

func ingestPair(t *testing.T, p *Pipeline, proofLat, proofLon float64) string {
	t.Helper()
	ctx := context.Background()
	_, err := p.IngestComplaint(ctx, ComplaintInput{
		ComplaintID: "c-1",
		Image:       testJPEG(t, 64, 64, gradientPainter),
		Lat:         baseLat,
		Lon:         baseLon,
		Timestamp:   "2026-08-01T10:00:00Z",
		IssueType:   "litter",
	})
	if err != nil {
		t.Fatalf("ingest complaint: %v", err)
	}
	res, err := p.IngestProof(ctx, ProofInput{
		ProofID:     "p-1",
		ComplaintID: "c-1",
		WorkerID:    "w-1",
		Image:       testJPEG(t, 64, 64, checkerPainter),
		Lat:         proofLat,
		Lon:         proofLon,
		Timestamp:   "2026-08-01T12:00:00Z",
	})
	if err != nil {
		t.Fatalf("ingest proof: %v", err)
	}
	return res.ProofID
}

func TestIngestComplaint(t *testing.T) {
	p, store := newTestPipeline(0)
	ctx := context.Background()
	res, err := p.IngestComplaint(ctx, ComplaintInput{
		ComplaintID: "c-1",
		Image:       testJPEG(t, 64, 64, gradientPainter),
		Lat:         baseLat,
		Lon:         baseLon,
		Timestamp:   "2026-08-01T10:00:00Z",
		IssueType:   "litter",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != "ingested" || res.MediaID == "" {
		t.Fatalf("unexpected result %+v", res)
	}

	entry, err := store.Get(ctx, evidence.CollectionComplaints, complaintKey("c-1", res.MediaID))
	if err != nil {
		t.Fatalf("complaint record not stored: %v", err)
	}
	rec := complaintFromPayload(entry.Payload)
	if rec.PerceptualHash == "" || rec.ThumbnailRef == "" || len(rec.ChunkRefs) == 0 {
		t.Fatalf("incomplete record %+v", rec)
	}
	if rec.CellToken == "" {
		t.Fatal("cell token missing")
	}
	if _, err := store.Get(ctx, evidence.CollectionChunks, rec.ThumbnailRef); err != nil {
		t.Fatalf("thumbnail chunk not stored: %v", err)
	}
	for _, ref := range rec.ChunkRefs {
		if _, err := store.Get(ctx, evidence.CollectionChunks, ref); err != nil {
			t.Fatalf("chunk %s not stored: %v", ref, err)
		}
	}
}

// noisePainter produces high-frequency texture that compresses poorly, like
// real gravel or scattered litter photos.
func noisePainter(x, y int) color.Color {
	v := uint32(x*73856093) ^ uint32(y*19349663)
	v = v*1664525 + 1013904223
	return color.RGBA{R: uint8(v), G: uint8(v >> 8), B: uint8(v >> 16), A: 255}
}

func TestIngestComplaintLargeThumbnail(t *testing.T) {
	p, store := newTestPipeline(0)
	ctx := context.Background()
	res, err := p.IngestComplaint(ctx, ComplaintInput{
		ComplaintID: "c-1",
		Image:       testJPEG(t, 1024, 1024, noisePainter),
		Lat:         baseLat,
		Lon:         baseLon,
		Timestamp:   "2026-08-01T10:00:00Z",
		IssueType:   "gravel",
	})
	if err != nil {
		t.Fatalf("high-texture photo failed ingestion: %v", err)
	}

	entry, err := store.Get(ctx, evidence.CollectionComplaints, complaintKey("c-1", res.MediaID))
	if err != nil {
		t.Fatal(err)
	}
	rec := complaintFromPayload(entry.Payload)
	thumb, err := store.Get(ctx, evidence.CollectionChunks, rec.ThumbnailRef)
	if err != nil {
		t.Fatalf("thumbnail chunk not stored: %v", err)
	}
	if got := int(asFloat(thumb.Payload["bytes_len"])); got <= chunker.DefaultChunkSize {
		t.Fatalf("test thumbnail only %d bytes, expected it to exceed the chunk size", got)
	}
	if int(asFloat(thumb.Payload["chunk_index"])) != chunker.ThumbnailIndex {
		t.Fatalf("thumbnail stored under index %v", thumb.Payload["chunk_index"])
	}
}

func TestIngestValidation(t *testing.T) {
	p, _ := newTestPipeline(0)
	ctx := context.Background()
	img := testJPEG(t, 64, 64, gradientPainter)

	cases := []ComplaintInput{
		{Image: img, Lat: baseLat, Lon: baseLon, Timestamp: "2026-08-01T10:00:00Z"},
		{ComplaintID: "c-1", Lat: baseLat, Lon: baseLon, Timestamp: "2026-08-01T10:00:00Z"},
		{ComplaintID: "c-1", Image: img, Lat: 91, Lon: baseLon, Timestamp: "2026-08-01T10:00:00Z"},
		{ComplaintID: "c-1", Image: img, Lat: baseLat, Lon: 181, Timestamp: "2026-08-01T10:00:00Z"},
		{ComplaintID: "c-1", Image: img, Lat: baseLat, Lon: baseLon},
	}
	for i, in := range cases {
		if _, err := p.IngestComplaint(ctx, in); !errors.Is(err, ErrValidation) {
			t.Errorf("case %d: err = %v, want ErrValidation", i, err)
		}
	}
}

func TestIngestProofDetectsRecycled(t *testing.T) {
	p, _ := newTestPipeline(0)
	ctx := context.Background()
	img := testJPEG(t, 64, 64, checkerPainter)

	first, err := p.IngestProof(ctx, ProofInput{
		ProofID: "p-1", ComplaintID: "c-1", WorkerID: "w-1",
		Image: img, Lat: baseLat, Lon: baseLon, Timestamp: "2026-08-01T12:00:00Z",
	})
	if err != nil {
		t.Fatal(err)
	}
	if first.RecycledFlag {
		t.Fatal("first submission flagged as recycled")
	}

	second, err := p.IngestProof(ctx, ProofInput{
		ProofID: "p-2", ComplaintID: "c-2", WorkerID: "w-2",
		Image: img, Lat: baseLat, Lon: baseLon, Timestamp: "2026-08-02T12:00:00Z",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !second.RecycledFlag {
		t.Fatal("resubmitted photo not flagged as recycled")
	}
}

type phashFailingStore struct {
	*evidence.MemStore
}

func (s *phashFailingStore) Query(ctx context.Context, collection string, probe []float32, topK int, filter map[string]interface{}) ([]evidence.Match, error) {
	if collection == evidence.CollectionPhashIndex {
		return nil, errors.New("index unavailable")
	}
	return s.MemStore.Query(ctx, collection, probe, topK, filter)
}

func TestIngestProofFailsWhenIndexProbeFails(t *testing.T) {
	store := &phashFailingStore{MemStore: evidence.NewMemStore()}
	p := New(store, embedding.NewPixelEmbedder(),
		&manipulation.FixedDetector{}, vlm.NewStubAssessor())
	ctx := context.Background()

	_, err := p.IngestProof(ctx, ProofInput{
		ProofID: "p-1", ComplaintID: "c-1", WorkerID: "w-1",
		Image: testJPEG(t, 64, 64, checkerPainter),
		Lat:   baseLat, Lon: baseLon, Timestamp: "2026-08-01T12:00:00Z",
	})
	if err == nil {
		t.Fatal("ingestion succeeded despite an unreachable phash index")
	}
	// the record must not have been written with an unchecked recycled flag
	if _, err := store.Get(ctx, evidence.CollectionProofs, proofKey("p-1")); !errors.Is(err, evidence.ErrNotFound) {
		t.Fatalf("proof record written anyway: %v", err)
	}
}

func TestDuplicateThresholdConfigurable(t *testing.T) {
	p, _ := newTestPipeline(0)
	// an unreachable threshold disables duplicate flagging entirely
	p.WithDuplicateThreshold(2.0)
	ctx := context.Background()
	img := testJPEG(t, 64, 64, checkerPainter)

	for _, id := range []string{"p-1", "p-2"} {
		res, err := p.IngestProof(ctx, ProofInput{
			ProofID: id, ComplaintID: "c-1", WorkerID: "w-1",
			Image: img, Lat: baseLat, Lon: baseLon,
			Timestamp: "2026-08-01T12:00:00Z",
		})
		if err != nil {
			t.Fatal(err)
		}
		if res.RecycledFlag {
			t.Fatalf("%s flagged despite unreachable threshold", id)
		}
	}
}

func TestVerifyProofNotFound(t *testing.T) {
	p, _ := newTestPipeline(0)
	if _, err := p.VerifyProof(context.Background(), "missing"); !errors.Is(err, ErrProofNotFound) {
		t.Fatalf("err = %v, want ErrProofNotFound", err)
	}
}

func TestVerifyComplaintNotFound(t *testing.T) {
	p, _ := newTestPipeline(0)
	ctx := context.Background()
	_, err := p.IngestProof(ctx, ProofInput{
		ProofID: "p-1", ComplaintID: "c-unknown", WorkerID: "w-1",
		Image: testJPEG(t, 64, 64, checkerPainter),
		Lat:   baseLat, Lon: baseLon, Timestamp: "2026-08-01T12:00:00Z",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.VerifyProof(ctx, "p-1"); !errors.Is(err, ErrComplaintNotFound) {
		t.Fatalf("err = %v, want ErrComplaintNotFound", err)
	}
}

func TestVerifyNearbyProofSkipsManipulationCheck(t *testing.T) {
	// detector would reject everything if consulted; a nearby non-recycled
	// proof must never reach it
	p, _ := newTestPipeline(0.99)
	proofID := ingestPair(t, p, baseLat+0.0001, baseLon)

	report, err := p.VerifyProof(context.Background(), proofID)
	if err != nil {
		t.Fatal(err)
	}
	if report.Signals.ManipulationProbability != 0 {
		t.Fatalf("manipulation check ran for an unsuspicious proof: %v",
			report.Signals.ManipulationProbability)
	}
	if !report.LocationValidation.WithinAcceptableRadius {
		t.Fatalf("11m proof outside radius: %+v", report.LocationValidation)
	}
	if report.VerificationStatus == scoring.DecisionRejected {
		t.Fatalf("nearby clean proof rejected: %s", report.Explanation)
	}
}

func TestVerifyDistantProofRejected(t *testing.T) {
	p, _ := newTestPipeline(0)
	proofID := ingestPair(t, p, baseLat+0.001, baseLon) // ~111m north

	report, err := p.VerifyProof(context.Background(), proofID)
	if err != nil {
		t.Fatal(err)
	}
	if report.VerificationStatus != scoring.DecisionRejected {
		t.Fatalf("verdict = %s, want REJECTED", report.VerificationStatus)
	}
	if report.LocationValidation.WithinAcceptableRadius {
		t.Fatalf("111m judged within radius: %+v", report.LocationValidation)
	}
	if !strings.Contains(report.Explanation, "Critical Failure") {
		t.Fatalf("explanation missing critical failure: %s", report.Explanation)
	}
}

func TestVerifyRecycledProofRejected(t *testing.T) {
	p, _ := newTestPipeline(0)
	ctx := context.Background()
	_, err := p.IngestComplaint(ctx, ComplaintInput{
		ComplaintID: "c-1",
		Image:       testJPEG(t, 64, 64, gradientPainter),
		Lat:         baseLat, Lon: baseLon,
		Timestamp: "2026-08-01T10:00:00Z",
	})
	if err != nil {
		t.Fatal(err)
	}
	img := testJPEG(t, 64, 64, checkerPainter)
	for _, id := range []string{"p-1", "p-2"} {
		if _, err := p.IngestProof(ctx, ProofInput{
			ProofID: id, ComplaintID: "c-1", WorkerID: "w-1",
			Image: img, Lat: baseLat, Lon: baseLon,
			Timestamp: "2026-08-01T12:00:00Z",
		}); err != nil {
			t.Fatal(err)
		}
	}

	report, err := p.VerifyProof(ctx, "p-2")
	if err != nil {
		t.Fatal(err)
	}
	if report.VerificationStatus != scoring.DecisionRejected {
		t.Fatalf("verdict = %s, want REJECTED", report.VerificationStatus)
	}
	if !report.ImageAnalysis.AuthenticityCheck.RecycledPhotoDetected {
		t.Fatal("authenticity section missing recycled flag")
	}
}

func TestVerifyPersistsAudit(t *testing.T) {
	p, store := newTestPipeline(0)
	proofID := ingestPair(t, p, baseLat+0.0001, baseLon)
	ctx := context.Background()

	report, err := p.VerifyProof(ctx, proofID)
	if err != nil {
		t.Fatal(err)
	}

	matches, err := store.Query(ctx, evidence.CollectionAudits, evidence.PlaceholderVector(), 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("audit records = %d, want 1", len(matches))
	}
	payload := matches[0].Payload
	if payload["verdict"] != report.VerificationStatus {
		t.Fatalf("audit verdict = %v, report %s", payload["verdict"], report.VerificationStatus)
	}

	fetched, err := p.FetchAudit(ctx, asString(payload["audit_id"]))
	if err != nil {
		t.Fatal(err)
	}
	if fetched.ProofID != proofID || fetched.VerificationStatus != report.VerificationStatus {
		t.Fatalf("audit round-trip mismatch: %+v", fetched)
	}
}

func TestFetchAuditNotFound(t *testing.T) {
	p, _ := newTestPipeline(0)
	if _, err := p.FetchAudit(context.Background(), "nope"); !errors.Is(err, ErrAuditNotFound) {
		t.Fatalf("err = %v, want ErrAuditNotFound", err)
	}
}

type captureQueue struct {
	reports []models.VerificationReport
}

func (q *captureQueue) Enqueue(_ context.Context, r models.VerificationReport) error {
	q.reports = append(q.reports, r)
	return nil
}

func TestFlaggedReportReachesReviewQueue(t *testing.T) {
	p, _ := newTestPipeline(0)
	queue := &captureQueue{}
	p.WithReviewQueue(queue)
	// distant proof: stub assessor recommends human review
	proofID := ingestPair(t, p, baseLat+0.001, baseLon)

	report, err := p.VerifyProof(context.Background(), proofID)
	if err != nil {
		t.Fatal(err)
	}
	if !report.FlaggedForReview {
		t.Fatalf("distant proof not flagged: %+v", report)
	}
	if len(queue.reports) != 1 || queue.reports[0].ProofID != proofID {
		t.Fatalf("review queue got %+v", queue.reports)
	}
}

type capturePublisher struct {
	reports []models.VerificationReport
}

func (c *capturePublisher) PublishReport(r models.VerificationReport) error {
	c.reports = append(c.reports, r)
	return nil
}

func TestReportPublished(t *testing.T) {
	p, _ := newTestPipeline(0)
	pub := &capturePublisher{}
	p.WithPublisher(pub)
	proofID := ingestPair(t, p, baseLat+0.0001, baseLon)

	if _, err := p.VerifyProof(context.Background(), proofID); err != nil {
		t.Fatal(err)
	}
	if len(pub.reports) != 1 {
		t.Fatalf("published %d reports, want 1", len(pub.reports))
	}
}

type failingAssessor struct{}

func (failingAssessor) AssessPair(context.Context, string, string, vlm.Metadata, []string) (string, error) {
	return "", errors.New("model unavailable")
}
func (failingAssessor) SourceName() string { return "Failing" }

func TestAssessorFailureDegradesConservatively(t *testing.T) {
	store := evidence.NewMemStore()
	p := New(store, embedding.NewPixelEmbedder(),
		&manipulation.FixedDetector{}, failingAssessor{})
	proofID := ingestPair(t, p, baseLat+0.0001, baseLon)

	report, err := p.VerifyProof(context.Background(), proofID)
	if err != nil {
		t.Fatalf("verification must survive assessor failure: %v", err)
	}
	if report.ImageAnalysis.QualityAssessment.WorkCompletionScore != 1 {
		t.Fatalf("fallback score = %d, want 1",
			report.ImageAnalysis.QualityAssessment.WorkCompletionScore)
	}
	if report.Recommendation != parser.RecommendHumanReview {
		t.Fatalf("fallback recommendation = %s", report.Recommendation)
	}
	if !report.FlaggedForReview {
		t.Fatal("conservative fallback must flag for review")
	}
}

func TestVerifiedProofCapturedAsReference(t *testing.T) {
	p, store := newTestPipeline(0)
	proofID := ingestPair(t, p, baseLat, baseLon)
	ctx := context.Background()

	report, err := p.VerifyProof(ctx, proofID)
	if err != nil {
		t.Fatal(err)
	}
	matches, err := store.Query(ctx, evidence.CollectionReferencePairs, evidence.PlaceholderVector(), 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.VerificationStatus == scoring.DecisionVerified {
		if len(matches) != 1 {
			t.Fatalf("reference pairs = %d, want 1", len(matches))
		}
		if asString(matches[0].Payload["example_text"]) == "" {
			t.Fatal("reference pair missing example text")
		}
	} else if len(matches) != 0 {
		t.Fatalf("non-verified verdict %s captured a reference pair", report.VerificationStatus)
	}
}
