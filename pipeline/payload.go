package pipeline

import (
	"fmt"

	"proof-verify-pipeline/models"
)

// Payload maps round-trip through the store as JSON, so numbers come back
// as float64 and lists as []interface{}. These helpers normalize both the
// freshly-built and the re-read shapes.

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func asStringSlice(v interface{}) []string {
	switch vs := v.(type) {
	case []string:
		return vs
	case []interface{}:
		out := make([]string, 0, len(vs))
		for _, e := range vs {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func complaintKey(complaintID, mediaID string) string {
	return fmt.Sprintf("complaint::%s::media::%s", complaintID, mediaID)
}

func proofKey(proofID string) string {
	return fmt.Sprintf("proof::%s", proofID)
}

func chunkKey(parentKey string, index int) string {
	return fmt.Sprintf("%s#chunk::%d", parentKey, index)
}

func thumbKey(parentKey string) string {
	return fmt.Sprintf("%s#thumb", parentKey)
}

func auditKey(auditID string) string {
	return fmt.Sprintf("audit::%s", auditID)
}

func complaintPayload(rec models.ComplaintRecord) map[string]interface{} {
	return map[string]interface{}{
		"complaint_id": rec.ComplaintID,
		"media_id":     rec.MediaID,
		"ts_iso":       rec.Timestamp,
		"lat":          rec.Lat,
		"lon":          rec.Lon,
		"phash":        rec.PerceptualHash,
		"issue_type":   rec.IssueType,
		"chunks":       rec.ChunkRefs,
		"thumb_chunk":  rec.ThumbnailRef,
		"s2_cell":      rec.CellToken,
	}
}

func complaintFromPayload(p map[string]interface{}) models.ComplaintRecord {
	return models.ComplaintRecord{
		ComplaintID:    asString(p["complaint_id"]),
		MediaID:        asString(p["media_id"]),
		Timestamp:      asString(p["ts_iso"]),
		Lat:            asFloat(p["lat"]),
		Lon:            asFloat(p["lon"]),
		PerceptualHash: asString(p["phash"]),
		IssueType:      asString(p["issue_type"]),
		ChunkRefs:      asStringSlice(p["chunks"]),
		ThumbnailRef:   asString(p["thumb_chunk"]),
		CellToken:      asString(p["s2_cell"]),
	}
}

func proofPayload(rec models.ProofRecord) map[string]interface{} {
	return map[string]interface{}{
		"proof_id":      rec.ProofID,
		"complaint_id":  rec.ComplaintID,
		"worker_id":     rec.WorkerID,
		"ts_iso":        rec.Timestamp,
		"lat":           rec.Lat,
		"lon":           rec.Lon,
		"phash":         rec.PerceptualHash,
		"chunks":        rec.ChunkRefs,
		"thumb_chunk":   rec.ThumbnailRef,
		"recycled_flag": rec.RecycledFlag,
		"size_bytes":    rec.SizeBytes,
		"s2_cell":       rec.CellToken,
	}
}

func proofFromPayload(p map[string]interface{}) models.ProofRecord {
	return models.ProofRecord{
		ProofID:        asString(p["proof_id"]),
		ComplaintID:    asString(p["complaint_id"]),
		WorkerID:       asString(p["worker_id"]),
		Timestamp:      asString(p["ts_iso"]),
		Lat:            asFloat(p["lat"]),
		Lon:            asFloat(p["lon"]),
		PerceptualHash: asString(p["phash"]),
		ChunkRefs:      asStringSlice(p["chunks"]),
		ThumbnailRef:   asString(p["thumb_chunk"]),
		RecycledFlag:   asBool(p["recycled_flag"]),
		SizeBytes:      int(asFloat(p["size_bytes"])),
		CellToken:      asString(p["s2_cell"]),
	}
}
