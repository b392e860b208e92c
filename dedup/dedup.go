// Package dedup detects recycled proof photos through a content-addressed
// perceptual-hash index.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"proof-verify-pipeline/evidence"
	"proof-verify-pipeline/imageproc"
)

// probeTopK bounds how many index entries a duplicate probe inspects.
const probeTopK = 100

// Detector answers "has a near-identical photo been submitted before"
// against the phash index collection.
type Detector struct {
	store     evidence.Store
	threshold float64
}

// New builds a Detector with the default similarity threshold.
func New(store evidence.Store) *Detector {
	return &Detector{store: store, threshold: imageproc.DefaultDuplicateThreshold}
}

// NewWithThreshold builds a Detector with a custom similarity threshold.
func NewWithThreshold(store evidence.Store, threshold float64) *Detector {
	return &Detector{store: store, threshold: threshold}
}

// IndexKey returns the content-addressed key for a perceptual hash.
func IndexKey(hash string) string {
	return fmt.Sprintf("phash::%s", hash)
}

// Check probes the index for a hash whose similarity to proofHash meets
// the threshold. A store error propagates: the recycled flag is decided
// once at ingestion and never revisited, so it must not be stamped false
// just because the index was unreachable.
func (d *Detector) Check(ctx context.Context, proofHash string) (bool, string, error) {
	matches, err := d.store.Query(ctx, evidence.CollectionPhashIndex,
		evidence.PlaceholderVector(), probeTopK, nil)
	if err != nil {
		return false, "", fmt.Errorf("probing phash index: %w", err)
	}
	for _, m := range matches {
		candidate, ok := m.Payload["hash"].(string)
		if !ok {
			continue
		}
		if imageproc.IsDuplicate(proofHash, candidate, d.threshold) {
			return true, candidate, nil
		}
	}
	return false, "", nil
}

// Record upserts the index entry for hash, appending proofID to its
// sightings. Entries are append-only: proof ids are never removed and
// first_seen never changes.
func (d *Detector) Record(ctx context.Context, hash, proofID string) error {
	key := IndexKey(hash)
	now := time.Now().UTC().Format(time.RFC3339)

	payload := map[string]interface{}{
		"hash":       hash,
		"proof_ids":  []interface{}{proofID},
		"first_seen": now,
		"last_seen":  now,
	}
	existing, err := d.store.Get(ctx, evidence.CollectionPhashIndex, key)
	if err == nil {
		payload["first_seen"] = existing.Payload["first_seen"]
		if prior, ok := existing.Payload["proof_ids"].([]interface{}); ok {
			payload["proof_ids"] = append(prior, proofID)
		}
	} else if !errors.Is(err, evidence.ErrNotFound) {
		return fmt.Errorf("fetching phash index entry: %w", err)
	}

	if err := d.store.Put(ctx, evidence.CollectionPhashIndex, key,
		evidence.PlaceholderVector(), payload); err != nil {
		return fmt.Errorf("writing phash index entry: %w", err)
	}
	return nil
}
