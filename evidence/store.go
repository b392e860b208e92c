// Package evidence abstracts the external vector store used as the system's
// only persistence layer: content-addressed keyed payloads plus bounded
// nearest-neighbor queries.
package evidence

import (
	"context"
	"errors"
)

// Collection names. The semantic collections carry real embeddings; the
// metadata collections use the store purely as a keyed payload table with a
// fixed placeholder vector.
const (
	CollectionComplaints     = "complaints_before"
	CollectionProofs         = "proofs"
	CollectionChunks         = "chunks"
	CollectionPhashIndex     = "phash_index"
	CollectionAudits         = "audits"
	CollectionReferencePairs = "verified_reference_pairs"
)

// VectorDim is the fixed embedding dimension (CLIP ViT-class models).
const VectorDim = 512

// ErrNotFound is returned by Get when no entry exists under the key.
var ErrNotFound = errors.New("evidence entry not found")

// Entry is one stored vector with its payload.
type Entry struct {
	Key     string
	Vector  []float32
	Payload map[string]any
}

// Match is one ranked result of a similarity query.
type Match struct {
	Key     string
	Score   float64
	Vector  []float32
	Payload map[string]any
}

// Store is the evidence store adapter contract. Implementations must be safe
// for concurrent use; all operations are idempotent point operations with
// last-writer-wins semantics per key.
type Store interface {
	Put(ctx context.Context, collection, key string, vector []float32, payload map[string]any) error
	Get(ctx context.Context, collection, key string) (*Entry, error)
	Query(ctx context.Context, collection string, probe []float32, topK int, filter map[string]any) ([]Match, error)
}

// PlaceholderVector returns the fixed minimal non-zero vector stored with
// entries in collections that never participate in similarity search.
func PlaceholderVector() []float32 {
	v := make([]float32, VectorDim)
	v[0] = 0.001
	return v
}
