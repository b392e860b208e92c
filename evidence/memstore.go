package evidence

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemStore is an in-process Store used by tests and local runs. Payloads are
// shallow-copied on write and read so callers cannot alias stored state.
type MemStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Entry
}

// NewMemStore creates an empty in-memory evidence store.
func NewMemStore() *MemStore {
	return &MemStore{collections: make(map[string]map[string]Entry)}
}

func copyPayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Put upserts an entry under the key.
func (m *MemStore) Put(_ context.Context, collection, key string, vector []float32, payload map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]Entry)
		m.collections[collection] = coll
	}
	coll[key] = Entry{
		Key:     key,
		Vector:  append([]float32(nil), vector...),
		Payload: copyPayload(payload),
	}
	return nil
}

// Get fetches an entry by key; ErrNotFound when absent.
func (m *MemStore) Get(_ context.Context, collection, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	coll, ok := m.collections[collection]
	if !ok {
		return nil, ErrNotFound
	}
	e, ok := coll[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &Entry{
		Key:     e.Key,
		Vector:  append([]float32(nil), e.Vector...),
		Payload: copyPayload(e.Payload),
	}, nil
}

// Query ranks entries by cosine similarity to the probe and returns up to
// topK matches, after applying the equality filter.
func (m *MemStore) Query(_ context.Context, collection string, probe []float32, topK int, filter map[string]any) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	coll := m.collections[collection]
	matches := make([]Match, 0, len(coll))
	for _, e := range coll {
		if !matchesFilter(e.Payload, filter) {
			continue
		}
		matches = append(matches, Match{
			Key:     e.Key,
			Score:   cosineSimilarity(probe, e.Vector),
			Vector:  append([]float32(nil), e.Vector...),
			Payload: copyPayload(e.Payload),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Key < matches[j].Key
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func matchesFilter(payload, filter map[string]any) bool {
	for k, want := range filter {
		if payload[k] != want {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
