package evidence

import (
	"context"
	"errors"
	"testing"
)

func TestMemStorePutGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	payload := map[string]any{"complaint_id": "c-1", "lat": 37.7749}
	if err := s.Put(ctx, CollectionComplaints, "complaint::c-1", PlaceholderVector(), payload); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	e, err := s.Get(ctx, CollectionComplaints, "complaint::c-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if e.Payload["complaint_id"] != "c-1" {
		t.Errorf("payload = %v", e.Payload)
	}
	if len(e.Vector) != VectorDim {
		t.Errorf("vector dim = %d, want %d", len(e.Vector), VectorDim)
	}

	// Mutating the returned payload must not leak into the store.
	e.Payload["complaint_id"] = "tampered"
	e2, _ := s.Get(ctx, CollectionComplaints, "complaint::c-1")
	if e2.Payload["complaint_id"] != "c-1" {
		t.Error("stored payload aliased by reader")
	}
}

func TestMemStoreGetAbsent(t *testing.T) {
	s := NewMemStore()
	_, err := s.Get(context.Background(), CollectionProofs, "proof::missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStoreUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	key := "phash::abc"
	_ = s.Put(ctx, CollectionPhashIndex, key, PlaceholderVector(), map[string]any{"last_seen": "t1"})
	_ = s.Put(ctx, CollectionPhashIndex, key, PlaceholderVector(), map[string]any{"last_seen": "t2"})

	e, err := s.Get(ctx, CollectionPhashIndex, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if e.Payload["last_seen"] != "t2" {
		t.Errorf("last writer should win, got %v", e.Payload["last_seen"])
	}
}

func TestMemStoreQueryRankingAndFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	mkvec := func(x float32) []float32 {
		v := make([]float32, VectorDim)
		v[0] = 1
		v[1] = x
		return v
	}

	_ = s.Put(ctx, CollectionProofs, "proof::a", mkvec(0.0), map[string]any{"worker_id": "w1"})
	_ = s.Put(ctx, CollectionProofs, "proof::b", mkvec(0.5), map[string]any{"worker_id": "w2"})
	_ = s.Put(ctx, CollectionProofs, "proof::c", mkvec(2.0), map[string]any{"worker_id": "w1"})

	probe := mkvec(0.0)

	matches, err := s.Query(ctx, CollectionProofs, probe, 2, nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Key != "proof::a" {
		t.Errorf("best match = %q, want proof::a", matches[0].Key)
	}
	if matches[0].Score < matches[1].Score {
		t.Error("matches not ranked by descending score")
	}

	filtered, err := s.Query(ctx, CollectionProofs, probe, 10, map[string]any{"worker_id": "w2"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Key != "proof::b" {
		t.Errorf("filter mismatch: %v", filtered)
	}
}

func TestMemStoreQueryEmptyCollection(t *testing.T) {
	s := NewMemStore()
	matches, err := s.Query(context.Background(), CollectionAudits, PlaceholderVector(), 5, nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no matches, got %d", len(matches))
	}
}

func TestPlaceholderVector(t *testing.T) {
	v := PlaceholderVector()
	if len(v) != VectorDim {
		t.Fatalf("len = %d, want %d", len(v), VectorDim)
	}
	if v[0] != 0.001 {
		t.Errorf("v[0] = %v, want 0.001", v[0])
	}
	for i := 1; i < len(v); i++ {
		if v[i] != 0 {
			t.Fatalf("v[%d] = %v, want 0", i, v[i])
		}
	}
}
