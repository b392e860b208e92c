package chunker

import (
	"bytes"
	"errors"
	"testing"
)

func TestSplitReconstructRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		dataLen   int
		chunkSize int
		numChunks int
	}{
		{name: "empty input", dataLen: 0, chunkSize: 1024, numChunks: 0},
		{name: "single partial chunk", dataLen: 100, chunkSize: 1024, numChunks: 1},
		{name: "exact chunk boundary", dataLen: 2048, chunkSize: 1024, numChunks: 2},
		{name: "one byte over boundary", dataLen: 2049, chunkSize: 1024, numChunks: 3},
		{name: "chunk size one", dataLen: 5, chunkSize: 1, numChunks: 5},
		{name: "default chunk size", dataLen: 50 * 1024, chunkSize: DefaultChunkSize, numChunks: 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data := make([]byte, tc.dataLen)
			for i := range data {
				data[i] = byte(i % 251)
			}

			chunks := Split(data, tc.chunkSize)
			if len(chunks) != tc.numChunks {
				t.Fatalf("expected %d chunks, got %d", tc.numChunks, len(chunks))
			}
			for i, c := range chunks {
				if c.Index != i {
					t.Errorf("chunk %d has index %d", i, c.Index)
				}
			}

			got, err := Reconstruct(chunks)
			if err != nil {
				t.Fatalf("Reconstruct failed: %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Errorf("reconstructed bytes differ from original (len %d vs %d)", len(got), len(data))
			}
		})
	}
}

func TestReconstructUnordered(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	chunks := Split(data, 7)

	// Shuffle deterministically: reverse order.
	reversed := make([]Chunk, len(chunks))
	for i, c := range chunks {
		reversed[len(chunks)-1-i] = c
	}

	got, err := Reconstruct(reversed)
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %q, want %q", got, data)
	}
}

func TestReconstructSkipsThumbnail(t *testing.T) {
	data := []byte("full resolution image bytes")
	chunks := Split(data, 8)
	chunks = append(chunks, Chunk{Index: ThumbnailIndex, B64: "dGh1bWI=", BytesLen: 5})

	got, err := Reconstruct(chunks)
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("thumbnail chunk leaked into reconstruction: %q", got)
	}
}

func TestReconstructMissingChunk(t *testing.T) {
	data := make([]byte, 4096)
	chunks := Split(data, 1024)

	// Drop a middle chunk.
	broken := append([]Chunk{}, chunks[0], chunks[1], chunks[3])

	_, err := Reconstruct(broken)
	if err == nil {
		t.Fatal("expected error for missing chunk")
	}
	if !errors.Is(err, ErrMissingChunk) {
		t.Errorf("expected ErrMissingChunk, got %v", err)
	}
}

func TestReconstructBadBase64(t *testing.T) {
	chunks := []Chunk{{Index: 0, B64: "!!not base64!!", BytesLen: 3}}
	if _, err := Reconstruct(chunks); err == nil {
		t.Fatal("expected error for invalid base64 payload")
	}
}
