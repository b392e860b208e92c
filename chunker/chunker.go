package chunker

import (
	"encoding/base64"
	"fmt"
	"sort"
)

// DefaultChunkSize is the raw chunk size used for stored images.
// 20KB raw encodes to roughly 27KB of base64, which stays well under
// the evidence store's per-vector metadata limit.
const DefaultChunkSize = 20 * 1024

// ThumbnailIndex marks the thumbnail chunk. It is stored alongside the
// regular chunks but never participates in reconstruction.
const ThumbnailIndex = -1

// Chunk is one piece of a split byte sequence, carried as base64 so it can
// live in vector-store metadata.
type Chunk struct {
	Index    int    `json:"chunk_index"`
	B64      string `json:"b64"`
	BytesLen int    `json:"bytes_len"`
}

// Split partitions data into contiguous chunks of at most chunkSize bytes.
// The last chunk may be shorter. Empty input yields zero chunks.
func Split(data []byte, chunkSize int) []Chunk {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var chunks []Chunk
	total := len(data)
	for start := 0; start < total; start += chunkSize {
		end := start + chunkSize
		if end > total {
			end = total
		}
		part := data[start:end]
		chunks = append(chunks, Chunk{
			Index:    len(chunks),
			B64:      base64.StdEncoding.EncodeToString(part),
			BytesLen: len(part),
		})
	}
	return chunks
}

// Reconstruct reassembles the original byte sequence from chunks, sorting by
// ascending index. Thumbnail chunks (index -1) are skipped. It fails if the
// remaining indexes do not form a contiguous 0..n-1 range or a chunk does not
// decode.
func Reconstruct(chunks []Chunk) ([]byte, error) {
	ordered := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Index == ThumbnailIndex {
			continue
		}
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	var data []byte
	for i, c := range ordered {
		if c.Index != i {
			return nil, fmt.Errorf("chunk set is not contiguous at position %d (got index %d): %w", i, c.Index, ErrMissingChunk)
		}
		part, err := base64.StdEncoding.DecodeString(c.B64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode chunk %d: %w", c.Index, err)
		}
		data = append(data, part...)
	}
	return data, nil
}
