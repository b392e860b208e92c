// Package embedding defines the image embedding boundary. The generator is
// an opaque bytes -> vector function; the pipeline only consumes its output.
package embedding

import (
	"bytes"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Dim is the fixed embedding dimension.
const Dim = 512

// Embedder produces a fixed-length embedding for an image.
type Embedder interface {
	Embed(data []byte) ([]float32, error)
}

// PixelEmbedder is a deterministic, model-free embedder: it extracts a
// normalized low-resolution pixel feature vector. It stands in for a CLIP
// class model behind the same interface and keeps similarity rankings stable
// between visually identical images.
type PixelEmbedder struct{}

// NewPixelEmbedder creates a deterministic local embedder.
func NewPixelEmbedder() *PixelEmbedder { return &PixelEmbedder{} }

// Embed decodes the image, resizes it to a fixed grid and emits the first
// Dim RGB channel values, L2-normalized.
func (e *PixelEmbedder) Embed(data []byte) ([]float32, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image for embedding: %w", err)
	}

	const edge = 224
	scaled := image.NewRGBA(image.Rect(0, 0, edge, edge))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Over, nil)

	features := make([]float64, 0, Dim)
	for y := 0; y < edge && len(features) < Dim; y++ {
		for x := 0; x < edge && len(features) < Dim; x++ {
			px := scaled.RGBAAt(x, y)
			for _, ch := range []uint8{px.R, px.G, px.B} {
				if len(features) == Dim {
					break
				}
				features = append(features, float64(ch))
			}
		}
	}

	var norm float64
	for _, v := range features {
		norm += v * v
	}
	norm = math.Sqrt(norm) + 1e-8

	out := make([]float32, Dim)
	for i, v := range features {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// CosineSimilarity returns the cosine of the angle between two embeddings,
// 0 when either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
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
