package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"math/bits"
	"sort"
	"strconv"

	"golang.org/x/image/draw"
)

const (
	// HashBits is the fixed bit length of the perceptual hash.
	HashBits = 64

	// DefaultDuplicateThreshold flags two images as the same physical photo.
	// At 64 bits this admits a Hamming distance of up to 6.
	DefaultDuplicateThreshold = 0.90

	// dctSize is the grayscale edge length fed into the DCT; the hash keeps
	// the 8x8 low-frequency block.
	dctSize  = 32
	hashSize = 8

	// errorDistance is returned when either hash cannot be parsed. It exceeds
	// HashBits so similarity collapses below any sensible threshold: an
	// unreadable fingerprint never matches anything.
	errorDistance = 100
)

// Fingerprint computes a 64-bit DCT perceptual hash of an image, encoded as a
// 16-character hex string. The hash is stable under recompression and
// resizing but diverges for genuinely different content.
func Fingerprint(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image for fingerprint: %w", err)
	}

	gray := grayscaleResize(img, dctSize, dctSize)
	coeffs := dct2d(gray, dctSize)

	// Low-frequency block, median-thresholded into bits.
	low := make([]float64, 0, hashSize*hashSize)
	for y := 0; y < hashSize; y++ {
		for x := 0; x < hashSize; x++ {
			low = append(low, coeffs[y*dctSize+x])
		}
	}
	med := median(low)

	var hash uint64
	for i, v := range low {
		if v > med {
			hash |= 1 << uint(len(low)-1-i)
		}
	}
	return fmt.Sprintf("%016x", hash), nil
}

// HammingDistance counts differing bits between two hex-encoded hashes.
// Unparseable input yields a distance beyond HashBits rather than an error,
// so malformed fingerprints fail open toward "not a duplicate".
func HammingDistance(h1, h2 string) int {
	a, err1 := strconv.ParseUint(h1, 16, 64)
	b, err2 := strconv.ParseUint(h2, 16, 64)
	if err1 != nil || err2 != nil {
		return errorDistance
	}
	return bits.OnesCount64(a ^ b)
}

// HashSimilarity maps Hamming distance onto [0,1] for well-formed hashes;
// negative for unparseable input.
func HashSimilarity(h1, h2 string) float64 {
	return 1.0 - float64(HammingDistance(h1, h2))/float64(HashBits)
}

// IsDuplicate reports whether two fingerprints describe the same physical
// photo at the given similarity threshold.
func IsDuplicate(h1, h2 string, threshold float64) bool {
	return HashSimilarity(h1, h2) >= threshold
}

// grayscaleResize scales img to w x h and returns row-major luma values.
func grayscaleResize(img image.Image, w, h int) []float64 {
	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Over, nil)

	gray := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := scaled.At(x, y).RGBA()
			// ITU-R BT.601 luma, on 16-bit channel values.
			gray[y*w+x] = (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257.0
		}
	}
	return gray
}

// dct2d applies a 2D type-II DCT to an n x n row-major matrix.
func dct2d(input []float64, n int) []float64 {
	tmp := make([]float64, n*n)
	out := make([]float64, n*n)

	// Rows.
	for y := 0; y < n; y++ {
		dct1d(input[y*n:(y+1)*n], tmp[y*n:(y+1)*n], n)
	}
	// Columns.
	col := make([]float64, n)
	res := make([]float64, n)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			col[y] = tmp[y*n+x]
		}
		dct1d(col, res, n)
		for y := 0; y < n; y++ {
			out[y*n+x] = res[y]
		}
	}
	return out
}

func dct1d(in, out []float64, n int) {
	for k := 0; k < n; k++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += in[i] * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(n)))
		}
		scale := math.Sqrt(2.0 / float64(n))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(n))
		}
		out[k] = sum * scale
	}
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
